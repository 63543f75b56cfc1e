package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/auth"
	"github.com/Kerhoff/wishlist/internal/service"
)

// requestLogger logs every request once it is served and counts it by route
// pattern. Headers are never logged since they may carry a password.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.ObserveRequest(r.Method, route, status)

		entry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("HTTP request")
		} else {
			entry.Info("HTTP request")
		}
	})
}

func (s *Server) cors() func(http.Handler) http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			PasswordHeader,
		},
		MaxAge: 300,
	}
	// Credentials cannot be combined with a wildcard origin.
	if origins[0] != "*" {
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireList admits a request for /wishlists/{id} when it carries the list
// password or a session token for the same list. Every failure is the same
// 401 so the response does not reveal whether the list exists.
func (s *Server) requireList(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if password := r.Header.Get(PasswordHeader); password != "" {
			if err := s.svc.Authenticate(r.Context(), id, password); err != nil {
				s.respondError(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if token := bearerToken(r); token != "" && s.tokens != nil {
			subject, err := s.tokens.Validate(token)
			if err == nil && subject == id {
				next.ServeHTTP(w, r)
				return
			}
			s.logger.WithError(err).WithField("wishlist_id", id).Debug("Rejected session token")
		}

		s.respondError(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
	})
}

// requireAdmin admits requests bearing a token whose subject is the admin.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			s.respondError(w, http.StatusUnauthorized, "admin access is disabled")
			return
		}
		subject, err := s.tokens.Validate(bearerToken(r))
		if err != nil || subject != auth.AdminSubject {
			s.respondError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
