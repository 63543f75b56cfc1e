package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/auth"
	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
	"github.com/Kerhoff/wishlist/internal/service"
	"github.com/Kerhoff/wishlist/internal/storage"
)

// PasswordHeader carries the list password on protected routes.
const PasswordHeader = "X-Wishlist-Password"

// Options configures a Server.
type Options struct {
	// Backend is reported by /healthz.
	Backend        string
	AllowedOrigins []string
}

// Server provides the HTTP API.
type Server struct {
	svc     *service.Service
	tokens  *auth.TokenIssuer
	metrics *metrics.Metrics
	logger  *logrus.Logger
	opts    Options
	router  *chi.Mux
}

// NewServer creates a Server and registers all routes. tokens and m may be
// nil; without tokens only the password header authenticates.
func NewServer(svc *service.Service, tokens *auth.TokenIssuer, m *metrics.Metrics, logger *logrus.Logger, opts Options) *Server {
	s := &Server{
		svc:     svc,
		tokens:  tokens,
		metrics: m,
		logger:  logger,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/wishlists", s.handleListWishlists)
		r.Post("/wishlists", s.handleCreateWishlist)
		r.Post("/wishlists/{id}/session", s.handleCreateSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireList)

			r.Get("/wishlists/{id}", s.handleGetWishlist)
			r.Delete("/wishlists/{id}", s.handleDeleteWishlist)

			r.Post("/wishlists/{id}/items", s.handleAddItem)
			r.Post("/wishlists/{id}/items/delete", s.handleDeleteItems)
			r.Put("/wishlists/{id}/items/{index}", s.handleEditItem)
			r.Delete("/wishlists/{id}/items/{index}", s.handleDeleteItem)
			r.Post("/wishlists/{id}/items/{index}/move", s.handleMoveItem)
			r.Post("/wishlists/{id}/items/{index}/claim", s.handleClaimItem)
		})

		r.With(s.requireAdmin).Post("/admin/reconcile", s.handleReconcile)
	})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// maxBodyBytes caps request bodies. Wish list edits are small.
const maxBodyBytes = 64 << 10

// decodeJSON reads the request body into dst. On failure it returns the
// status and message to answer with; status is 0 on success.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (status int, errMsg string) {
	if r.Body == nil || r.Body == http.NoBody {
		return http.StatusBadRequest, "request body is empty"
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err)
	}
	return 0, ""
}

// pathIndex extracts the {index} path value.
func pathIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	if raw == "" {
		return 0, fmt.Errorf("missing index in path")
	}
	return strconv.Atoi(raw)
}

// validationFields flattens aggregated validation errors into field -> message.
func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	errs := []error{err}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.WrappedErrors()
	}
	for _, e := range errs {
		var ve *service.ValidationError
		if errors.As(e, &ve) {
			fields[ve.Field] = ve.Message
		}
	}
	return fields
}

// respondServiceError maps service and storage errors to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case service.IsValidation(err):
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationFields(err),
		})
	case errors.Is(err, service.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "wishlist not found")
	case errors.Is(err, models.ErrItemIndex):
		s.respondError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, storage.ErrConflict):
		s.respondError(w, http.StatusConflict, "the wishlist was changed by someone else, reload and try again")
	case errors.Is(err, service.ErrReconcileRunning):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Errorf("failed to %s", action)
		s.respondError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
