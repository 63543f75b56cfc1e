package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.opts.Backend,
	})
}

// ---------------------------------------------------------------------------
// Wishlists
// ---------------------------------------------------------------------------

type createWishlistRequest struct {
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type sessionRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	ID        string     `json:"id"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// wishlistResponse is a wishlist without its password hash.
type wishlistResponse struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Items []models.Item `json:"items"`
	Stats models.Stats  `json:"stats"`
}

// issueSession adds a session token to resp when tokens are enabled.
func (s *Server) issueSession(resp *sessionResponse) {
	if s.tokens == nil {
		return
	}
	token, expiresAt, err := s.tokens.Issue(resp.ID)
	if err != nil {
		s.logger.WithError(err).WithField("wishlist_id", resp.ID).Error("failed to issue session token")
		return
	}
	resp.Token = token
	resp.ExpiresAt = &expiresAt
}

func (s *Server) handleListWishlists(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.ListWishlists(r.Context()))
}

func (s *Server) handleCreateWishlist(w http.ResponseWriter, r *http.Request) {
	var req createWishlistRequest
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	id, err := s.svc.CreateWishlist(r.Context(), req.Name, req.Password, req.PasswordConfirm)
	if err != nil {
		s.respondServiceError(w, r, err, "create wishlist")
		return
	}

	resp := sessionResponse{ID: id}
	s.issueSession(&resp)
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.svc.Authenticate(r.Context(), id, req.Password); err != nil {
		s.respondServiceError(w, r, err, "open wishlist")
		return
	}

	resp := sessionResponse{ID: id}
	s.issueSession(&resp)
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	wishlist, err := s.svc.GetWishlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "load wishlist")
		return
	}

	s.respondJSON(w, http.StatusOK, wishlistResponse{
		ID:    wishlist.ID,
		Name:  wishlist.Name,
		Items: wishlist.Items,
		Stats: wishlist.Stats(),
	})
}

func (s *Server) handleDeleteWishlist(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteWishlist(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, r, err, "delete wishlist")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

type moveItemRequest struct {
	Direction string `json:"direction"`
}

type deleteItemsRequest struct {
	Indices []int `json:"indices"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req models.ItemFields
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	index, err := s.svc.AddItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondServiceError(w, r, err, "add item")
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	var req models.ItemFields
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	if err := s.svc.EditItem(r.Context(), chi.URLParam(r, "id"), index, req); err != nil {
		s.respondServiceError(w, r, err, "edit item")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	var req moveItemRequest
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	moved, err := s.svc.MoveItem(r.Context(), chi.URLParam(r, "id"), index, req.Direction)
	if err != nil {
		s.respondServiceError(w, r, err, "move item")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func (s *Server) handleClaimItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	claimed, err := s.svc.ClaimItem(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		s.respondServiceError(w, r, err, "claim item")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]bool{"claimed": claimed})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	if err := s.svc.DeleteItem(r.Context(), chi.URLParam(r, "id"), index); err != nil {
		s.respondServiceError(w, r, err, "delete item")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	var req deleteItemsRequest
	if status, msg := s.decodeJSON(w, r, &req); status != 0 {
		s.respondError(w, status, msg)
		return
	}

	if err := s.svc.DeleteItems(r.Context(), chi.URLParam(r, "id"), req.Indices); err != nil {
		s.respondServiceError(w, r, err, "delete items")
		return
	}

	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

type reconcileResponse struct {
	*repository.ReconcileReport
	Error string `json:"error,omitempty"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Reconcile(r.Context())
	if report == nil {
		s.respondServiceError(w, r, err, "reconcile index")
		return
	}

	resp := reconcileResponse{ReconcileReport: report}
	if err != nil {
		resp.Error = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}
