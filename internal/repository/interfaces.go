package repository

import (
	"context"
	"errors"

	"github.com/Kerhoff/wishlist/internal/models"
)

// ErrNotFound is returned when a wishlist document is absent or unreadable.
var ErrNotFound = errors.New("wishlist not found")

// WishlistRepository defines the interface for wishlist persistence.
// Writes are not transactional: Create and Delete each touch two documents
// and a failure between them is repaired by Reconcile.
type WishlistRepository interface {
	// ListAll returns the index entries in stored order. It never fails;
	// an absent or unreadable index is an empty list.
	ListAll(ctx context.Context) []models.IndexEntry
	Create(ctx context.Context, name, password string) (string, error)
	Load(ctx context.Context, id string) (*models.Wishlist, error)
	Save(ctx context.Context, id string, wishlist *models.Wishlist) error
	// VerifyPassword is false for a wrong password and an unknown id alike.
	VerifyPassword(ctx context.Context, id, password string) bool
	Delete(ctx context.Context, id string) error
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

// ReconcileReport describes what a reconciliation changed.
type ReconcileReport struct {
	// Added are documents that existed without an index entry.
	Added []string `json:"added"`
	// Dropped are index entries whose document is gone.
	Dropped []string `json:"dropped"`
	// Skipped are documents that could not be read or parsed.
	Skipped []string `json:"skipped"`
	// Rewritten is true when the index was written.
	Rewritten bool `json:"rewritten"`
	// Total is the number of entries in the resulting index.
	Total int `json:"total"`
}
