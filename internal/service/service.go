package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/Kerhoff/wishlist/internal/metrics"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
)

var (
	// ErrUnauthorized is returned when a wishlist password does not match or
	// the list does not exist; callers cannot tell the two apart.
	ErrUnauthorized = errors.New("wrong wishlist id or password")
	// ErrReconcileRunning is returned when a reconciliation is already in progress.
	ErrReconcileRunning = errors.New("reconciliation already running")
)

// Move directions accepted by MoveItem.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err carries at least one ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Service is the business logic layer shared by the HTTP API, the chat bot
// and the command line.
type Service struct {
	logger    *logrus.Logger
	Wishlists repository.WishlistRepository
	metrics   *metrics.Metrics

	reconciling atomic.Bool
}

// New creates a new Service. m may be nil.
func New(logger *logrus.Logger, wishlists repository.WishlistRepository, m *metrics.Metrics) *Service {
	return &Service{logger: logger, Wishlists: wishlists, metrics: m}
}

// ListWishlists returns the public catalog of lists.
func (s *Service) ListWishlists(ctx context.Context) []models.IndexEntry {
	return s.Wishlists.ListAll(ctx)
}

// CreateWishlist validates the form and creates a list. The password has to
// be typed twice.
func (s *Service) CreateWishlist(ctx context.Context, name, password, confirm string) (string, error) {
	name = strings.TrimSpace(name)

	var result *multierror.Error
	if name == "" {
		result = multierror.Append(result, &ValidationError{Field: "name", Message: "is required"})
	}
	if password == "" {
		result = multierror.Append(result, &ValidationError{Field: "password", Message: "is required"})
	} else if password != confirm {
		result = multierror.Append(result, &ValidationError{Field: "password_confirm", Message: "does not match"})
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", err
	}

	id, err := s.Wishlists.Create(ctx, name, password)
	if err != nil {
		return "", fmt.Errorf("failed to create wishlist %q: %w", name, err)
	}
	s.logger.WithField("wishlist_id", id).Infof("Created wishlist %q", name)
	return id, nil
}

// Authenticate checks the list password.
func (s *Service) Authenticate(ctx context.Context, id, password string) error {
	if password == "" || !s.Wishlists.VerifyPassword(ctx, id, password) {
		return ErrUnauthorized
	}
	return nil
}

// GetWishlist loads a list. Callers authenticate first.
func (s *Service) GetWishlist(ctx context.Context, id string) (*models.Wishlist, error) {
	wishlist, err := s.Wishlists.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load wishlist %s: %w", id, err)
	}
	return wishlist, nil
}

// update loads a list, applies fn and saves when fn reports a change.
func (s *Service) update(ctx context.Context, id string, fn func(*models.Wishlist) (bool, error)) (*models.Wishlist, error) {
	wishlist, err := s.GetWishlist(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(wishlist)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.Wishlists.Save(ctx, id, wishlist); err != nil {
			return nil, err
		}
	}
	return wishlist, nil
}

func validateItem(fields models.ItemFields) error {
	if strings.TrimSpace(fields.GiftName) == "" {
		return multierror.Append(nil, &ValidationError{Field: "gift_name", Message: "is required"})
	}
	return nil
}

// AddItem appends an unclaimed item and returns its position.
func (s *Service) AddItem(ctx context.Context, id string, fields models.ItemFields) (int, error) {
	if err := validateItem(fields); err != nil {
		return 0, err
	}
	var index int
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		index = w.AddItem(fields)
		return true, nil
	})
	return index, err
}

// EditItem replaces the editable fields of an item. Claims are kept.
func (s *Service) EditItem(ctx context.Context, id string, index int, fields models.ItemFields) error {
	if err := validateItem(fields); err != nil {
		return err
	}
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		return true, w.EditItem(index, fields)
	})
	return err
}

// MoveItem moves an item one step up or down. Moving past either end is
// not an error and reports false.
func (s *Service) MoveItem(ctx context.Context, id string, index int, direction string) (bool, error) {
	var move func(*models.Wishlist) bool
	switch strings.ToLower(direction) {
	case DirectionUp:
		move = func(w *models.Wishlist) bool { return w.MoveUp(index) }
	case DirectionDown:
		move = func(w *models.Wishlist) bool { return w.MoveDown(index) }
	default:
		return false, multierror.Append(nil, &ValidationError{Field: "direction", Message: "must be up or down"})
	}

	var moved bool
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		moved = move(w)
		return moved, nil
	})
	return moved, err
}

// ClaimItem marks an item as gifted. It reports false when the item was
// already claimed.
func (s *Service) ClaimItem(ctx context.Context, id string, index int) (bool, error) {
	var claimed bool
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		var err error
		claimed, err = w.Claim(index)
		return claimed, err
	})
	if err != nil {
		return false, err
	}
	if claimed {
		s.metrics.Claimed()
		s.logger.WithFields(logrus.Fields{"wishlist_id": id, "index": index}).Info("Item claimed")
	}
	return claimed, nil
}

// DeleteItem removes one item.
func (s *Service) DeleteItem(ctx context.Context, id string, index int) error {
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		return true, w.RemoveItem(index)
	})
	return err
}

// DeleteItems removes several items at once; positions refer to the list
// before any removal.
func (s *Service) DeleteItems(ctx context.Context, id string, indices []int) error {
	if len(indices) == 0 {
		return multierror.Append(nil, &ValidationError{Field: "indices", Message: "select at least one item"})
	}
	_, err := s.update(ctx, id, func(w *models.Wishlist) (bool, error) {
		return true, w.RemoveItems(indices...)
	})
	return err
}

// DeleteWishlist removes a list and its index entry.
func (s *Service) DeleteWishlist(ctx context.Context, id string) error {
	if err := s.Wishlists.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete wishlist %s: %w", id, err)
	}
	return nil
}

// Reconcile rebuilds the index from the stored documents. Only one
// reconciliation runs at a time.
func (s *Service) Reconcile(ctx context.Context) (*repository.ReconcileReport, error) {
	if !s.reconciling.CompareAndSwap(false, true) {
		return nil, ErrReconcileRunning
	}
	defer s.reconciling.Store(false)

	report, err := s.Wishlists.Reconcile(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Reconciliation finished with errors")
	}
	return report, err
}
