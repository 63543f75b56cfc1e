// Package docstore implements the wishlist repository on top of a key/value
// document store: one JSON document per wishlist plus a shared index.
package docstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/auth"
	"github.com/Kerhoff/wishlist/internal/models"
	"github.com/Kerhoff/wishlist/internal/repository"
	"github.com/Kerhoff/wishlist/internal/storage"
	"github.com/Kerhoff/wishlist/pkg/logger"
)

// IndexKey is the document holding the [{id, name}] list.
const IndexKey = "wishlists_index.json"

const (
	documentPrefix = "wishlist_"
	documentSuffix = ".json"

	msgIndexUpdate  = "chore: update wishlists index"
	msgIndexRebuild = "chore: rebuild wishlists index"
)

// DocumentKey returns the key of a wishlist document.
func DocumentKey(id string) string {
	return documentPrefix + id + documentSuffix
}

func idFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, documentPrefix) || !strings.HasSuffix(key, documentSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, documentPrefix), documentSuffix)
	return id, id != ""
}

// Store is the document API the repository needs. *storage.Router satisfies it.
type Store interface {
	Read(ctx context.Context, key string) storage.Result
	Write(ctx context.Context, key string, data []byte, base, message string) (string, error)
	Delete(ctx context.Context, key string, message string) error
	List(ctx context.Context) ([]string, error)
}

type wishlistRepository struct {
	store       Store
	hasher      auth.PasswordHasher
	strictReads bool
	log         *logrus.Entry
	nonce       func() string
}

// NewWishlistRepository creates a wishlist repository. With strictReads a
// failed read is returned as an error instead of being treated as absent.
func NewWishlistRepository(store Store, hasher auth.PasswordHasher, strictReads bool, log *logrus.Logger) repository.WishlistRepository {
	return &wishlistRepository{
		store:       store,
		hasher:      hasher,
		strictReads: strictReads,
		log:         logger.Component(log, "repository"),
		nonce:       uuid.NewString,
	}
}

// encode renders a document with four-space indentation and no HTML escaping.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// newID derives a 12 hex character id from the name and a random nonce.
func (r *wishlistRepository) newID(name string) string {
	sum := md5.Sum([]byte(name + r.nonce()))
	return hex.EncodeToString(sum[:])[:12]
}

// readIndex loads the index and its revision. A malformed index reads as
// empty. A failed read is an error when strict is set and an empty index
// otherwise.
func (r *wishlistRepository) readIndex(ctx context.Context, strict bool) ([]models.IndexEntry, string, error) {
	res := r.store.Read(ctx, IndexKey)
	switch res.Outcome {
	case storage.NotFound:
		return []models.IndexEntry{}, "", nil
	case storage.Failed:
		if strict {
			return nil, "", fmt.Errorf("failed to read wishlists index: %w", res.AsError())
		}
		r.log.WithError(res.Err).Warn("Wishlists index unreadable, treating as empty")
		return []models.IndexEntry{}, "", nil
	}

	var entries []models.IndexEntry
	if err := json.Unmarshal(res.Data, &entries); err != nil {
		r.log.WithError(err).Warn("Wishlists index is malformed, treating as empty")
		return []models.IndexEntry{}, res.Revision, nil
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return entries, res.Revision, nil
}

// writeIndex replaces the index read at revision base.
func (r *wishlistRepository) writeIndex(ctx context.Context, entries []models.IndexEntry, base, message string) error {
	data, err := encode(entries)
	if err != nil {
		return fmt.Errorf("failed to encode wishlists index: %w", err)
	}
	if _, err := r.store.Write(ctx, IndexKey, data, base, message); err != nil {
		return fmt.Errorf("failed to write wishlists index: %w", err)
	}
	return nil
}

func (r *wishlistRepository) ListAll(ctx context.Context) []models.IndexEntry {
	entries, _, _ := r.readIndex(ctx, false)
	return entries
}

func (r *wishlistRepository) Create(ctx context.Context, name, password string) (string, error) {
	id := r.newID(name)

	hash, err := r.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	wishlist := models.NewWishlist(id, name, hash)
	if err := r.Save(ctx, id, wishlist); err != nil {
		return "", err
	}

	// The document exists from here on; a failure below leaves it out of the
	// index until the next reconciliation.
	entries, base, err := r.readIndex(ctx, true)
	if err != nil {
		r.log.WithError(err).WithField("wishlist_id", id).Error("Wishlist created but not indexed")
		return "", err
	}
	entries = append(entries, wishlist.Entry())
	if err := r.writeIndex(ctx, entries, base, msgIndexUpdate); err != nil {
		r.log.WithError(err).WithField("wishlist_id", id).Error("Wishlist created but not indexed")
		return "", err
	}

	r.log.WithField("wishlist_id", id).Info("Wishlist created")
	return id, nil
}

func (r *wishlistRepository) Load(ctx context.Context, id string) (*models.Wishlist, error) {
	key := DocumentKey(id)
	if storage.ValidateKey(key) != nil {
		return nil, repository.ErrNotFound
	}

	res := r.store.Read(ctx, key)
	switch res.Outcome {
	case storage.NotFound:
		return nil, repository.ErrNotFound
	case storage.Failed:
		if r.strictReads {
			return nil, fmt.Errorf("failed to load wishlist %s: %w", id, res.AsError())
		}
		r.log.WithError(res.Err).WithField("wishlist_id", id).Warn("Wishlist unreadable, treating as missing")
		return nil, repository.ErrNotFound
	}

	var wishlist models.Wishlist
	if err := json.Unmarshal(res.Data, &wishlist); err != nil {
		r.log.WithError(err).WithField("wishlist_id", id).Warn("Wishlist document is malformed")
		return nil, repository.ErrNotFound
	}
	if wishlist.ID == "" {
		wishlist.ID = id
	}
	if wishlist.Items == nil {
		wishlist.Items = []models.Item{}
	}
	wishlist.Revision = res.Revision
	return &wishlist, nil
}

func (r *wishlistRepository) Save(ctx context.Context, id string, wishlist *models.Wishlist) error {
	doc := *wishlist
	if doc.Items == nil {
		doc.Items = []models.Item{}
	}
	data, err := encode(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode wishlist %s: %w", id, err)
	}
	rev, err := r.store.Write(ctx, DocumentKey(id), data, wishlist.Revision, "feat: update wishlist "+id)
	if err != nil {
		return fmt.Errorf("failed to save wishlist %s: %w", id, err)
	}
	wishlist.Revision = rev
	return nil
}

func (r *wishlistRepository) VerifyPassword(ctx context.Context, id, password string) bool {
	wishlist, err := r.Load(ctx, id)
	if err != nil {
		return false
	}
	return r.hasher.Verify(wishlist.PasswordHash, password)
}

func (r *wishlistRepository) Delete(ctx context.Context, id string) error {
	key := DocumentKey(id)
	if err := storage.ValidateKey(key); err != nil {
		return repository.ErrNotFound
	}

	entries, base, err := r.readIndex(ctx, true)
	if err != nil {
		return err
	}
	kept := make([]models.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) != len(entries) {
		if err := r.writeIndex(ctx, kept, base, msgIndexUpdate); err != nil {
			return err
		}
	}

	// Unlisted from here on; a leftover document is picked up again by
	// reconciliation.
	if err := r.store.Delete(ctx, key, "feat: delete wishlist "+id); err != nil {
		r.log.WithError(err).WithField("wishlist_id", id).Error("Wishlist unlisted but document not deleted")
		return fmt.Errorf("failed to delete wishlist %s: %w", id, err)
	}

	r.log.WithField("wishlist_id", id).Info("Wishlist deleted")
	return nil
}

func (r *wishlistRepository) Reconcile(ctx context.Context) (*repository.ReconcileReport, error) {
	keys, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var errs *multierror.Error
	live := make(map[string]string)
	unreadable := make(map[string]bool)
	report := &repository.ReconcileReport{}

	for _, key := range keys {
		id, ok := idFromKey(key)
		if !ok {
			continue
		}
		res := r.store.Read(ctx, key)
		if res.Outcome != storage.Found {
			unreadable[id] = true
			report.Skipped = append(report.Skipped, id)
			errs = multierror.Append(errs, fmt.Errorf("wishlist %s: %w", id, res.AsError()))
			continue
		}
		var wishlist models.Wishlist
		if err := json.Unmarshal(res.Data, &wishlist); err != nil {
			unreadable[id] = true
			report.Skipped = append(report.Skipped, id)
			errs = multierror.Append(errs, fmt.Errorf("wishlist %s: %w", id, err))
			continue
		}
		live[id] = wishlist.Name
	}

	current, base, err := r.readIndex(ctx, true)
	if err != nil {
		return nil, err
	}

	rebuilt := make([]models.IndexEntry, 0, len(live))
	seen := make(map[string]bool)
	for _, e := range current {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		switch {
		case unreadable[e.ID]:
			rebuilt = append(rebuilt, e)
		case hasKey(live, e.ID):
			rebuilt = append(rebuilt, models.IndexEntry{ID: e.ID, Name: live[e.ID]})
		default:
			report.Dropped = append(report.Dropped, e.ID)
		}
	}

	var orphans []string
	for id := range live {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		rebuilt = append(rebuilt, models.IndexEntry{ID: id, Name: live[id]})
	}
	report.Added = orphans
	report.Total = len(rebuilt)

	if !sameEntries(current, rebuilt) {
		if err := r.writeIndex(ctx, rebuilt, base, msgIndexRebuild); err != nil {
			return report, multierror.Append(errs, err)
		}
		report.Rewritten = true
	}

	r.log.WithFields(logrus.Fields{
		"added":   len(report.Added),
		"dropped": len(report.Dropped),
		"skipped": len(report.Skipped),
		"total":   report.Total,
	}).Info("Wishlists index reconciled")

	return report, errs.ErrorOrNil()
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

func sameEntries(a, b []models.IndexEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
