package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrItemIndex is returned when an item position does not exist in a wish list.
var ErrItemIndex = errors.New("item index out of range")

// Wishlist represents a password protected list of gift items.
// The whole document is stored and loaded at once.
type Wishlist struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
	Items        []Item `json:"items"`

	// Revision is the storage revision the list was loaded at. A save based
	// on an outdated revision is rejected. Empty for a list never stored.
	Revision string `json:"-"`
}

// Item represents a single gift entry. Field order matches the stored documents.
type Item struct {
	GiftName     string `json:"gift_name"`
	PurchaseLink string `json:"purchase_link"`
	IsGifted     bool   `json:"is_gifted"`
	Price        string `json:"price"`
	AmazonLink   string `json:"amazon_link"`
	IsHighlight  bool   `json:"is_highlight"`
}

// ItemFields holds the user editable part of an item. IsGifted is not part of it.
type ItemFields struct {
	GiftName     string `json:"gift_name"`
	PurchaseLink string `json:"purchase_link"`
	AmazonLink   string `json:"amazon_link"`
	Price        string `json:"price"`
	IsHighlight  bool   `json:"is_highlight"`
}

// IndexEntry is one row of the wish list catalog.
type IndexEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stats summarises how many items are already taken.
type Stats struct {
	Total  int `json:"total"`
	Gifted int `json:"gifted"`
	Open   int `json:"open"`
}

// NewWishlist creates an empty wish list.
func NewWishlist(id, name, passwordHash string) *Wishlist {
	return &Wishlist{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
		Items:        []Item{},
	}
}

func (w *Wishlist) checkIndex(i int) error {
	if i < 0 || i >= len(w.Items) {
		return fmt.Errorf("%w: %d (list has %d items)", ErrItemIndex, i, len(w.Items))
	}
	return nil
}

// AddItem appends a new unclaimed item and returns its position.
func (w *Wishlist) AddItem(fields ItemFields) int {
	w.Items = append(w.Items, Item{
		GiftName:     fields.GiftName,
		PurchaseLink: fields.PurchaseLink,
		AmazonLink:   fields.AmazonLink,
		Price:        fields.Price,
		IsHighlight:  fields.IsHighlight,
	})
	return len(w.Items) - 1
}

// MoveUp swaps the item at i with its predecessor. It reports whether anything moved.
func (w *Wishlist) MoveUp(i int) bool {
	if i <= 0 || i >= len(w.Items) {
		return false
	}
	w.Items[i-1], w.Items[i] = w.Items[i], w.Items[i-1]
	return true
}

// MoveDown swaps the item at i with its successor. It reports whether anything moved.
func (w *Wishlist) MoveDown(i int) bool {
	if i < 0 || i >= len(w.Items)-1 {
		return false
	}
	w.Items[i], w.Items[i+1] = w.Items[i+1], w.Items[i]
	return true
}

// EditItem replaces the editable fields of the item at i and keeps its claim.
func (w *Wishlist) EditItem(i int, fields ItemFields) error {
	if err := w.checkIndex(i); err != nil {
		return err
	}
	item := &w.Items[i]
	item.GiftName = fields.GiftName
	item.PurchaseLink = fields.PurchaseLink
	item.AmazonLink = fields.AmazonLink
	item.Price = fields.Price
	item.IsHighlight = fields.IsHighlight
	return nil
}

// Claim marks the item at i as gifted. Claims are never undone; the returned
// bool is false when the item was already claimed.
func (w *Wishlist) Claim(i int) (bool, error) {
	if err := w.checkIndex(i); err != nil {
		return false, err
	}
	if w.Items[i].IsGifted {
		return false, nil
	}
	w.Items[i].IsGifted = true
	return true, nil
}

// RemoveItem deletes the item at i; later items shift down by one.
func (w *Wishlist) RemoveItem(i int) error {
	if err := w.checkIndex(i); err != nil {
		return err
	}
	w.Items = append(w.Items[:i], w.Items[i+1:]...)
	return nil
}

// RemoveItems deletes several positions at once. All indices refer to the
// sequence before the call; nothing is removed if any index is invalid.
func (w *Wishlist) RemoveItems(indices ...int) error {
	seen := make(map[int]struct{}, len(indices))
	ordered := make([]int, 0, len(indices))
	for _, i := range indices {
		if err := w.checkIndex(i); err != nil {
			return err
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		ordered = append(ordered, i)
	}

	// Highest first so earlier positions stay valid.
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))
	for _, i := range ordered {
		w.Items = append(w.Items[:i], w.Items[i+1:]...)
	}
	return nil
}

// Stats counts claimed and open items.
func (w *Wishlist) Stats() Stats {
	s := Stats{Total: len(w.Items)}
	for _, it := range w.Items {
		if it.IsGifted {
			s.Gifted++
		}
	}
	s.Open = s.Total - s.Gifted
	return s
}

// Entry returns the catalog row for this wish list.
func (w *Wishlist) Entry() IndexEntry {
	return IndexEntry{ID: w.ID, Name: w.Name}
}
