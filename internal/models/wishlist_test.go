package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func names(w *Wishlist) []string {
	out := make([]string, 0, len(w.Items))
	for _, it := range w.Items {
		out = append(out, it.GiftName)
	}
	return out
}

func abc() *Wishlist {
	w := NewWishlist("id1", "Tim", "hash")
	for _, n := range []string{"A", "B", "C"} {
		w.AddItem(ItemFields{GiftName: n})
	}
	return w
}

func TestMoveDownThenUp(t *testing.T) {
	w := abc()

	if !w.MoveDown(0) {
		t.Fatalf("MoveDown(0) reported no move")
	}
	if got, want := names(w), []string{"B", "A", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after MoveDown(0): got %v, want %v", got, want)
	}

	// Moving the first element up is a no-op; moving A (now at 1) up restores order.
	if w.MoveUp(0) {
		t.Fatalf("MoveUp(0) on first element should be a no-op")
	}
	if !w.MoveUp(1) {
		t.Fatalf("MoveUp(1) reported no move")
	}
	if got, want := names(w), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after MoveUp(1): got %v, want %v", got, want)
	}
}

func TestMoveBoundariesAreNoOps(t *testing.T) {
	tests := []struct {
		name string
		move func(w *Wishlist) bool
	}{
		{"up first", func(w *Wishlist) bool { return w.MoveUp(0) }},
		{"down last", func(w *Wishlist) bool { return w.MoveDown(2) }},
		{"up negative", func(w *Wishlist) bool { return w.MoveUp(-1) }},
		{"down past end", func(w *Wishlist) bool { return w.MoveDown(5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := abc()
			if tt.move(w) {
				t.Fatalf("expected no-op")
			}
			if got, want := names(w), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestClaimIsIdempotent(t *testing.T) {
	w := abc()

	changed, err := w.Claim(1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !changed {
		t.Fatalf("first claim should report a change")
	}
	changed, err = w.Claim(1)
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if changed {
		t.Fatalf("second claim should not report a change")
	}
	if !w.Items[1].IsGifted {
		t.Fatalf("item should stay gifted")
	}
	if _, err := w.Claim(3); !errors.Is(err, ErrItemIndex) {
		t.Fatalf("expected ErrItemIndex, got %v", err)
	}
}

func TestEditKeepsClaim(t *testing.T) {
	w := abc()
	if _, err := w.Claim(0); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err := w.EditItem(0, ItemFields{GiftName: "A2", Price: "20 EUR", AmazonLink: "https://a", IsHighlight: true})
	if err != nil {
		t.Fatalf("EditItem: %v", err)
	}
	got := w.Items[0]
	if got.GiftName != "A2" || got.Price != "20 EUR" || got.AmazonLink != "https://a" || !got.IsHighlight {
		t.Fatalf("fields not replaced: %+v", got)
	}
	if !got.IsGifted {
		t.Fatalf("edit must not reset is_gifted")
	}
	if err := w.EditItem(-1, ItemFields{GiftName: "x"}); !errors.Is(err, ErrItemIndex) {
		t.Fatalf("expected ErrItemIndex, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	w := abc()
	if err := w.RemoveItem(1); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if got, want := names(w), []string{"A", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if err := w.RemoveItem(2); !errors.Is(err, ErrItemIndex) {
		t.Fatalf("expected ErrItemIndex, got %v", err)
	}
}

func TestRemoveItemsUsesOriginalPositions(t *testing.T) {
	w := abc()
	if err := w.RemoveItems(0, 2); err != nil {
		t.Fatalf("RemoveItems: %v", err)
	}
	if got, want := names(w), []string{"B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	w = abc()
	if err := w.RemoveItems(2, 0, 2); err != nil {
		t.Fatalf("RemoveItems with duplicates: %v", err)
	}
	if got, want := names(w), []string{"B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	w = abc()
	if err := w.RemoveItems(0, 7); !errors.Is(err, ErrItemIndex) {
		t.Fatalf("expected ErrItemIndex, got %v", err)
	}
	if len(w.Items) != 3 {
		t.Fatalf("invalid batch must not remove anything, have %d items", len(w.Items))
	}
}

func TestAddItemStartsUnclaimed(t *testing.T) {
	w := NewWishlist("x", "n", "h")
	i := w.AddItem(ItemFields{GiftName: "Book"})
	if i != 0 || w.Items[0].IsGifted {
		t.Fatalf("unexpected item %d: %+v", i, w.Items[0])
	}
}

func TestStats(t *testing.T) {
	w := abc()
	_, _ = w.Claim(0)
	_, _ = w.Claim(2)
	if got, want := w.Stats(), (Stats{Total: 3, Gifted: 2, Open: 1}); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDocumentShape(t *testing.T) {
	legacy := []byte(`{"id":"abc","name":"Tim","password_hash":"h","items":[{"gift_name":"Buch","purchase_link":"","is_gifted":true}]}`)
	var w Wishlist
	if err := json.Unmarshal(legacy, &w); err != nil {
		t.Fatalf("unmarshal legacy document: %v", err)
	}
	if len(w.Items) != 1 || !w.Items[0].IsGifted || w.Items[0].Price != "" || w.Items[0].IsHighlight {
		t.Fatalf("unexpected legacy decode: %+v", w.Items)
	}

	raw, err := json.Marshal(w.Items[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"gift_name":"Buch","purchase_link":"","is_gifted":true,"price":"","amazon_link":"","is_highlight":false}`
	if string(raw) != want {
		t.Fatalf("item shape:\n got %s\nwant %s", raw, want)
	}
}
