package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	b := NewLocalBackend(dir)

	if res := b.Read(ctx, "wishlists_index.json"); res.Outcome != NotFound {
		t.Fatalf("Read on empty dir = %v, want not_found", res.Outcome)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir not created on first use: %v", err)
	}

	data := []byte(`{"id":"abc"}`)
	rev, err := b.Write(ctx, "wishlist_abc.json", data, "", "feat: update wishlist abc")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rev != BlobSHA(data) {
		t.Errorf("revision = %s, want blob sha", rev)
	}

	res := b.Read(ctx, "wishlist_abc.json")
	if res.Outcome != Found || string(res.Data) != string(data) || res.Revision != rev {
		t.Fatalf("Read() = %+v", res)
	}

	info, err := os.Stat(filepath.Join(dir, "wishlist_abc.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("file mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestLocalBackendOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(t.TempDir())

	if _, err := b.Write(ctx, "a.json", []byte("one"), "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Write(ctx, "a.json", []byte("two"), "", ""); err != nil {
		t.Fatal(err)
	}
	if res := b.Read(ctx, "a.json"); string(res.Data) != "two" {
		t.Errorf("after overwrite got %q", res.Data)
	}

	if err := b.Delete(ctx, "a.json", ""); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if res := b.Read(ctx, "a.json"); res.Outcome != NotFound {
		t.Errorf("after delete outcome = %v", res.Outcome)
	}
	if err := b.Delete(ctx, "a.json", ""); err != nil {
		t.Errorf("deleting a missing document should succeed, got %v", err)
	}
}

func TestLocalBackendListSkipsHiddenAndDirs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewLocalBackend(dir)

	for _, k := range []string{"wishlist_b.json", "wishlist_a.json", "wishlists_index.json"} {
		if _, err := b.Write(ctx, k, []byte("{}"), "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	keys, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"wishlist_a.json", "wishlist_b.json", "wishlists_index.json"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("List() = %v, want %v", keys, want)
	}
}

func TestLocalBackendCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewLocalBackend(t.TempDir())

	if res := b.Read(ctx, "a.json"); res.Outcome != Failed {
		t.Errorf("Read with cancelled ctx = %v, want failed", res.Outcome)
	}
	if _, err := b.Write(ctx, "a.json", []byte("x"), "", ""); err == nil {
		t.Error("Write with cancelled ctx should fail")
	}
}

func TestLocalBackendConditionalWrite(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(t.TempDir())

	rev, err := b.Write(ctx, "a.json", []byte("one"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	next, err := b.Write(ctx, "a.json", []byte("two"), rev, "")
	if err != nil {
		t.Fatalf("Write() with current base error = %v", err)
	}
	if _, err := b.Write(ctx, "a.json", []byte("three"), rev, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("Write() with stale base error = %v, want ErrConflict", err)
	}
	if _, err := b.Write(ctx, "missing.json", []byte("x"), next, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("Write() with base on a missing file error = %v, want ErrConflict", err)
	}
	if res := b.Read(ctx, "a.json"); string(res.Data) != "two" {
		t.Errorf("content = %q, want two", res.Data)
	}
}
