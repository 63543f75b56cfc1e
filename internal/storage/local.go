package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalBackend keeps one file per document in a directory. The directory is
// created on first use. A write is a temp file plus rename so readers never
// see a partial document. Writes with a base revision are checked against
// the file under a lock held by this process only.
type LocalBackend struct {
	dir string
	mu  sync.Mutex
}

// NewLocalBackend roots the backend at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: filepath.Clean(dir)}
}

// Dir returns the storage directory.
func (b *LocalBackend) Dir() string {
	return b.dir
}

func (b *LocalBackend) ensureDir() error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", b.dir, err)
	}
	return nil
}

func (b *LocalBackend) Read(ctx context.Context, key string) Result {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if err := b.ensureDir(); err != nil {
		return failed(err)
	}
	data, err := os.ReadFile(filepath.Join(b.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return missing()
		}
		return failed(fmt.Errorf("read %s: %w", key, err))
	}
	return found(data, BlobSHA(data))
}

func (b *LocalBackend) Write(ctx context.Context, key string, data []byte, base, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := b.ensureDir(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if base != "" {
		current, err := os.ReadFile(filepath.Join(b.dir, key))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("write %s: %w", key, err)
		}
		if err != nil || BlobSHA(current) != base {
			return "", fmt.Errorf("write %s: %w", key, ErrConflict)
		}
	}

	tmp, err := os.CreateTemp(b.dir, "."+key+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, filepath.Join(b.dir, key)); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return BlobSHA(data), nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(filepath.Join(b.dir, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *LocalBackend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.ensureDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}
