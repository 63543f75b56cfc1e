// Package storagetest provides storage fakes for tests in other packages.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Kerhoff/wishlist/internal/storage"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected storage failure")

// Memory is an in-memory storage.Backend. Failures can be injected per key
// and operation ("read", "write", "delete") to exercise partial writes.
type Memory struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failures map[string]map[string]bool
	messages []string
}

// NewMemory returns an empty backend.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string][]byte),
		failures: make(map[string]map[string]bool),
	}
}

// Fail makes op on key fail until Heal is called.
func (m *Memory) Fail(op, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[op] == nil {
		m.failures[op] = make(map[string]bool)
	}
	m.failures[op][key] = true
}

// Heal clears all injected failures.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]map[string]bool)
}

// Put seeds a document directly.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
}

// Get returns a stored document without going through Read.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	return d, ok
}

// Messages returns the write/delete messages seen so far.
func (m *Memory) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func (m *Memory) failing(op, key string) bool {
	return m.failures[op][key]
}

func (m *Memory) Read(_ context.Context, key string) storage.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("read", key) {
		return storage.Result{Outcome: storage.Failed, Err: ErrInjected}
	}
	d, ok := m.docs[key]
	if !ok {
		return storage.Result{Outcome: storage.NotFound}
	}
	return storage.Result{
		Outcome:  storage.Found,
		Data:     append([]byte(nil), d...),
		Revision: storage.BlobSHA(d),
	}
}

func (m *Memory) Write(_ context.Context, key string, data []byte, base, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("write", key) {
		return "", ErrInjected
	}
	if base != "" {
		if current, ok := m.docs[key]; !ok || storage.BlobSHA(current) != base {
			return "", storage.ErrConflict
		}
	}
	m.docs[key] = append([]byte(nil), data...)
	m.messages = append(m.messages, message)
	return storage.BlobSHA(data), nil
}

func (m *Memory) Delete(_ context.Context, key string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("delete", key) {
		return ErrInjected
	}
	delete(m.docs, key)
	m.messages = append(m.messages, message)
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing("list", "") {
		return nil, ErrInjected
	}
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
