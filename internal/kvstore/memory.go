package kvstore

import (
	"context"
	"sort"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store for development and tests.
// Entries never expire here; expiry is the cache layer's concern.
type MemoryStore struct {
	items  *gocache.Cache
	closed atomic.Bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	// cleanup interval 0 disables the janitor goroutine
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 0)}
}

// GetString implements Store.
func (m *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	if m.closed.Load() {
		return "", false, ErrClosed
	}
	v, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.items.Set(key, value, gocache.NoExpiration)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.items.Delete(key)
	return nil
}

// AllKeys implements Store.
func (m *MemoryStore) AllKeys(_ context.Context) ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	items := m.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.closed.Store(true)
	m.items.Flush()
	return nil
}
