// Package kvstore provides the durable string key/value store the cache layer is built on.
// Backends serialize their own operations; callers must not assume multi-key atomicity.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("kvstore: store closed")

// Store is the persistence collaborator contract.
type Store interface {
	// GetString returns the stored value and whether the key exists.
	GetString(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	AllKeys(ctx context.Context) ([]string, error)
	Close() error
}
