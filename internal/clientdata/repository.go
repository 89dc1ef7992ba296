// Package clientdata provides persistent caching for merchant API responses.
// Every value is stored as a JSON envelope carrying an optional expiration timestamp;
// expiry is enforced lazily on read and periodically by CleanupJob.
package clientdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/kvstore"
)

// entry is the stored envelope. ExpiresAt is unix milliseconds; nil never expires.
type entry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt *int64          `json:"expires_at,omitempty"`
}

func (e entry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.UnixMilli() >= *e.ExpiresAt
}

// Repository provides TTL cache operations over a kvstore.Store.
// It holds no locks of its own; the store serializes access.
type Repository struct {
	store kvstore.Store
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the wall clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a new client data repository.
func NewRepository(store kvstore.Store, log zerolog.Logger, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "clientdata").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Set saves data with expiration = now + ttl. A ttl <= 0 never expires.
func (r *Repository) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for %s: %w", key, err)
	}

	e := entry{Data: payload}
	if ttl > 0 {
		expiresAt := r.now().Add(ttl).UnixMilli()
		e.ExpiresAt = &expiresAt
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope for %s: %w", key, err)
	}

	if err := r.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get decodes a fresh value into out and reports whether it was found.
// Expired and corrupted entries are deleted and reported as a miss.
func (r *Repository) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	return r.get(ctx, key, out, true)
}

// GetStale decodes a value regardless of expiration status.
// Use this as a fallback when the transport fails - stale data is better than no data.
func (r *Repository) GetStale(ctx context.Context, key string, out interface{}) (bool, error) {
	return r.get(ctx, key, out, false)
}

func (r *Repository) get(ctx context.Context, key string, out interface{}, fresh bool) (bool, error) {
	raw, ok, err := r.store.GetString(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Data == nil {
		r.evictCorrupt(ctx, key, err)
		return false, nil
	}

	if fresh && e.expired(r.now()) {
		if err := r.store.Delete(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("Failed to evict expired entry")
		}
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(e.Data, out); err != nil {
			r.evictCorrupt(ctx, key, err)
			return false, nil
		}
	}
	return true, nil
}

func (r *Repository) evictCorrupt(ctx context.Context, key string, cause error) {
	r.log.Warn().Err(cause).Str("key", key).Msg("Corrupted cache entry, deleting")
	if err := r.store.Delete(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Failed to delete corrupted entry")
	}
}

// Delete removes a specific entry.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// SweepExpired removes every entry whose expiration has elapsed at call time.
// Returns the number of entries deleted.
func (r *Repository) SweepExpired(ctx context.Context) (int, error) {
	keys, err := r.store.AllKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	now := r.now()
	deleted := 0
	for _, key := range keys {
		raw, ok, err := r.store.GetString(ctx, key)
		if err != nil {
			return deleted, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !ok {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// left for the lazy path in Get
			continue
		}
		if !e.expired(now) {
			continue
		}

		if err := r.store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		deleted++
	}

	return deleted, nil
}

// ClearAll removes every key from the store.
func (r *Repository) ClearAll(ctx context.Context) error {
	keys, err := r.store.AllKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	r.log.Info().Int("keys", len(keys)).Msg("Cache cleared")
	return nil
}
