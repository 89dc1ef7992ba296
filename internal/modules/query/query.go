// Package query implements cache-aside reads of backend entities over the TTL cache.
package query

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Cache is the subset of clientdata.Repository used by queries
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	GetStale(ctx context.Context, key string, out interface{}) (bool, error)
	Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options controls a single fetch
type Options struct {
	// Force bypasses the cached value. The result is still written back.
	Force bool
}

// Loader fetches the value from the transport
type Loader[T any] func(ctx context.Context) (T, error)

// Query is a cache-aside read for one kind of entity with a fixed TTL.
type Query[T any] struct {
	cache Cache
	kind  string
	ttl   time.Duration
	log   zerolog.Logger
}

// New creates a query for kind. The kind prefixes every cache key.
func New[T any](cache Cache, kind string, ttl time.Duration, log zerolog.Logger) *Query[T] {
	return &Query[T]{
		cache: cache,
		kind:  kind,
		ttl:   ttl,
		log:   log.With().Str("query", kind).Logger(),
	}
}

// Key returns the cache key for id; an empty id addresses the kind itself.
func (q *Query[T]) Key(id string) string {
	if id == "" {
		return q.kind
	}
	return q.kind + ":" + id
}

// TTL returns the lifetime of cached values
func (q *Query[T]) TTL() time.Duration {
	return q.ttl
}

// Fetch returns the cached value for id when fresh, otherwise calls load and caches its result.
// Loader errors are returned unchanged and nothing is cached.
func (q *Query[T]) Fetch(ctx context.Context, id string, opts Options, load Loader[T]) (T, error) {
	key := q.Key(id)

	if !opts.Force {
		var cached T
		found, err := q.cache.Get(ctx, key, &cached)
		if err != nil {
			q.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, loading from backend")
		} else if found {
			q.log.Debug().Str("key", key).Msg("Cache hit")
			return cached, nil
		}
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := q.cache.Set(ctx, key, value, q.ttl); err != nil {
		q.log.Warn().Err(err).Str("key", key).Msg("Failed to cache value")
	}
	return value, nil
}

// Stale returns the cached value for id even if it has expired.
func (q *Query[T]) Stale(ctx context.Context, id string) (T, bool) {
	var cached T
	found, err := q.cache.GetStale(ctx, q.Key(id), &cached)
	if err != nil {
		q.log.Warn().Err(err).Str("key", q.Key(id)).Msg("Stale cache read failed")
		return cached, false
	}
	return cached, found
}

// Invalidate drops the cached value for id so the next read goes to the backend.
func (q *Query[T]) Invalidate(ctx context.Context, id string) error {
	return q.cache.Delete(ctx, q.Key(id))
}
