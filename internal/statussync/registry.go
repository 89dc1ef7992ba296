package statussync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrUnknownKind is returned for kinds the registry was not configured with
var ErrUnknownKind = errors.New("no synchronizer configured for kind")

// ErrMountInterrupted is returned by Mount when the watch was stopped before it started
var ErrMountInterrupted = errors.New("status watch stopped while mounting")

type registryKey struct {
	kind     Kind
	entityID string
}

// Registry owns the live synchronizers, one per (kind, entity id).
type Registry struct {
	configs map[Kind]Config
	log     zerolog.Logger

	mu    sync.Mutex
	syncs map[registryKey]*Synchronizer
}

// NewRegistry creates a registry that builds synchronizers from the per-kind configs
func NewRegistry(configs []Config, log zerolog.Logger) *Registry {
	byKind := make(map[Kind]Config, len(configs))
	for _, cfg := range configs {
		byKind[cfg.Kind] = cfg
	}
	return &Registry{
		configs: byKind,
		log:     log,
		syncs:   make(map[registryKey]*Synchronizer),
	}
}

// Mount starts watching the entity, reusing a live synchronizer when there is one.
func (r *Registry) Mount(ctx context.Context, kind Kind, merchantID, entityID string) (*Synchronizer, error) {
	cfg, ok := r.configs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	key := registryKey{kind: kind, entityID: entityID}
	r.mu.Lock()
	s, exists := r.syncs[key]
	if !exists {
		s = NewSynchronizer(cfg, r.log)
		r.syncs[key] = s
	}
	r.mu.Unlock()

	s.Mount(ctx, merchantID, entityID)

	// an Unmount or UnmountAll between the map insert and s.Mount saw no cycle to stop
	r.mu.Lock()
	tracked := r.syncs[key] == s
	r.mu.Unlock()
	if !tracked {
		s.Unmount(ctx)
		return nil, ErrMountInterrupted
	}
	return s, nil
}

// Get returns the synchronizer watching the entity
func (r *Registry) Get(kind Kind, entityID string) (*Synchronizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.syncs[registryKey{kind: kind, entityID: entityID}]
	return s, ok
}

// Unmount stops watching the entity and reports whether it was watched
func (r *Registry) Unmount(ctx context.Context, kind Kind, entityID string) bool {
	key := registryKey{kind: kind, entityID: entityID}
	r.mu.Lock()
	s, ok := r.syncs[key]
	delete(r.syncs, key)
	r.mu.Unlock()

	if ok {
		s.Unmount(ctx)
	}
	return ok
}

// UnmountAll stops every watch
func (r *Registry) UnmountAll(ctx context.Context) {
	r.mu.Lock()
	syncs := r.syncs
	r.syncs = make(map[registryKey]*Synchronizer)
	r.mu.Unlock()

	for _, s := range syncs {
		s.Unmount(ctx)
	}
	if len(syncs) > 0 {
		r.log.Info().Int("count", len(syncs)).Msg("All status watches stopped")
	}
}

// Snapshots returns the state of every watch ordered by kind and entity id
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	syncs := make([]*Synchronizer, 0, len(r.syncs))
	for _, s := range r.syncs {
		syncs = append(syncs, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(syncs))
	for _, s := range syncs {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// LogAnnouncer announces completed payments in the log
type LogAnnouncer struct {
	log zerolog.Logger
}

// NewLogAnnouncer creates an announcer backed by log
func NewLogAnnouncer(log zerolog.Logger) *LogAnnouncer {
	return &LogAnnouncer{log: log.With().Str("component", "announcer").Logger()}
}

// Announce implements Announcer
func (a *LogAnnouncer) Announce(_ context.Context, amount decimal.Decimal, currency string) error {
	a.log.Info().
		Str("amount", amount.StringFixed(2)).
		Str("currency", currency).
		Msg("Payment received")
	return nil
}
