// Package statussync reconciles polling results and realtime events into one
// status per watched order or deposit.
package statussync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/events"
	"github.com/merchantpos/paysync/internal/realtime"
)

// Kind is the entity kind a synchronizer watches
type Kind string

const (
	KindPayment Kind = "payment"
	KindDeposit Kind = "deposit"
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPayment, KindDeposit:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// eventNames lists the realtime events that can settle an entity of kind k.
func (k Kind) eventNames() []events.EventType {
	switch k {
	case KindPayment:
		return []events.EventType{events.PaymentCompleted, events.PaymentFailed}
	case KindDeposit:
		return []events.EventType{events.DepositCompleted}
	default:
		return nil
	}
}

var (
	// ErrNotMounted is returned by CheckStatus when nothing is mounted, or when
	// the mount ended while the poll was in flight.
	ErrNotMounted = errors.New("status synchronizer is not mounted")
)

// PollResult is the backend view of the watched entity
type PollResult struct {
	RemoteStatus string
	Amount       decimal.Decimal
	Currency     string
}

// Poller loads the current backend status of an entity
type Poller interface {
	Poll(ctx context.Context, entityID string) (PollResult, error)
}

// PollerFunc adapts a function to Poller
type PollerFunc func(ctx context.Context, entityID string) (PollResult, error)

// Poll implements Poller
func (f PollerFunc) Poll(ctx context.Context, entityID string) (PollResult, error) {
	return f(ctx, entityID)
}

// Announcer is told about completed payments. Failures are logged only.
type Announcer interface {
	Announce(ctx context.Context, amount decimal.Decimal, currency string) error
}

// ErrorHandler receives poll errors; it reports whether it handled them.
type ErrorHandler interface {
	Handle(ctx context.Context, err error) bool
}

// Invalidator drops cached copies of an entity once it settles
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// Subscriber opens realtime subscriptions
type Subscriber interface {
	Subscribe(ctx context.Context, channelID, eventName string, handler realtime.Handler) *realtime.Subscription
}

// Config wires a synchronizer. Only Kind, Subscriber and Poller are required.
type Config struct {
	Kind         Kind
	Subscriber   Subscriber
	Poller       Poller
	Announcer    Announcer
	ErrorHandler ErrorHandler
	Invalidator  Invalidator
	// PollInterval enables automatic polling while mounted; zero disables it.
	PollInterval time.Duration
}

// Snapshot is the externally observable state
type Snapshot struct {
	Kind       Kind                 `json:"kind"`
	MerchantID string               `json:"merchant_id,omitempty"`
	EntityID   string               `json:"entity_id,omitempty"`
	Status     domain.PaymentStatus `json:"status"`
	Mounted    bool                 `json:"mounted"`
	Source     string               `json:"source,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// lifecycle is owned by one mount cycle. Callbacks holding a dead lifecycle are discarded.
type lifecycle struct {
	merchantID string
	entityID   string
	alive      atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	subs       []*realtime.Subscription
}

// Synchronizer is the state machine for one watched entity at a time.
type Synchronizer struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	mu        sync.Mutex
	cycle     *lifecycle
	status    domain.PaymentStatus
	source    string
	updatedAt time.Time
	listeners []func(Snapshot)
}

// NewSynchronizer creates an unmounted synchronizer
func NewSynchronizer(cfg Config, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		cfg:    cfg,
		log:    log.With().Str("component", "status_sync").Str("kind", string(cfg.Kind)).Logger(),
		now:    time.Now,
		status: domain.StatusPending,
	}
}

// OnChange registers fn to be called after every state change
func (s *Synchronizer) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Status returns the current status
func (s *Synchronizer) Status() domain.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the current state
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	snap := Snapshot{
		Kind:      s.cfg.Kind,
		Status:    s.status,
		Source:    s.source,
		UpdatedAt: s.updatedAt,
	}
	if s.cycle != nil {
		snap.MerchantID = s.cycle.merchantID
		snap.EntityID = s.cycle.entityID
		snap.Mounted = true
	}
	return snap
}

// Mount starts watching (merchantID, entityID). Mounting the pair already
// watched is a no-op; a different pair tears the current cycle down first.
func (s *Synchronizer) Mount(ctx context.Context, merchantID, entityID string) {
	s.mu.Lock()
	if old := s.cycle; old != nil && old.merchantID == merchantID && old.entityID == entityID {
		s.mu.Unlock()
		return
	}

	cycleCtx, cancel := context.WithCancel(context.Background())
	lc := &lifecycle{merchantID: merchantID, entityID: entityID, ctx: cycleCtx, cancel: cancel}
	lc.alive.Store(true)

	old := s.cycle
	s.cycle = lc
	s.status = domain.StatusPending
	s.source = ""
	s.updatedAt = s.now()
	s.mu.Unlock()

	if old != nil {
		s.log.Info().Str("from", old.entityID).Str("to", entityID).Msg("Retargeting status watch")
		s.teardown(ctx, old)
	}

	var subs []*realtime.Subscription
	for _, name := range s.cfg.Kind.eventNames() {
		subs = append(subs, s.cfg.Subscriber.Subscribe(ctx, merchantID, string(name), func(data events.EventData) {
			s.onEvent(lc, data)
		}))
	}

	s.mu.Lock()
	current := s.cycle == lc
	if current {
		lc.subs = subs
	}
	s.mu.Unlock()

	// a concurrent unmount or retarget already retired this cycle
	if !current {
		for _, sub := range subs {
			sub.Close(ctx)
		}
		return
	}

	if s.cfg.PollInterval > 0 {
		go s.pollLoop(lc)
	}

	s.log.Info().Str("merchant_id", merchantID).Str("entity_id", entityID).Msg("Watching status")
	s.notify(s.Snapshot())
}

// Unmount stops watching and resets the state. Safe to call when not mounted.
func (s *Synchronizer) Unmount(ctx context.Context) {
	s.mu.Lock()
	lc := s.cycle
	s.cycle = nil
	s.status = domain.StatusPending
	s.source = ""
	s.updatedAt = s.now()
	s.mu.Unlock()

	if lc != nil {
		s.teardown(ctx, lc)
		s.log.Info().Str("entity_id", lc.entityID).Msg("Stopped watching status")
	}
}

func (s *Synchronizer) teardown(ctx context.Context, lc *lifecycle) {
	lc.alive.Store(false)
	lc.cancel()

	s.mu.Lock()
	subs := lc.subs
	lc.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close(ctx)
	}
}

// CheckStatus polls the backend once. The result is discarded if the cycle
// that started the poll has ended by the time it resolves.
func (s *Synchronizer) CheckStatus(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	lc := s.cycle
	s.mu.Unlock()
	if lc == nil {
		return Snapshot{}, ErrNotMounted
	}
	if err := s.check(ctx, lc); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

func (s *Synchronizer) check(ctx context.Context, lc *lifecycle) error {
	res, err := s.cfg.Poller.Poll(ctx, lc.entityID)
	if !lc.alive.Load() {
		s.log.Debug().Str("entity_id", lc.entityID).Msg("Discarding poll result from ended watch")
		return ErrNotMounted
	}
	if err != nil {
		if s.cfg.ErrorHandler != nil && s.cfg.ErrorHandler.Handle(ctx, err) {
			return err
		}
		s.log.Warn().Err(err).Str("entity_id", lc.entityID).Msg("Status poll failed")
		return err
	}

	status := domain.StatusFromRemote(res.RemoteStatus)
	if status.IsTerminal() {
		s.apply(lc, status, "poll", res.Amount, res.Currency)
	}
	return nil
}

func (s *Synchronizer) onEvent(lc *lifecycle, data events.EventData) {
	if !lc.alive.Load() {
		return
	}
	if data.EntityID() != lc.entityID {
		s.log.Debug().
			Str("watching", lc.entityID).
			Str("event_entity", data.EntityID()).
			Msg("Ignoring event for another entity")
		return
	}

	switch d := data.(type) {
	case *events.PaymentCompletedData:
		s.apply(lc, domain.StatusCompleted, "realtime", d.Amount, d.Currency)
	case *events.DepositCompletedData:
		s.apply(lc, domain.StatusCompleted, "realtime", d.Amount, d.Currency)
	case *events.PaymentFailedData:
		s.apply(lc, domain.StatusFailed, "realtime", decimal.Zero, "")
	}
}

// apply is the only writer of status. The first terminal write wins.
func (s *Synchronizer) apply(lc *lifecycle, status domain.PaymentStatus, source string, amount decimal.Decimal, currency string) {
	s.mu.Lock()
	if s.cycle != lc || !lc.alive.Load() {
		s.mu.Unlock()
		return
	}
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.source = source
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().
		Str("entity_id", lc.entityID).
		Str("status", string(status)).
		Str("source", source).
		Msg("Status settled")

	s.notify(snap)

	if s.cfg.Invalidator != nil {
		if err := s.cfg.Invalidator.Invalidate(lc.ctx, lc.entityID); err != nil {
			s.log.Warn().Err(err).Str("entity_id", lc.entityID).Msg("Failed to invalidate cached entity")
		}
	}

	if status == domain.StatusCompleted && s.cfg.Kind == KindPayment && s.cfg.Announcer != nil {
		go s.announce(amount, currency)
	}
}

func (s *Synchronizer) announce(amount decimal.Decimal, currency string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cfg.Announcer.Announce(ctx, amount, currency); err != nil {
		s.log.Warn().Err(err).Msg("Payment announcement failed")
	}
}

func (s *Synchronizer) notify(snap Snapshot) {
	s.mu.Lock()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Synchronizer) pollLoop(lc *lifecycle) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lc.ctx.Done():
			return
		case <-ticker.C:
			if s.Status().IsTerminal() {
				return
			}
			_ = s.check(lc.ctx, lc)
		}
	}
}
