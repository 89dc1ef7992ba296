package statussync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/events"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/realtime"
)

// fakeTransport backs a real realtime.Channel
type fakeTransport struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	subscribes   int
	unsubscribes int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func([]byte))}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channelID, eventName string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.handlers[channelID+"/"+eventName] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, channelID, eventName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
	delete(f.handlers, channelID+"/"+eventName)
	return errors.New("transport already closed")
}

func (f *fakeTransport) emit(channelID, eventName, payload string) {
	f.mu.Lock()
	h := f.handlers[channelID+"/"+eventName]
	f.mu.Unlock()
	if h != nil {
		h([]byte(payload))
	}
}

// capturingSubscriber keeps every handler it was given, including retired ones
type capturingSubscriber struct {
	mu       sync.Mutex
	handlers []realtime.Handler
}

func (c *capturingSubscriber) Subscribe(ctx context.Context, channelID, eventName string, handler realtime.Handler) *realtime.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
	return nil
}

func (c *capturingSubscriber) handler(i int) realtime.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[i]
}

type staticPoller struct {
	status string
	err    error
	calls  atomic.Int32
}

func (p *staticPoller) Poll(ctx context.Context, entityID string) (PollResult, error) {
	p.calls.Add(1)
	if p.err != nil {
		return PollResult{}, p.err
	}
	return PollResult{RemoteStatus: p.status, Amount: decimal.RequireFromString("12.50"), Currency: "EUR"}, nil
}

type recordingAnnouncer struct {
	calls chan string
}

func (a *recordingAnnouncer) Announce(ctx context.Context, amount decimal.Decimal, currency string) error {
	a.calls <- amount.StringFixed(2) + " " + currency
	return errors.New("speaker unavailable")
}

type recordingHandler struct {
	errs []error
}

func (h *recordingHandler) Handle(ctx context.Context, err error) bool {
	h.errs = append(h.errs, err)
	var statusErr *merchantstatus.Error
	return errors.As(err, &statusErr)
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func newPaymentSync(t *testing.T, sub Subscriber, poller Poller) *Synchronizer {
	t.Helper()
	return NewSynchronizer(Config{Kind: KindPayment, Subscriber: sub, Poller: poller}, zerolog.Nop())
}

func TestRealtimeCompletionBeatsLaterPendingPoll(t *testing.T) {
	transport := newFakeTransport()
	channel := realtime.NewChannel(transport, zerolog.Nop())
	poller := &staticPoller{status: "pending"}
	s := newPaymentSync(t, channel, poller)
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	transport.emit("m_1", "payment_completed", `{"order_id":"ord_1","amount":"12.50","currency":"EUR"}`)
	assert.Equal(t, domain.StatusCompleted, s.Status())

	snap, err := s.CheckStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.Equal(t, "realtime", snap.Source)
}

func TestEventForOtherEntityIsIgnored(t *testing.T) {
	transport := newFakeTransport()
	channel := realtime.NewChannel(transport, zerolog.Nop())
	s := newPaymentSync(t, channel, &staticPoller{status: "pending"})

	s.Mount(context.Background(), "m_1", "ord_2")
	transport.emit("m_1", "payment_completed", `{"order_id":"ord_1","amount":"1","currency":"EUR"}`)

	assert.Equal(t, domain.StatusPending, s.Status())
}

func TestUnmountBeforePollResolvesDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	poller := PollerFunc(func(ctx context.Context, entityID string) (PollResult, error) {
		close(started)
		<-release
		return PollResult{RemoteStatus: "completed"}, nil
	})
	s := newPaymentSync(t, &capturingSubscriber{}, poller)

	var changes atomic.Int32
	ctx := context.Background()
	s.Mount(ctx, "m_1", "ord_1")
	s.OnChange(func(Snapshot) { changes.Add(1) })

	done := make(chan error, 1)
	go func() {
		_, err := s.CheckStatus(ctx)
		done <- err
	}()

	<-started
	s.Unmount(ctx)
	close(release)

	assert.ErrorIs(t, <-done, ErrNotMounted)
	assert.Equal(t, domain.StatusPending, s.Status())
	assert.False(t, s.Snapshot().Mounted)
	assert.Equal(t, int32(0), changes.Load())
}

func TestRetargetDiscardsCallbacksFromPreviousCycle(t *testing.T) {
	sub := &capturingSubscriber{}
	s := newPaymentSync(t, sub, &staticPoller{status: "pending"})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	oldCompleted := sub.handler(0)

	s.Mount(ctx, "m_1", "ord_2")
	assert.Equal(t, "ord_2", s.Snapshot().EntityID)

	// late delivery to the old handler, even with the new entity's id
	oldCompleted(&events.PaymentCompletedData{OrderID: "ord_2"})
	oldCompleted(&events.PaymentCompletedData{OrderID: "ord_1"})
	assert.Equal(t, domain.StatusPending, s.Status())

	newCompleted := sub.handler(2)
	newCompleted(&events.PaymentCompletedData{OrderID: "ord_2"})
	assert.Equal(t, domain.StatusCompleted, s.Status())
}

func TestRetargetResetsState(t *testing.T) {
	transport := newFakeTransport()
	channel := realtime.NewChannel(transport, zerolog.Nop())
	s := newPaymentSync(t, channel, &staticPoller{status: "completed"})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	_, err := s.CheckStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, s.Status())

	s.Mount(ctx, "m_2", "ord_9")
	assert.Equal(t, domain.StatusPending, s.Status())
	assert.Equal(t, 0, channel.Handles("m_1", "payment_completed"))
	assert.Equal(t, 1, channel.Handles("m_2", "payment_completed"))
}

func TestMountSamePairIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	channel := realtime.NewChannel(transport, zerolog.Nop())
	s := newPaymentSync(t, channel, &staticPoller{})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	s.Mount(ctx, "m_1", "ord_1")

	assert.Equal(t, 1, channel.Handles("m_1", "payment_completed"))
	assert.Equal(t, 1, channel.Handles("m_1", "payment_failed"))
}

func TestUnmountClosesSubscriptionsAndToleratesFailure(t *testing.T) {
	transport := newFakeTransport()
	channel := realtime.NewChannel(transport, zerolog.Nop())
	s := newPaymentSync(t, channel, &staticPoller{})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	s.Unmount(ctx)
	s.Unmount(ctx)

	assert.Equal(t, 2, transport.unsubscribes)
	assert.Equal(t, 0, channel.Handles("m_1", "payment_completed"))

	_, err := s.CheckStatus(ctx)
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestTerminalStatesAreSticky(t *testing.T) {
	sub := &capturingSubscriber{}
	s := newPaymentSync(t, sub, &staticPoller{status: "completed"})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	failed := sub.handler(1)
	failed(&events.PaymentFailedData{OrderID: "ord_1", Reason: "declined"})
	assert.Equal(t, domain.StatusFailed, s.Status())

	_, err := s.CheckStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, s.Status())
}

func TestPollReachesFailed(t *testing.T) {
	s := newPaymentSync(t, &capturingSubscriber{}, &staticPoller{status: "expired"})
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	snap, err := s.CheckStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, snap.Status)
	assert.Equal(t, "poll", snap.Source)
}

func TestPollErrorGoesToHandlerAndKeepsPending(t *testing.T) {
	blocked, _ := merchantstatus.Classify(403, []byte(`{"code":"PIN_BLOCKED"}`))
	handler := &recordingHandler{}
	s := NewSynchronizer(Config{
		Kind:         KindPayment,
		Subscriber:   &capturingSubscriber{},
		Poller:       &staticPoller{err: blocked},
		ErrorHandler: handler,
	}, zerolog.Nop())
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	_, err := s.CheckStatus(ctx)
	assert.ErrorIs(t, err, blocked)
	require.Len(t, handler.errs, 1)
	assert.Equal(t, domain.StatusPending, s.Status())
}

func TestCompletedPaymentIsAnnounced(t *testing.T) {
	announcer := &recordingAnnouncer{calls: make(chan string, 1)}
	invalidator := &recordingInvalidator{}
	s := NewSynchronizer(Config{
		Kind:        KindPayment,
		Subscriber:  &capturingSubscriber{},
		Poller:      &staticPoller{status: "paid"},
		Announcer:   announcer,
		Invalidator: invalidator,
	}, zerolog.Nop())
	ctx := context.Background()

	s.Mount(ctx, "m_1", "ord_1")
	_, err := s.CheckStatus(ctx)
	require.NoError(t, err, "announcement failure is not surfaced")

	select {
	case got := <-announcer.calls:
		assert.Equal(t, "12.50 EUR", got)
	case <-time.After(time.Second):
		t.Fatal("payment not announced")
	}
	assert.Equal(t, []string{"ord_1"}, invalidator.ids)
}

func TestCompletedDepositIsNotAnnounced(t *testing.T) {
	announcer := &recordingAnnouncer{calls: make(chan string, 1)}
	sub := &capturingSubscriber{}
	s := NewSynchronizer(Config{
		Kind:       KindDeposit,
		Subscriber: sub,
		Poller:     &staticPoller{},
		Announcer:  announcer,
	}, zerolog.Nop())

	s.Mount(context.Background(), "m_1", "dep_1")
	require.Len(t, sub.handlers, 1)
	sub.handler(0)(&events.DepositCompletedData{DepositID: "dep_1"})
	assert.Equal(t, domain.StatusCompleted, s.Status())

	select {
	case <-announcer.calls:
		t.Fatal("deposits are not announced")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAutomaticPolling(t *testing.T) {
	poller := &staticPoller{status: "pending"}
	s := NewSynchronizer(Config{
		Kind:         KindDeposit,
		Subscriber:   &capturingSubscriber{},
		Poller:       poller,
		PollInterval: 10 * time.Millisecond,
	}, zerolog.Nop())
	ctx := context.Background()

	s.Mount(ctx, "m_1", "dep_1")
	assert.Eventually(t, func() bool { return poller.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Unmount(ctx)
	time.Sleep(30 * time.Millisecond)
	calls := poller.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, poller.calls.Load(), "polling stops on unmount")
}

func TestOnChangeReportsTransitions(t *testing.T) {
	sub := &capturingSubscriber{}
	s := newPaymentSync(t, sub, &staticPoller{})
	var got []domain.PaymentStatus
	s.OnChange(func(snap Snapshot) { got = append(got, snap.Status) })

	s.Mount(context.Background(), "m_1", "ord_1")
	sub.handler(0)(&events.PaymentCompletedData{OrderID: "ord_1"})
	sub.handler(0)(&events.PaymentCompletedData{OrderID: "ord_1"})

	assert.Equal(t, []domain.PaymentStatus{domain.StatusPending, domain.StatusCompleted}, got)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("payment")
	require.NoError(t, err)
	assert.Equal(t, KindPayment, k)

	_, err = ParseKind("refund")
	assert.Error(t, err)
}
