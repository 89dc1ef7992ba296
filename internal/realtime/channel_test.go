package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpos/paysync/internal/events"
)

type fakeTransport struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	subscribes   int
	unsubscribes int
	subErr       error
	unsubErr     error
	// the first failures subscribes return an error
	failures int
	// when set, Subscribe signals entered and waits for gate
	entered chan struct{}
	gate    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func([]byte))}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channelID, eventName string, handler func([]byte)) error {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.subErr != nil {
		return f.subErr
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("queue bind failed")
	}
	f.handlers[channelID+"/"+eventName] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, channelID, eventName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
	delete(f.handlers, channelID+"/"+eventName)
	return f.unsubErr
}

func (f *fakeTransport) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.unsubscribes, len(f.handlers)
}

func (f *fakeTransport) emit(channelID, eventName, payload string) {
	f.mu.Lock()
	h := f.handlers[channelID+"/"+eventName]
	f.mu.Unlock()
	if h != nil {
		h([]byte(payload))
	}
}

func TestSubscribe_SharesTransportSubscription(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	var got []string
	var mu sync.Mutex
	record := func(tag string) Handler {
		return func(data events.EventData) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+data.EntityID())
		}
	}

	a := ch.Subscribe(ctx, "m_1", "payment_completed", record("a"))
	b := ch.Subscribe(ctx, "m_1", "payment_completed", record("b"))
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 1, transport.subscribes)
	assert.Equal(t, 2, ch.Handles("m_1", "payment_completed"))

	transport.emit("m_1", "payment_completed", `{"order_id":"ord_1","amount":"5","currency":"EUR"}`)
	assert.ElementsMatch(t, []string{"a:ord_1", "b:ord_1"}, got)

	a.Close(ctx)
	assert.Equal(t, 0, transport.unsubscribes)
	b.Close(ctx)
	assert.Equal(t, 1, transport.unsubscribes)
	assert.Equal(t, 0, ch.Handles("m_1", "payment_completed"))
}

func TestSubscribe_DemultiplexesByEventName(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	var completed, failed int
	ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) { completed++ })
	ch.Subscribe(ctx, "m_1", "payment_failed", func(data events.EventData) {
		_, ok := data.(*events.PaymentFailedData)
		assert.True(t, ok)
		failed++
	})

	transport.emit("m_1", "payment_failed", `{"order_id":"ord_1","reason":"declined"}`)
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, failed)
}

func TestDispatch_DropsUndecodablePayloads(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	calls := 0
	ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) { calls++ })
	ch.Subscribe(ctx, "m_1", "refund_issued", func(events.EventData) { calls++ })

	transport.emit("m_1", "payment_completed", `{"amount":"5"}`)
	transport.emit("m_1", "payment_completed", `garbage`)
	transport.emit("m_1", "refund_issued", `{"order_id":"ord_1"}`)
	assert.Equal(t, 0, calls)
}

func TestClose_IsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	sub := ch.Subscribe(ctx, "m_1", "deposit_completed", func(events.EventData) {})
	other := ch.Subscribe(ctx, "m_1", "deposit_completed", func(events.EventData) {})

	sub.Close(ctx)
	sub.Close(ctx)
	assert.Equal(t, 1, ch.Handles("m_1", "deposit_completed"), "second close must not remove another handle")

	other.Close(ctx)
	assert.Equal(t, 1, transport.unsubscribes)

	var nilSub *Subscription
	assert.NotPanics(t, func() { nilSub.Close(ctx) })
}

func TestUnsubscribe_ChannelWide(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	sub := ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) {})
	ch.Subscribe(ctx, "m_1", "payment_failed", func(events.EventData) {})
	ch.Subscribe(ctx, "m_2", "payment_completed", func(events.EventData) {})

	ch.Unsubscribe(ctx, "m_1")
	assert.Equal(t, 2, transport.unsubscribes)
	assert.Equal(t, 0, ch.Handles("m_1", "payment_completed"))
	assert.Equal(t, 1, ch.Handles("m_2", "payment_completed"))

	// closing a handle whose channel is gone does nothing
	sub.Close(ctx)
	assert.Equal(t, 2, transport.unsubscribes)

	// unknown channel is a no-op
	ch.Unsubscribe(ctx, "nope")
	assert.Equal(t, 2, transport.unsubscribes)
}

func TestTransportErrorsAreSwallowed(t *testing.T) {
	transport := newFakeTransport()
	transport.subErr = errors.New("socket closed")
	transport.unsubErr = errors.New("socket closed")
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	sub := ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) {})
	require.NotNil(t, sub)
	assert.NotPanics(t, func() { sub.Close(ctx) })
}

func TestSubscribe_RetriesTransportAfterFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.failures = 1
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	var delivered []string
	first := ch.Subscribe(ctx, "m_1", "payment_completed", func(data events.EventData) {
		delivered = append(delivered, "first:"+data.EntityID())
	})
	ch.Subscribe(ctx, "m_1", "payment_completed", func(data events.EventData) {
		delivered = append(delivered, "second:"+data.EntityID())
	})
	assert.Equal(t, 2, transport.subscribes)

	transport.emit("m_1", "payment_completed", `{"order_id":"ord_1","amount":"5","currency":"EUR"}`)
	assert.ElementsMatch(t, []string{"first:ord_1", "second:ord_1"}, delivered)

	// a third handle reuses the now healthy subscription
	ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) {})
	assert.Equal(t, 3, ch.Handles("m_1", "payment_completed"))
	assert.Equal(t, 2, transport.subscribes)

	first.Close(ctx)
	assert.Equal(t, 0, transport.unsubscribes)
}

func TestFailedSubscribeIsNotUnsubscribed(t *testing.T) {
	transport := newFakeTransport()
	transport.failures = 1
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	sub := ch.Subscribe(ctx, "m_1", "deposit_completed", func(events.EventData) {})
	sub.Close(ctx)

	subs, unsubs, held := transport.counts()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 0, unsubs)
	assert.Equal(t, 0, held)
}

func TestUnsubscribeDuringInFlightSubscribe(t *testing.T) {
	transport := newFakeTransport()
	transport.entered = make(chan struct{})
	transport.gate = make(chan struct{})
	ch := NewChannel(transport, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ch.Subscribe(ctx, "m_1", "payment_completed", func(events.EventData) {})
	}()
	<-transport.entered

	go func() {
		defer wg.Done()
		ch.Unsubscribe(ctx, "m_1")
	}()
	require.Eventually(t, func() bool {
		return ch.Handles("m_1", "payment_completed") == 0
	}, time.Second, time.Millisecond)

	close(transport.gate)
	wg.Wait()

	subs, unsubs, held := transport.counts()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, unsubs)
	assert.Equal(t, 0, held, "transport subscription must not outlive its handles")
}
