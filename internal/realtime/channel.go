// Package realtime multiplexes status-event subscriptions over a single
// backend transport. Each merchant has one channel; handlers register per event name.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/events"
)

// Transport delivers raw event payloads for (channel, event) pairs.
// It holds at most one subscription per pair.
type Transport interface {
	Subscribe(ctx context.Context, channelID, eventName string, handler func(payload []byte)) error
	Unsubscribe(ctx context.Context, channelID, eventName string) error
}

// Handler receives decoded events
type Handler func(data events.EventData)

type topicKey struct {
	channel string
	event   string
}

type topic struct {
	handlers map[string]Handler
}

// Channel shares transport subscriptions between handles and decodes payloads.
type Channel struct {
	transport Transport
	log       zerolog.Logger

	mu     sync.Mutex
	topics map[topicKey]*topic
	// pairs the transport currently holds
	active map[topicKey]bool

	// orders transport calls so a release never overtakes its subscribe
	opMu sync.Mutex
}

// NewChannel creates a channel over transport
func NewChannel(transport Transport, log zerolog.Logger) *Channel {
	return &Channel{
		transport: transport,
		log:       log.With().Str("component", "realtime_channel").Logger(),
		topics:    make(map[topicKey]*topic),
		active:    make(map[topicKey]bool),
	}
}

// Subscription is a handle returned by Subscribe. Close releases it exactly once.
type Subscription struct {
	id      string
	key     topicKey
	channel *Channel
	once    sync.Once
}

// ID returns the handle id
func (s *Subscription) ID() string { return s.id }

// Close removes the handler. The transport subscription is released with the last handle.
func (s *Subscription) Close(ctx context.Context) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.channel.release(ctx, s.key, s.id)
	})
}

// Subscribe registers handler for eventName on channelID.
// Transport failures are logged; the handle is returned regardless and the
// next Subscribe for the pair retries the transport.
func (c *Channel) Subscribe(ctx context.Context, channelID, eventName string, handler Handler) *Subscription {
	key := topicKey{channel: channelID, event: eventName}
	sub := &Subscription{id: uuid.NewString(), key: key, channel: c}

	c.mu.Lock()
	t, exists := c.topics[key]
	if !exists {
		t = &topic{handlers: make(map[string]Handler)}
		c.topics[key] = t
	}
	t.handlers[sub.id] = handler
	refs := len(t.handlers)
	subscribed := c.active[key]
	c.mu.Unlock()

	c.log.Debug().
		Str("channel", channelID).
		Str("event", eventName).
		Int("handles", refs).
		Msg("Subscribed")

	if !subscribed {
		c.reconcile(ctx, key)
	}
	return sub
}

// Unsubscribe drops every handler on channelID. Unknown channels are a no-op.
func (c *Channel) Unsubscribe(ctx context.Context, channelID string) {
	c.mu.Lock()
	var keys []topicKey
	for key := range c.topics {
		if key.channel == channelID {
			keys = append(keys, key)
			delete(c.topics, key)
		}
	}
	for key := range c.active {
		if key.channel == channelID && !containsKey(keys, key) {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.reconcile(ctx, key)
	}
}

func containsKey(keys []topicKey, key topicKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Handles returns the number of live handles for (channelID, eventName)
func (c *Channel) Handles(channelID, eventName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.topics[topicKey{channel: channelID, event: eventName}]; ok {
		return len(t.handlers)
	}
	return 0
}

func (c *Channel) release(ctx context.Context, key topicKey, id string) {
	c.mu.Lock()
	t, ok := c.topics[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(t.handlers, id)
	last := len(t.handlers) == 0
	if last {
		delete(c.topics, key)
	}
	c.mu.Unlock()

	if last {
		c.reconcile(ctx, key)
	}
}

// reconcile brings the transport in line with the handles registered for key:
// subscribe when handles exist and the transport holds nothing, unsubscribe
// when the last handle is gone.
func (c *Channel) reconcile(ctx context.Context, key topicKey) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	t, ok := c.topics[key]
	want := ok && len(t.handlers) > 0
	have := c.active[key]
	c.mu.Unlock()

	switch {
	case want && !have:
		err := c.transport.Subscribe(ctx, key.channel, key.event, func(payload []byte) {
			c.dispatch(key, payload)
		})
		if err != nil {
			c.log.Error().Err(err).
				Str("channel", key.channel).
				Str("event", key.event).
				Msg("Failed to subscribe to realtime channel")
			return
		}
		c.mu.Lock()
		c.active[key] = true
		c.mu.Unlock()
	case !want && have:
		c.mu.Lock()
		delete(c.active, key)
		c.mu.Unlock()
		if err := c.transport.Unsubscribe(ctx, key.channel, key.event); err != nil {
			c.log.Warn().Err(err).
				Str("channel", key.channel).
				Str("event", key.event).
				Msg("Failed to unsubscribe from realtime channel")
		}
	}
}

func (c *Channel) dispatch(key topicKey, payload []byte) {
	data, err := events.Decode(key.event, payload)
	if err != nil {
		c.log.Warn().Err(err).
			Str("channel", key.channel).
			Str("event", key.event).
			Msg("Dropping undecodable event")
		return
	}

	c.mu.Lock()
	t, ok := c.topics[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	handlers := make([]Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}
