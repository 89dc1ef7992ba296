// Package realtimeamqp is the RabbitMQ transport for merchant status events.
// Events are published to a topic exchange with routing key "<channel>.<event>".
package realtimeamqp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RoutingKey returns the routing key for (channel, event)
func RoutingKey(channel, event string) string {
	return channel + "." + event
}

// splitRoutingKey reverses RoutingKey; event names never contain dots.
func splitRoutingKey(key string) (channel, event string, ok bool) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

// consumer is one exclusive queue per merchant channel
type consumer struct {
	queue    string
	tag      string
	handlers map[string]func([]byte)
}

// Client subscribes to status events through a topic exchange.
type Client struct {
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
	log      zerolog.Logger

	mu        sync.Mutex
	consumers map[string]*consumer
}

// NewClient connects to the broker and declares the exchange
func NewClient(amqpURL, exchange string, log zerolog.Logger) (*Client, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Client{
		exchange:  exchange,
		conn:      conn,
		ch:        ch,
		log:       log.With().Str("component", "realtime_amqp").Logger(),
		consumers: make(map[string]*consumer),
	}, nil
}

// Subscribe binds (channel, event) and delivers message bodies to handler.
func (c *Client) Subscribe(_ context.Context, channel, event string, handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cons, exists := c.consumers[channel]
	if !exists {
		var err error
		cons, err = c.startConsumer(channel)
		if err != nil {
			return err
		}
		c.consumers[channel] = cons
	}

	if err := c.ch.QueueBind(cons.queue, RoutingKey(channel, event), c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s: %w", RoutingKey(channel, event), err)
	}
	cons.handlers[event] = handler
	return nil
}

// Unsubscribe unbinds (channel, event). The queue is deleted with its last binding.
func (c *Client) Unsubscribe(_ context.Context, channel, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cons, exists := c.consumers[channel]
	if !exists {
		return nil
	}
	if _, bound := cons.handlers[event]; !bound {
		return nil
	}

	delete(cons.handlers, event)
	if err := c.ch.QueueUnbind(cons.queue, RoutingKey(channel, event), c.exchange, nil); err != nil {
		return fmt.Errorf("failed to unbind %s: %w", RoutingKey(channel, event), err)
	}

	if len(cons.handlers) > 0 {
		return nil
	}
	delete(c.consumers, channel)
	if err := c.ch.Cancel(cons.tag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer %s: %w", cons.tag, err)
	}
	if _, err := c.ch.QueueDelete(cons.queue, false, false, false); err != nil {
		return fmt.Errorf("failed to delete queue %s: %w", cons.queue, err)
	}
	return nil
}

// startConsumer must be called with c.mu held.
func (c *Client) startConsumer(channel string) (*consumer, error) {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue for %s: %w", channel, err)
	}

	cons := &consumer{
		queue:    q.Name,
		tag:      "paysync." + channel,
		handlers: make(map[string]func([]byte)),
	}

	msgs, err := c.ch.Consume(q.Name, cons.tag, true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	go c.consume(channel, msgs)
	return cons, nil
}

func (c *Client) consume(channel string, msgs <-chan amqp.Delivery) {
	for d := range msgs {
		_, event, ok := splitRoutingKey(d.RoutingKey)
		if !ok {
			c.log.Warn().Str("routing_key", d.RoutingKey).Msg("Malformed routing key, dropping")
			continue
		}

		c.mu.Lock()
		var handler func([]byte)
		if cons, exists := c.consumers[channel]; exists {
			handler = cons.handlers[event]
		}
		c.mu.Unlock()

		if handler == nil {
			c.log.Debug().Str("routing_key", d.RoutingKey).Msg("No handler for routing key, dropping")
			continue
		}
		handler(d.Body)
	}
	c.log.Debug().Str("channel", channel).Msg("Consumer stopped")
}

// Close closes the AMQP channel and connection
func (c *Client) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
