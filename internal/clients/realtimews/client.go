// Package realtimews is the WebSocket transport for merchant status events.
//
// Protocol: the client sends {"event":"subscribe","channel":C} and
// {"event":"unsubscribe","channel":C}; the server pushes
// {"channel":C,"event":E,"data":{...}}.
package realtimews

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = time.Second
	maxReconnectDelay    = time.Minute
	maxReconnectAttempts = 10
)

type controlFrame struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
}

type inboundFrame struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Client maintains one WebSocket connection and the channel subscriptions on it.
type Client struct {
	url   string
	token string
	log   zerolog.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	connCtx      context.Context
	cancelFunc   context.CancelFunc
	connected    bool
	reconnecting bool
	stopped      bool
	stopChan     chan struct{}

	// channel -> event -> handler
	subsMu   sync.RWMutex
	handlers map[string]map[string]func([]byte)
}

// NewClient creates a new realtime WebSocket client. The token is sent as a bearer header.
func NewClient(url, token string, log zerolog.Logger) *Client {
	return &Client{
		url:      url,
		token:    token,
		log:      log.With().Str("component", "realtime_websocket").Logger(),
		stopChan: make(chan struct{}),
		handlers: make(map[string]map[string]func([]byte)),
	}
}

// Start connects and starts the read loop. On failure it keeps retrying in the background.
func (c *Client) Start() error {
	c.log.Info().Msg("Starting realtime WebSocket client")

	if err := c.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial WebSocket connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)
	return nil
}

// Stop shuts the client down. It is safe to call more than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info().Msg("Stopping realtime WebSocket client")
	close(c.stopChan)
	return c.Disconnect()
}

// Connect dials the server and re-sends every active channel subscription.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	for _, channel := range c.channels() {
		if err := c.writeFrame(connCtx, conn, controlFrame{Event: "subscribe", Channel: channel}); err != nil {
			connCancel()
			conn.Close(websocket.StatusNormalClosure, "subscribe failed")
			c.conn = nil
			c.connCtx = nil
			c.cancelFunc = nil
			c.connected = false
			return fmt.Errorf("failed to resubscribe %s: %w", channel, err)
		}
	}

	c.log.Info().Str("url", c.url).Msg("Connected to realtime WebSocket")
	return nil
}

// Disconnect closes the current connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}
	return nil
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Subscribe registers handler for (channel, event). The first event on a channel
// sends a subscribe frame; while disconnected it is sent on the next connect.
func (c *Client) Subscribe(ctx context.Context, channel, event string, handler func([]byte)) error {
	c.subsMu.Lock()
	events, exists := c.handlers[channel]
	if !exists {
		events = make(map[string]func([]byte))
		c.handlers[channel] = events
	}
	events[event] = handler
	c.subsMu.Unlock()

	if exists {
		return nil
	}
	return c.send(ctx, controlFrame{Event: "subscribe", Channel: channel})
}

// Unsubscribe removes the handler for (channel, event). The last event on a
// channel sends an unsubscribe frame.
func (c *Client) Unsubscribe(ctx context.Context, channel, event string) error {
	c.subsMu.Lock()
	events, exists := c.handlers[channel]
	if !exists {
		c.subsMu.Unlock()
		return nil
	}
	delete(events, event)
	empty := len(events) == 0
	if empty {
		delete(c.handlers, channel)
	}
	c.subsMu.Unlock()

	if !empty {
		return nil
	}
	return c.send(ctx, controlFrame{Event: "unsubscribe", Channel: channel})
}

func (c *Client) channels() []string {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]string, 0, len(c.handlers))
	for channel := range c.handlers {
		out = append(out, channel)
	}
	return out
}

func (c *Client) send(ctx context.Context, frame controlFrame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		c.log.Debug().Str("channel", frame.Channel).Str("event", frame.Event).Msg("Not connected, frame deferred")
		return nil
	}
	return c.writeFrame(ctx, conn, frame)
}

func (c *Client) writeFrame(ctx context.Context, conn *websocket.Conn, frame controlFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frame.Event, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Event, err)
	}
	c.log.Debug().Str("channel", frame.Channel).Str("event", frame.Event).Msg("Frame sent")
	return nil
}

func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.log.Info().Msg("Read loop stopped")
		c.mu.Lock()
		c.connected = false
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
			} else if ctx.Err() != nil {
				c.log.Debug().Msg("Read cancelled by context")
			} else {
				c.log.Error().Err(err).Msg("Unexpected WebSocket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(message); err != nil {
			c.log.Warn().Err(err).Msg("Failed to handle WebSocket message")
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return fmt.Errorf("failed to parse frame: %w", err)
	}
	if frame.Channel == "" || frame.Event == "" {
		return fmt.Errorf("frame without channel or event")
	}

	c.subsMu.RLock()
	handler := c.handlers[frame.Channel][frame.Event]
	c.subsMu.RUnlock()

	if handler == nil {
		c.log.Debug().Str("channel", frame.Channel).Str("event", frame.Event).Msg("No handler for event")
		return nil
	}
	handler(frame.Data)
	return nil
}

func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		attempt++
		delay := calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Attempting to reconnect to WebSocket")
		} else {
			c.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnection attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		// drop the dead connection before dialing again
		_ = c.Disconnect()
		if err := c.Connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		c.log.Info().Int("attempt", attempt).Msg("Successfully reconnected to WebSocket")

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

// calculateBackoff doubles the delay per attempt up to maxReconnectDelay
func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
