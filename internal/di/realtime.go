package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/clients/realtimeamqp"
	"github.com/merchantpos/paysync/internal/clients/realtimews"
	"github.com/merchantpos/paysync/internal/config"
	"github.com/merchantpos/paysync/internal/realtime"
)

// nopTransport accepts subscriptions and never delivers; status then relies on polling.
type nopTransport struct{}

func (nopTransport) Subscribe(context.Context, string, string, func([]byte)) error { return nil }
func (nopTransport) Unsubscribe(context.Context, string, string) error             { return nil }

// InitializeRealtime starts the configured push transport and the channel multiplexer over it.
// A WebSocket that cannot connect yet keeps retrying in the background.
func InitializeRealtime(container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Realtime.Backend {
	case config.RealtimeWebSocket:
		ws := realtimews.NewClient(cfg.Realtime.URL, cfg.MerchantAPI.Token, log)
		if err := ws.Start(); err != nil {
			log.Warn().Err(err).Msg("Realtime transport offline, falling back to polling until it connects")
		}
		container.Transport = ws
		container.closers = append(container.closers, ws.Stop)

	case config.RealtimeAMQP:
		client, err := realtimeamqp.NewClient(cfg.Realtime.AMQPURL, cfg.Realtime.AMQPExchange, log)
		if err != nil {
			return fmt.Errorf("failed to initialize AMQP transport: %w", err)
		}
		container.Transport = client
		container.closers = append(container.closers, client.Close)

	case config.RealtimeNone:
		container.Transport = nopTransport{}

	default:
		return fmt.Errorf("unknown realtime backend %q", cfg.Realtime.Backend)
	}

	container.Channel = realtime.NewChannel(container.Transport, log)
	log.Info().Str("backend", cfg.Realtime.Backend).Msg("Realtime transport initialized")
	return nil
}
