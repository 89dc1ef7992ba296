package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/clients/exchangerate"
	"github.com/merchantpos/paysync/internal/clients/merchantapi"
	"github.com/merchantpos/paysync/internal/config"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/currency"
	"github.com/merchantpos/paysync/internal/modules/deposits"
	"github.com/merchantpos/paysync/internal/modules/orders"
	"github.com/merchantpos/paysync/internal/modules/profile"
	"github.com/merchantpos/paysync/internal/statussync"
)

// InitializeServices creates the clients, the query services and the status layer.
// Storage and realtime must already be initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.ClientData == nil {
		return fmt.Errorf("client data cache not initialized")
	}
	if container.Channel == nil {
		return fmt.Errorf("realtime channel not initialized")
	}

	container.MerchantAPI = merchantapi.NewClient(merchantapi.Config{
		BaseURL:    cfg.MerchantAPI.BaseURL,
		Token:      cfg.MerchantAPI.Token,
		Timeout:    cfg.MerchantAPI.Timeout,
		MaxRetries: cfg.MerchantAPI.MaxRetries,
	}, log)
	container.ExchangeRate = exchangerate.NewClient(cfg.ExchangeRate.BaseURL, cfg.ExchangeRate.Timeout, log)

	container.Orders = orders.NewService(container.MerchantAPI, container.ClientData, log)
	container.Deposits = deposits.NewService(container.MerchantAPI, container.ClientData, log)
	container.Profile = profile.NewService(container.MerchantAPI, container.ClientData, log)
	container.Currency = currency.NewService(container.ClientData, container.ExchangeRate, log,
		currency.WithLocation(cfg.Location))

	container.Enforcer = merchantstatus.NewEnforcer(
		merchantstatus.NewLogNotifier(log),
		merchantstatus.LogoutFunc(container.logout(log)),
		cfg.Status.LogoutDelay,
		log,
	)

	container.Registry = statussync.NewRegistry([]statussync.Config{
		{
			Kind:         statussync.KindPayment,
			Subscriber:   container.Channel,
			Poller:       orderPoller(container.Orders),
			Announcer:    statussync.NewLogAnnouncer(log),
			ErrorHandler: container.Enforcer,
			Invalidator:  container.Orders,
			PollInterval: cfg.Status.PollInterval,
		},
		{
			Kind:         statussync.KindDeposit,
			Subscriber:   container.Channel,
			Poller:       depositPoller(container.Deposits),
			ErrorHandler: container.Enforcer,
			Invalidator:  container.Deposits,
			PollInterval: cfg.Status.PollInterval,
		},
	}, log)

	log.Info().Msg("Services initialized")
	return nil
}

// logout ends the merchant session: every watch stops and every cached
// response is dropped.
func (c *Container) logout(log zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if c.Registry != nil {
			c.Registry.UnmountAll(ctx)
		}
		if err := c.ClientData.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear client data: %w", err)
		}
		log.Info().Msg("Merchant session cleared")
		return nil
	}
}
