package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Storage
// 2. Realtime transport
// 3. Services
// 4. Jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	container := &Container{}

	if err := InitializeStorage(ctx, container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := InitializeRealtime(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize realtime: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// Close stops background work and releases every resource in reverse order of creation
func (c *Container) Close() error {
	if c.Enforcer != nil {
		c.Enforcer.Stop()
	}
	if c.Registry != nil {
		c.Registry.UnmountAll(context.Background())
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
