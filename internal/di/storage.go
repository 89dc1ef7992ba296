package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/config"
	"github.com/merchantpos/paysync/internal/database"
	"github.com/merchantpos/paysync/internal/kvstore"
)

// InitializeStorage opens the configured key/value backend and the client data cache on top of it
func InitializeStorage(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, "client_data.db"),
			Profile: database.ProfileCache,
			Name:    "client_data",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize client_data database: %w", err)
		}
		store, err := kvstore.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to apply client_data schema: %w", err)
		}
		container.DB = db
		container.Store = store

	case config.StoreRedis:
		store, err := kvstore.NewRedisStoreFromURL(ctx, cfg.Store.RedisURL, cfg.Store.RedisPrefix)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		container.Store = store

	case config.StoreMemory:
		container.Store = kvstore.NewMemoryStore()

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	container.closers = append(container.closers, container.Store.Close)
	container.ClientData = clientdata.NewRepository(container.Store, log)

	log.Info().Str("backend", cfg.Store.Backend).Msg("Client data store initialized")
	return nil
}
