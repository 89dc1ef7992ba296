// Package testing provides testing utilities and helpers for the paysync project.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/merchantpos/paysync/internal/database"
	"github.com/merchantpos/paysync/internal/kvstore"
)

// NewTestStore creates a key/value store for tests. Backend "sqlite" uses a
// database file in t.TempDir(); anything else returns the memory store.
// The store is closed when the test ends.
func NewTestStore(t *testing.T, backend string) kvstore.Store {
	t.Helper()

	var store kvstore.Store
	switch backend {
	case "sqlite":
		db, err := database.New(database.Config{
			Path:    filepath.Join(t.TempDir(), "client_data.db"),
			Profile: database.ProfileCache,
			Name:    "client_data_test",
		})
		if err != nil {
			t.Fatalf("Failed to create test database: %v", err)
		}
		sqliteStore, err := kvstore.NewSQLiteStore(context.Background(), db)
		if err != nil {
			_ = db.Close()
			t.Fatalf("Failed to migrate test database: %v", err)
		}
		store = sqliteStore
	default:
		store = kvstore.NewMemoryStore()
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Warning: Failed to close test store: %v", err)
		}
	})
	return store
}
