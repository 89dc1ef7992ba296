// Package database opens the SQLite file that backs the client data store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DatabaseProfile selects durability versus speed PRAGMAs
type DatabaseProfile string

const (
	// ProfileCache trades durability for speed; contents can be refetched
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard keeps fsync on commit
	ProfileStandard DatabaseProfile = "standard"
)

// pragmas per profile, applied on every new connection
var pragmas = map[DatabaseProfile][]string{
	ProfileCache: {
		"journal_mode(WAL)",
		"synchronous(OFF)",
		"auto_vacuum(FULL)",
		"temp_store(MEMORY)",
	},
	ProfileStandard: {
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"auto_vacuum(INCREMENTAL)",
		"temp_store(MEMORY)",
	},
}

// Writers are serialized by SQLite; the busy timeout makes concurrent cache writes wait instead of failing.
var commonPragmas = []string{"busy_timeout(5000)", "wal_autocheckpoint(1000)"}

// DB is an open SQLite database
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// Config holds database configuration
type Config struct {
	Path    string // file path, or a file: URI passed through untouched
	Profile DatabaseProfile
	Name    string // used in error messages
}

// New opens the database, creating its directory if needed, and pings it
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}
	if _, ok := pragmas[cfg.Profile]; !ok {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// cache files see short bursts of small writes
	if cfg.Profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile DatabaseProfile) string {
	params := make([]string, 0, len(pragmas[profile])+len(commonPragmas))
	for _, p := range pragmas[profile] {
		params = append(params, "_pragma="+p)
	}
	for _, p := range commonPragmas {
		params = append(params, "_pragma="+p)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Migrate executes the given schema statements
func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database %s: %w", db.name, err)
	}
	return nil
}

// Checkpoint folds the WAL back into the main file and truncates it
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint database %s: %w", db.name, err)
	}
	return nil
}

// Conn returns the underlying *sql.DB
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Name() string { return db.name }

func (db *DB) Path() string { return db.path }

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
