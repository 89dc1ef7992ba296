// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Realtime backends
const (
	RealtimeWebSocket = "websocket"
	RealtimeAMQP      = "amqp"
	RealtimeNone      = "none"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the cache database (always absolute)
	LogLevel   string
	LogPretty  bool
	Port       int
	DevMode    bool
	MerchantID string // Default merchant channel for status synchronizers
	Location   *time.Location

	MerchantAPI  MerchantAPIConfig
	ExchangeRate ExchangeRateConfig
	Store        StoreConfig
	Realtime     RealtimeConfig
	Jobs         JobsConfig
	Status       StatusConfig
}

// MerchantAPIConfig configures the merchant REST transport
type MerchantAPIConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// ExchangeRateConfig configures the rate-fetch collaborator
type ExchangeRateConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StoreConfig selects the persistent key/value backend
type StoreConfig struct {
	Backend     string
	RedisURL    string
	RedisPrefix string
}

// RealtimeConfig selects the push transport
type RealtimeConfig struct {
	Backend      string
	URL          string
	AMQPURL      string
	AMQPExchange string
}

// JobsConfig holds cron schedules for background jobs
type JobsConfig struct {
	CacheSweepSchedule  string
	RatePrewarmSchedule string
	PrewarmCurrencies   []string
}

// StatusConfig tunes status synchronizers and the merchant-status gate
type StatusConfig struct {
	PollInterval time.Duration
	LogoutDelay  time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PAYSYNC_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	loc := time.Local
	if tz := getEnv("TIMEZONE", ""); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
	}

	cfg := &Config{
		DataDir:    absDataDir,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnvAsBool("LOG_PRETTY", true),
		Port:       getEnvAsInt("GO_PORT", 8080),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		MerchantID: getEnv("MERCHANT_ID", ""),
		Location:   loc,
		MerchantAPI: MerchantAPIConfig{
			BaseURL:    strings.TrimSuffix(getEnv("MERCHANT_API_URL", "http://localhost:9000/api/v1"), "/"),
			Token:      getEnv("MERCHANT_API_TOKEN", ""),
			Timeout:    getEnvAsDuration("MERCHANT_API_TIMEOUT", 15*time.Second),
			MaxRetries: getEnvAsInt("MERCHANT_API_RETRIES", 1),
		},
		ExchangeRate: ExchangeRateConfig{
			BaseURL: strings.TrimSuffix(getEnv("EXCHANGE_RATE_API_URL", "https://api.exchangerate-api.com/v4/latest"), "/"),
			Timeout: getEnvAsDuration("EXCHANGE_RATE_API_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
			RedisURL:    getEnv("REDIS_URL", ""),
			RedisPrefix: getEnv("REDIS_PREFIX", "paysync"),
		},
		Realtime: RealtimeConfig{
			Backend:      strings.ToLower(getEnv("REALTIME_BACKEND", RealtimeWebSocket)),
			URL:          getEnv("REALTIME_URL", "ws://localhost:9001/realtime"),
			AMQPURL:      getEnv("AMQP_URL", ""),
			AMQPExchange: getEnv("AMQP_EXCHANGE", "merchant.events"),
		},
		Jobs: JobsConfig{
			CacheSweepSchedule:  getEnv("CACHE_SWEEP_SCHEDULE", "0 */15 * * * *"),
			RatePrewarmSchedule: getEnv("RATE_PREWARM_SCHEDULE", "0 5 0 * * *"),
			PrewarmCurrencies:   getEnvAsList("RATE_PREWARM_CURRENCIES", nil),
		},
		Status: StatusConfig{
			PollInterval: getEnvAsDuration("STATUS_POLL_INTERVAL", 0),
			LogoutDelay:  getEnvAsDuration("LOGOUT_DELAY", 3*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.MerchantAPI.BaseURL == "" {
		return fmt.Errorf("MERCHANT_API_URL is required")
	}

	switch c.Store.Backend {
	case StoreSQLite, StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Realtime.Backend {
	case RealtimeNone:
	case RealtimeWebSocket:
		if c.Realtime.URL == "" {
			return fmt.Errorf("REALTIME_URL is required when REALTIME_BACKEND=websocket")
		}
	case RealtimeAMQP:
		if c.Realtime.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when REALTIME_BACKEND=amqp")
		}
	default:
		return fmt.Errorf("unknown REALTIME_BACKEND %q", c.Realtime.Backend)
	}

	if c.Status.PollInterval < 0 || c.Status.LogoutDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
