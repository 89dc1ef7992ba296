package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYSYNC_DATA_DIR", t.TempDir())
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REALTIME_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, RealtimeWebSocket, cfg.Realtime.Backend)
	assert.Equal(t, 15*time.Second, cfg.MerchantAPI.Timeout)
	assert.Equal(t, 1, cfg.MerchantAPI.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Status.LogoutDelay)
	assert.Equal(t, time.Duration(0), cfg.Status.PollInterval)
	assert.NotNil(t, cfg.Location)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYSYNC_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9090")
	t.Setenv("MERCHANT_API_URL", "https://pos.example.com/api/")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("REALTIME_BACKEND", "none")
	t.Setenv("STATUS_POLL_INTERVAL", "5s")
	t.Setenv("RATE_PREWARM_CURRENCIES", "eur, ngn,,gbp")
	t.Setenv("TIMEZONE", "Africa/Lagos")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://pos.example.com/api", cfg.MerchantAPI.BaseURL)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, RealtimeNone, cfg.Realtime.Backend)
	assert.Equal(t, 5*time.Second, cfg.Status.PollInterval)
	assert.Equal(t, []string{"EUR", "NGN", "GBP"}, cfg.Jobs.PrewarmCurrencies)
	assert.Equal(t, "Africa/Lagos", cfg.Location.String())
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("PAYSYNC_DATA_DIR", t.TempDir())
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:        8080,
			MerchantAPI: MerchantAPIConfig{BaseURL: "http://localhost"},
			Store:       StoreConfig{Backend: StoreSQLite},
			Realtime:    RealtimeConfig{Backend: RealtimeNone},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "redis without url", mutate: func(c *Config) { c.Store.Backend = StoreRedis }, wantErr: true},
		{name: "redis with url", mutate: func(c *Config) {
			c.Store.Backend = StoreRedis
			c.Store.RedisURL = "redis://localhost:6379/0"
		}},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: true},
		{name: "amqp without url", mutate: func(c *Config) { c.Realtime.Backend = RealtimeAMQP }, wantErr: true},
		{name: "websocket without url", mutate: func(c *Config) { c.Realtime.Backend = RealtimeWebSocket }, wantErr: true},
		{name: "unknown realtime", mutate: func(c *Config) { c.Realtime.Backend = "mqtt" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "negative poll", mutate: func(c *Config) { c.Status.PollInterval = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
