package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/kvpool/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kv-proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "redis://127.0.0.1/", cfg.Redis.URL)
	assert.Equal(t, "mobc", cfg.Async.Name)
	assert.Equal(t, "r2d2", cfg.Blocking.Name)
	assert.Equal(t, 16, cfg.Async.MaxOpen)
	assert.Equal(t, time.Second, cfg.Blocking.AcquireTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
server:
  addr: 127.0.0.1:9090
redis:
  url: redis://cache:6379/2
  dial_timeout: 2s
log:
  level: debug
  pretty: true
async_pool:
  max_open: 32
  max_idle: 16
  min_idle: 4
  acquire_timeout: 250ms
blocking_pool:
  test_on_checkout: false
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout, "unset fields keep defaults")
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, logging.LevelDebug, cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.NotNil(t, cfg.Log.Output)

	assert.Equal(t, "mobc", cfg.Async.Name)
	assert.Equal(t, 32, cfg.Async.MaxOpen)
	assert.Equal(t, 16, cfg.Async.MaxIdle)
	assert.Equal(t, 4, cfg.Async.MinIdle)
	assert.Equal(t, 250*time.Millisecond, cfg.Async.AcquireTimeout)

	assert.False(t, cfg.Blocking.TestOnCheckout)
	assert.Equal(t, 16, cfg.Blocking.MaxOpen)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "server: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KV_ADDR", ":7070")
	t.Setenv("REDIS_URL", "redis://10.0.0.5/")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := LoadFromEnv(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "redis://10.0.0.5/", cfg.Redis.URL)
	assert.Equal(t, logging.LevelWarn, cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadFromEnv_BadBool(t *testing.T) {
	t.Setenv("LOG_PRETTY", "sometimes")

	_, err := LoadFromEnv(DefaultConfig())
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://override/")
	path := writeFile(t, "redis:\n  url: redis://from-file/\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://override/", cfg.Redis.URL, "environment wins over file")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{name: "empty url", mutate: func(c *Config) { c.Redis.URL = "" }},
		{name: "negative dial timeout", mutate: func(c *Config) { c.Redis.DialTimeout = -time.Second }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad async pool", mutate: func(c *Config) { c.Async.MaxOpen = 0 }},
		{name: "bad blocking pool", mutate: func(c *Config) { c.Blocking.MinIdle = c.Blocking.MaxIdle + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
