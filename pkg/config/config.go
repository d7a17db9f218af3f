// Package config loads kv-proxy settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/kvpool/pkg/logging"
	"github.com/Sternrassler/kvpool/pkg/pool"
	"github.com/Sternrassler/kvpool/pkg/transport"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete kv-proxy configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      logging.Config `yaml:"log"`
	Async    pool.Config    `yaml:"async_pool"`
	Blocking pool.Config    `yaml:"blocking_pool"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig configures the store target.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// DefaultConfig returns the built-in settings: the local store, port 8080
// on all interfaces, and the stock limits for both pools.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			URL:         transport.DefaultURL,
			DialTimeout: 5 * time.Second,
		},
		Log:      logging.DefaultConfig(),
		Async:    pool.DefaultConfig("mobc"),
		Blocking: pool.DefaultConfig("r2d2"),
	}
}

// LoadFromFile overlays the YAML document at path onto the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies KV_ADDR, REDIS_URL, LOG_LEVEL and LOG_PRETTY on top
// of cfg.
func LoadFromEnv(cfg Config) (Config, error) {
	if v := os.Getenv("KV_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = logging.LogLevel(v)
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.Log.Pretty = pretty
	}
	return cfg, nil
}

// Load reads path when non-empty, then applies the environment and
// validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return cfg, err
		}
	}

	cfg, err := LoadFromEnv(cfg)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidConfig)
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("%w: redis.url is required", ErrInvalidConfig)
	}
	if c.Redis.DialTimeout < 0 {
		return fmt.Errorf("%w: redis.dial_timeout must not be negative", ErrInvalidConfig)
	}
	if err := c.Log.Level.Validate(); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	if err := c.Async.Validate(); err != nil {
		return fmt.Errorf("%w: async_pool: %w", ErrInvalidConfig, err)
	}
	if err := c.Blocking.Validate(); err != nil {
		return fmt.Errorf("%w: blocking_pool: %w", ErrInvalidConfig, err)
	}
	return nil
}
