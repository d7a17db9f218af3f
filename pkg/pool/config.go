package pool

import (
	"errors"
	"fmt"
	"time"
)

// Defaults mirror the constants the kv-proxy server has always run with.
const (
	DefaultMaxOpen        = 16
	DefaultMaxIdle        = 8
	DefaultMinIdle        = 8
	DefaultAcquireTimeout = 1 * time.Second
	DefaultMaxLifetime    = 60 * time.Second
	DefaultReapInterval   = 10 * time.Second
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid pool config")

// Config holds pool settings. It is copied at construction and never
// changes afterwards.
type Config struct {
	// Name labels the pool in logs and metrics.
	Name string `yaml:"name"`

	// MaxOpen is the upper bound on live connections (idle + checked out).
	MaxOpen int `yaml:"max_open"`

	// MaxIdle caps the idle set; connections released into a full idle set
	// are closed.
	MaxIdle int `yaml:"max_idle"`

	// MinIdle is the warm floor: Warm opens up to it and the reaper never
	// trims idle connections below it for idleness.
	MinIdle int `yaml:"min_idle"`

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// MaxLifetime is the age at which a connection is recycled. 0 disables.
	MaxLifetime time.Duration `yaml:"max_lifetime"`

	// MaxIdleTime is how long a surplus idle connection may sit unused.
	// 0 falls back to MaxLifetime.
	MaxIdleTime time.Duration `yaml:"max_idle_time"`

	// ReapInterval is the background reaper cadence. 0 disables reaping.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// TestOnCheckout pings idle connections before handing them out.
	TestOnCheckout bool `yaml:"test_on_checkout"`
}

// DefaultConfig returns the stock pool configuration.
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		MaxOpen:        DefaultMaxOpen,
		MaxIdle:        DefaultMaxIdle,
		MinIdle:        DefaultMinIdle,
		AcquireTimeout: DefaultAcquireTimeout,
		MaxLifetime:    DefaultMaxLifetime,
		ReapInterval:   DefaultReapInterval,
		TestOnCheckout: true,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	switch {
	case c.MaxOpen <= 0:
		return fmt.Errorf("%w: max_open must be > 0 (got %d)", ErrInvalidConfig, c.MaxOpen)
	case c.MaxIdle < 0 || c.MinIdle < 0:
		return fmt.Errorf("%w: idle bounds must be >= 0", ErrInvalidConfig)
	case c.MaxIdle > c.MaxOpen:
		return fmt.Errorf("%w: max_idle (%d) must be <= max_open (%d)", ErrInvalidConfig, c.MaxIdle, c.MaxOpen)
	case c.MinIdle > c.MaxIdle:
		return fmt.Errorf("%w: min_idle (%d) must be <= max_idle (%d)", ErrInvalidConfig, c.MinIdle, c.MaxIdle)
	case c.AcquireTimeout <= 0:
		return fmt.Errorf("%w: acquire_timeout must be > 0", ErrInvalidConfig)
	case c.MaxLifetime < 0 || c.MaxIdleTime < 0 || c.ReapInterval < 0:
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// maxIdleTime resolves the idle timeout fallback.
func (c Config) maxIdleTime() time.Duration {
	if c.MaxIdleTime > 0 {
		return c.MaxIdleTime
	}
	return c.MaxLifetime
}
