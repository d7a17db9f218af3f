// Package logging configures the zerolog logger shared by the pools, the
// cache facade and the kv-proxy server.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Validate reports whether l names a known level.
func (l LogLevel) Validate() error {
	switch strings.ToLower(string(l)) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", string(l))
	}
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Connection lifecycle
//   - Pool created (limits, timeouts)
//   - Connection opened, closed, reaped (conn_id, reason)
//   - Idle connection failed its checkout ping
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Pool closed
//   - Benchmark summary
//
// Warn: A request could not be served
//   - "Error getting connection from pool" (timeout, dial failure, closed)
//   - Command or decode failure in the cache facade
//   - Connection released twice
//
// Error: Error conditions requiring attention
//   - Pool construction failure at startup
//   - HTTP server failure
//
// Context Fields:
//   - component: pool, cache, direct, server, bench
//   - pool: pool name (mobc, r2d2)
//   - provider: facade provider label (direct, mobc, r2d2)
//   - conn_id: process-unique connection id
//   - result: acquisition outcome (reused, created, timeout, cancelled, dial_error, closed)
//   - stage: error stage (client_construction, acquisition, command_execution, type_decoding)
//   - waited: time spent waiting for a slot
//   - request_id: per-request id assigned by the server
