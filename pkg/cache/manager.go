package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/Sternrassler/kvpool/pkg/pool"
	"github.com/rs/zerolog"
)

var (
	// ErrNegativeTTL is returned by SetStr for a TTL below zero.
	ErrNegativeTTL = errors.New("ttl must not be negative")

	// ErrKeyNotFound indicates the store returned no value for the key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnexpectedType indicates the reply could not be read as a string.
	ErrUnexpectedType = errors.New("unexpected reply type")

	// ErrInvalidUTF8 indicates the stored bytes are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("value is not valid utf-8")
)

// Provider hands out connections for the duration of one operation.
// Both pool.Pool and direct.Provider satisfy it.
type Provider interface {
	Acquire(ctx context.Context) (*pool.Conn, error)
	Release(conn *pool.Conn)
}

// Manager runs string set/get operations against the store through a
// Provider. Each call holds one connection from acquire to release.
type Manager struct {
	name     string
	provider Provider
	logger   zerolog.Logger
}

// NewManager creates a facade over provider. name labels metrics and logs.
func NewManager(name string, provider Provider, logger zerolog.Logger) *Manager {
	if provider == nil {
		panic("provider cannot be nil")
	}
	return &Manager{
		name:     name,
		provider: provider,
		logger:   logger.With().Str("component", "cache").Str("provider", name).Logger(),
	}
}

// Name returns the provider label.
func (m *Manager) Name() string { return m.name }

// SetStr stores value under key. With ttlSeconds > 0 an EXPIRE follows on
// the same connection; SET and EXPIRE are two separate commands, so a
// crash in between leaves the key without expiry.
func (m *Manager) SetStr(ctx context.Context, key, value string, ttlSeconds int) (err error) {
	const op = "set_str"
	start := time.Now()
	defer func() { m.observe("set", start, err) }()

	if ttlSeconds < 0 {
		return kverr.New(kverr.StageCommand, op, fmt.Errorf("%w: %d", ErrNegativeTTL, ttlSeconds))
	}

	conn, err := m.provider.Acquire(ctx)
	if err != nil {
		return kverr.New(kverr.StageAcquisition, op, err)
	}
	defer m.provider.Release(conn)

	if err := conn.Set(ctx, key, value); err != nil {
		conn.MarkUnhealthy()
		return kverr.New(kverr.StageCommand, op, fmt.Errorf("set %q: %w", key, err))
	}

	if ttlSeconds > 0 {
		if err := conn.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second); err != nil {
			conn.MarkUnhealthy()
			return kverr.New(kverr.StageCommand, op, fmt.Errorf("expire %q: %w", key, err))
		}
	}

	return nil
}

// GetStr reads key and decodes the reply as a string. A missing key is a
// decoding failure, not a command failure.
func (m *Manager) GetStr(ctx context.Context, key string) (value string, err error) {
	const op = "get_str"
	start := time.Now()
	defer func() { m.observe("get", start, err) }()

	conn, err := m.provider.Acquire(ctx)
	if err != nil {
		return "", kverr.New(kverr.StageAcquisition, op, err)
	}
	defer m.provider.Release(conn)

	reply, err := conn.Get(ctx, key)
	if err != nil {
		conn.MarkUnhealthy()
		return "", kverr.New(kverr.StageCommand, op, fmt.Errorf("get %q: %w", key, err))
	}

	value, err = decodeString(reply)
	if err != nil {
		return "", kverr.New(kverr.StageDecode, op, fmt.Errorf("get %q: %w", key, err))
	}
	return value, nil
}

// decodeString converts a raw reply into a string.
func decodeString(reply any) (string, error) {
	switch v := reply.(type) {
	case nil:
		return "", ErrKeyNotFound
	case string:
		if !utf8.ValidString(v) {
			return "", ErrInvalidUTF8
		}
		return v, nil
	case []byte:
		if !utf8.Valid(v) {
			return "", ErrInvalidUTF8
		}
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnexpectedType, reply)
	}
}

func (m *Manager) observe(command string, start time.Time, err error) {
	CommandDuration.WithLabelValues(m.name, command).Observe(time.Since(start).Seconds())
	if err == nil {
		CommandsTotal.WithLabelValues(m.name, command, "ok").Inc()
		return
	}

	stage, _ := kverr.StageOf(err)
	CommandsTotal.WithLabelValues(m.name, command, "error").Inc()
	Errors.WithLabelValues(m.name, string(stage)).Inc()

	if stage != kverr.StageAcquisition {
		m.logger.Warn().Err(err).Str("command", command).Str("stage", string(stage)).Msg("Cache operation failed")
	}
}
