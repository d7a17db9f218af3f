// Package direct opens a fresh store connection for every operation.
package direct

import (
	"context"
	"errors"

	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/Sternrassler/kvpool/pkg/pool"
	"github.com/Sternrassler/kvpool/pkg/transport"
	"github.com/rs/zerolog"
)

// Provider hands out unpooled connections. Nothing is shared between calls.
type Provider struct {
	dialer transport.Dialer
	logger zerolog.Logger
}

// New creates a direct provider over dialer.
func New(dialer transport.Dialer, logger zerolog.Logger) (*Provider, error) {
	if dialer == nil {
		return nil, kverr.New(kverr.StageClientConstruction, "new_direct", errors.New("dialer is required"))
	}
	return &Provider{
		dialer: dialer,
		logger: logger.With().Str("component", "direct").Logger(),
	}, nil
}

// Acquire dials a brand-new connection. A failed dial is not retried.
func (p *Provider) Acquire(ctx context.Context) (*pool.Conn, error) {
	tc, err := p.dialer.Dial(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Error creating redis client")
		return nil, kverr.New(kverr.StageClientConstruction, "dial", err)
	}
	return pool.NewConn(tc), nil
}

// Release closes the connection.
func (p *Provider) Release(conn *pool.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		p.logger.Debug().Err(err).Uint64("conn_id", conn.ID()).Msg("Failed to close direct connection")
	}
}
