// Package transport wraps a single network session to the key-value store.
//
// A Conn is never shared: whichever component holds it (a pool while idle,
// a caller while checked out) owns it exclusively. Dialer is the connection
// open operation used by both the pooled and the direct providers.
package transport

import (
	"context"
	"time"
)

// Conn is one live session to the store.
type Conn interface {
	// Set stores value under key without an expiry.
	Set(ctx context.Context, key, value string) error

	// Expire sets a time-to-live on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the raw reply for key. A missing key yields (nil, nil);
	// interpreting the reply is left to the caller.
	Get(ctx context.Context, key string) (any, error)

	// Ping checks the session is still usable.
	Ping(ctx context.Context) error

	// Close tears the session down.
	Close() error
}

// Dialer opens new sessions to the store.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
