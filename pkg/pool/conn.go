package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/kvpool/pkg/transport"
)

var connSeq atomic.Uint64

// Conn is a checked-out transport connection. It is owned by exactly one
// caller between Acquire and Release.
type Conn struct {
	conn      transport.Conn
	id        uint64
	createdAt time.Time

	// lastUsed is guarded by the owning pool's mutex.
	lastUsed time.Time

	unhealthy atomic.Bool
	released  atomic.Bool
}

// NewConn wraps a transport connection that is not managed by a Pool.
func NewConn(c transport.Conn) *Conn {
	now := time.Now()
	return &Conn{
		conn:      c,
		id:        connSeq.Add(1),
		createdAt: now,
		lastUsed:  now,
	}
}

// ID returns a process-unique identifier for the underlying session.
func (c *Conn) ID() uint64 { return c.id }

// CreatedAt returns when the session was opened.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Age returns how long the session has been open.
func (c *Conn) Age() time.Duration { return time.Since(c.createdAt) }

// MarkUnhealthy poisons the connection so Release closes it instead of
// returning it to the idle set.
func (c *Conn) MarkUnhealthy() { c.unhealthy.Store(true) }

// Healthy reports whether the connection may be reused.
func (c *Conn) Healthy() bool { return !c.unhealthy.Load() }

// Set issues SET key value.
func (c *Conn) Set(ctx context.Context, key, value string) error {
	return c.conn.Set(ctx, key, value)
}

// Expire issues EXPIRE key ttl.
func (c *Conn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.conn.Expire(ctx, key, ttl)
}

// Get issues GET key and returns the raw reply.
func (c *Conn) Get(ctx context.Context, key string) (any, error) {
	return c.conn.Get(ctx, key)
}

// Ping checks the session.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the underlying session. Pooled connections must be handed
// back with Release instead.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Transport exposes the wrapped session, mainly for tests.
func (c *Conn) Transport() transport.Conn { return c.conn }

// checkout resets the per-lease flags.
func (c *Conn) checkout() {
	c.released.Store(false)
}

// markReleased returns false if the connection was already released.
func (c *Conn) markReleased() bool {
	return c.released.CompareAndSwap(false, true)
}
