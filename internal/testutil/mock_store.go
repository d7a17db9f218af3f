// Package testutil provides testing utilities for kvpool.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/kvpool/pkg/transport"
)

// ErrConnClosed is returned by MockConn operations after Close.
var ErrConnClosed = errors.New("mock: connection closed")

// Call records one primitive issued on a MockConn.
type Call struct {
	ConnID int
	Op     string
	Key    string
	Value  string
	TTL    time.Duration
}

// MockStore is an in-memory key-value store shared by every connection a
// MockDialer opens. It records each primitive issued on any connection.
type MockStore struct {
	mu     sync.Mutex
	data   map[string]any
	ttls   map[string]time.Duration
	calls  []Call
	errs   map[string]error
	nextID int
	open   int
	dialed int

	// DialErr, when set, makes every Dial fail with it.
	DialErr error

	// DialDelay is slept (respecting ctx) before each Dial.
	DialDelay time.Duration

	// PingErr, when set, makes Ping fail on every connection.
	PingErr error
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]any),
		ttls: make(map[string]time.Duration),
		errs: make(map[string]error),
	}
}

// Dialer returns a transport.Dialer backed by the store.
func (s *MockStore) Dialer() transport.Dialer {
	return transport.DialerFunc(s.dial)
}

func (s *MockStore) dial(ctx context.Context) (transport.Conn, error) {
	s.mu.Lock()
	delay, dialErr := s.DialDelay, s.DialErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.open++
	s.dialed++
	return &MockConn{store: s, id: s.nextID}, nil
}

// SetDialErr configures dial failures under the store lock.
func (s *MockStore) SetDialErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DialErr = err
}

// SetPingErr configures ping failures under the store lock.
func (s *MockStore) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingErr = err
}

// FailNext makes the next call to op ("set", "expire", "get") fail with err.
func (s *MockStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = err
}

// Put stores a raw value, bypassing any connection.
func (s *MockStore) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// TTL returns the expiry set on key, or 0.
func (s *MockStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Calls returns a copy of the recorded primitives.
func (s *MockStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times op was issued.
func (s *MockStore) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// OpenConns returns the number of dialed, not yet closed connections.
func (s *MockStore) OpenConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// DialCount returns the total number of successful dials.
func (s *MockStore) DialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialed
}

// record appends a call and returns any injected failure for op.
func (s *MockStore) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if err, ok := s.errs[c.Op]; ok {
		delete(s.errs, c.Op)
		return err
	}
	return nil
}

// MockConn is a transport.Conn over a MockStore.
type MockConn struct {
	store  *MockStore
	id     int
	mu     sync.Mutex
	closed bool
}

// ID returns the dial sequence number of the connection.
func (c *MockConn) ID() int {
	return c.id
}

func (c *MockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Set implements transport.Conn.
func (c *MockConn) Set(ctx context.Context, key, value string) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	if err := c.store.record(Call{ConnID: c.id, Op: "set", Key: key, Value: value}); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.data[key] = value
	delete(c.store.ttls, key)
	return nil
}

// Expire implements transport.Conn.
func (c *MockConn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	if err := c.store.record(Call{ConnID: c.id, Op: "expire", Key: key, TTL: ttl}); err != nil {
		return err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.data[key]; ok {
		c.store.ttls[key] = ttl
	}
	return nil
}

// Get implements transport.Conn.
func (c *MockConn) Get(ctx context.Context, key string) (any, error) {
	if c.isClosed() {
		return nil, ErrConnClosed
	}
	if err := c.store.record(Call{ConnID: c.id, Op: "get", Key: key}); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.data[key], nil
}

// Ping implements transport.Conn.
func (c *MockConn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.store.PingErr
}

// Close implements transport.Conn.
func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mock: connection %d closed twice", c.id)
	}
	c.closed = true

	c.store.mu.Lock()
	c.store.open--
	c.store.mu.Unlock()
	return nil
}
