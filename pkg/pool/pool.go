package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/Sternrassler/kvpool/pkg/transport"
	"github.com/rs/zerolog"
)

var (
	// ErrPoolClosed is returned by Acquire and Warm after Close.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrAcquireTimeout is returned when no connection became available
	// within AcquireTimeout.
	ErrAcquireTimeout = errors.New("pool: acquire timeout")

	// ErrAcquireCancelled is returned when the caller's context ended while
	// waiting for a connection.
	ErrAcquireCancelled = errors.New("pool: acquire cancelled")
)

// Mode names the scheduling discipline a pool waits with.
type Mode string

const (
	// ModeBlocking parks waiters on a condition variable.
	ModeBlocking Mode = "blocking"

	// ModeAsync suspends waiters on a semaphore channel select.
	ModeAsync Mode = "async"
)

// Close reasons, used as metric labels.
const (
	reasonLifetime  = "max_lifetime"
	reasonIdleFull  = "max_idle"
	reasonIdleTime  = "idle_time"
	reasonUnhealthy = "unhealthy"
	reasonClosed    = "pool_closed"
)

// Pool hands out at most MaxOpen transport connections at a time and
// recycles them across callers.
type Pool struct {
	cfg    Config
	mode   Mode
	dialer transport.Dialer
	gate   gate
	logger zerolog.Logger

	mu         sync.Mutex
	idle       []*Conn // stack; the tail is the most recently used
	numOpen    int     // idle + checked out + being dialed or validated
	checkedOut int
	closed     bool
	stats      counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// counters are guarded by Pool.mu.
type counters struct {
	waitCount       int64
	waitDuration    time.Duration
	timeouts        int64
	created         int64
	closedLifetime  int64
	closedIdle      int64
	closedUnhealthy int64
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Name            string        `json:"name"`
	Mode            Mode          `json:"mode"`
	MaxOpen         int           `json:"max_open"`
	Open            int           `json:"open"`
	Idle            int           `json:"idle"`
	InUse           int           `json:"in_use"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ns"`
	Timeouts        int64         `json:"timeouts"`
	Created         int64         `json:"created"`
	ClosedLifetime  int64         `json:"closed_max_lifetime"`
	ClosedIdle      int64         `json:"closed_max_idle"`
	ClosedUnhealthy int64         `json:"closed_unhealthy"`
}

// NewBlocking creates a pool whose Acquire blocks the calling goroutine on
// a condition variable until a slot frees up.
func NewBlocking(cfg Config, dialer transport.Dialer, logger zerolog.Logger) (*Pool, error) {
	return newPool(cfg, ModeBlocking, dialer, logger)
}

// NewAsync creates a pool whose Acquire suspends on a semaphore and can be
// abandoned through its context at any point.
func NewAsync(cfg Config, dialer transport.Dialer, logger zerolog.Logger) (*Pool, error) {
	return newPool(cfg, ModeAsync, dialer, logger)
}

func newPool(cfg Config, mode Mode, dialer transport.Dialer, logger zerolog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, kverr.New(kverr.StageClientConstruction, "new_pool", err)
	}
	if dialer == nil {
		return nil, kverr.New(kverr.StageClientConstruction, "new_pool", errors.New("dialer is required"))
	}
	if cfg.Name == "" {
		cfg.Name = string(mode)
	}

	var g gate
	switch mode {
	case ModeBlocking:
		g = newCondGate(cfg.MaxOpen)
	default:
		g = newSemGate(cfg.MaxOpen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		mode:   mode,
		dialer: dialer,
		gate:   g,
		logger: logger.With().Str("component", "pool").Str("pool", cfg.Name).Logger(),
		idle:   make([]*Conn, 0, cfg.MaxIdle),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.ReapInterval > 0 {
		p.wg.Add(1)
		go p.reapLoop()
	}

	p.logger.Debug().
		Str("mode", string(mode)).
		Int("max_open", cfg.MaxOpen).
		Int("max_idle", cfg.MaxIdle).
		Int("min_idle", cfg.MinIdle).
		Dur("acquire_timeout", cfg.AcquireTimeout).
		Dur("max_lifetime", cfg.MaxLifetime).
		Msg("Pool created")

	return p, nil
}

// Name returns the pool's label.
func (p *Pool) Name() string { return p.cfg.Name }

// Mode returns the pool's scheduling discipline.
func (p *Pool) Mode() Mode { return p.mode }

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// Acquire returns a healthy connection, waiting up to AcquireTimeout for
// one to become available. The caller must hand it back with Release.
//
// Failures are never retried here; they are logged and returned as
// acquisition errors.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, p.acquireFailed("closed", start, ErrPoolClosed)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if !p.gate.tryEnter() {
		err := p.gate.enter(waitCtx)
		waited := time.Since(start)
		AcquireWait.WithLabelValues(p.cfg.Name).Observe(waited.Seconds())

		p.mu.Lock()
		p.stats.waitCount++
		p.stats.waitDuration += waited
		if err != nil && ctx.Err() == nil && p.ctx.Err() == nil {
			p.stats.timeouts++
		}
		p.mu.Unlock()

		if err != nil {
			switch {
			case p.ctx.Err() != nil:
				return nil, p.acquireFailed("closed", start, ErrPoolClosed)
			case ctx.Err() != nil:
				return nil, p.acquireFailed("cancelled", start, fmt.Errorf("%w: %w", ErrAcquireCancelled, ctx.Err()))
			default:
				return nil, p.acquireFailed("timeout", start,
					fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeout))
			}
		}
	}

	conn, reused, err := p.checkout(waitCtx)
	if err != nil {
		p.gate.leave()
		if errors.Is(err, ErrPoolClosed) {
			return nil, p.acquireFailed("closed", start, err)
		}
		return nil, p.acquireFailed("dial_error", start, err)
	}

	result := "created"
	if reused {
		result = "reused"
	}
	AcquireTotal.WithLabelValues(p.cfg.Name, result).Inc()
	p.updateGauges()

	return conn, nil
}

// checkout takes a validated idle connection or dials a new one. The caller
// already holds a gate slot.
func (p *Pool) checkout(ctx context.Context) (*Conn, bool, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, false, ErrPoolClosed
		}

		n := len(p.idle)
		if n == 0 {
			p.numOpen++
			p.checkedOut++
			p.mu.Unlock()

			conn, err := p.open(ctx)
			if err != nil {
				p.mu.Lock()
				p.numOpen--
				p.checkedOut--
				p.mu.Unlock()
				return nil, false, err
			}
			conn.checkout()
			return conn, false, nil
		}

		conn := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.lifetimeExceeded(conn, time.Now()) {
			p.discard(conn, reasonLifetime)
			continue
		}
		if p.cfg.TestOnCheckout {
			if err := conn.Ping(ctx); err != nil {
				p.logger.Debug().Err(err).Uint64("conn_id", conn.id).Msg("Idle connection failed health check")
				p.discard(conn, reasonUnhealthy)
				continue
			}
		}

		p.mu.Lock()
		p.checkedOut++
		conn.lastUsed = time.Now()
		p.mu.Unlock()
		conn.checkout()
		return conn, true, nil
	}
}

// open dials a fresh connection. The slot in numOpen is already reserved.
func (p *Pool) open(ctx context.Context) (*Conn, error) {
	tc, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	conn := NewConn(tc)
	p.mu.Lock()
	p.stats.created++
	p.mu.Unlock()

	p.logger.Debug().Uint64("conn_id", conn.id).Msg("Opened connection")
	return conn, nil
}

// Release hands a connection back. Healthy, young connections return to the
// idle set; anything else is closed. Release must be called exactly once
// per successful Acquire; later calls are ignored.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	if !conn.markReleased() {
		p.logger.Warn().Uint64("conn_id", conn.id).Msg("Connection released twice, ignoring")
		return
	}

	now := time.Now()
	reason := ""

	p.mu.Lock()
	p.checkedOut--
	switch {
	case !conn.Healthy():
		reason = reasonUnhealthy
	case p.closed:
		reason = reasonClosed
	case p.lifetimeExceeded(conn, now):
		reason = reasonLifetime
	case len(p.idle) >= p.cfg.MaxIdle:
		reason = reasonIdleFull
	}
	if reason == "" {
		conn.lastUsed = now
		p.idle = append(p.idle, conn)
	} else {
		p.numOpen--
		p.countClosedLocked(reason)
	}
	p.mu.Unlock()

	if reason != "" {
		p.closeConn(conn, reason)
	}

	p.gate.leave()
	p.updateGauges()
}

// Warm opens connections until MinIdle are idle or no slot is free.
// Each dial holds a gate slot like an Acquire would, so warming never
// pushes the pool past MaxOpen. It does not wait for checked-out
// connections to come back.
func (p *Pool) Warm(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return kverr.New(kverr.StageAcquisition, "warm", ErrPoolClosed)
		}
		if len(p.idle) >= p.cfg.MinIdle || p.numOpen >= p.cfg.MaxOpen {
			p.mu.Unlock()
			p.updateGauges()
			return nil
		}
		p.mu.Unlock()

		if !p.gate.tryEnter() {
			p.updateGauges()
			return nil
		}

		p.mu.Lock()
		// Callers may have filled the idle set or opened connections while
		// the slot was being taken.
		if p.closed || len(p.idle) >= p.cfg.MinIdle || p.numOpen >= p.cfg.MaxOpen {
			closed := p.closed
			p.mu.Unlock()
			p.gate.leave()
			if closed {
				return kverr.New(kverr.StageAcquisition, "warm", ErrPoolClosed)
			}
			p.updateGauges()
			return nil
		}
		p.numOpen++
		p.mu.Unlock()

		conn, err := p.open(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			p.gate.leave()
			p.logger.Warn().Err(err).Msg("Failed to warm pool")
			return kverr.New(kverr.StageAcquisition, "warm", err)
		}

		p.mu.Lock()
		if p.closed {
			p.numOpen--
			p.mu.Unlock()
			p.closeConn(conn, reasonClosed)
			p.gate.leave()
			return kverr.New(kverr.StageAcquisition, "warm", ErrPoolClosed)
		}
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		p.gate.leave()
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:            p.cfg.Name,
		Mode:            p.mode,
		MaxOpen:         p.cfg.MaxOpen,
		Open:            p.numOpen,
		Idle:            len(p.idle),
		InUse:           p.checkedOut,
		WaitCount:       p.stats.waitCount,
		WaitDuration:    p.stats.waitDuration,
		Timeouts:        p.stats.timeouts,
		Created:         p.stats.created,
		ClosedLifetime:  p.stats.closedLifetime,
		ClosedIdle:      p.stats.closedIdle,
		ClosedUnhealthy: p.stats.closedUnhealthy,
	}
}

// Close stops the reaper, closes idle connections and aborts pending
// acquisitions. Checked-out connections are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.numOpen -= len(idle)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	var errs []error
	for _, conn := range idle {
		ConnectionsClosed.WithLabelValues(p.cfg.Name, reasonClosed).Inc()
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.updateGauges()

	p.logger.Info().Int("closed_idle", len(idle)).Msg("Pool closed")
	return errors.Join(errs...)
}

// reapLoop periodically retires stale idle connections until Close.
func (p *Pool) reapLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			p.reap(now)
		}
	}
}

// reap closes idle connections past MaxLifetime, then trims surplus idle
// connections beyond MinIdle that have sat unused longer than MaxIdleTime.
func (p *Pool) reap(now time.Time) int {
	type doomed struct {
		conn   *Conn
		reason string
	}
	var victims []doomed

	p.mu.Lock()
	kept := make([]*Conn, 0, len(p.idle))
	for _, conn := range p.idle {
		if p.lifetimeExceeded(conn, now) {
			victims = append(victims, doomed{conn, reasonLifetime})
			continue
		}
		kept = append(kept, conn)
	}

	// kept is oldest-first, so surplus trimming retires the coldest first.
	if idleTime := p.cfg.maxIdleTime(); idleTime > 0 {
		surplus := len(kept) - p.cfg.MinIdle
		trimmed := kept[:0]
		for _, conn := range kept {
			if surplus > 0 && now.Sub(conn.lastUsed) > idleTime {
				victims = append(victims, doomed{conn, reasonIdleTime})
				surplus--
				continue
			}
			trimmed = append(trimmed, conn)
		}
		kept = trimmed
	}

	p.idle = kept
	p.numOpen -= len(victims)
	for _, v := range victims {
		p.countClosedLocked(v.reason)
	}
	p.mu.Unlock()

	for _, v := range victims {
		p.closeConn(v.conn, v.reason)
	}
	if len(victims) > 0 {
		p.logger.Debug().Int("reaped", len(victims)).Msg("Reaped idle connections")
		p.updateGauges()
	}
	return len(victims)
}

func (p *Pool) lifetimeExceeded(conn *Conn, now time.Time) bool {
	return p.cfg.MaxLifetime > 0 && now.Sub(conn.createdAt) >= p.cfg.MaxLifetime
}

// discard retires a connection that was taken off the idle stack but never
// handed out.
func (p *Pool) discard(conn *Conn, reason string) {
	p.mu.Lock()
	p.numOpen--
	p.countClosedLocked(reason)
	p.mu.Unlock()
	p.closeConn(conn, reason)
}

func (p *Pool) countClosedLocked(reason string) {
	switch reason {
	case reasonLifetime:
		p.stats.closedLifetime++
	case reasonIdleFull, reasonIdleTime:
		p.stats.closedIdle++
	case reasonUnhealthy:
		p.stats.closedUnhealthy++
	}
}

func (p *Pool) closeConn(conn *Conn, reason string) {
	ConnectionsClosed.WithLabelValues(p.cfg.Name, reason).Inc()
	if err := conn.Close(); err != nil {
		p.logger.Warn().Err(err).Uint64("conn_id", conn.id).Str("reason", reason).Msg("Failed to close connection")
		return
	}
	p.logger.Debug().Uint64("conn_id", conn.id).Str("reason", reason).Msg("Closed connection")
}

// acquireFailed logs, counts and tags an acquisition failure.
func (p *Pool) acquireFailed(result string, start time.Time, err error) error {
	AcquireTotal.WithLabelValues(p.cfg.Name, result).Inc()
	p.logger.Warn().
		Err(err).
		Str("result", result).
		Dur("waited", time.Since(start)).
		Msg("Error getting connection from pool")
	return kverr.New(kverr.StageAcquisition, "acquire", err)
}

func (p *Pool) updateGauges() {
	p.mu.Lock()
	idle, inUse := len(p.idle), p.checkedOut
	p.mu.Unlock()
	Connections.WithLabelValues(p.cfg.Name, "idle").Set(float64(idle))
	Connections.WithLabelValues(p.cfg.Name, "in_use").Set(float64(inUse))
}
