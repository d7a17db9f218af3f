package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// gate bounds the number of callers holding a connection slot. The pool
// state machine is identical for every mode; only the gate decides how a
// caller waits for capacity.
type gate interface {
	// tryEnter takes a slot without waiting.
	tryEnter() bool

	// enter waits for a slot until ctx is done.
	enter(ctx context.Context) error

	// leave returns a slot and wakes some waiter.
	leave()
}

// condGate blocks callers on a condition variable.
type condGate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	inUse int
	limit int
}

func newCondGate(limit int) *condGate {
	g := &condGate{limit: limit}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *condGate) tryEnter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inUse < g.limit {
		g.inUse++
		return true
	}
	return false
}

func (g *condGate) enter(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.inUse >= g.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.waitLocked(ctx)
	}
	g.inUse++
	return nil
}

// waitLocked parks the caller until a slot is returned or ctx is done.
//
// Must be called with g.mu held. sync.Cond has no notion of contexts, so a
// helper goroutine turns ctx.Done into a Broadcast. The helper can only
// broadcast once cond.Wait has released g.mu, so the wakeup is never lost.
func (g *condGate) waitLocked(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		case <-done:
		}
	}()

	g.cond.Wait()
	close(done)

	// A waiter that gives up must not swallow the signal meant for the
	// next one in line.
	if ctx.Err() != nil && g.inUse < g.limit {
		g.cond.Signal()
	}
}

func (g *condGate) leave() {
	g.mu.Lock()
	g.inUse--
	g.mu.Unlock()
	g.cond.Signal()
}

// semGate suspends callers on a weighted semaphore; waiting is a channel
// select, so cancellation drops the reservation atomically.
type semGate struct {
	sem *semaphore.Weighted
}

func newSemGate(limit int) *semGate {
	return &semGate{sem: semaphore.NewWeighted(int64(limit))}
}

func (g *semGate) tryEnter() bool {
	return g.sem.TryAcquire(1)
}

func (g *semGate) enter(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *semGate) leave() {
	g.sem.Release(1)
}
