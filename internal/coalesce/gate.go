// Package coalesce merges concurrent requests for the same key into a single
// unit of work.
//
// Coalescing is process-local. Two processes may still run the same work at
// the same time; callers rely on their durable store (an atomic upsert) to
// make that harmless.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned to every waiter when work does not settle within the
// gate's bound.
var ErrTimeout = errors.New("coalesced work timed out")

type call[T any] struct {
	done    chan struct{}
	val     T
	err     error
	waiters int
}

// Gate runs at most one work function per key at a time. The zero value is
// not usable; use New.
type Gate[T any] struct {
	mu      sync.Mutex
	calls   map[string]*call[T]
	timeout time.Duration
}

// New returns a Gate. A positive timeout bounds how long waiters are held
// behind one piece of work; zero disables the bound.
func New[T any](timeout time.Duration) *Gate[T] {
	return &Gate[T]{
		calls:   make(map[string]*call[T]),
		timeout: timeout,
	}
}

// Do runs work for key unless a call for key is already in flight, in which
// case it waits for that call and returns its result. shared is true when the
// result came from a call started by another caller.
//
// Work runs on a context detached from the caller's cancellation, so a
// caller that stops waiting (ctx done) does not abort work other callers
// depend on. The in-flight entry is removed as soon as the work settles, so
// later calls always start fresh.
func (g *Gate[T]) Do(ctx context.Context, key string, work func(context.Context) (T, error)) (val T, shared bool, err error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		val, err = g.wait(ctx, key, c, true)
		return val, true, err
	}
	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	go g.execute(context.WithoutCancel(ctx), key, c, work)

	val, err = g.wait(ctx, key, c, false)
	return val, false, err
}

// Waiters returns how many callers that joined the in-flight call for key
// after it started are still waiting on it, or -1 when nothing is in flight.
func (g *Gate[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return -1
}

// InFlight returns the number of keys with work in progress.
func (g *Gate[T]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *Gate[T]) execute(ctx context.Context, key string, c *call[T], work func(context.Context) (T, error)) {
	type result struct {
		val T
		err error
	}

	var cancel context.CancelFunc = func() {}
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	}

	results := make(chan result, 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				results <- result{err: fmt.Errorf("coalesced work panicked: %v", r)}
			}
		}()
		v, err := work(ctx)
		results <- result{val: v, err: err}
	}()

	var timeout <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-results:
		c.val, c.err = r.val, r.err
	case <-timeout:
		c.err = ErrTimeout
	}

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)
}

func (g *Gate[T]) wait(ctx context.Context, key string, c *call[T], joined bool) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		if joined {
			g.mu.Lock()
			if g.calls[key] == c {
				c.waiters--
			}
			g.mu.Unlock()
		}
		var zero T
		return zero, ctx.Err()
	}
}
