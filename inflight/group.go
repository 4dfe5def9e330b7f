// Package inflight deduplicates concurrent resolutions of the same key. At
// most one fetch runs per key at a time; callers arriving while it runs
// attach to it and receive the exact result it produces. The shared fetch
// outlives any single caller and is canceled only once every attached caller
// has gone away.
package inflight

import (
	"context"
	"sync"
)

// call is one running resolution together with the callers attached to it.
type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Group coordinates fetches so that no key ever has more than one in flight.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

func NewGroup[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{
		calls: make(map[K]*call[V]),
	}
}

// Do returns the result of fn for key, either by starting fn or by attaching
// to a run another caller started; started reports which of the two
// happened. Every caller attached to the same run receives the identical
// result.
//
// fn runs on a context detached from any single caller's lifetime. When a
// caller's own ctx ends first, Do returns the ctx error while the run keeps
// going for the others; the departure of the last attached caller cancels
// the run's context.
//
// Once a run has completed, the next Do for the key starts a fresh one.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, bool, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		v, err := g.wait(ctx, c)
		return v, false, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call[V]{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	g.calls[key] = c
	g.mu.Unlock()

	go func() {
		v, err := fn(runCtx)

		g.mu.Lock()
		c.val, c.err = v, err
		// the run is over; callers arriving from here on start a fresh one
		delete(g.calls, key)
		g.mu.Unlock()

		cancel()
		close(c.done)
	}()

	v, err := g.wait(ctx, c)
	return v, true, err
}

// Waiters returns the number of callers attached to the key's in-flight
// resolution, zero when none is running.
func (g *Group[K, V]) Waiters(key K) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// Len returns the number of keys with a resolution in flight.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// wait blocks until the shared run completes or the caller's own context
// ends, whichever comes first. The last departing caller cancels the run.
func (g *Group[K, V]) wait(ctx context.Context, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err

	case <-ctx.Done():
		g.mu.Lock()
		c.waiters--
		abandoned := c.waiters == 0
		g.mu.Unlock()

		if abandoned {
			c.cancel()
		}
		var zero V
		return zero, ctx.Err()
	}
}
