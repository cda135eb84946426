package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Monterroso/Frinny-Backend/internal/observe"
	"github.com/Monterroso/Frinny-Backend/internal/resilience"
)

// DefaultOpTimeout bounds a single store operation.
const DefaultOpTimeout = 5 * time.Second

var _ Store = (*Guarded)(nil)

// Guarded wraps a [Store] so that no operation outlives its timeout, a
// failing backend is short-circuited by a circuit breaker, and every
// operation is recorded in metrics.
//
// The timeout holds even for backends that ignore ctx: the operation runs
// in its own goroutine and Guarded stops waiting when the deadline passes.
type Guarded struct {
	inner   Store
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
}

// GuardOption configures a [Guarded].
type GuardOption func(*Guarded)

// WithOpTimeout overrides [DefaultOpTimeout].
func WithOpTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBreaker installs a circuit breaker around every operation.
func WithBreaker(cb *resilience.CircuitBreaker) GuardOption {
	return func(g *Guarded) { g.breaker = cb }
}

// WithMetrics records operation latency and errors to m.
func WithMetrics(m *observe.Metrics) GuardOption {
	return func(g *Guarded) { g.metrics = m }
}

// Guard wraps inner.
func Guard(inner Store, opts ...GuardOption) *Guarded {
	g := &Guarded{inner: inner, timeout: DefaultOpTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Unwrap returns the wrapped store.
func (g *Guarded) Unwrap() Store { return g.inner }

type getResult struct {
	state State
	found bool
}

// Get implements [Store.Get].
func (g *Guarded) Get(ctx context.Context, key Key) (State, bool, error) {
	if err := key.Validate(); err != nil {
		return State{}, false, err
	}
	res, err := guardedCall(ctx, g, "get", func(ctx context.Context) (getResult, error) {
		st, ok, err := g.inner.Get(ctx, key)
		return getResult{st, ok}, err
	})
	if err != nil {
		return State{}, false, fmt.Errorf("checkpoint: %s get %s: %w", g.inner.Name(), key, err)
	}
	return res.state, res.found, nil
}

// Put implements [Store.Put].
func (g *Guarded) Put(ctx context.Context, key Key, state State) error {
	if err := key.Validate(); err != nil {
		return err
	}
	// The caller may keep mutating its copy while a timed-out write is
	// still running in the background.
	st := state.Clone()
	_, err := guardedCall(ctx, g, "put", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Put(ctx, key, st)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %s put %s: %w", g.inner.Name(), key, err)
	}
	return nil
}

// Ping implements [Store.Ping].
func (g *Guarded) Ping(ctx context.Context) error {
	_, err := guardedCall(ctx, g, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Ping(ctx)
	})
	return err
}

// Close implements [Store.Close].
func (g *Guarded) Close() error { return g.inner.Close() }

// Name implements [Store.Name].
func (g *Guarded) Name() string { return g.inner.Name() }

func guardedCall[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	start := time.Now()
	call := func() error {
		v, err := withTimeout(ctx, g.timeout, fn)
		out = v
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
	} else {
		err = call()
	}
	if g.metrics != nil {
		g.metrics.RecordStoreOp(ctx, g.inner.Name(), op, time.Since(start), err)
	}
	return out, err
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return r.v, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
