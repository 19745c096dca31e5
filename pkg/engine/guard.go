package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Guard wraps a Handle with the contract the sweep relies on:
//   - every failure surfaces as a ProtocolError naming the operation
//   - each call is bounded by timeout (when positive); overruns are fatal
//   - Query replies must hold exactly one value per configured agent
//   - Close releases the inner handle at most once; later calls fail fatally
type Guard struct {
	inner   Handle
	timeout time.Duration

	mu         sync.Mutex
	population int
	closed     bool
	closeOnce  sync.Once
	closeErr   error
}

// NewGuard wraps h. A zero timeout leaves calls unbounded.
func NewGuard(h Handle, timeout time.Duration) *Guard {
	return &Guard{inner: h, timeout: timeout}
}

// Configure validates cfg and forwards it to the engine.
func (g *Guard) Configure(ctx context.Context, cfg RunConfig) error {
	if err := cfg.Validate(); err != nil {
		return &ProtocolError{Op: "configure", Err: err}
	}
	err := g.call(ctx, "configure", func(ctx context.Context) error {
		return g.inner.Configure(ctx, cfg)
	})
	if err == nil {
		g.mu.Lock()
		g.population = cfg.Population
		g.mu.Unlock()
	}
	return err
}

// Setup forwards to the engine.
func (g *Guard) Setup(ctx context.Context) error {
	return g.call(ctx, "setup", g.inner.Setup)
}

// Step forwards to the engine.
func (g *Guard) Step(ctx context.Context) error {
	return g.call(ctx, "step", g.inner.Step)
}

// Query forwards to the engine and checks the reply length.
func (g *Guard) Query(ctx context.Context, name string) ([]float64, error) {
	var values []float64
	op := "query " + name
	err := g.call(ctx, op, func(ctx context.Context) error {
		var err error
		values, err = g.inner.Query(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	want := g.population
	g.mu.Unlock()
	if want > 0 && len(values) != want {
		return nil, &ProtocolError{
			Op:  op,
			Err: fmt.Errorf("%w: got %d values for %d agents", ErrMalformedReply, len(values), want),
		}
	}
	return values, nil
}

// Edges forwards to the engine.
func (g *Guard) Edges(ctx context.Context) ([]Edge, error) {
	var edges []Edge
	err := g.call(ctx, "edges", func(ctx context.Context) error {
		var err error
		edges, err = g.inner.Edges(ctx)
		return err
	})
	return edges, err
}

// Close releases the inner handle exactly once.
func (g *Guard) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()
		g.closeErr = g.inner.Close()
	})
	return g.closeErr
}

// call runs fn under the per-call deadline. The inner call runs on its own
// goroutine so an engine that ignores ctx still cannot stall the caller past
// the deadline; after an overrun the handle is only fit to be closed.
func (g *Guard) call(ctx context.Context, op string, fn func(context.Context) error) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return wrapErr(op, ErrHandleClosed)
	}
	if err := ctx.Err(); err != nil {
		return wrapErr(op, err)
	}

	if g.timeout <= 0 {
		return wrapErr(op, fn(ctx))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return wrapErr(op, fmt.Errorf("%w after %s: %v", ErrCallTimeout, g.timeout, err))
		}
		return wrapErr(op, err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return wrapErr(op, ctx.Err())
		}
		return wrapErr(op, fmt.Errorf("%w after %s", ErrCallTimeout, g.timeout))
	}
}
