package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/echosweep/pkg/engine"
)

// script describes what every stub handle of a factory returns
type script struct {
	mean0, var0    []float64
	mean, variance []float64
	edges          []engine.Edge

	// Optional hooks keyed on the configured run
	setupDelay func(cfg engine.RunConfig) time.Duration
	stepErr    func(cfg engine.RunConfig) error
	stepPanic  bool
}

func fixedScript() *script {
	return &script{
		mean0:    []float64{-1, -1, 1, 1},
		var0:     []float64{1, 1, 1, 1},
		mean:     []float64{-1, -1, 1, 1},
		variance: []float64{1, 1, 1, 1},
	}
}

// stubHandle is a deterministic engine handle that records how it is used
type stubHandle struct {
	factory *countingFactory
	script  *script

	inUse      int32
	cfg        engine.RunConfig
	configured bool
	ready      bool
	steps      int
	closeCalls int32
}

func (h *stubHandle) enter() func() {
	if !atomic.CompareAndSwapInt32(&h.inUse, 0, 1) {
		h.factory.concurrentUse.Store(true)
	}
	return func() { atomic.StoreInt32(&h.inUse, 0) }
}

func (h *stubHandle) Configure(ctx context.Context, cfg engine.RunConfig) error {
	defer h.enter()()
	h.cfg = cfg
	h.configured, h.ready, h.steps = true, false, 0
	h.factory.recordConfig(cfg)
	return nil
}

func (h *stubHandle) Setup(ctx context.Context) error {
	defer h.enter()()
	if !h.configured {
		return engine.ErrNotConfigured
	}
	if h.script.setupDelay != nil {
		select {
		case <-time.After(h.script.setupDelay(h.cfg)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.ready = true
	return nil
}

func (h *stubHandle) Step(ctx context.Context) error {
	defer h.enter()()
	if !h.ready {
		return engine.ErrNotSetUp
	}
	if h.script.stepPanic {
		panic("engine exploded")
	}
	if h.script.stepErr != nil {
		if err := h.script.stepErr(h.cfg); err != nil {
			return err
		}
	}
	h.steps++
	return nil
}

func (h *stubHandle) Query(ctx context.Context, name string) ([]float64, error) {
	defer h.enter()()
	if !h.ready {
		return nil, engine.ErrNotSetUp
	}
	switch name {
	case engine.QueryInitialMean:
		return h.script.mean0, nil
	case engine.QueryInitialVariance:
		return h.script.var0, nil
	case engine.QueryMean:
		return h.script.mean, nil
	case engine.QueryVariance:
		return h.script.variance, nil
	}
	return nil, engine.ErrUnknownQuery
}

func (h *stubHandle) Edges(ctx context.Context) ([]engine.Edge, error) {
	defer h.enter()()
	return h.script.edges, nil
}

func (h *stubHandle) Close() error {
	atomic.AddInt32(&h.closeCalls, 1)
	h.factory.mu.Lock()
	h.factory.closed++
	h.factory.mu.Unlock()
	return nil
}

// countingFactory hands out stub handles and counts their lifecycle
type countingFactory struct {
	script *script

	mu            sync.Mutex
	opened        int
	closed        int
	handles       []*stubHandle
	configs       []engine.RunConfig
	openErr       error
	concurrentUse atomic.Bool
}

func (f *countingFactory) Open(ctx context.Context) (engine.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	h := &stubHandle{factory: f, script: f.script}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *countingFactory) recordConfig(cfg engine.RunConfig) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.mu.Unlock()
}

func (f *countingFactory) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

var errStepFailed = errors.New("step failed")

func baseConfig(n int) engine.RunConfig {
	return engine.RunConfig{
		Population:      n,
		NetworkType:     "scale-free",
		InitialSampling: "bivariate",
		Density:         0.01,
		TrueVariance:    1,
		Precision:       10,
	}
}
