package sweep

import (
	"context"
	"fmt"

	"github.com/harun/echosweep/pkg/engine"
)

// Trajectory is the ordered list of snapshots captured during one run. It
// always starts at tick 0 and ends at the final tick.
type Trajectory []engine.Snapshot

// First returns the tick 0 snapshot.
func (t Trajectory) First() engine.Snapshot {
	return t[0]
}

// Last returns the final snapshot.
func (t Trajectory) Last() engine.Snapshot {
	return t[len(t)-1]
}

// Runner executes single runs on an engine handle. It holds no state between
// runs; each Run is a full configure/setup cycle.
type Runner struct {
	Iterations int

	// CheckpointStride captures an intermediate snapshot at every multiple
	// of the stride; zero captures only the first and last ticks.
	CheckpointStride int
}

// Run configures the engine with cfg, advances it Iterations ticks and
// returns the captured snapshots. Any engine failure aborts the run.
func (r Runner) Run(ctx context.Context, h engine.Handle, cfg engine.RunConfig) (Trajectory, error) {
	if r.Iterations < 0 {
		return nil, fmt.Errorf("iterations must not be negative, got %d", r.Iterations)
	}

	if err := h.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	if err := h.Setup(ctx); err != nil {
		return nil, err
	}

	trajectory := make(Trajectory, 0, 2+r.checkpoints())

	first, err := capture(ctx, h, 0, engine.QueryInitialMean, engine.QueryInitialVariance)
	if err != nil {
		return nil, fmt.Errorf("tick 0: %w", err)
	}
	trajectory = append(trajectory, first)

	for t := 1; t <= r.Iterations; t++ {
		if err := h.Step(ctx); err != nil {
			return nil, fmt.Errorf("tick %d: %w", t, err)
		}
		if t == r.Iterations || r.CheckpointStride <= 0 || t%r.CheckpointStride != 0 {
			continue
		}
		snap, err := capture(ctx, h, t, engine.QueryMean, engine.QueryVariance)
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", t, err)
		}
		trajectory = append(trajectory, snap)
	}

	last, err := capture(ctx, h, r.Iterations, engine.QueryMean, engine.QueryVariance)
	if err != nil {
		return nil, fmt.Errorf("tick %d: %w", r.Iterations, err)
	}
	return append(trajectory, last), nil
}

func (r Runner) checkpoints() int {
	if r.CheckpointStride <= 0 {
		return 0
	}
	return r.Iterations / r.CheckpointStride
}

func capture(ctx context.Context, h engine.Handle, tick int, meanQuery, varQuery string) (engine.Snapshot, error) {
	mean, err := h.Query(ctx, meanQuery)
	if err != nil {
		return engine.Snapshot{}, err
	}
	variance, err := h.Query(ctx, varQuery)
	if err != nil {
		return engine.Snapshot{}, err
	}
	edges, err := h.Edges(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return engine.Snapshot{Tick: tick, Mean: mean, Variance: variance, Edges: edges}, nil
}
