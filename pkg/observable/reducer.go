package observable

import (
	"fmt"

	"github.com/harun/echosweep/pkg/engine"
)

// RunResult is the reduction of a single run.
type RunResult struct {
	DivergenceStart float64 `json:"divergence_start"`
	DivergenceEnd   float64 `json:"divergence_end"`

	SCCSizes      []int    `json:"scc_sizes"`
	WCCSizes      []int    `json:"wcc_sizes"`
	Assortativity *float64 `json:"assortativity,omitempty"`
	Transitivity  *float64 `json:"transitivity,omitempty"`

	// GraphError is set instead of the graph metrics when the final
	// network could not be reduced.
	GraphError string `json:"graph_error,omitempty"`

	// Trace holds the divergence at every captured checkpoint when enabled.
	Trace []TracePoint `json:"trace,omitempty"`
}

// TracePoint is the divergence of one checkpoint snapshot.
type TracePoint struct {
	Tick       int     `json:"tick"`
	Divergence float64 `json:"divergence"`
}

// GraphFailed reports whether the graph metrics are missing.
func (r RunResult) GraphFailed() bool {
	return r.GraphError != ""
}

// Reducer turns a run trajectory into a RunResult.
type Reducer struct {
	Spread SpreadModel

	// NBins is the histogram bin count; zero picks DefaultBins of the population
	NBins int

	Graph GraphOptions

	// Trace computes the divergence at every snapshot, not only the ends
	Trace bool
}

// Reduce compares the first and last snapshots of trajectory against the
// spread expected at tick 0 and at iterations, and analyses the last
// snapshot's network pruned at beta.
//
// A divergence failure fails the reduction. A graph failure only drops the
// graph metrics and is reported through GraphError.
func (r Reducer) Reduce(trajectory []engine.Snapshot, beta, dist float64, iterations int) (RunResult, error) {
	if len(trajectory) == 0 {
		return RunResult{}, ErrEmptyTrajectory
	}
	if r.Spread == nil {
		return RunResult{}, fmt.Errorf("reducer has no spread model")
	}
	first, last := trajectory[0], trajectory[len(trajectory)-1]

	var (
		result RunResult
		err    error
	)
	result.DivergenceStart, err = r.divergence(first.Mean, 0, dist)
	if err != nil {
		return RunResult{}, fmt.Errorf("divergence at start: %w", err)
	}
	result.DivergenceEnd, err = r.divergence(last.Mean, iterations, dist)
	if err != nil {
		return RunResult{}, fmt.Errorf("divergence at end: %w", err)
	}

	if r.Trace {
		result.Trace = make([]TracePoint, 0, len(trajectory))
		for _, snap := range trajectory {
			dv, err := r.divergence(snap.Mean, snap.Tick, dist)
			if err != nil {
				return RunResult{}, fmt.Errorf("divergence at tick %d: %w", snap.Tick, err)
			}
			result.Trace = append(result.Trace, TracePoint{Tick: snap.Tick, Divergence: dv})
		}
	}

	conn, err := Analyze(last, beta, r.Graph)
	if err != nil {
		result.GraphError = err.Error()
		return result, nil
	}
	result.SCCSizes = conn.SCCSizes
	result.WCCSizes = conn.WCCSizes
	result.Assortativity = conn.Assortativity
	result.Transitivity = conn.Transitivity
	return result, nil
}

func (r Reducer) divergence(x []float64, t int, dist float64) (float64, error) {
	nbins := r.NBins
	if nbins <= 0 {
		nbins = DefaultBins(len(x))
	}
	return GaussianDivergence(x, r.Spread.ExpectedSpread(t, dist), nbins)
}
