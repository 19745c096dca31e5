package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/echosweep/internal/tracing"
	"github.com/harun/echosweep/pkg/engine"
	"github.com/harun/echosweep/pkg/observable"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/stat"
)

// AggregationMode selects what an AggregateResult keeps of its repetitions.
type AggregationMode string

const (
	// AggregateSummary keeps mean/variance pairs only
	AggregateSummary AggregationMode = "summary"
	// AggregateRaw additionally keeps every repetition's RunResult
	AggregateRaw AggregationMode = "raw"
)

// ParseAggregationMode parses a configured aggregation mode. Empty means summary.
func ParseAggregationMode(s string) (AggregationMode, error) {
	switch AggregationMode(s) {
	case AggregateSummary, "":
		return AggregateSummary, nil
	case AggregateRaw:
		return AggregateRaw, nil
	}
	return "", fmt.Errorf("unknown aggregation mode: %s", s)
}

// Moments is the mean and population variance of N values.
type Moments struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	N        int     `json:"n"`
}

func momentsOf(xs []float64) Moments {
	switch len(xs) {
	case 0:
		return Moments{}
	case 1:
		return Moments{Mean: xs[0], N: 1}
	}
	mean, variance := stat.MeanVariance(xs, nil)
	n := float64(len(xs))
	return Moments{Mean: mean, Variance: variance * (n - 1) / n, N: len(xs)}
}

// ComponentSummary reduces the component size lists of the repetitions
// whose graph metrics succeeded.
type ComponentSummary struct {
	SCCCount   Moments `json:"scc_count"`
	WCCCount   Moments `json:"wcc_count"`
	LargestSCC Moments `json:"largest_scc"`
	LargestWCC Moments `json:"largest_wcc"`
}

// Summary is the point estimate of a grid point over its repetitions.
type Summary struct {
	DivergenceStart Moments           `json:"divergence_start"`
	DivergenceEnd   Moments           `json:"divergence_end"`
	Components      *ComponentSummary `json:"components,omitempty"`
	Assortativity   *Moments          `json:"assortativity,omitempty"`
	Transitivity    *Moments          `json:"transitivity,omitempty"`

	// GraphFailures counts repetitions without graph metrics
	GraphFailures int `json:"graph_failures"`
}

// AggregateResult is the reduction of all repetitions of one grid point.
type AggregateResult struct {
	Point       GridPoint       `json:"point"`
	Repetitions int             `json:"repetitions"`
	Mode        AggregationMode `json:"mode"`
	Summary     Summary         `json:"summary"`

	// Runs is set in raw mode, one entry per repetition in run order
	Runs []observable.RunResult `json:"runs,omitempty"`
}

// Summarize reduces repetition results to a Summary.
func Summarize(runs []observable.RunResult) Summary {
	var (
		dvStart, dvEnd         []float64
		sccCount, wccCount     []float64
		largestSCC, largestWCC []float64
		assort, trans          []float64
		graphFailures          int
	)

	for _, r := range runs {
		dvStart = append(dvStart, r.DivergenceStart)
		dvEnd = append(dvEnd, r.DivergenceEnd)
		if r.GraphFailed() {
			graphFailures++
			continue
		}
		sccCount = append(sccCount, float64(len(r.SCCSizes)))
		wccCount = append(wccCount, float64(len(r.WCCSizes)))
		largestSCC = append(largestSCC, float64(largest(r.SCCSizes)))
		largestWCC = append(largestWCC, float64(largest(r.WCCSizes)))
		if r.Assortativity != nil {
			assort = append(assort, *r.Assortativity)
		}
		if r.Transitivity != nil {
			trans = append(trans, *r.Transitivity)
		}
	}

	s := Summary{
		DivergenceStart: momentsOf(dvStart),
		DivergenceEnd:   momentsOf(dvEnd),
		GraphFailures:   graphFailures,
	}
	if len(sccCount) > 0 {
		s.Components = &ComponentSummary{
			SCCCount:   momentsOf(sccCount),
			WCCCount:   momentsOf(wccCount),
			LargestSCC: momentsOf(largestSCC),
			LargestWCC: momentsOf(largestWCC),
		}
	}
	if len(assort) > 0 {
		m := momentsOf(assort)
		s.Assortativity = &m
	}
	if len(trans) > 0 {
		m := momentsOf(trans)
		s.Transitivity = &m
	}
	return s
}

// sizes are sorted descending
func largest(sizes []int) int {
	if len(sizes) == 0 {
		return 0
	}
	return sizes[0]
}

// Aggregator runs every repetition of a grid point on one engine handle and
// reduces them to an AggregateResult.
type Aggregator struct {
	// Base holds everything but the grid coordinates
	Base engine.RunConfig

	Runner      Runner
	Reducer     observable.Reducer
	Repetitions int
	Mode        AggregationMode

	// Recorder observes individual runs; nil disables recording
	Recorder Recorder
}

// Aggregate runs the repetitions of p sequentially on h. The first failed
// repetition aborts the grid point.
func (a Aggregator) Aggregate(ctx context.Context, h engine.Handle, p GridPoint) (AggregateResult, error) {
	if a.Repetitions < 1 {
		return AggregateResult{}, fmt.Errorf("repetitions must be at least 1, got %d", a.Repetitions)
	}
	recorder := a.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}

	runs := make([]observable.RunResult, 0, a.Repetitions)
	for rep := 0; rep < a.Repetitions; rep++ {
		start := time.Now()
		result, err := a.repetition(ctx, h, p, rep)
		recorder.RunFinished(time.Since(start), err)
		if err != nil {
			return AggregateResult{}, fmt.Errorf("repetition %d: %w", rep, err)
		}
		runs = append(runs, result)
	}

	out := AggregateResult{
		Point:       p,
		Repetitions: a.Repetitions,
		Mode:        a.Mode,
		Summary:     Summarize(runs),
	}
	if a.Mode == AggregateRaw {
		out.Runs = runs
	}
	return out, nil
}

func (a Aggregator) repetition(ctx context.Context, h engine.Handle, p GridPoint, rep int) (observable.RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "sweep.repetition",
		attribute.Int("sweep.repetition", rep),
	)
	defer span.End()

	// A fresh value per run; nothing carries over from the previous one.
	cfg := a.Base.WithPoint(p.Beta, p.Dist)

	trajectory, err := a.Runner.Run(ctx, h, cfg)
	if err != nil {
		tracing.RecordError(span, err)
		return observable.RunResult{}, err
	}

	result, err := a.Reducer.Reduce(trajectory, p.Beta, p.Dist, a.Runner.Iterations)
	if err != nil {
		tracing.RecordError(span, err)
		return observable.RunResult{}, err
	}
	return result, nil
}
