package sweep

import (
	"context"
	"math"
	"testing"

	"github.com/harun/echosweep/pkg/engine"
	"github.com/harun/echosweep/pkg/observable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two bins holding half the sample each, against a unit normal.
const handKL = 0.7257913526447274

func unitReducer() observable.Reducer {
	return observable.Reducer{
		Spread: observable.SpreadFunc(func(int, float64) float64 { return 1 }),
		NBins:  2,
		Graph:  observable.GraphOptions{Transitivity: true},
	}
}

func testAggregator(reps int, mode AggregationMode) Aggregator {
	return Aggregator{
		Base:        baseConfig(4),
		Runner:      Runner{Iterations: 3},
		Reducer:     unitReducer(),
		Repetitions: reps,
		Mode:        mode,
	}
}

func TestMoments(t *testing.T) {
	m := momentsOf([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, m.Mean, 1e-12)
	assert.InDelta(t, 1.25, m.Variance, 1e-12)
	assert.Equal(t, 4, m.N)

	single := momentsOf([]float64{7})
	assert.Equal(t, Moments{Mean: 7, N: 1}, single)

	assert.Equal(t, Moments{}, momentsOf(nil))
}

func TestParseAggregationMode(t *testing.T) {
	m, err := ParseAggregationMode("")
	require.NoError(t, err)
	assert.Equal(t, AggregateSummary, m)

	m, err = ParseAggregationMode("raw")
	require.NoError(t, err)
	assert.Equal(t, AggregateRaw, m)

	_, err = ParseAggregationMode("median")
	assert.Error(t, err)
}

func TestAggregator_SequentialRepetitionsOnOneHandle(t *testing.T) {
	f := &countingFactory{script: fixedScript()}
	h, _ := f.Open(context.Background())
	p := GridPoint{Index: 2, Beta: 1.5, Dist: 0.25}

	result, err := testAggregator(3, AggregateSummary).Aggregate(context.Background(), h, p)
	require.NoError(t, err)

	assert.Equal(t, p, result.Point)
	assert.Equal(t, 3, result.Repetitions)
	assert.Nil(t, result.Runs)
	assert.InDelta(t, handKL, result.Summary.DivergenceEnd.Mean, 1e-9)
	assert.InDelta(t, 0, result.Summary.DivergenceEnd.Variance, 1e-12)
	assert.Equal(t, 3, result.Summary.DivergenceStart.N)

	// every repetition got its own fresh config with the point's coordinates
	require.Len(t, f.configs, 3)
	for _, cfg := range f.configs {
		assert.Equal(t, 1.5, cfg.Beta)
		assert.Equal(t, 0.25, cfg.Dist)
		assert.Equal(t, 4, cfg.Population)
	}
}

func TestAggregator_RawModeKeepsRuns(t *testing.T) {
	s := fixedScript()
	s.edges = []engine.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 0}}
	f := &countingFactory{script: s}
	h, _ := f.Open(context.Background())

	result, err := testAggregator(2, AggregateRaw).Aggregate(context.Background(), h, GridPoint{Beta: 1})
	require.NoError(t, err)

	require.Len(t, result.Runs, 2)
	assert.Equal(t, []int{2, 1, 1}, result.Runs[0].SCCSizes)

	rows := result.RawRows()
	require.Len(t, rows, 2)
	require.Len(t, rows[0], len(RawFields))
	assert.Equal(t, 3.0, rows[0][2])
	assert.Equal(t, 2.0, rows[0][4])

	require.NotNil(t, result.Summary.Components)
	assert.Equal(t, 3.0, result.Summary.Components.SCCCount.Mean)
	assert.Equal(t, 2.0, result.Summary.Components.LargestSCC.Mean)
}

func TestAggregator_FailedRepetitionAbortsPoint(t *testing.T) {
	s := fixedScript()
	s.stepErr = func(engine.RunConfig) error { return errStepFailed }
	f := &countingFactory{script: s}
	h, _ := f.Open(context.Background())

	_, err := testAggregator(3, AggregateSummary).Aggregate(context.Background(), h, GridPoint{Beta: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStepFailed)
	assert.Contains(t, err.Error(), "repetition 0")
	assert.Len(t, f.configs, 1)
}

func TestAggregator_InvalidRepetitions(t *testing.T) {
	f := &countingFactory{script: fixedScript()}
	h, _ := f.Open(context.Background())

	_, err := testAggregator(0, AggregateSummary).Aggregate(context.Background(), h, GridPoint{})
	assert.Error(t, err)
}

func TestSummarize_GraphFailures(t *testing.T) {
	one := 1.0
	runs := []observable.RunResult{
		{DivergenceStart: 1, DivergenceEnd: 2, SCCSizes: []int{3, 1}, WCCSizes: []int{4}, Transitivity: &one},
		{DivergenceStart: 3, DivergenceEnd: 4, GraphError: "graph reduction: unknown agent"},
	}

	s := Summarize(runs)
	assert.Equal(t, 1, s.GraphFailures)
	assert.InDelta(t, 2.0, s.DivergenceStart.Mean, 1e-12)
	assert.InDelta(t, 1.0, s.DivergenceStart.Variance, 1e-12)

	require.NotNil(t, s.Components)
	assert.Equal(t, 1, s.Components.SCCCount.N)
	assert.Equal(t, 2.0, s.Components.SCCCount.Mean)
	assert.Equal(t, 3.0, s.Components.LargestSCC.Mean)
	assert.Nil(t, s.Assortativity)
	require.NotNil(t, s.Transitivity)
	assert.Equal(t, 1.0, s.Transitivity.Mean)
}

func TestSummarize_AllGraphsFailed(t *testing.T) {
	s := Summarize([]observable.RunResult{{GraphError: "x"}})
	assert.Nil(t, s.Components)

	r := AggregateResult{Summary: s}
	row := r.SummaryRow()
	require.Len(t, row, len(SummaryFields))
	assert.True(t, math.IsNaN(row[4]), "missing component counts should be NaN")
}
