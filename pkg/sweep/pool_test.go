package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/echosweep/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRecorder tallies Recorder calls
type countingRecorder struct {
	mu      sync.Mutex
	opened  int
	closed  int
	retired []string
	runs    int
	points  map[string]int
}

func (r *countingRecorder) HandleOpened() { r.mu.Lock(); r.opened++; r.mu.Unlock() }
func (r *countingRecorder) HandleClosed() { r.mu.Lock(); r.closed++; r.mu.Unlock() }

func (r *countingRecorder) WorkerRetired(reason string) {
	r.mu.Lock()
	r.retired = append(r.retired, reason)
	r.mu.Unlock()
}

func (r *countingRecorder) RunFinished(time.Duration, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
}

func (r *countingRecorder) PointFinished(status string) {
	r.mu.Lock()
	if r.points == nil {
		r.points = map[string]int{}
	}
	r.points[status]++
	r.mu.Unlock()
}

func newTestPool(f engine.Factory, agg Aggregator, opts ...Option) *WorkerPool {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewWorkerPool(f, agg, opts...)
}

func twoByTwo(t *testing.T) *ParameterGrid {
	t.Helper()
	grid, err := NewParameterGrid(Axis{Start: 1, Stop: 2, Num: 2}, Axis{Start: 0, Stop: 1, Num: 2})
	require.NoError(t, err)
	return grid
}

func TestWorkerPool_EndToEnd(t *testing.T) {
	f := &countingFactory{script: fixedScript()}
	pool := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2))

	tensor, err := pool.Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	require.Equal(t, 4, tensor.Len())
	assert.True(t, tensor.Complete())
	for i, r := range tensor.Results {
		require.NotNil(t, r)
		assert.Equal(t, i, r.Point.Index)
		assert.InDelta(t, handKL, r.Summary.DivergenceStart.Mean, 1e-9)
		assert.InDelta(t, handKL, r.Summary.DivergenceEnd.Mean, 1e-9)
	}
}

func TestWorkerPool_PrunedBidirectionalEdge(t *testing.T) {
	s := &script{
		mean0:    []float64{-2, 2},
		var0:     []float64{1, 1},
		mean:     []float64{-2, 2},
		variance: []float64{1, 1},
		edges:    []engine.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 0}},
	}
	f := &countingFactory{script: s}
	agg := testAggregator(1, AggregateRaw)
	agg.Base = baseConfig(2)

	grid, err := NewParameterGrid(Axis{Start: 1, Stop: 1, Num: 1}, Axis{Start: 0, Stop: 0, Num: 1})
	require.NoError(t, err)

	tensor, err := newTestPool(f, agg).Run(context.Background(), grid, nil)
	require.NoError(t, err)
	require.True(t, tensor.Complete())

	run := tensor.Results[0].Runs[0]
	assert.Equal(t, []int{1, 1}, run.SCCSizes)
	assert.Equal(t, []int{1, 1}, run.WCCSizes)
}

func TestWorkerPool_OutOfOrderCompletion(t *testing.T) {
	s := fixedScript()
	// Later grid points finish first.
	s.setupDelay = func(cfg engine.RunConfig) time.Duration {
		order := cfg.Beta*2 + cfg.Dist // 2, 3, 4, 5 for the 2x2 grid
		return time.Duration(6-order) * 15 * time.Millisecond
	}
	f := &countingFactory{script: s}

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(4)).
		Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	require.True(t, tensor.Complete())
	for i, r := range tensor.Results {
		assert.Equal(t, tensor.Points[i], r.Point)
	}
}

func TestWorkerPool_HandleLifecycle(t *testing.T) {
	grid, err := NewParameterGrid(Axis{Start: 0, Stop: 4, Num: 5}, Axis{Start: 0, Stop: 0, Num: 1})
	require.NoError(t, err)

	f := &countingFactory{script: fixedScript()}
	rec := &countingRecorder{}
	pool := newTestPool(f, testAggregator(2, AggregateSummary), WithWorkers(2), WithRecorder(rec))

	tensor, err := pool.Run(context.Background(), grid, nil)
	require.NoError(t, err)
	assert.True(t, tensor.Complete())

	opened, closed := f.counts()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
	for _, h := range f.handles {
		assert.EqualValues(t, 1, h.closeCalls)
	}
	assert.False(t, f.concurrentUse.Load(), "a handle was used concurrently")
	assert.Len(t, f.configs, 10)

	assert.Equal(t, 2, rec.opened)
	assert.Equal(t, 2, rec.closed)
	assert.Equal(t, 10, rec.runs)
	assert.Equal(t, 5, rec.points[StatusOK])
}

func TestWorkerPool_WorkersCappedAtPoints(t *testing.T) {
	f := &countingFactory{script: fixedScript()}
	pool := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(16))

	_, err := pool.Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	opened, closed := f.counts()
	assert.Equal(t, 4, opened)
	assert.Equal(t, 4, closed)
}

func TestWorkerPool_FatalErrorRetiresWorker(t *testing.T) {
	s := fixedScript()
	s.stepErr = func(engine.RunConfig) error {
		return &engine.ProtocolError{Op: "step", Err: engine.ErrCallTimeout, Fatal: true}
	}
	f := &countingFactory{script: s}
	rec := &countingRecorder{}
	pool := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(1), WithRecorder(rec))

	tensor, err := pool.Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	failed := tensor.FailuresOf(FailureFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].Index)
	assert.Contains(t, failed[0].Reason, "fatal")

	incomplete := tensor.FailuresOf(FailureIncomplete)
	require.Len(t, incomplete, 3)
	for _, f := range incomplete {
		assert.Equal(t, "no worker left to process it", f.Reason)
	}

	opened, closed := f.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, []string{RetireFatal}, rec.retired)
}

func TestWorkerPool_FailedPointDoesNotStopOthers(t *testing.T) {
	s := fixedScript()
	s.stepErr = func(cfg engine.RunConfig) error {
		if cfg.Beta == 2 && cfg.Dist == 1 {
			return &engine.ProtocolError{Op: "step", Err: errStepFailed}
		}
		return nil
	}
	f := &countingFactory{script: s}

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2)).
		Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	require.Len(t, tensor.Failures, 1)
	assert.Equal(t, 3, tensor.Failures[0].Index)
	assert.Equal(t, FailureFailed, tensor.Failures[0].Kind)
	for i := 0; i < 3; i++ {
		assert.NotNil(t, tensor.Results[i])
	}
}

func TestWorkerPool_ConsecutiveFailureBudget(t *testing.T) {
	s := fixedScript()
	s.stepErr = func(engine.RunConfig) error { return &engine.ProtocolError{Op: "step", Err: errStepFailed} }
	f := &countingFactory{script: s}
	rec := &countingRecorder{}

	pool := newTestPool(f, testAggregator(1, AggregateSummary),
		WithWorkers(1), WithMaxConsecutiveFailures(2), WithRecorder(rec))

	tensor, err := pool.Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	assert.Len(t, tensor.FailuresOf(FailureFailed), 2)
	assert.Len(t, tensor.FailuresOf(FailureIncomplete), 2)
	assert.Equal(t, []string{RetireFailures}, rec.retired)
}

func TestWorkerPool_PanicReleasesHandle(t *testing.T) {
	s := fixedScript()
	s.stepPanic = true
	f := &countingFactory{script: s}
	rec := &countingRecorder{}

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2), WithRecorder(rec)).
		Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	opened, closed := f.counts()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)

	failed := tensor.FailuresOf(FailureFailed)
	assert.Len(t, failed, 2)
	for _, f := range failed {
		assert.Contains(t, f.Reason, "panic")
	}
	assert.Len(t, tensor.FailuresOf(FailureIncomplete), 2)
	assert.Equal(t, []string{RetirePanic, RetirePanic}, rec.retired)
}

func TestWorkerPool_AcquireFailure(t *testing.T) {
	f := &countingFactory{script: fixedScript(), openErr: errors.New("no engine")}
	rec := &countingRecorder{}

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2), WithRecorder(rec)).
		Run(context.Background(), twoByTwo(t), nil)
	require.NoError(t, err)

	assert.Len(t, tensor.FailuresOf(FailureIncomplete), 4)
	assert.Equal(t, 0, rec.opened)
	assert.Len(t, rec.retired, 2)
}

func TestWorkerPool_Cancellation(t *testing.T) {
	s := fixedScript()
	s.setupDelay = func(engine.RunConfig) time.Duration { return time.Hour }
	f := &countingFactory{script: s}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2)).
		Run(ctx, twoByTwo(t), nil)
	require.NoError(t, err)

	incomplete := tensor.FailuresOf(FailureIncomplete)
	assert.Len(t, incomplete, 4)
	assert.Empty(t, tensor.FailuresOf(FailureFailed))

	opened, closed := f.counts()
	assert.Equal(t, opened, closed)
}

func TestWorkerPool_OnlySelected(t *testing.T) {
	f := &countingFactory{script: fixedScript()}

	tensor, err := newTestPool(f, testAggregator(1, AggregateSummary), WithWorkers(2)).
		Run(context.Background(), twoByTwo(t), []int{1, 3})
	require.NoError(t, err)

	assert.NotNil(t, tensor.Results[1])
	assert.NotNil(t, tensor.Results[3])
	assert.Nil(t, tensor.Results[0])

	incomplete := tensor.FailuresOf(FailureIncomplete)
	require.Len(t, incomplete, 2)
	assert.Equal(t, "not selected", incomplete[0].Reason)
	assert.Len(t, f.configs, 2)
}

func TestWorkerPool_ProgressReportsEveryPoint(t *testing.T) {
	s := fixedScript()
	s.stepErr = func(cfg engine.RunConfig) error {
		if cfg.Beta == 1 && cfg.Dist == 1 {
			return &engine.ProtocolError{Op: "step", Err: errStepFailed}
		}
		return nil
	}
	f := &countingFactory{script: s}

	seen := map[int]Progress{}
	pool := newTestPool(f, testAggregator(1, AggregateSummary),
		WithWorkers(2),
		WithProgress(func(p Progress) { seen[p.Point.Index] = p }),
	)

	_, err := pool.Run(context.Background(), twoByTwo(t), []int{0, 1, 2})
	require.NoError(t, err)

	require.Len(t, seen, 4)
	assert.NotNil(t, seen[0].Result)
	assert.NotNil(t, seen[2].Result)
	require.NotNil(t, seen[1].Failure)
	assert.Equal(t, FailureFailed, seen[1].Failure.Kind)
	require.NotNil(t, seen[3].Failure)
	assert.Equal(t, "not selected", seen[3].Failure.Reason)
}

func TestWorkerPool_InvalidSelection(t *testing.T) {
	f := &countingFactory{script: fixedScript()}

	_, err := newTestPool(f, testAggregator(1, AggregateSummary)).
		Run(context.Background(), twoByTwo(t), []int{4})
	assert.Error(t, err)

	opened, _ := f.counts()
	assert.Equal(t, 0, opened)
}
