package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/echosweep/internal/tracing"
	"github.com/harun/echosweep/pkg/engine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const tracerName = "echosweep/sweep"

// Worker retirement reasons reported to the Recorder.
const (
	RetireAcquire  = "acquire"
	RetireFatal    = "fatal"
	RetireFailures = "consecutive_failures"
	RetirePanic    = "panic"
)

// WorkerPool processes grid points on a fixed set of workers. Each worker
// owns one engine handle for its whole life: it is opened before the first
// grid point and closed exactly once when the worker exits, however it exits.
type WorkerPool struct {
	factory     engine.Factory
	aggregator  Aggregator
	workers     int
	maxFailures int
	logger      zerolog.Logger
	recorder    Recorder
	progress    func(Progress)
}

// Progress reports one grid point reaching its final state: either Result
// or Failure is set.
type Progress struct {
	Point   GridPoint
	Result  *AggregateResult
	Failure *GridFailure
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithWorkers sets the number of workers. It is capped at the number of
// grid points of a run.
func WithWorkers(n int) Option {
	return func(p *WorkerPool) {
		p.workers = n
	}
}

// WithMaxConsecutiveFailures retires a worker after n failed grid points in
// a row. Zero disables the limit.
func WithMaxConsecutiveFailures(n int) Option {
	return func(p *WorkerPool) {
		p.maxFailures = n
	}
}

// WithLogger sets the pool logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// WithRecorder sets the activity recorder
func WithRecorder(r Recorder) Option {
	return func(p *WorkerPool) {
		p.recorder = r
	}
}

// WithProgress registers fn to be called from the collecting goroutine as
// grid points finish, in completion order
func WithProgress(fn func(Progress)) Option {
	return func(p *WorkerPool) {
		p.progress = fn
	}
}

// NewWorkerPool creates a pool whose workers acquire handles from factory
// and process grid points with agg.
func NewWorkerPool(factory engine.Factory, agg Aggregator, opts ...Option) *WorkerPool {
	p := &WorkerPool{
		factory:    factory,
		aggregator: agg,
		workers:    1,
		logger:     log.Logger,
		recorder:   NopRecorder{},
		progress:   func(Progress) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	p.logger = p.logger.With().Str("component", "sweep").Logger()
	if p.aggregator.Recorder == nil {
		p.aggregator.Recorder = p.recorder
	}
	return p
}

// outcome is what a worker reports for one grid point
type outcome struct {
	point  GridPoint
	result AggregateResult
	err    error
	kind   FailureKind
}

// Run processes the grid points at the given indices, or the whole grid
// when only is empty, and blocks until every one of them has a result or a
// failure. Grid points outside the selection are reported incomplete.
//
// Run only returns an error for an invalid selection; per-point failures are
// reported in the tensor.
func (p *WorkerPool) Run(ctx context.Context, grid *ParameterGrid, only []int) (*ResultTensor, error) {
	points, err := grid.Select(only)
	if err != nil {
		return nil, err
	}

	asm := NewAssembler(grid)
	if len(only) > 0 {
		selected := make(map[int]bool, len(points))
		for _, pt := range points {
			selected[pt.Index] = true
		}
		for _, pt := range grid.Points() {
			if !selected[pt.Index] {
				p.fail(asm, pt, FailureIncomplete, "not selected")
			}
		}
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "sweep.run",
		attribute.Int("sweep.points", len(points)),
		attribute.Int("sweep.repetitions", p.aggregator.Repetitions),
	)
	defer span.End()

	workers := p.workers
	if workers > len(points) {
		workers = len(points)
	}

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Info().
		Int("points", len(points)).
		Int("workers", workers).
		Int("repetitions", p.aggregator.Repetitions).
		Msg("Sweep started")
	start := time.Now()

	tasks := make(chan GridPoint)
	outcomes := make(chan outcome, len(points))
	workersDone := make(chan struct{})
	feederDone := make(chan struct{})

	go func() {
		defer close(feederDone)
		defer close(tasks)
		for _, pt := range points {
			select {
			case tasks <- pt:
			case <-ctx.Done():
				return
			case <-workersDone:
				return
			}
		}
	}()

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			p.collect(asm, o)
		}
	}()

	var g errgroup.Group
	for id := 0; id < workers; id++ {
		g.Go(func() error {
			p.worker(tracing.WithWorkerID(ctx, id), tasks, outcomes)
			return nil
		})
	}
	_ = g.Wait()
	close(workersDone)
	<-feederDone
	close(outcomes)
	<-collected

	reason := "no worker left to process it"
	if ctx.Err() != nil {
		reason = "sweep cancelled"
	}
	for _, pt := range points {
		if !asm.Has(pt.Index) {
			p.fail(asm, pt, FailureIncomplete, reason)
			p.recorder.PointFinished(StatusIncomplete)
		}
	}

	tensor := asm.Tensor()
	if !tensor.Complete() {
		span.SetAttributes(attribute.Int("sweep.failures", len(tensor.Failures)))
	}
	logger.Info().
		Dur("duration", time.Since(start)).
		Int("failed", len(tensor.FailuresOf(FailureFailed))).
		Int("incomplete", len(tensor.FailuresOf(FailureIncomplete))).
		Msg("Sweep finished")

	return tensor, nil
}

func (p *WorkerPool) collect(asm *Assembler, o outcome) {
	if o.err != nil {
		p.fail(asm, o.point, o.kind, o.err.Error())
		p.recorder.PointFinished(string(o.kind))
		return
	}
	if err := asm.Put(o.result); err != nil {
		p.logger.Error().Err(err).Int("grid_index", o.point.Index).Msg("Result rejected")
		p.fail(asm, o.point, FailureFailed, err.Error())
		p.recorder.PointFinished(StatusFailed)
		return
	}
	result := o.result
	p.progress(Progress{Point: o.point, Result: &result})
	p.recorder.PointFinished(StatusOK)
}

func (p *WorkerPool) fail(asm *Assembler, pt GridPoint, kind FailureKind, reason string) {
	if err := asm.Fail(pt, kind, reason); err != nil {
		p.logger.Error().Err(err).Int("grid_index", pt.Index).Msg("Failure rejected")
		return
	}
	p.progress(Progress{Point: pt, Failure: &GridFailure{Index: pt.Index, Point: pt, Kind: kind, Reason: reason}})
}

// worker acquires a handle, processes tasks until there are none left or it
// has to retire, and releases the handle on every exit path.
func (p *WorkerPool) worker(ctx context.Context, tasks <-chan GridPoint, out chan<- outcome) {
	logger := tracing.LoggerFromContext(ctx, p.logger)

	h, err := p.factory.Open(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acquire engine handle, worker retiring")
		p.recorder.WorkerRetired(RetireAcquire)
		return
	}
	p.recorder.HandleOpened()
	logger.Debug().Msg("Engine handle acquired")

	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close engine handle")
		}
		p.recorder.HandleClosed()
		logger.Debug().Msg("Engine handle released")
	}()

	var current *GridPoint
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Worker panicked, retiring")
			if current != nil {
				out <- outcome{point: *current, err: fmt.Errorf("worker panic: %v", r), kind: FailureFailed}
			}
			p.recorder.WorkerRetired(RetirePanic)
		}
	}()

	consecutive := 0
	for {
		var pt GridPoint
		select {
		case <-ctx.Done():
			return
		case next, ok := <-tasks:
			if !ok {
				return
			}
			pt = next
		}

		current = &pt
		result, err := p.process(ctx, h, pt)
		current = nil

		if err == nil {
			consecutive = 0
			out <- outcome{point: pt, result: result}
			continue
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			out <- outcome{point: pt, err: err, kind: FailureIncomplete}
			return
		}
		out <- outcome{point: pt, err: err, kind: FailureFailed}

		if engine.IsFatal(err) {
			logger.Error().Err(err).Msg("Engine handle unusable, worker retiring")
			p.recorder.WorkerRetired(RetireFatal)
			return
		}
		consecutive++
		if p.maxFailures > 0 && consecutive >= p.maxFailures {
			logger.Error().Int("failures", consecutive).Msg("Too many consecutive failures, worker retiring")
			p.recorder.WorkerRetired(RetireFailures)
			return
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, h engine.Handle, pt GridPoint) (AggregateResult, error) {
	ctx = tracing.WithGridIndex(ctx, pt.Index)
	ctx, span := tracing.StartSpan(ctx, tracerName, "sweep.gridpoint",
		attribute.Float64("sweep.beta", pt.Beta),
		attribute.Float64("sweep.dist", pt.Dist),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)
	start := time.Now()

	result, err := p.aggregator.Aggregate(ctx, h, pt)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Warn().Err(err).Float64("beta", pt.Beta).Float64("dist", pt.Dist).Msg("Grid point failed")
		return AggregateResult{}, err
	}

	logger.Debug().
		Float64("beta", pt.Beta).
		Float64("dist", pt.Dist).
		Dur("duration", time.Since(start)).
		Float64("divergence_end", result.Summary.DivergenceEnd.Mean).
		Msg("Grid point done")
	return result, nil
}
