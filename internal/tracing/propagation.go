package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.SweepID != "" {
		lc = lc.Str("sweep_id", tc.SweepID)
	}
	if tc.WorkerID >= 0 {
		lc = lc.Int("worker_id", tc.WorkerID)
	}
	if tc.GridIndex >= 0 {
		lc = lc.Int("grid_index", tc.GridIndex)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing information from source into target where
// target does not carry it yet
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.SweepID != "" && GetSweepID(target) == "" {
		target = WithSweepID(target, tc.SweepID)
	}
	if tc.WorkerID >= 0 && GetWorkerID(target) < 0 {
		target = WithWorkerID(target, tc.WorkerID)
	}
	if tc.GridIndex >= 0 && GetGridIndex(target) < 0 {
		target = WithGridIndex(target, tc.GridIndex)
	}

	return target
}

// Detach returns a background context carrying the tracing information of
// ctx but none of its cancellation, for cleanup that must outlive ctx
func Detach(ctx context.Context) context.Context {
	return MergeContext(context.Background(), ctx)
}
