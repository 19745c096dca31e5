package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SweepIDKey is the context key for the sweep ID
	SweepIDKey ContextKey = "sweep_id"
	// WorkerIDKey is the context key for the worker ID
	WorkerIDKey ContextKey = "worker_id"
	// GridIndexKey is the context key for the grid point index
	GridIndexKey ContextKey = "grid_index"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SweepID   string
	WorkerID  int
	GridIndex int
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewSweepID generates a new sweep ID
func NewSweepID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSweepID adds a sweep ID to the context
func WithSweepID(ctx context.Context, sweepID string) context.Context {
	return context.WithValue(ctx, SweepIDKey, sweepID)
}

// WithWorkerID adds a worker ID to the context
func WithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, WorkerIDKey, workerID)
}

// WithGridIndex adds a grid point index to the context
func WithGridIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, GridIndexKey, index)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSweepID retrieves the sweep ID from the context
func GetSweepID(ctx context.Context) string {
	if sweepID, ok := ctx.Value(SweepIDKey).(string); ok {
		return sweepID
	}
	return ""
}

// GetWorkerID retrieves the worker ID from the context, or -1
func GetWorkerID(ctx context.Context) int {
	if id, ok := ctx.Value(WorkerIDKey).(int); ok {
		return id
	}
	return -1
}

// GetGridIndex retrieves the grid point index from the context, or -1
func GetGridIndex(ctx context.Context) int {
	if index, ok := ctx.Value(GridIndexKey).(int); ok {
		return index
	}
	return -1
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SweepID:   GetSweepID(ctx),
		WorkerID:  GetWorkerID(ctx),
		GridIndex: GetGridIndex(ctx),
	}
}

// NewSweepContext creates a context for a new sweep with fresh trace and sweep IDs
func NewSweepContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithSweepID(ctx, NewSweepID())
}
