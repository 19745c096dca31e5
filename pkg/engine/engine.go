package engine

import (
	"context"
)

// Well-known per-agent variables every engine must answer through Query.
const (
	QueryInitialMean     = "mu0"
	QueryInitialVariance = "var0"
	QueryMean            = "mu"
	QueryVariance        = "var"
)

// Edge is a directed interaction edge between two agent identifiers.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// Snapshot is a point-in-time capture of per-agent beliefs and the
// interaction network.
type Snapshot struct {
	Tick     int       `json:"tick"`
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
	Edges    []Edge    `json:"edges"`
}

// Handle is one live connection to the simulation engine.
//
// A Handle is stateful and single-threaded: exactly one caller owns it for its
// whole lifetime and calls are never issued concurrently. Close must be called
// exactly once.
type Handle interface {
	// Configure resets the engine and applies every parameter of cfg.
	Configure(ctx context.Context, cfg RunConfig) error

	// Setup performs the engine's own initialisation using the last
	// configured parameters.
	Setup(ctx context.Context) error

	// Step advances the simulation by one tick.
	Step(ctx context.Context) error

	// Query returns a per-agent variable ordered by agent identifier.
	Query(ctx context.Context, name string) ([]float64, error)

	// Edges returns the current directed edge list.
	Edges(ctx context.Context) ([]Edge, error)

	// Close releases the underlying engine resource.
	Close() error
}

// Factory acquires new engine handles.
type Factory interface {
	Open(ctx context.Context) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Handle, error)

// Open calls f(ctx).
func (f FactoryFunc) Open(ctx context.Context) (Handle, error) {
	return f(ctx)
}
