package engine

import (
	"context"
	"time"
)

// LocalFactory runs engines in process. Every Open creates a fresh Engine
// with New and wraps it in the same Guard as out-of-process engines.
type LocalFactory struct {
	New         func() Engine
	CallTimeout time.Duration
}

// Open creates a new in-process engine handle.
func (f LocalFactory) Open(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := &processHandle{engine: f.New(), kill: func() {}}
	return NewGuard(h, f.CallTimeout), nil
}
