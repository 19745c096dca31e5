package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by Setup when Configure was never called
	ErrNotConfigured = errors.New("engine not configured")

	// ErrNotSetUp is returned by Step and Query before Setup succeeded
	ErrNotSetUp = errors.New("engine not set up")

	// ErrHandleClosed is returned by any call on a closed handle
	ErrHandleClosed = errors.New("engine handle closed")

	// ErrCallTimeout is returned when an engine call exceeds its deadline
	ErrCallTimeout = errors.New("engine call timed out")

	// ErrUnknownQuery is returned for a variable the engine does not expose
	ErrUnknownQuery = errors.New("unknown query")

	// ErrMalformedReply is returned when the engine answers with data of the wrong shape
	ErrMalformedReply = errors.New("malformed engine reply")

	// ErrInvalidRunConfig is returned when a RunConfig fails validation
	ErrInvalidRunConfig = errors.New("invalid run config")
)

// ProtocolError reports a failed or malformed engine call. A fatal error
// means the handle can no longer be trusted and its owner must retire it.
type ProtocolError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *ProtocolError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("engine %s (fatal): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsFatal reports whether err wraps a fatal ProtocolError.
func IsFatal(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Fatal
	}
	return false
}

// wrapErr turns err into a ProtocolError for op. Deadline overruns and calls
// on closed handles are fatal; cancellation of the caller's context is passed
// through untouched so callers can tell it apart from an engine failure.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	fatal := errors.Is(err, ErrCallTimeout) ||
		errors.Is(err, ErrHandleClosed) ||
		errors.Is(err, context.DeadlineExceeded)
	return &ProtocolError{Op: op, Err: err, Fatal: fatal}
}
