package observable

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySample is returned when a histogram is requested for no values
	ErrEmptySample = errors.New("empty sample")

	// ErrInvalidBins is returned for a bin count below one
	ErrInvalidBins = errors.New("bin count must be at least 1")

	// ErrNonFinite is returned when a sample holds NaN or infinite values
	ErrNonFinite = errors.New("sample contains non-finite values")

	// ErrInvalidScale is returned when a reference scale is not positive
	ErrInvalidScale = errors.New("reference scale must be positive")

	// ErrEmptyTrajectory is returned when Reduce gets no snapshots
	ErrEmptyTrajectory = errors.New("trajectory has no snapshots")
)

// DivergenceUndefinedError reports a bin where the empirical frequency is
// positive but the reference density is zero.
type DivergenceUndefinedError struct {
	Bin  int
	Freq float64
}

func (e *DivergenceUndefinedError) Error() string {
	if e.Bin < 0 {
		return "divergence undefined: non-finite sum"
	}
	return fmt.Sprintf("divergence undefined: reference density is zero in bin %d (frequency %g)", e.Bin, e.Freq)
}

// GraphReductionError reports a network that cannot be reduced, such as an
// edge naming an unknown agent. Only the run's graph metrics are lost.
type GraphReductionError struct {
	Reason string
	Source int
	Target int
}

func (e *GraphReductionError) Error() string {
	if e.Source < 0 && e.Target < 0 {
		return "graph reduction: " + e.Reason
	}
	return fmt.Sprintf("graph reduction: %s (edge %d -> %d)", e.Reason, e.Source, e.Target)
}

// IsDivergenceUndefined reports whether err wraps a DivergenceUndefinedError.
func IsDivergenceUndefined(err error) bool {
	var de *DivergenceUndefinedError
	return errors.As(err, &de)
}

// IsGraphReduction reports whether err wraps a GraphReductionError.
func IsGraphReduction(err error) bool {
	var ge *GraphReductionError
	return errors.As(err, &ge)
}
