package sweep

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// FailureKind classifies a grid point without a result.
type FailureKind string

const (
	// FailureFailed marks a grid point whose aggregation returned an error
	FailureFailed FailureKind = "failed"
	// FailureIncomplete marks a grid point that was never fully processed
	FailureIncomplete FailureKind = "incomplete"
)

// GridFailure explains why a grid point has no result.
type GridFailure struct {
	Index  int         `json:"index"`
	Point  GridPoint   `json:"point"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (f GridFailure) Error() string {
	return fmt.Sprintf("grid point %s %s: %s", f.Point, f.Kind, f.Reason)
}

var (
	// ErrMisaligned is returned when a result does not match the grid point at its index
	ErrMisaligned = errors.New("result does not match grid point at its index")

	// ErrDuplicate is returned when a grid point is recorded twice
	ErrDuplicate = errors.New("grid point already recorded")
)

// Assembler collects results in any order and places each at its grid
// point's index. It is safe for concurrent use.
type Assembler struct {
	mu       sync.Mutex
	grid     *ParameterGrid
	results  []*AggregateResult
	failures []*GridFailure
}

// NewAssembler creates an assembler for grid.
func NewAssembler(grid *ParameterGrid) *Assembler {
	return &Assembler{
		grid:     grid,
		results:  make([]*AggregateResult, grid.Len()),
		failures: make([]*GridFailure, grid.Len()),
	}
}

// Put records the result of its grid point.
func (a *Assembler) Put(r AggregateResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(r.Point); err != nil {
		return err
	}
	a.results[r.Point.Index] = &r
	return nil
}

// Fail records why p has no result.
func (a *Assembler) Fail(p GridPoint, kind FailureKind, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(p); err != nil {
		return err
	}
	a.failures[p.Index] = &GridFailure{Index: p.Index, Point: p, Kind: kind, Reason: reason}
	return nil
}

// Has reports whether grid point i has a result or a failure.
func (a *Assembler) Has(i int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.results) {
		return false
	}
	return a.results[i] != nil || a.failures[i] != nil
}

// FailRemaining marks every grid point without an entry as incomplete and
// returns them.
func (a *Assembler) FailRemaining(reason string) []GridFailure {
	a.mu.Lock()
	defer a.mu.Unlock()

	var marked []GridFailure
	for i, p := range a.grid.points {
		if a.results[i] != nil || a.failures[i] != nil {
			continue
		}
		f := GridFailure{Index: i, Point: p, Kind: FailureIncomplete, Reason: reason}
		a.failures[i] = &f
		marked = append(marked, f)
	}
	return marked
}

func (a *Assembler) check(p GridPoint) error {
	want, ok := a.grid.Point(p.Index)
	if !ok || want != p {
		return fmt.Errorf("%w: %s", ErrMisaligned, p)
	}
	if a.results[p.Index] != nil || a.failures[p.Index] != nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, p)
	}
	return nil
}

// Tensor returns the assembled tensor. Grid points without an entry are
// reported as incomplete.
func (a *Assembler) Tensor() *ResultTensor {
	a.FailRemaining("not processed")

	a.mu.Lock()
	defer a.mu.Unlock()

	t := &ResultTensor{
		Shape:   a.grid.Shape(),
		Betas:   a.grid.Betas(),
		Dists:   a.grid.Dists(),
		Points:  a.grid.Points(),
		Results: make([]*AggregateResult, len(a.results)),
	}
	copy(t.Results, a.results)
	for _, f := range a.failures {
		if f != nil {
			t.Failures = append(t.Failures, *f)
		}
	}
	sort.Slice(t.Failures, func(i, j int) bool { return t.Failures[i].Index < t.Failures[j].Index })
	return t
}

// ResultTensor holds one entry per grid point, index-aligned with the grid:
// Results[i] is the result of Points[i], or nil with a matching entry in
// Failures.
type ResultTensor struct {
	Shape    [2]int
	Betas    []float64
	Dists    []float64
	Points   []GridPoint
	Results  []*AggregateResult
	Failures []GridFailure
}

// Len returns the number of grid points.
func (t *ResultTensor) Len() int {
	return len(t.Points)
}

// Complete reports whether every grid point has a result.
func (t *ResultTensor) Complete() bool {
	return len(t.Failures) == 0
}

// FailuresOf returns the failures of the given kind.
func (t *ResultTensor) FailuresOf(kind FailureKind) []GridFailure {
	var out []GridFailure
	for _, f := range t.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Summary tensor fields, in row order.
var SummaryFields = []string{
	"divergence_start_mean", "divergence_start_var",
	"divergence_end_mean", "divergence_end_var",
	"scc_count_mean", "scc_count_var",
	"wcc_count_mean", "wcc_count_var",
	"largest_scc_mean", "largest_wcc_mean",
	"assortativity_mean", "assortativity_var",
	"transitivity_mean", "transitivity_var",
}

// Raw tensor fields, in row order.
var RawFields = []string{
	"divergence_start", "divergence_end",
	"scc_count", "wcc_count",
	"largest_scc", "largest_wcc",
	"assortativity", "transitivity",
}

// SummaryRow flattens the summary in SummaryFields order. Missing values are NaN.
func (r *AggregateResult) SummaryRow() []float64 {
	nan := math.NaN()
	s := r.Summary
	row := []float64{
		s.DivergenceStart.Mean, s.DivergenceStart.Variance,
		s.DivergenceEnd.Mean, s.DivergenceEnd.Variance,
		nan, nan, nan, nan, nan, nan, nan, nan, nan, nan,
	}
	if c := s.Components; c != nil {
		row[4], row[5] = c.SCCCount.Mean, c.SCCCount.Variance
		row[6], row[7] = c.WCCCount.Mean, c.WCCCount.Variance
		row[8], row[9] = c.LargestSCC.Mean, c.LargestWCC.Mean
	}
	if m := s.Assortativity; m != nil {
		row[10], row[11] = m.Mean, m.Variance
	}
	if m := s.Transitivity; m != nil {
		row[12], row[13] = m.Mean, m.Variance
	}
	return row
}

// RawRows flattens each repetition in RawFields order. Missing values are
// NaN. It returns nil unless the result was aggregated in raw mode.
func (r *AggregateResult) RawRows() [][]float64 {
	if len(r.Runs) == 0 {
		return nil
	}
	nan := math.NaN()
	rows := make([][]float64, len(r.Runs))
	for i, run := range r.Runs {
		row := []float64{run.DivergenceStart, run.DivergenceEnd, nan, nan, nan, nan, nan, nan}
		if !run.GraphFailed() {
			row[2], row[3] = float64(len(run.SCCSizes)), float64(len(run.WCCSizes))
			row[4], row[5] = float64(largest(run.SCCSizes)), float64(largest(run.WCCSizes))
		}
		if run.Assortativity != nil {
			row[6] = *run.Assortativity
		}
		if run.Transitivity != nil {
			row[7] = *run.Transitivity
		}
		rows[i] = row
	}
	return rows
}
