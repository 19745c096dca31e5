package observable

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Histogram is an equal-width relative frequency histogram.
type Histogram struct {
	Freq  []float64
	Low   float64
	Width float64
}

// Midpoint returns the centre of bin i.
func (h Histogram) Midpoint(i int) float64 {
	return h.Low + h.Width/2 + float64(i)*h.Width
}

// Bins returns the number of bins.
func (h Histogram) Bins() int {
	return len(h.Freq)
}

// RelFreq bins x into nbins equal-width bins and returns the relative
// frequency of each.
//
// The range is the observed [min, max] extended by half a bin on both sides,
// so the extreme values sit at the centres of the outer bins. With a single
// bin the range is [min, max]; a sample of identical values is given the
// unit range centred on that value.
func RelFreq(x []float64, nbins int) (Histogram, error) {
	if len(x) == 0 {
		return Histogram{}, ErrEmptySample
	}
	if nbins < 1 {
		return Histogram{}, fmt.Errorf("%w: got %d", ErrInvalidBins, nbins)
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Histogram{}, ErrNonFinite
		}
	}

	lo, hi := floats.Min(x), floats.Max(x)
	switch {
	case hi == lo:
		lo, hi = lo-0.5, hi+0.5
	case nbins > 1:
		s := (hi - lo) / float64(2*(nbins-1))
		lo, hi = lo-s, hi+s
	}
	width := (hi - lo) / float64(nbins)

	counts := make([]float64, nbins)
	for _, v := range x {
		i := int(math.Floor((v - lo) / width))
		if i < 0 {
			i = 0
		}
		if i >= nbins {
			i = nbins - 1
		}
		counts[i]++
	}
	floats.Scale(1/float64(len(x)), counts)

	return Histogram{Freq: counts, Low: lo, Width: width}, nil
}

// DefaultBins is the bin count used when none is configured: one bin per
// ten agents, at least one.
func DefaultBins(population int) int {
	if n := population / 10; n > 1 {
		return n
	}
	return 1
}
