package observable

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// KLDivergence returns sum p[i]*log(p[i]/q[i]) over the bins where p[i] > 0.
// A bin with p[i] > 0 and q[i] <= 0 makes the divergence undefined.
func KLDivergence(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, fmt.Errorf("length mismatch: %d frequencies, %d reference values", len(p), len(q))
	}

	var sum float64
	for i, pi := range p {
		if pi <= 0 {
			continue
		}
		if q[i] <= 0 || math.IsNaN(q[i]) {
			return 0, &DivergenceUndefinedError{Bin: i, Freq: pi}
		}
		sum += pi * math.Log(pi/q[i])
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, &DivergenceUndefinedError{Bin: -1}
	}
	return sum, nil
}

// GaussianDivergence compares the histogram of x against a normal density
// centred on the sample mean with the given scale, evaluated at each bin's
// midpoint.
func GaussianDivergence(x []float64, scale float64, nbins int) (float64, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidScale, scale)
	}

	h, err := RelFreq(x, nbins)
	if err != nil {
		return 0, err
	}

	ref := distuv.Normal{Mu: stat.Mean(x, nil), Sigma: scale}
	q := make([]float64, h.Bins())
	for i := range q {
		q[i] = ref.Prob(h.Midpoint(i))
	}

	return KLDivergence(h.Freq, q)
}
