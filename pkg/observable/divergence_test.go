package observable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKLDivergence(t *testing.T) {
	tests := []struct {
		name string
		p, q []float64
		want float64
	}{
		{"equal histograms", []float64{0.2, 0.3, 0.5}, []float64{0.2, 0.3, 0.5}, 0},
		{"equal single bin", []float64{1}, []float64{1}, 0},
		{"empty bins contribute nothing", []float64{0, 1}, []float64{0.5, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KLDivergence(tt.p, tt.q)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestKLDivergence_ZeroReference(t *testing.T) {
	_, err := KLDivergence([]float64{0.5, 0.5}, []float64{0.5, 0})
	require.Error(t, err)

	var de *DivergenceUndefinedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Bin)
	assert.Equal(t, 0.5, de.Freq)
}

func TestKLDivergence_LengthMismatch(t *testing.T) {
	_, err := KLDivergence([]float64{1}, []float64{0.5, 0.5})
	assert.Error(t, err)
}

func TestGaussianDivergence(t *testing.T) {
	// Two bins centred on -1 and 1, each holding half the sample, against a
	// standard normal: 2 * 0.5 * log(0.5 / phi(1)).
	got, err := GaussianDivergence([]float64{-1, -1, 1, 1}, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.7257913526447274, got, 1e-9)
}

func TestGaussianDivergence_UnderflowIsUndefined(t *testing.T) {
	// The outer bins are so far from the mean that the density underflows.
	_, err := GaussianDivergence([]float64{-1e6, 1e6}, 1e-3, 2)
	require.Error(t, err)
	assert.True(t, IsDivergenceUndefined(err))
}

func TestGaussianDivergence_InvalidScale(t *testing.T) {
	_, err := GaussianDivergence([]float64{1, 2}, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidScale)
}
