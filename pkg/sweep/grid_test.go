package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxis_Values(t *testing.T) {
	tests := []struct {
		name string
		axis Axis
		want []float64
	}{
		{"single value", Axis{Start: 2, Stop: 5, Num: 1}, []float64{2}},
		{"two values", Axis{Start: 0, Stop: 1, Num: 2}, []float64{0, 1}},
		{"five values", Axis{Start: 0, Stop: 2, Num: 5}, []float64{0, 0.5, 1, 1.5, 2}},
		{"descending", Axis{Start: 1, Stop: -1, Num: 3}, []float64{1, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDeltaSlice(t, tt.want, tt.axis.Values(), 1e-12)
		})
	}
}

func TestAxis_Validate(t *testing.T) {
	assert.NoError(t, Axis{Start: 0, Stop: 1, Num: 3}.Validate())
	assert.Error(t, Axis{Start: 0, Stop: 1, Num: 0}.Validate())
}

func TestParameterGrid_BetaMajor(t *testing.T) {
	grid, err := NewParameterGrid(Axis{Start: 1, Stop: 2, Num: 2}, Axis{Start: 0, Stop: 1, Num: 3})
	require.NoError(t, err)

	assert.Equal(t, 6, grid.Len())
	assert.Equal(t, [2]int{2, 3}, grid.Shape())

	for i, p := range grid.Points() {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, p.BetaIndex*3+p.DistIndex, p.Index)
		assert.Equal(t, grid.Betas()[p.BetaIndex], p.Beta)
		assert.Equal(t, grid.Dists()[p.DistIndex], p.Dist)
	}

	coords := grid.Coordinates()
	require.Len(t, coords, 6)
	assert.Equal(t, [2]float64{1, 0}, coords[0])
	assert.Equal(t, [2]float64{1, 0.5}, coords[1])
	assert.Equal(t, [2]float64{2, 0}, coords[3])
	assert.Equal(t, [2]float64{2, 1}, coords[5])
}

func TestParameterGrid_PointsAreCopies(t *testing.T) {
	grid, err := NewParameterGrid(Axis{Start: 1, Stop: 1, Num: 1}, Axis{Start: 0, Stop: 0, Num: 1})
	require.NoError(t, err)

	points := grid.Points()
	points[0].Beta = 99

	p, ok := grid.Point(0)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Beta)

	_, ok = grid.Point(1)
	assert.False(t, ok)
}

func TestParameterGrid_Select(t *testing.T) {
	grid, err := NewParameterGrid(Axis{Start: 0, Stop: 1, Num: 2}, Axis{Start: 0, Stop: 1, Num: 2})
	require.NoError(t, err)

	all, err := grid.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := grid.Select([]int{3, 1, 3})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, 1, some[0].Index)
	assert.Equal(t, 3, some[1].Index)

	_, err = grid.Select([]int{4})
	assert.Error(t, err)
}

func TestNewParameterGrid_InvalidAxis(t *testing.T) {
	_, err := NewParameterGrid(Axis{Num: 0}, Axis{Num: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beta")
}
