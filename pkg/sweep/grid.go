package sweep

import (
	"fmt"
	"math"
)

// Axis is a linearly spaced parameter axis of Num values from Start to Stop
// inclusive.
type Axis struct {
	Start float64 `json:"start" mapstructure:"start" yaml:"start"`
	Stop  float64 `json:"stop" mapstructure:"stop" yaml:"stop"`
	Num   int     `json:"num" mapstructure:"num" yaml:"num"`
}

// Validate checks that the axis yields at least one finite value.
func (a Axis) Validate() error {
	if a.Num < 1 {
		return fmt.Errorf("axis needs at least one value, got %d", a.Num)
	}
	for _, v := range []float64{a.Start, a.Stop} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("axis bounds must be finite")
		}
	}
	return nil
}

// Values returns the axis values. A single-valued axis is just Start.
func (a Axis) Values() []float64 {
	if a.Num < 1 {
		return nil
	}
	values := make([]float64, a.Num)
	if a.Num == 1 {
		values[0] = a.Start
		return values
	}
	step := (a.Stop - a.Start) / float64(a.Num-1)
	for i := range values {
		values[i] = a.Start + float64(i)*step
	}
	values[a.Num-1] = a.Stop
	return values
}

// GridPoint is one coordinate of the sweep. Index is its position in the
// beta-major enumeration of the grid and identifies it everywhere.
type GridPoint struct {
	Index     int     `json:"index"`
	Beta      float64 `json:"beta"`
	Dist      float64 `json:"dist"`
	BetaIndex int     `json:"beta_index"`
	DistIndex int     `json:"dist_index"`
}

func (p GridPoint) String() string {
	return fmt.Sprintf("#%d (beta=%g, dist=%g)", p.Index, p.Beta, p.Dist)
}

// ParameterGrid is the cartesian product of the beta and dist axes. Points
// are enumerated beta-major: index = betaIndex*len(dist) + distIndex.
type ParameterGrid struct {
	betas  []float64
	dists  []float64
	points []GridPoint
}

// NewParameterGrid enumerates the grid spanned by the two axes.
func NewParameterGrid(beta, dist Axis) (*ParameterGrid, error) {
	if err := beta.Validate(); err != nil {
		return nil, fmt.Errorf("beta: %w", err)
	}
	if err := dist.Validate(); err != nil {
		return nil, fmt.Errorf("dist: %w", err)
	}

	g := &ParameterGrid{
		betas: beta.Values(),
		dists: dist.Values(),
	}
	g.points = make([]GridPoint, 0, len(g.betas)*len(g.dists))
	for i, b := range g.betas {
		for j, d := range g.dists {
			g.points = append(g.points, GridPoint{
				Index:     len(g.points),
				Beta:      b,
				Dist:      d,
				BetaIndex: i,
				DistIndex: j,
			})
		}
	}
	return g, nil
}

// Len returns the number of grid points.
func (g *ParameterGrid) Len() int {
	return len(g.points)
}

// Points returns a copy of the grid points in index order.
func (g *ParameterGrid) Points() []GridPoint {
	out := make([]GridPoint, len(g.points))
	copy(out, g.points)
	return out
}

// Point returns the grid point at index i.
func (g *ParameterGrid) Point(i int) (GridPoint, bool) {
	if i < 0 || i >= len(g.points) {
		return GridPoint{}, false
	}
	return g.points[i], true
}

// Shape returns (len(beta), len(dist)).
func (g *ParameterGrid) Shape() [2]int {
	return [2]int{len(g.betas), len(g.dists)}
}

// Betas returns a copy of the beta axis values.
func (g *ParameterGrid) Betas() []float64 {
	return append([]float64(nil), g.betas...)
}

// Dists returns a copy of the dist axis values.
func (g *ParameterGrid) Dists() []float64 {
	return append([]float64(nil), g.dists...)
}

// Coordinates returns the (beta, dist) pair of every point in index order.
func (g *ParameterGrid) Coordinates() [][2]float64 {
	coords := make([][2]float64, len(g.points))
	for i, p := range g.points {
		coords[i] = [2]float64{p.Beta, p.Dist}
	}
	return coords
}

// Select returns the points at the given indices, in ascending index order
// and without duplicates. An empty selection means the whole grid.
func (g *ParameterGrid) Select(indices []int) ([]GridPoint, error) {
	if len(indices) == 0 {
		return g.Points(), nil
	}
	wanted := make([]bool, len(g.points))
	for _, i := range indices {
		if i < 0 || i >= len(g.points) {
			return nil, fmt.Errorf("grid index %d out of range [0, %d)", i, len(g.points))
		}
		wanted[i] = true
	}
	selected := make([]GridPoint, 0, len(indices))
	for i, ok := range wanted {
		if ok {
			selected = append(selected, g.points[i])
		}
	}
	return selected, nil
}
