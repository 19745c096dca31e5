// Package reference is a small opinion-dynamics engine that speaks the
// engine protocol. Agents hold a Gaussian belief (mean and variance) about
// a true value, receive noisy private signals and pool beliefs with the
// network neighbours they trust: agent i listens to j only while
// |mu_i - mu_j| < beta * sqrt(var_i).
//
// It is used for demos and tests; real studies run their own engine.
package reference

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/harun/echosweep/pkg/engine"
)

// Update types
const (
	// UpdateAverage moves the mean to the average of trusted neighbours
	UpdateAverage = 1
	// UpdateBayes pools precision-weighted beliefs and a private signal
	UpdateBayes = 2
)

// Initial sampling modes
const (
	SamplingBivariate = "bivariate"
	SamplingCentered  = "centered"
)

// Model is the reference engine. It is driven by a single caller.
type Model struct {
	rng   *rand.Rand
	model string

	cfg        engine.RunConfig
	configured bool
	ready      bool

	mu0, var0    []float64
	mu, variance []float64
	out          [][]int
}

// New creates a model drawing from a PCG stream seeded with seed.
func New(seed uint64) *Model {
	return &Model{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// LoadModel records the model path. The reference engine has a single
// built-in model, so any path is accepted.
func (m *Model) LoadModel(path string) error {
	m.model = path
	m.configured, m.ready = false, false
	return nil
}

// Configure resets the model and stores cfg.
func (m *Model) Configure(cfg engine.RunConfig) error {
	m.configured, m.ready = false, false
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.NetworkType {
	case "random", "scale-free":
	default:
		return fmt.Errorf("%w: unsupported network type %q", engine.ErrInvalidRunConfig, cfg.NetworkType)
	}
	m.cfg = cfg
	m.configured = true
	return nil
}

// Setup draws the initial beliefs and builds the network.
func (m *Model) Setup() error {
	if !m.configured {
		return engine.ErrNotConfigured
	}
	n := m.cfg.Population

	m.mu0 = make([]float64, n)
	m.var0 = make([]float64, n)
	spread := math.Sqrt(math.Max(m.cfg.VarD, 0))
	for i := range m.mu0 {
		center := m.cfg.TrueMean
		if m.cfg.InitialSampling == SamplingBivariate {
			if i%2 == 0 {
				center -= m.cfg.Dist
			} else {
				center += m.cfg.Dist
			}
		}
		m.mu0[i] = center + spread*m.rng.NormFloat64()
		m.var0[i] = math.Max(m.cfg.Precision, 1e-9)
	}
	m.mu = append([]float64(nil), m.mu0...)
	m.variance = append([]float64(nil), m.var0...)

	if m.cfg.NetworkType == "scale-free" {
		m.out = m.scaleFree(n, max(m.cfg.Pref, 1))
	} else {
		m.out = m.random(n, m.cfg.Density)
	}

	m.ready = true
	return nil
}

// random links every ordered pair with probability p.
func (m *Model) random(n int, p float64) [][]int {
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && m.rng.Float64() < p {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

// scaleFree grows a preferential-attachment network: every new agent links
// both ways to k distinct earlier agents chosen proportionally to degree.
func (m *Model) scaleFree(n, k int) [][]int {
	out := make([][]int, n)
	// each agent appears once per incident edge, plus once for itself
	var urn []int
	for i := 0; i < n; i++ {
		var picked []int
		for len(picked) < min(k, i) {
			j := urn[m.rng.IntN(len(urn))]
			if !slices.Contains(picked, j) {
				picked = append(picked, j)
			}
		}
		for _, j := range picked {
			out[i] = append(out[i], j)
			out[j] = append(out[j], i)
			urn = append(urn, i, j)
		}
		urn = append(urn, i)
	}
	return out
}

// Step updates every agent synchronously.
func (m *Model) Step() error {
	if !m.ready {
		return engine.ErrNotSetUp
	}

	mu := make([]float64, len(m.mu))
	variance := make([]float64, len(m.variance))
	signalSD := math.Sqrt(m.cfg.TrueVariance)

	for i := range m.mu {
		tol := m.cfg.Beta * math.Sqrt(m.variance[i])

		switch m.cfg.UpdateType {
		case UpdateAverage:
			sum, count := m.mu[i], 1.0
			for _, j := range m.out[i] {
				if math.Abs(m.mu[i]-m.mu[j]) < tol {
					sum += m.mu[j]
					count++
				}
			}
			mu[i], variance[i] = sum/count, m.variance[i]

		default:
			signal := m.cfg.TrueMean + signalSD*m.rng.NormFloat64()
			prec := 1/m.variance[i] + 1/m.cfg.TrueVariance
			weighted := m.mu[i]/m.variance[i] + signal/m.cfg.TrueVariance
			for _, j := range m.out[i] {
				if math.Abs(m.mu[i]-m.mu[j]) < tol {
					w := 1 / (m.variance[j] + m.cfg.VarD)
					prec += w
					weighted += w * m.mu[j]
				}
			}
			mu[i], variance[i] = weighted/prec, 1/prec
		}
	}

	m.mu, m.variance = mu, variance
	return nil
}

// Query returns a copy of a per-agent variable.
func (m *Model) Query(name string) ([]float64, error) {
	if !m.ready {
		return nil, engine.ErrNotSetUp
	}
	var src []float64
	switch name {
	case engine.QueryInitialMean:
		src = m.mu0
	case engine.QueryInitialVariance:
		src = m.var0
	case engine.QueryMean:
		src = m.mu
	case engine.QueryVariance:
		src = m.variance
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownQuery, name)
	}
	return append([]float64(nil), src...), nil
}

// Edges returns every directed edge of the network.
func (m *Model) Edges() ([]engine.Edge, error) {
	if !m.ready {
		return nil, engine.ErrNotSetUp
	}
	var edges []engine.Edge
	for i, targets := range m.out {
		for _, j := range targets {
			edges = append(edges, engine.Edge{Source: i, Target: j})
		}
	}
	return edges, nil
}
