package observable

import (
	"fmt"
	"math"
)

// Spread model names accepted by NewSpreadModel.
const (
	SpreadPowerLaw    = "power_law"
	SpreadExponential = "exponential"
)

// SpreadModel predicts the spread of agent beliefs at tick t of a run whose
// initial populations were separated by dist. Implementations must be pure
// and non-increasing in t for dist >= 0.
type SpreadModel interface {
	ExpectedSpread(t int, dist float64) float64
}

// SpreadFunc adapts a function to the SpreadModel interface.
type SpreadFunc func(t int, dist float64) float64

// ExpectedSpread calls f(t, dist).
func (f SpreadFunc) ExpectedSpread(t int, dist float64) float64 {
	return f(t, dist)
}

// PowerLawSpread decays the initial spread as a power of time, plus an
// exponentially decaying separation term, toward Floor:
//
//	(d0+dist)/(t+1)^((3F+1)/2) + (dist/d0)*exp(-t/tau) + floor
type PowerLawSpread struct {
	Initial float64 // d0
	Tau     float64
	Floor   float64
	Friends int // F, the maximum out-degree of an agent
}

func (m PowerLawSpread) ExpectedSpread(t int, dist float64) float64 {
	ft := float64(t)
	exponent := float64(3*m.Friends+1) / 2
	return (m.Initial+dist)/math.Pow(ft+1, exponent) +
		(dist/m.Initial)*math.Exp(-ft/m.Tau) +
		m.Floor
}

// ExponentialSpread decays both terms exponentially, the initial spread over
// Horizon ticks and the separation over Tau ticks:
//
//	(d0/sqrt(var_true))*exp(-t/H) + (dist/d0)*exp(-t/tau)
type ExponentialSpread struct {
	Initial      float64
	TrueVariance float64
	Horizon      float64
	Tau          float64
}

func (m ExponentialSpread) ExpectedSpread(t int, dist float64) float64 {
	ft := float64(t)
	return (m.Initial/math.Sqrt(m.TrueVariance))*math.Exp(-ft/m.Horizon) +
		(dist/m.Initial)*math.Exp(-ft/m.Tau)
}

// SpreadParams holds the constants of every spread model. Fields a model
// does not use are ignored.
type SpreadParams struct {
	Initial      float64
	Tau          float64
	Floor        float64
	Friends      int
	TrueVariance float64
	Horizon      float64
}

// NewSpreadModel builds the named spread model.
func NewSpreadModel(name string, p SpreadParams) (SpreadModel, error) {
	if p.Initial <= 0 {
		return nil, fmt.Errorf("initial spread must be positive, got %g", p.Initial)
	}
	if p.Tau <= 0 {
		return nil, fmt.Errorf("tau must be positive, got %g", p.Tau)
	}

	switch name {
	case SpreadPowerLaw, "":
		if p.Friends < 0 {
			return nil, fmt.Errorf("friends must not be negative, got %d", p.Friends)
		}
		if p.Floor < 0 {
			return nil, fmt.Errorf("floor must not be negative, got %g", p.Floor)
		}
		return PowerLawSpread{Initial: p.Initial, Tau: p.Tau, Floor: p.Floor, Friends: p.Friends}, nil
	case SpreadExponential:
		if p.TrueVariance <= 0 {
			return nil, fmt.Errorf("true variance must be positive, got %g", p.TrueVariance)
		}
		if p.Horizon <= 0 {
			return nil, fmt.Errorf("horizon must be positive, got %g", p.Horizon)
		}
		return ExponentialSpread{Initial: p.Initial, TrueVariance: p.TrueVariance, Horizon: p.Horizon, Tau: p.Tau}, nil
	default:
		return nil, fmt.Errorf("unknown spread model: %s", name)
	}
}
