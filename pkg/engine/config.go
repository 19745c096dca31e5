package engine

import (
	"fmt"
	"strconv"
)

// RunConfig is the full parameter set sent to the engine for one run.
// It is built fresh for every run and never mutated after being sent.
type RunConfig struct {
	Population      int     `json:"population"`
	Precision       float64 `json:"precision"`
	VarD            float64 `json:"var_d"`
	UpdateType      int     `json:"update_type"`
	NetworkType     string  `json:"network_type"`
	Density         float64 `json:"density"`
	Pref            int     `json:"pref"`
	InitialSampling string  `json:"initial_sampling"`
	TrueMean        float64 `json:"true_mean"`
	TrueVariance    float64 `json:"true_variance"`

	// Swept coordinates
	Beta float64 `json:"beta"`
	Dist float64 `json:"dist"`
}

// Param is one named engine parameter rendered as an engine literal.
type Param struct {
	Name  string
	Value string
}

// WithPoint returns a copy of c carrying the given grid coordinates.
func (c RunConfig) WithPoint(beta, dist float64) RunConfig {
	c.Beta = beta
	c.Dist = dist
	return c
}

// Validate checks the values an engine cannot sensibly run with.
func (c RunConfig) Validate() error {
	if c.Population <= 0 {
		return fmt.Errorf("%w: population must be positive, got %d", ErrInvalidRunConfig, c.Population)
	}
	if c.TrueVariance <= 0 {
		return fmt.Errorf("%w: true variance must be positive, got %g", ErrInvalidRunConfig, c.TrueVariance)
	}
	if c.Density < 0 || c.Density > 1 {
		return fmt.Errorf("%w: density must be between 0 and 1, got %g", ErrInvalidRunConfig, c.Density)
	}
	if c.NetworkType == "" {
		return fmt.Errorf("%w: network type is required", ErrInvalidRunConfig)
	}
	return nil
}

// Params renders the configuration as engine globals in a stable order.
// String values are quoted so text-protocol engines can apply them verbatim
// as `set <name> <value>` commands.
func (c RunConfig) Params() []Param {
	return []Param{
		{"N", strconv.Itoa(c.Population)},
		{"beta", formatFloat(c.Beta)},
		{"mutrue", formatFloat(c.TrueMean)},
		{"vartrue", formatFloat(c.TrueVariance)},
		{"update-type", strconv.Itoa(c.UpdateType)},
		{"var-c", formatFloat(c.Precision)},
		{"var-d", formatFloat(c.VarD)},
		{"network-type", strconv.Quote(c.NetworkType)},
		{"p", formatFloat(c.Density)},
		{"pref", strconv.Itoa(c.Pref)},
		{"initial-sampling", strconv.Quote(c.InitialSampling)},
		{"dist", formatFloat(c.Dist)},
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	// Keep a decimal point so engines that type globals by literal see a float.
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E', 'n', 'N', 'I':
			return s
		}
	}
	return s + ".0"
}
