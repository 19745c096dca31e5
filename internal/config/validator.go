package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/harun/echosweep/pkg/observable"
	"github.com/harun/echosweep/pkg/sweep"
)

// ValidationError collects every problem found in a configuration
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAxis validates a swept axis
func (v *Validator) ValidateAxis(name string, a sweep.Axis) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("sweep.%s: %w", name, err)
	}
	return nil
}

// ValidateAggregation validates the aggregation mode
func (v *Validator) ValidateAggregation(mode string) error {
	if _, err := sweep.ParseAggregationMode(mode); err != nil {
		return fmt.Errorf("sweep.aggregation: %w (must be one of: summary, raw)", err)
	}
	return nil
}

// ValidateSpread validates the spread model name
func (v *Validator) ValidateSpread(name string) error {
	switch name {
	case "", observable.SpreadPowerLaw, observable.SpreadExponential:
		return nil
	}
	return fmt.Errorf("invalid spread model: %s (must be one of: %s, %s)", name, observable.SpreadPowerLaw, observable.SpreadExponential)
}

// ValidateNetworkType validates the engine network type
func (v *Validator) ValidateNetworkType(network string) error {
	validTypes := []string{"random", "scale-free"}
	for _, valid := range validTypes {
		if network == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid network type: %s (must be one of: %s)", network, strings.Join(validTypes, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

func positive(name string, x float64) error {
	if math.IsNaN(x) || x <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, x)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error
	add := func(err error) {
		if err != nil {
			errors = append(errors, err)
		}
	}

	// Sweep
	add(v.ValidateAxis("beta", cfg.Sweep.Beta))
	add(v.ValidateAxis("dist", cfg.Sweep.Dist))
	if cfg.Sweep.Repetitions < 1 {
		add(fmt.Errorf("sweep.repetitions must be >= 1, got %d", cfg.Sweep.Repetitions))
	}
	if cfg.Sweep.Iterations < 0 {
		add(fmt.Errorf("sweep.iterations must be >= 0, got %d", cfg.Sweep.Iterations))
	}
	if cfg.Sweep.Workers < 1 {
		add(fmt.Errorf("sweep.workers must be >= 1, got %d", cfg.Sweep.Workers))
	}
	if cfg.Sweep.CheckpointStride < 0 {
		add(fmt.Errorf("sweep.checkpoint_stride must be >= 0"))
	}
	if cfg.Sweep.MaxConsecutiveFailures < 0 {
		add(fmt.Errorf("sweep.max_consecutive_failures must be >= 0"))
	}
	add(v.ValidateAggregation(cfg.Sweep.Aggregation))

	// Model
	if cfg.Model.Population < 1 {
		add(fmt.Errorf("model.population must be >= 1, got %d", cfg.Model.Population))
	}
	add(positive("model.true_variance", cfg.Model.TrueVariance))
	if cfg.Model.Density < 0 || cfg.Model.Density > 1 {
		add(fmt.Errorf("model.density must be between 0 and 1, got %g", cfg.Model.Density))
	}
	add(v.ValidateNetworkType(cfg.Model.NetworkType))

	// Reduction
	if cfg.Reduction.NBins < 0 {
		add(fmt.Errorf("reduction.nbins must be >= 0"))
	}
	add(v.ValidateSpread(cfg.Reduction.Spread))
	if cfg.Reduction.InitialSpread < 0 {
		add(fmt.Errorf("reduction.initial_spread must be >= 0"))
	}
	add(positive("reduction.tau", cfg.Reduction.Tau))
	if cfg.Reduction.Spread == observable.SpreadExponential {
		add(positive("reduction.horizon", cfg.Reduction.Horizon))
	}
	if cfg.Reduction.Friends < 0 {
		add(fmt.Errorf("reduction.friends must be >= 0"))
	}
	if cfg.Reduction.Floor < 0 {
		add(fmt.Errorf("reduction.floor must be >= 0"))
	}

	// Engine
	if cfg.Engine.CallTimeout < 0 {
		add(fmt.Errorf("engine.call_timeout must be >= 0"))
	}
	if cfg.Engine.StartTimeout < 0 {
		add(fmt.Errorf("engine.start_timeout must be >= 0"))
	}

	// Output
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		add(fmt.Errorf("output.dir is required"))
	}

	// Logging
	add(v.ValidateLogLevel(cfg.Logging.Level))
	if cfg.Logging.MaxSize < 0 || cfg.Logging.MaxAge < 0 {
		add(fmt.Errorf("logging.max_size and logging.max_age must be >= 0"))
	}

	return errors
}
