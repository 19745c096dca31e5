package config

import (
	"encoding/json"

	"github.com/harun/echosweep/pkg/sweep"
)

// Config represents the main echosweep configuration
type Config struct {
	// Sweep defines the grid and how it is run
	Sweep SweepConfig `json:"sweep" yaml:"sweep" mapstructure:"sweep"`

	// Model holds the engine globals shared by every run
	Model ModelConfig `json:"model" yaml:"model" mapstructure:"model"`

	// Reduction configures the observables computed per run
	Reduction ReductionConfig `json:"reduction" yaml:"reduction" mapstructure:"reduction"`

	// Engine describes the external simulation engine
	Engine EngineConfig `json:"engine" yaml:"engine" mapstructure:"engine"`

	// Output locations
	Output OutputConfig `json:"output" yaml:"output" mapstructure:"output"`

	// Logging
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// SweepConfig holds the swept axes and the run budget of every grid point
type SweepConfig struct {
	Beta                   sweep.Axis `json:"beta" yaml:"beta" mapstructure:"beta"`
	Dist                   sweep.Axis `json:"dist" yaml:"dist" mapstructure:"dist"`
	Repetitions            int        `json:"repetitions" yaml:"repetitions" mapstructure:"repetitions"`
	Iterations             int        `json:"iterations" yaml:"iterations" mapstructure:"iterations"`
	Workers                int        `json:"workers" yaml:"workers" mapstructure:"workers"`
	CheckpointStride       int        `json:"checkpoint_stride" yaml:"checkpoint_stride" mapstructure:"checkpoint_stride"`
	Aggregation            string     `json:"aggregation" yaml:"aggregation" mapstructure:"aggregation"` // summary, raw
	MaxConsecutiveFailures int        `json:"max_consecutive_failures" yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// ModelConfig holds the fixed model globals
type ModelConfig struct {
	Population      int     `json:"population" yaml:"population" mapstructure:"population"`
	Precision       float64 `json:"precision" yaml:"precision" mapstructure:"precision"` // var-c
	VarD            float64 `json:"var_d" yaml:"var_d" mapstructure:"var_d"`
	UpdateType      int     `json:"update_type" yaml:"update_type" mapstructure:"update_type"`
	NetworkType     string  `json:"network_type" yaml:"network_type" mapstructure:"network_type"` // random, scale-free
	Density         float64 `json:"density" yaml:"density" mapstructure:"density"`
	Pref            int     `json:"pref" yaml:"pref" mapstructure:"pref"`
	InitialSampling string  `json:"initial_sampling" yaml:"initial_sampling" mapstructure:"initial_sampling"`
	TrueMean        float64 `json:"true_mean" yaml:"true_mean" mapstructure:"true_mean"`
	TrueVariance    float64 `json:"true_variance" yaml:"true_variance" mapstructure:"true_variance"`
}

// ReductionConfig configures divergence and graph metrics
type ReductionConfig struct {
	// NBins is the histogram bin count; 0 means population/10
	NBins int `json:"nbins" yaml:"nbins" mapstructure:"nbins"`

	Spread string `json:"spread" yaml:"spread" mapstructure:"spread"` // power_law, exponential

	// InitialSpread is d0; 0 means sqrt(true_variance)
	InitialSpread float64 `json:"initial_spread" yaml:"initial_spread" mapstructure:"initial_spread"`
	Tau           float64 `json:"tau" yaml:"tau" mapstructure:"tau"`
	Floor         float64 `json:"floor" yaml:"floor" mapstructure:"floor"`
	Friends       int     `json:"friends" yaml:"friends" mapstructure:"friends"`
	Horizon       float64 `json:"horizon" yaml:"horizon" mapstructure:"horizon"`

	Assortativity bool `json:"assortativity" yaml:"assortativity" mapstructure:"assortativity"`
	Transitivity  bool `json:"transitivity" yaml:"transitivity" mapstructure:"transitivity"`

	// Trace records the divergence at every checkpoint
	Trace bool `json:"trace" yaml:"trace" mapstructure:"trace"`
}

// EngineConfig describes how to start engines
type EngineConfig struct {
	// Path is the engine binary; empty runs the in-process reference engine
	Path         string   `json:"path" yaml:"path" mapstructure:"path"`
	Seed         uint64   `json:"seed" yaml:"seed" mapstructure:"seed"` // reference engine only; 0 seeds from the clock
	Args         []string `json:"args" yaml:"args" mapstructure:"args"`
	ModelPath    string   `json:"model_path" yaml:"model_path" mapstructure:"model_path"`
	CallTimeout  int      `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`    // seconds
	StartTimeout int      `json:"start_timeout" yaml:"start_timeout" mapstructure:"start_timeout"` // seconds
}

// OutputConfig holds artifact and ledger locations
type OutputConfig struct {
	Dir      string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level" mapstructure:"level"`
	Console  bool   `json:"console" yaml:"console" mapstructure:"console"`
	Pretty   bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	File     string `json:"file" yaml:"file" mapstructure:"file"`
	MaxSize  int    `json:"max_size" yaml:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" yaml:"max_age" mapstructure:"max_age"`    // days
	Compress bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
}

// MetricsConfig holds the prometheus endpoint
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Sweep: SweepConfig{
			Beta:                   sweep.Axis{Start: 0.2, Stop: 2, Num: 3},
			Dist:                   sweep.Axis{Start: 0, Stop: 2, Num: 3},
			Repetitions:            5,
			Iterations:             60,
			Workers:                4,
			CheckpointStride:       10,
			Aggregation:            string(sweep.AggregateSummary),
			MaxConsecutiveFailures: 3,
		},
		Model: ModelConfig{
			Population:      1000,
			Precision:       10,
			VarD:            2,
			UpdateType:      2,
			NetworkType:     "scale-free",
			Density:         0.01,
			Pref:            1,
			InitialSampling: "bivariate",
			TrueMean:        0,
			TrueVariance:    1,
		},
		Reduction: ReductionConfig{
			NBins:         0,
			Spread:        "power_law",
			InitialSpread: 0,
			Tau:           10,
			Floor:         0.5,
			Friends:       10,
			Horizon:       60,
			Assortativity: true,
			Transitivity:  true,
		},
		Engine: EngineConfig{
			Args:         []string{},
			CallTimeout:  60,
			StartTimeout: 30,
		},
		Output: OutputConfig{
			Dir:      "outputs",
			Database: "",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Pretty:   true,
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "echosweep",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
