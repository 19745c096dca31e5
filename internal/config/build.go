package config

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/harun/echosweep/internal/logger"
	"github.com/harun/echosweep/pkg/engine"
	"github.com/harun/echosweep/pkg/engine/reference"
	"github.com/harun/echosweep/pkg/observable"
	"github.com/harun/echosweep/pkg/sweep"
	"github.com/rs/zerolog"
)

// RunConfig returns the engine configuration shared by every run. The
// swept coordinates are left at zero.
func (c *Config) RunConfig() engine.RunConfig {
	m := c.Model
	return engine.RunConfig{
		Population:      m.Population,
		Precision:       m.Precision,
		VarD:            m.VarD,
		UpdateType:      m.UpdateType,
		NetworkType:     m.NetworkType,
		Density:         m.Density,
		Pref:            m.Pref,
		InitialSampling: m.InitialSampling,
		TrueMean:        m.TrueMean,
		TrueVariance:    m.TrueVariance,
	}
}

// SpreadModel builds the configured reference spread model. An unset
// initial spread falls back to the true standard deviation.
func (c *Config) SpreadModel() (observable.SpreadModel, error) {
	r := c.Reduction
	initial := r.InitialSpread
	if initial <= 0 {
		initial = math.Sqrt(c.Model.TrueVariance)
	}
	return observable.NewSpreadModel(r.Spread, observable.SpreadParams{
		Initial:      initial,
		Tau:          r.Tau,
		Floor:        r.Floor,
		Friends:      r.Friends,
		TrueVariance: c.Model.TrueVariance,
		Horizon:      r.Horizon,
	})
}

// Reducer builds the per-run observable reducer.
func (c *Config) Reducer() (observable.Reducer, error) {
	spread, err := c.SpreadModel()
	if err != nil {
		return observable.Reducer{}, err
	}
	nbins := c.Reduction.NBins
	if nbins == 0 {
		nbins = observable.DefaultBins(c.Model.Population)
	}
	return observable.Reducer{
		Spread: spread,
		NBins:  nbins,
		Graph: observable.GraphOptions{
			Assortativity: c.Reduction.Assortativity,
			Transitivity:  c.Reduction.Transitivity,
		},
		Trace: c.Reduction.Trace,
	}, nil
}

// Grid builds the parameter grid.
func (c *Config) Grid() (*sweep.ParameterGrid, error) {
	return sweep.NewParameterGrid(c.Sweep.Beta, c.Sweep.Dist)
}

// Aggregator builds the repetition aggregator of every grid point.
func (c *Config) Aggregator() (sweep.Aggregator, error) {
	reducer, err := c.Reducer()
	if err != nil {
		return sweep.Aggregator{}, err
	}
	mode, err := sweep.ParseAggregationMode(c.Sweep.Aggregation)
	if err != nil {
		return sweep.Aggregator{}, err
	}
	return sweep.Aggregator{
		Base: c.RunConfig(),
		Runner: sweep.Runner{
			Iterations:       c.Sweep.Iterations,
			CheckpointStride: c.Sweep.CheckpointStride,
		},
		Reducer:     reducer,
		Repetitions: c.Sweep.Repetitions,
		Mode:        mode,
	}, nil
}

// LauncherConfig returns the engine launcher settings.
func (c *Config) LauncherConfig() engine.LauncherConfig {
	return engine.LauncherConfig{
		Path:         c.Engine.Path,
		Args:         c.Engine.Args,
		ModelPath:    c.Engine.ModelPath,
		StartTimeout: time.Duration(c.Engine.StartTimeout) * time.Second,
		CallTimeout:  time.Duration(c.Engine.CallTimeout) * time.Second,
	}
}

// EngineFactory returns the factory workers acquire handles from. An empty
// engine path selects the in-process reference engine; every handle it opens
// draws from its own seed so repetitions differ.
func (c *Config) EngineFactory(logger zerolog.Logger) (engine.Factory, error) {
	if c.Engine.Path != "" {
		return engine.NewLauncher(c.LauncherConfig(), logger)
	}

	seed := c.Engine.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	var next atomic.Uint64
	next.Store(seed)
	return engine.LocalFactory{
		New: func() engine.Engine {
			return reference.New(next.Add(1))
		},
		CallTimeout: time.Duration(c.Engine.CallTimeout) * time.Second,
	}, nil
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	l := c.Logging
	return logger.Config{
		Level:    l.Level,
		File:     l.File,
		Console:  l.Console,
		Pretty:   l.Pretty,
		MaxSize:  l.MaxSize,
		MaxAge:   l.MaxAge,
		Compress: l.Compress,
	}
}
