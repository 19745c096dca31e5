package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/harun/echosweep/internal/config"
	"github.com/harun/echosweep/internal/metrics"
	"github.com/harun/echosweep/internal/tracing"
	"github.com/harun/echosweep/pkg/engine"
	"github.com/harun/echosweep/pkg/store"
	"github.com/harun/echosweep/pkg/sweep"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	runOnly    []int
	runWorkers int
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a parameter sweep",
	Long: `Run the configured (beta, dist) sweep. Every grid point is repeated,
reduced to divergence and connectivity observables and written to the
output directory together with the ledger entry of the sweep.

Use --only to rerun a subset of grid point indices; the other points are
reported incomplete.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntSliceVar(&runOnly, "only", nil, "grid point indices to run (default all)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "override the number of workers")
	runCmd.Flags().StringVar(&runOutput, "output", "", "override the output directory")
	rootCmd.AddCommand(runCmd)
}

// IncompleteSweepError is returned when a sweep finished with grid points
// that have no result.
type IncompleteSweepError struct {
	SweepID    string
	Failed     []int
	Incomplete []int
}

func (e *IncompleteSweepError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("failed points %v", e.Failed))
	}
	if len(e.Incomplete) > 0 {
		parts = append(parts, fmt.Sprintf("incomplete points %v", e.Incomplete))
	}
	return fmt.Sprintf("sweep %s finished with %s", e.SweepID, strings.Join(parts, " and "))
}

// sweepReport is what a finished sweep left behind
type sweepReport struct {
	SweepID   string
	Status    string
	Tensor    *sweep.ResultTensor
	Artifacts store.Artifacts
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runWorkers > 0 {
		cfg.Sweep.Workers = runWorkers
	}
	if runOutput != "" {
		if cfg.Output.Database == filepath.Join(cfg.Output.Dir, config.LedgerFile) {
			cfg.Output.Database = filepath.Join(runOutput, config.LedgerFile)
		}
		cfg.Output.Dir = runOutput
	}

	l, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	logger := l.GetZerolog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := cfg.EngineFactory(l.Component("engine"))
	if err != nil {
		return err
	}

	report, err := executeSweep(ctx, cfg, factory, runOnly, logger)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return incompleteError(report)
}

// executeSweep runs one sweep end to end: it records the sweep in the
// ledger, processes the grid and writes the artifacts. Cancelling ctx stops
// the sweep; whatever finished is still written.
func executeSweep(ctx context.Context, cfg *config.Config, factory engine.Factory, only []int, logger zerolog.Logger) (*sweepReport, error) {
	grid, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	if _, err := grid.Select(only); err != nil {
		return nil, err
	}
	agg, err := cfg.Aggregator()
	if err != nil {
		return nil, err
	}

	sweepID := tracing.NewSweepID()
	ctx = tracing.WithSweepID(ctx, sweepID)
	logger = tracing.LoggerFromContext(ctx, logger)

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			defer tracing.ShutdownOpenTelemetry(tracing.Detach(ctx))
		}
	}

	m := metrics.NewMetrics()
	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(tracing.Detach(ctx))
		defer cancel()
		if _, err := m.Serve(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
			return nil, fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output.Database), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	ledger, err := store.OpenLedger(cfg.Output.Database, logger)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	outDir := filepath.Join(cfg.Output.Dir, sweepID)
	err = ledger.BeginSweep(ctx, store.SweepRecord{
		ID:          sweepID,
		Status:      store.SweepRunning,
		Points:      grid.Len(),
		Shape:       grid.Shape(),
		Repetitions: cfg.Sweep.Repetitions,
		OutputDir:   outDir,
		Config:      cfg.String(),
	})
	if err != nil {
		return nil, err
	}

	// the ledger must see points finished during shutdown too
	recordCtx := tracing.Detach(ctx)
	pool := sweep.NewWorkerPool(factory, agg,
		sweep.WithWorkers(cfg.Sweep.Workers),
		sweep.WithMaxConsecutiveFailures(cfg.Sweep.MaxConsecutiveFailures),
		sweep.WithLogger(logger),
		sweep.WithRecorder(m),
		sweep.WithProgress(func(p sweep.Progress) {
			if err := ledger.RecordProgress(recordCtx, sweepID, p); err != nil {
				logger.Warn().Err(err).Int("grid_index", p.Point.Index).Msg("Failed to record progress")
			}
		}),
	)

	tensor, err := pool.Run(ctx, grid, only)
	if err != nil {
		ledger.FinishSweep(recordCtx, sweepID, store.SweepCancelled)
		return nil, err
	}

	artifacts, err := store.WriteArtifacts(outDir, sweepID, agg.Mode, agg.Repetitions, tensor)
	if err != nil {
		ledger.FinishSweep(recordCtx, sweepID, store.SweepPartial)
		return nil, err
	}

	status := store.StatusOf(tensor, ctx.Err() != nil)
	if err := ledger.FinishSweep(recordCtx, sweepID, status); err != nil {
		return nil, err
	}
	logger.Info().Str("status", status).Str("output", outDir).Msg("Sweep recorded")

	return &sweepReport{
		SweepID:   sweepID,
		Status:    status,
		Tensor:    tensor,
		Artifacts: artifacts,
	}, nil
}

func printReport(w io.Writer, r *sweepReport) {
	fmt.Fprintf(w, "Sweep: %s\n", r.SweepID)
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	fmt.Fprintf(w, "Shape: %d x %d (beta x dist)\n", r.Tensor.Shape[0], r.Tensor.Shape[1])
	fmt.Fprintf(w, "Output: %s\n", r.Artifacts.Dir)
	for _, f := range r.Tensor.Failures {
		fmt.Fprintf(w, "  %s\n", f.Error())
	}
}

func incompleteError(r *sweepReport) error {
	if r.Tensor.Complete() {
		return nil
	}
	e := &IncompleteSweepError{SweepID: r.SweepID}
	for _, f := range r.Tensor.Failures {
		if f.Kind == sweep.FailureFailed {
			e.Failed = append(e.Failed, f.Index)
		} else {
			e.Incomplete = append(e.Incomplete, f.Index)
		}
	}
	sort.Ints(e.Failed)
	sort.Ints(e.Incomplete)
	return e
}
