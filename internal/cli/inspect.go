package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/harun/echosweep/pkg/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	inspectLimit  int
	inspectFollow bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [sweep-id]",
	Short: "Show recorded sweeps",
	Long: `Without arguments, list the most recent sweeps in the ledger. With a
sweep id or a unique id prefix, show the sweep and the status of every
recorded grid point. --follow keeps printing as a running sweep progresses.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "maximum number of sweeps to list")
	inspectCmd.Flags().BoolVarP(&inspectFollow, "follow", "f", false, "reprint the sweep while it is running")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Output.Database); err != nil {
		return fmt.Errorf("no ledger at %s", cfg.Output.Database)
	}

	ledger, err := store.OpenLedger(cfg.Output.Database, zerolog.Nop())
	if err != nil {
		return err
	}
	defer ledger.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listSweeps(cmd.Context(), out, ledger, inspectLimit)
	}
	if !inspectFollow {
		_, err := showSweep(cmd.Context(), out, ledger, args[0])
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followSweep(ctx, out, ledger, cfg.Output.Database, args[0])
}

func listSweeps(ctx context.Context, out io.Writer, ledger *store.Ledger, limit int) error {
	sweeps, err := ledger.ListSweeps(ctx, limit)
	if err != nil {
		return err
	}
	if len(sweeps) == 0 {
		fmt.Fprintln(out, "No sweeps recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tSHAPE\tREPS")
	for _, s := range sweeps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\n",
			s.ID, s.StartedAt.Format(time.DateTime), s.Status, s.Shape[0], s.Shape[1], s.Repetitions)
	}
	return w.Flush()
}

// showSweep prints one sweep and its grid points and returns its record.
func showSweep(ctx context.Context, out io.Writer, ledger *store.Ledger, id string) (store.SweepRecord, error) {
	s, err := ledger.GetSweep(ctx, id)
	if err != nil {
		return store.SweepRecord{}, err
	}
	points, err := ledger.Points(ctx, s.ID)
	if err != nil {
		return store.SweepRecord{}, err
	}

	fmt.Fprintf(out, "Sweep: %s\n", s.ID)
	fmt.Fprintf(out, "Status: %s\n", s.Status)
	fmt.Fprintf(out, "Started: %s\n", s.StartedAt.Format(time.DateTime))
	if s.FinishedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Shape: %d x %d, %d repetitions\n", s.Shape[0], s.Shape[1], s.Repetitions)
	fmt.Fprintf(out, "Output: %s\n", s.OutputDir)
	fmt.Fprintf(out, "Recorded: %d/%d points\n", len(points), s.Points)

	if len(points) == 0 {
		return s, nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tBETA\tDIST\tSTATUS\tKL_END\tSCC\tDETAIL")
	for _, p := range points {
		kl, scc, detail := "-", "-", p.Reason
		if p.Summary != nil {
			kl = fmt.Sprintf("%.4g", p.Summary.DivergenceEnd.Mean)
			if p.Summary.Components != nil {
				scc = fmt.Sprintf("%.4g", p.Summary.Components.SCCCount.Mean)
			}
		}
		fmt.Fprintf(w, "%d\t%g\t%g\t%s\t%s\t%s\t%s\n", p.Index, p.Beta, p.Dist, p.Status, kl, scc, detail)
	}
	return s, w.Flush()
}

// followSweep reprints the sweep whenever the ledger changes until the
// sweep leaves the running state or ctx is done.
func followSweep(ctx context.Context, out io.Writer, ledger *store.Ledger, dbPath, id string) error {
	changed := make(chan struct{}, 1)
	watcher, err := store.NewLedgerWatcher(dbPath, 0, zerolog.Nop(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch ledger: %w", err)
	}
	defer watcher.Stop()

	for {
		s, err := showSweep(ctx, out, ledger, id)
		if err != nil {
			return err
		}
		if s.Status != store.SweepRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			fmt.Fprintln(out)
		}
	}
}
