package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/harun/echosweep/pkg/sweep"
	"github.com/spf13/cobra"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the parameter grid",
	Long: `Print every grid point of the configured sweep with its index, the
values accepted by run --only.`,
	RunE: runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	grid, err := cfg.Grid()
	if err != nil {
		return err
	}
	return printGrid(cmd.OutOrStdout(), grid)
}

func printGrid(out io.Writer, grid *sweep.ParameterGrid) error {
	shape := grid.Shape()
	fmt.Fprintf(out, "Shape: %d x %d (beta x dist), %d points\n", shape[0], shape[1], grid.Len())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tBETA\tDIST")
	for _, p := range grid.Points() {
		fmt.Fprintf(w, "%d\t%g\t%g\n", p.Index, p.Beta, p.Dist)
	}
	return w.Flush()
}
