package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/core/sweep"
	"github.com/kilianp07/pvbess/pkg/export"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the Pareto sweep over the configured lambda grid",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx, svc, done, err := service()
	if err != nil {
		return err
	}
	defer done()

	outs, err := svc.Sweep(ctx)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	failed := 0
	for _, o := range outs {
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "configuration %d (λ_batt=%v, λ_pv=%v) failed: %v\n", o.Index, o.Weights.Batt, o.Weights.PV, o.Err)
		}
	}
	sorted := sweep.SortByCost(outs)
	front := sweep.Frontier(outs)
	if _, err := writeFile("pareto.csv", func(w io.Writer) error {
		return export.WriteFrontierCSV(w, sorted)
	}); err != nil {
		return err
	}
	path, err := writeFile("frontier.csv", func(w io.Writer) error {
		return export.WriteFrontierCSV(w, front)
	})
	if err != nil {
		return err
	}
	for _, o := range front {
		printSummary(w, fmt.Sprintf("λ=%v/%v", o.Weights.Batt, o.Weights.PV), o.Summary)
	}
	fmt.Fprintf(w, "%d configurations, %d on the frontier, %d failed; frontier written to %s\n", len(outs), len(front), failed, path)
	return nil
}
