package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/pkg/export"
)

var bootstrapScenarios []string

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Estimate a confidence interval of the mean daily cost per scenario",
	RunE:  bootstrap,
}

func init() {
	bootstrapCmd.Flags().StringSliceVarP(&bootstrapScenarios, "scenario", "s", []string{"all"}, "scenarios to run")
	rootCmd.AddCommand(bootstrapCmd)
}

func bootstrap(cmd *cobra.Command, _ []string) error {
	scenarios, err := parseScenarios(bootstrapScenarios)
	if err != nil {
		return err
	}
	ctx, svc, done, err := service()
	if err != nil {
		return err
	}
	defer done()

	ivs, outs, err := svc.Bootstrap(ctx, scenarios...)
	if err != nil {
		return err
	}
	rep := export.Report{Generated: time.Now().UTC(), Final: map[string]model.SystemState{}, Bootstrap: ivs}
	for _, o := range outs {
		rep.Summaries = append(rep.Summaries, o.Summary)
		rep.Final[o.Scenario.String()] = o.Result.Final
	}
	if err := writeReport(rep); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, o := range outs {
		iv := ivs[o.Scenario.String()]
		fmt.Fprintf(w, "%-14s mean daily cost £%.3f, %.0f%% CI [%.3f, %.3f]\n", o.Scenario.Label(), iv.Mean, iv.Level*100, iv.Lower, iv.Upper)
	}
	return nil
}
