package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pvbess/core/kpi"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/sweep"
	"github.com/kilianp07/pvbess/pkg/export"
)

var scenarioNames []string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the rolling-horizon simulation for one or more scenarios",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().StringSliceVarP(&scenarioNames, "scenario", "s", nil, "scenarios to run (baseline, batt_aware, full_aware or all); the configured scenario when empty")
	rootCmd.AddCommand(simulateCmd)
}

func parseScenarios(names []string) ([]model.Scenario, error) {
	var out []model.Scenario
	for _, n := range names {
		if n == "all" {
			return model.Scenarios, nil
		}
		s, err := model.ParseScenario(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func simulate(cmd *cobra.Command, _ []string) error {
	scenarios, err := parseScenarios(scenarioNames)
	if err != nil {
		return err
	}
	ctx, svc, done, err := service()
	if err != nil {
		return err
	}
	defer done()

	outs, err := svc.Simulate(ctx, scenarios...)
	if err != nil {
		return err
	}
	rep := export.Report{Generated: time.Now().UTC(), Final: map[string]model.SystemState{}}
	for _, o := range outs {
		if o.Err != nil {
			return fmt.Errorf("%s: %w", o.Scenario, o.Err)
		}
		recs := o.Result.Records
		if _, err := writeFile(o.Scenario.String()+"_steps.csv", func(w io.Writer) error {
			return export.WriteRecordsCSV(w, recs)
		}); err != nil {
			return err
		}
		rep.Summaries = append(rep.Summaries, o.Summary)
		rep.Final[o.Scenario.String()] = o.Result.Final
	}
	if err := writeReport(rep); err != nil {
		return err
	}
	printSummaries(cmd.OutOrStdout(), outs)
	return nil
}

func writeReport(rep export.Report) error {
	if _, err := writeFile("summary.csv", func(w io.Writer) error {
		return export.WriteSummariesCSV(w, rep.Summaries)
	}); err != nil {
		return err
	}
	_, err := writeFile(reportName(), func(w io.Writer) error {
		return export.Write(w, format, rep)
	})
	return err
}

func printSummaries(w io.Writer, outs []sweep.Outcome) {
	fmt.Fprintf(w, "%-14s %12s %8s %10s %10s %12s %8s\n", "scenario", "cost_gbp", "efc", "fade_%", "derate_%", "co2_avoid_kg", "served_%")
	for _, o := range outs {
		if o.Err != nil {
			fmt.Fprintf(w, "%-14s failed: %v\n", o.Scenario.Label(), o.Err)
			continue
		}
		printSummary(w, o.Scenario.Label(), o.Summary)
	}
}

func printSummary(w io.Writer, name string, s kpi.Summary) {
	fmt.Fprintf(w, "%-14s %12.2f %8.1f %10.3f %10.3f %12.1f %8.2f\n",
		name, s.AnnualCostGBP, s.EquivalentFullCycles, s.CapacityFadePct, s.PVDeratingPct, s.CO2AvoidedKg, s.DemandServedPct)
}
