// Package export writes simulation results as CSV, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/pvbess/core/kpi"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/sweep"
)

// RecordColumns is the header written by WriteRecordsCSV.
var RecordColumns = []string{
	"time_index", "timestamp", "charge_kw", "discharge_kw", "curtail_kw",
	"pv_kw", "load_kw", "import_kw", "export_kw", "unserved_kw",
	"cost_gbp", "carbon_kg", "battery_cycle_cost_gbp", "battery_calendar_cost_gbp", "pv_degradation_cost_gbp",
	"soc", "soh", "cycle_count", "pv_derating", "solver", "fallback", "clamped",
}

// SummaryColumns is the header written by WriteSummariesCSV.
var SummaryColumns = []string{
	"scenario", "annual_cost_gbp", "equivalent_full_cycles", "capacity_fade_pct",
	"pv_derating_pct", "co2_avoided_kg", "demand_served_pct", "self_consumed_pct", "fallbacks", "clamped",
}

// FrontierColumns is the header written by WriteFrontierCSV.
var FrontierColumns = []string{"index", "lambda_batt", "lambda_pv", "annual_cost_gbp", "equivalent_full_cycles", "capacity_fade_pct", "pv_derating_pct"}

// Report is the document written by WriteYAML and WriteJSON.
type Report struct {
	Generated time.Time                    `json:"generated" yaml:"generated"`
	Summaries []kpi.Summary                `json:"summaries" yaml:"summaries"`
	Final     map[string]model.SystemState `json:"final_state,omitempty" yaml:"final_state,omitempty"`
	Bootstrap map[string]kpi.Interval      `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`
}

// WriteRecordsCSV writes one row per step record.
func WriteRecordsCSV(w io.Writer, recs []model.StepRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			strconv.Itoa(r.TimeIndex),
			r.Timestamp.Format(time.RFC3339),
			ftoa(r.Action.ChargeKW),
			ftoa(r.Action.DischargeKW),
			ftoa(r.Action.CurtailKW),
			ftoa(r.PVKW),
			ftoa(r.LoadKW),
			ftoa(r.ImportKW),
			ftoa(r.ExportKW),
			ftoa(r.UnservedKW),
			ftoa(r.CostGBP),
			ftoa(r.CarbonKg),
			ftoa(r.BatteryCycleCostGBP),
			ftoa(r.BatteryCalendarCostGBP),
			ftoa(r.PVDegradationCostGBP),
			ftoa(r.State.BatterySoC),
			ftoa(r.State.BatterySoH),
			ftoa(r.State.BatteryCycleCount),
			ftoa(r.State.PVDeratingFactor),
			r.Solver,
			r.Fallback,
			strconv.FormatBool(r.Clamped),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummariesCSV writes one row per KPI summary.
func WriteSummariesCSV(w io.Writer, sums []kpi.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryColumns); err != nil {
		return err
	}
	for _, s := range sums {
		row := []string{
			s.Scenario,
			ftoa(s.AnnualCostGBP),
			ftoa(s.EquivalentFullCycles),
			ftoa(s.CapacityFadePct),
			ftoa(s.PVDeratingPct),
			ftoa(s.CO2AvoidedKg),
			ftoa(s.DemandServedPct),
			ftoa(s.SelfConsumedPct),
			strconv.Itoa(s.Fallbacks),
			strconv.Itoa(s.Clamped),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFrontierCSV writes the sweep outcomes that did not fail, one row each.
func WriteFrontierCSV(w io.Writer, outs []sweep.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FrontierColumns); err != nil {
		return err
	}
	for _, o := range outs {
		if o.Err != nil {
			continue
		}
		row := []string{
			strconv.Itoa(o.Index),
			ftoa(o.Weights.Batt),
			ftoa(o.Weights.PV),
			ftoa(o.Summary.AnnualCostGBP),
			ftoa(o.Summary.EquivalentFullCycles),
			ftoa(o.Summary.CapacityFadePct),
			ftoa(o.Summary.PVDeratingPct),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Write encodes v in format, one of "json" or "yaml".
func Write(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		return WriteJSON(w, v)
	case "yaml", "yml":
		return WriteYAML(w, v)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
