// Package kpi computes run indicators as pure post-processing over the
// committed step records.
package kpi

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/pvbess/core/model"
)

const hoursPerYear = 8760

// Summary holds the indicators of one run.
type Summary struct {
	Scenario string `json:"scenario" yaml:"scenario"`
	Steps    int    `json:"steps" yaml:"steps"`

	AnnualCostGBP     float64 `json:"annual_cost_gbp" yaml:"annual_cost_gbp"`
	AnnualisedCostGBP float64 `json:"annualised_cost_gbp" yaml:"annualised_cost_gbp"`
	MeanStepCostGBP   float64 `json:"mean_step_cost_gbp" yaml:"mean_step_cost_gbp"`

	EquivalentFullCycles  float64 `json:"equivalent_full_cycles" yaml:"equivalent_full_cycles"`
	CapacityFadePct       float64 `json:"capacity_fade_pct" yaml:"capacity_fade_pct"`
	PVDeratingPct         float64 `json:"pv_derating_pct" yaml:"pv_derating_pct"`
	BatteryDegradationGBP float64 `json:"battery_degradation_gbp" yaml:"battery_degradation_gbp"`
	PVDegradationGBP      float64 `json:"pv_degradation_gbp" yaml:"pv_degradation_gbp"`

	CO2AvoidedKg    float64 `json:"co2_avoided_kg" yaml:"co2_avoided_kg"`
	NetCarbonKg     float64 `json:"net_carbon_kg" yaml:"net_carbon_kg"`
	DemandServedPct float64 `json:"demand_served_pct" yaml:"demand_served_pct"`
	SelfConsumedPct float64 `json:"self_consumed_pct" yaml:"self_consumed_pct"`

	ImportKWh     float64 `json:"import_kwh" yaml:"import_kwh"`
	ExportKWh     float64 `json:"export_kwh" yaml:"export_kwh"`
	PVKWh         float64 `json:"pv_kwh" yaml:"pv_kwh"`
	CurtailedKWh  float64 `json:"curtailed_kwh" yaml:"curtailed_kwh"`
	ChargedKWh    float64 `json:"charged_kwh" yaml:"charged_kwh"`
	DischargedKWh float64 `json:"discharged_kwh" yaml:"discharged_kwh"`

	Fallbacks int  `json:"fallbacks" yaml:"fallbacks"`
	Clamped   int  `json:"clamped" yaml:"clamped"`
	EndOfLife bool `json:"end_of_life" yaml:"end_of_life"`
}

// Summarize computes the indicators of records produced under cfg. It
// returns a zero Summary for an empty run.
func Summarize(cfg model.ScenarioConfig, records []model.StepRecord) Summary {
	s := Summary{Scenario: cfg.Scenario.String(), Steps: len(records)}
	if len(records) == 0 {
		return s
	}
	h := cfg.StepHours()
	var loadKWh, unservedKWh float64
	for _, r := range records {
		s.AnnualCostGBP += r.CostGBP
		s.NetCarbonKg += r.CarbonKg
		s.BatteryDegradationGBP += r.BatteryCalendarCostGBP + r.BatteryCycleCostGBP
		s.PVDegradationGBP += r.PVDegradationCostGBP

		s.ImportKWh += r.ImportKW * h
		s.ExportKWh += r.ExportKW * h
		s.PVKWh += r.PVKW * h
		s.CurtailedKWh += r.Action.CurtailKW * h
		s.ChargedKWh += r.Action.ChargeKW * h
		s.DischargedKWh += r.Action.DischargeKW * h
		loadKWh += r.LoadKW * h
		unservedKWh += r.UnservedKW * h

		// energy displaced from the grid by PV export and battery discharge
		avoided := math.Max(0, r.ExportKW+r.Action.DischargeKW-r.ImportKW)
		s.CO2AvoidedKg += avoided * r.CarbonGPerKWh * h / 1000

		if r.Fallback != "" {
			s.Fallbacks++
		}
		if r.Clamped {
			s.Clamped++
		}
		s.EndOfLife = s.EndOfLife || r.EndOfLife
	}
	s.MeanStepCostGBP = s.AnnualCostGBP / float64(len(records))
	if hours := float64(len(records)) * h; hours > 0 {
		s.AnnualisedCostGBP = s.AnnualCostGBP * hoursPerYear / hours
	}
	if cfg.Battery.CapacityKWh > 0 {
		s.EquivalentFullCycles = s.DischargedKWh / cfg.Battery.CapacityKWh
	}
	final := records[len(records)-1].State
	s.CapacityFadePct = (1 - final.BatterySoH) * 100
	s.PVDeratingPct = (1 - final.PVDeratingFactor) * 100
	s.DemandServedPct = 100
	if loadKWh > 0 {
		s.DemandServedPct = (1 - unservedKWh/loadKWh) * 100
	}
	if s.PVKWh > 0 {
		s.SelfConsumedPct = math.Max(0, s.PVKWh-s.ExportKWh) / s.PVKWh * 100
	}
	return s
}

// DailyCost is the realised energy cost of one calendar day.
type DailyCost struct {
	Day     time.Time `json:"day" yaml:"day"`
	CostGBP float64   `json:"cost_gbp" yaml:"cost_gbp"`
	Steps   int       `json:"steps" yaml:"steps"`
}

// DailyCosts groups the cost of records by the UTC day of their timestamp,
// in chronological order.
func DailyCosts(records []model.StepRecord) []DailyCost {
	var out []DailyCost
	for _, r := range records {
		day := Day(r.Timestamp)
		if n := len(out); n > 0 && out[n-1].Day.Equal(day) {
			out[n-1].CostGBP += r.CostGBP
			out[n-1].Steps++
			continue
		}
		out = append(out, DailyCost{Day: day, CostGBP: r.CostGBP, Steps: 1})
	}
	return out
}

// Values returns the cost column of days.
func Values(days []DailyCost) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = d.CostGBP
	}
	return out
}

// ErrNoSamples is returned when a bootstrap has nothing to resample.
var ErrNoSamples = errors.New("kpi: no samples")

// Interval is a bootstrap confidence interval of a mean.
type Interval struct {
	Mean    float64 `json:"mean" yaml:"mean"`
	Lower   float64 `json:"lower" yaml:"lower"`
	Upper   float64 `json:"upper" yaml:"upper"`
	Level   float64 `json:"level" yaml:"level"`
	Samples int     `json:"samples" yaml:"samples"`
}

// BootstrapConfig configures BootstrapMean.
type BootstrapConfig struct {
	Samples int     `json:"samples"`
	Seed    uint64  `json:"seed"`
	Level   float64 `json:"level"`
}

// DefaultBootstrapConfig returns 1000 resamples at the 95 % level.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{Samples: 1000, Level: 0.95}
}

// BootstrapMean resamples values with replacement and returns the percentile
// interval of the resampled means. Equal seeds give equal intervals.
func BootstrapMean(values []float64, cfg BootstrapConfig) (Interval, error) {
	if len(values) == 0 {
		return Interval{}, ErrNoSamples
	}
	if cfg.Samples < 1 {
		return Interval{}, model.ConfigErrorf("bootstrap.samples", "must be >= 1, got %d", cfg.Samples)
	}
	if cfg.Level <= 0 || cfg.Level >= 1 {
		return Interval{}, model.ConfigErrorf("bootstrap.level", "must be in (0, 1), got %v", cfg.Level)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	means := make([]float64, cfg.Samples)
	sample := make([]float64, len(values))
	for i := range means {
		for j := range sample {
			sample[j] = values[rng.IntN(len(values))]
		}
		means[i] = floats.Sum(sample) / float64(len(sample))
	}
	sort.Float64s(means)
	alpha := (1 - cfg.Level) / 2
	return Interval{
		Mean:    stat.Mean(values, nil),
		Lower:   stat.Quantile(alpha, stat.LinInterp, means, nil),
		Upper:   stat.Quantile(1-alpha, stat.LinInterp, means, nil),
		Level:   cfg.Level,
		Samples: cfg.Samples,
	}, nil
}
