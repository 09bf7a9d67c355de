package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/pvbess/core/model"
)

var day0 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

func testConfig() model.ScenarioConfig {
	cfg := model.DefaultScenarioConfig()
	cfg.StepDuration = time.Hour
	cfg.Battery.CapacityKWh = 10
	return cfg
}

func TestSummarize(t *testing.T) {
	cfg := testConfig()
	recs := []model.StepRecord{
		{
			Timestamp:     day0,
			Action:        model.Action{DischargeKW: 2},
			LoadKW:        2,
			CarbonGPerKWh: 200,
			State:         model.SystemState{BatterySoH: 0.999, PVDeratingFactor: 1},
		},
		{
			Timestamp:              day0.Add(time.Hour),
			Action:                 model.Action{ChargeKW: 1, CurtailKW: 0.5},
			PVKW:                   3,
			LoadKW:                 1,
			ExportKW:               1,
			ExportPrice:            0.05,
			CostGBP:                -0.05,
			CarbonKg:               -0.2,
			CarbonGPerKWh:          200,
			BatteryCycleCostGBP:    0.01,
			BatteryCalendarCostGBP: 0.002,
			PVDegradationCostGBP:   0.003,
			Fallback:               "infeasible",
			State:                  model.SystemState{BatterySoH: 0.998, PVDeratingFactor: 0.999},
		},
		{
			Timestamp:     day0.Add(2 * time.Hour),
			LoadKW:        2,
			ImportKW:      1,
			UnservedKW:    1,
			ImportPrice:   0.3,
			CostGBP:       0.3,
			CarbonKg:      0.2,
			CarbonGPerKWh: 200,
			Clamped:       true,
			State:         model.SystemState{BatterySoH: 0.998, PVDeratingFactor: 0.999},
		},
	}
	s := Summarize(cfg, recs)
	assert.Equal(t, 3, s.Steps)
	assert.InDelta(t, 0.25, s.AnnualCostGBP, 1e-12)
	assert.InDelta(t, 0.25*8760/3, s.AnnualisedCostGBP, 1e-9)
	assert.InDelta(t, 0.2, s.EquivalentFullCycles, 1e-12)
	assert.InDelta(t, 0.2, s.CapacityFadePct, 1e-9)
	assert.InDelta(t, 0.1, s.PVDeratingPct, 1e-9)
	assert.InDelta(t, 0.012, s.BatteryDegradationGBP, 1e-12)
	assert.InDelta(t, 0.003, s.PVDegradationGBP, 1e-12)
	// 2 kWh discharged plus 1 kWh exported at 200 g/kWh
	assert.InDelta(t, 0.6, s.CO2AvoidedKg, 1e-12)
	assert.InDelta(t, 0, s.NetCarbonKg, 1e-12)
	assert.InDelta(t, 80, s.DemandServedPct, 1e-9)
	assert.InDelta(t, 200.0/3, s.SelfConsumedPct, 1e-9)
	assert.InDelta(t, 0.5, s.CurtailedKWh, 1e-12)
	assert.Equal(t, 1, s.Fallbacks)
	assert.Equal(t, 1, s.Clamped)
	assert.False(t, s.EndOfLife)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(testConfig(), nil)
	assert.Zero(t, s.Steps)
	assert.Zero(t, s.AnnualCostGBP)
}

func TestDailyCosts(t *testing.T) {
	var recs []model.StepRecord
	for i := 0; i < 72; i++ {
		recs = append(recs, model.StepRecord{Timestamp: day0.Add(time.Duration(i) * time.Hour), CostGBP: float64(i / 24)})
	}
	days := DailyCosts(recs)
	require.Len(t, days, 3)
	assert.Equal(t, day0, days[0].Day)
	assert.Equal(t, 24, days[1].Steps)
	assert.Equal(t, []float64{0, 24, 48}, Values(days))
}

func TestBootstrapMean(t *testing.T) {
	values := []float64{1.2, 0.8, 1.5, 0.9, 1.1, 1.4, 0.7, 1.0, 1.3, 0.6}
	cfg := BootstrapConfig{Samples: 2000, Seed: 7, Level: 0.95}
	a, err := BootstrapMean(values, cfg)
	require.NoError(t, err)
	b, err := BootstrapMean(values, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b, "seeded bootstrap is reproducible")

	assert.InDelta(t, 1.05, a.Mean, 1e-12)
	assert.Less(t, a.Lower, a.Mean)
	assert.Greater(t, a.Upper, a.Mean)
	assert.GreaterOrEqual(t, a.Lower, 0.6)
	assert.LessOrEqual(t, a.Upper, 1.5)

	other, err := BootstrapMean(values, BootstrapConfig{Samples: 2000, Seed: 8, Level: 0.95})
	require.NoError(t, err)
	assert.NotEqual(t, a.Lower, other.Lower)

	narrow, err := BootstrapMean(values, BootstrapConfig{Samples: 2000, Seed: 7, Level: 0.5})
	require.NoError(t, err)
	assert.Less(t, narrow.Upper-narrow.Lower, a.Upper-a.Lower)
}

func TestBootstrapMeanErrors(t *testing.T) {
	_, err := BootstrapMean(nil, DefaultBootstrapConfig())
	assert.ErrorIs(t, err, ErrNoSamples)

	var ce *model.ConfigurationError
	_, err = BootstrapMean([]float64{1}, BootstrapConfig{Samples: 0, Level: 0.95})
	assert.ErrorAs(t, err, &ce)
	_, err = BootstrapMean([]float64{1}, BootstrapConfig{Samples: 10, Level: 1})
	assert.ErrorAs(t, err, &ce)
}

func TestBootstrapConstantSeries(t *testing.T) {
	iv, err := BootstrapMean([]float64{2, 2, 2}, DefaultBootstrapConfig())
	require.NoError(t, err)
	assert.Equal(t, Interval{Mean: 2, Lower: 2, Upper: 2, Level: 0.95, Samples: 1000}, iv)
}
