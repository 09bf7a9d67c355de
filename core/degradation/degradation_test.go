package degradation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() Model {
	return New(model.DefaultScenarioConfig())
}

func TestApplyBatteryStressZeroDuration(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	out, err := m.ApplyBatteryStress(st, 3, 0, 25)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.SoH)
	assert.Zero(t, out.CostGBP())
	assert.Zero(t, out.CalendarAgeH)
	assert.Zero(t, out.CycleCount)
}

func TestApplyBatteryStressZeroPower(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	out, err := m.ApplyBatteryStress(st, 0, time.Hour, 25)
	require.NoError(t, err)
	assert.Zero(t, out.CycleLoss)
	assert.Zero(t, out.CycleCostGBP)
	assert.Zero(t, out.CycleCount)
	assert.False(t, math.IsNaN(out.CalendarLoss))
	assert.GreaterOrEqual(t, out.CalendarLoss, 0.0)
	assert.Equal(t, 1.0, out.CalendarAgeH)
}

func TestApplyBatteryStressMonotonic(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	for _, p := range []float64{-5, -1, 0, 2, 5} {
		out, err := m.ApplyBatteryStress(st, p, 30*time.Minute, 30)
		require.NoError(t, err)
		if out.SoH > st.BatterySoH {
			t.Fatalf("soh increased at p=%v: %v", p, out.SoH)
		}
		if out.CycleCount < st.BatteryCycleCount || out.CalendarAgeH < st.BatteryCalendarAgeH {
			t.Fatalf("accumulator decreased at p=%v", p)
		}
		if out.CalendarCostGBP < 0 || out.CycleCostGBP < 0 {
			t.Fatalf("negative cost at p=%v", p)
		}
	}
}

func TestApplyBatteryStressSymmetricInSign(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	ch, err := m.ApplyBatteryStress(st, 2, time.Hour, 25)
	require.NoError(t, err)
	dis, err := m.ApplyBatteryStress(st, -2, time.Hour, 25)
	require.NoError(t, err)
	assert.InDelta(t, ch.CycleLoss, dis.CycleLoss, 1e-15)
	assert.InDelta(t, 0.1, ch.CycleCount, 1e-12)
}

func TestCycleCostConvex(t *testing.T) {
	m := testModel()
	dt := time.Hour
	prev := 0.0
	prevSlope := 0.0
	for p := 0.5; p <= 5; p += 0.5 {
		c := m.CycleCostGBP(p, dt)
		slope := (c - prev) / 0.5
		if slope+1e-12 < prevSlope {
			t.Fatalf("cycle cost not convex at %v: slope %v < %v", p, slope, prevSlope)
		}
		prev, prevSlope = c, slope
	}
}

func TestCalendarLossArrhenius(t *testing.T) {
	m := testModel()
	ref := m.CalendarLoss(0.5, 25, 1)
	hot := m.CalendarLoss(0.5, 40, 1)
	cold := m.CalendarLoss(0.5, 5, 1)
	if !(cold < ref && ref < hot) {
		t.Fatalf("expected cold < ref < hot, got %v %v %v", cold, ref, hot)
	}
	assert.InDelta(t, m.Battery.KCal*0.75, ref, 1e-18)
}

func TestApplyBatteryStressEndOfLifeClamp(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	st.BatterySoH = m.Battery.EOLFloor + 1e-7
	out, err := m.ApplyBatteryStress(st, 5, time.Hour, 25)
	require.NoError(t, err)
	assert.True(t, out.Clamped)
	assert.Equal(t, m.Battery.EOLFloor, out.SoH)
	assert.InDelta(t, 1e-7, out.CalendarLoss+out.CycleLoss, 1e-12)

	again, err := m.ApplyBatteryStress(model.SystemState{BatterySoH: out.SoH, BatterySoC: 0.5}, 5, time.Hour, 25)
	require.NoError(t, err)
	assert.True(t, again.Clamped)
	assert.Zero(t, again.CostGBP())
}

func TestApplyBatteryStressTemperatureOutOfRange(t *testing.T) {
	m := testModel()
	_, err := m.ApplyBatteryStress(model.NewSystemState(0.5), 1, time.Hour, 120)
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestApplyBatteryStressPure(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.7)
	a, _ := m.ApplyBatteryStress(st, 3.3, 15*time.Minute, 31)
	b, _ := m.ApplyBatteryStress(st, 3.3, 15*time.Minute, 31)
	assert.Equal(t, a, b)
}

func TestApplyPVStress(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)

	dark, err := m.ApplyPVStress(st, 0, 10, time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dark.Derating)
	assert.Zero(t, dark.CostGBP)

	full, err := m.ApplyPVStress(st, 800, 45, time.Hour, 1)
	require.NoError(t, err)
	curtailed, err := m.ApplyPVStress(st, 800, 45, time.Hour, 0)
	require.NoError(t, err)
	if !(full.Derating < 1 && curtailed.Derating > full.Derating) {
		t.Fatalf("unexpected derating full=%v curtailed=%v", full.Derating, curtailed.Derating)
	}
	assert.InDelta(t, 0.8, full.ExposureAge, 1e-12)
	assert.Greater(t, full.CostGBP, curtailed.CostGBP)
}

func TestApplyPVStressFloor(t *testing.T) {
	m := testModel()
	st := model.NewSystemState(0.5)
	st.PVDeratingFactor = m.PVAgeing.MinDerating
	out, err := m.ApplyPVStress(st, 1000, 60, time.Hour, 1)
	require.NoError(t, err)
	assert.True(t, out.Clamped)
	assert.Equal(t, m.PVAgeing.MinDerating, out.Derating)
}

func TestApplyPVStressCellTemperature(t *testing.T) {
	m := testModel()
	_, err := m.ApplyPVStress(model.NewSystemState(0.5), 900, 150, time.Hour, 1)
	var cerr *model.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "pv_cell_temperature", cerr.Field)
}

func TestPVOutput(t *testing.T) {
	m := testModel()
	assert.Zero(t, m.PVOutputKW(0, 25, 1))
	assert.InDelta(t, 5.0, m.PVOutputKW(1000, 25, 1), 1e-12)
	assert.InDelta(t, 4.5*(1-0.004*10), m.PVOutputKW(1000, 35, 0.9), 1e-12)
	assert.InDelta(t, 20+25.0/800*800, m.CellTemperatureC(20, 800), 1e-12)
}
