// Package plant realises one control step on the PV + battery installation:
// action clipping, grid flows, state of charge and ageing.
package plant

import (
	"math"

	"github.com/kilianp07/pvbess/core/degradation"
	"github.com/kilianp07/pvbess/core/model"
)

// clipTol is the power deviation in kW below which a correction is treated
// as numerical noise and not reported.
const clipTol = 1e-6

// Flows are the metered quantities of one step in kW.
type Flows struct {
	PVAvailableKW float64
	PVKW          float64
	LoadKW        float64
	ImportKW      float64
	ExportKW      float64
	UnservedKW    float64
	CellTempC     float64
}

// Outcome is the realised result of one step.
type Outcome struct {
	Action  model.Action
	Flows   Flows
	Battery degradation.BatteryStress
	PV      degradation.PVStress
	State   model.SystemState

	CostGBP  float64
	CarbonKg float64
	// Clipped is set when the requested action had to be changed.
	Clipped bool
}

// Plant applies actions under a fixed configuration.
type Plant struct {
	cfg    model.ScenarioConfig
	model  degradation.Model
	eta    float64
	hours  float64
	socMin float64
	socMax float64
}

// New returns the plant of cfg.
func New(cfg model.ScenarioConfig) Plant {
	lo, hi := cfg.SoCBounds()
	return Plant{
		cfg:    cfg,
		model:  degradation.New(cfg),
		eta:    cfg.Battery.OneWayEfficiency(),
		hours:  cfg.StepHours(),
		socMin: lo,
		socMax: hi,
	}
}

// Model returns the degradation model used by the plant.
func (p Plant) Model() degradation.Model { return p.model }

// Config returns the plant configuration.
func (p Plant) Config() model.ScenarioConfig { return p.cfg }

// AvailablePV returns the available PV power and the cell temperature for
// point given the derating of state.
func (p Plant) AvailablePV(state model.SystemState, point model.ForecastPoint) (kw, cellC float64) {
	cellC = p.model.CellTemperatureC(point.AmbientC, point.IrradianceWm2)
	return p.model.PVOutputKW(point.IrradianceWm2, cellC, state.PVDeratingFactor), cellC
}

// EnergyKWh returns the usable energy capacity at the state's health.
func (p Plant) EnergyKWh(state model.SystemState) float64 {
	return p.model.UsableCapacityKWh(state)
}

// SoCBounds returns the state of charge bounds of the scenario.
func (p Plant) SoCBounds() (lo, hi float64) { return p.socMin, p.socMax }

// ChargeHeadroomKW is the largest charge power that keeps SOC below the
// scenario's upper bound.
func (p Plant) ChargeHeadroomKW(state model.SystemState) float64 {
	room := (p.socMax - state.BatterySoC) * p.EnergyKWh(state) / (p.eta * p.hours)
	return math.Max(0, math.Min(p.cfg.Battery.PMaxKW, room))
}

// DischargeHeadroomKW is the largest discharge power that keeps SOC above
// the scenario's lower bound.
func (p Plant) DischargeHeadroomKW(state model.SystemState) float64 {
	room := (state.BatterySoC - p.socMin) * p.EnergyKWh(state) * p.eta / p.hours
	return math.Max(0, math.Min(p.cfg.Battery.PMaxKW, room))
}

// Allowed reports which battery directions the scenario policy permits at
// point.
func (p Plant) Allowed(point model.ForecastPoint) (charge, discharge bool) {
	cellC := p.model.CellTemperatureC(point.AmbientC, point.IrradianceWm2)
	return !p.cfg.ChargeBlocked(point.TimeIndex), !p.cfg.DischargeBlocked(point.TimeIndex, cellC)
}

// NextSoC returns the state of charge after applying a for one step.
func (p Plant) NextSoC(state model.SystemState, a model.Action) float64 {
	e := p.EnergyKWh(state)
	if e <= 0 {
		return state.BatterySoC
	}
	return state.BatterySoC + (p.eta*a.ChargeKW-a.DischargeKW/p.eta)*p.hours/e
}

// Clip forces a within the physical bounds of the current state. The
// returned flag is set when a correction beyond numerical noise was needed.
func (p Plant) Clip(state model.SystemState, a model.Action, point model.ForecastPoint) (model.Action, bool) {
	orig := a
	a.ChargeKW = sanitize(a.ChargeKW)
	a.DischargeKW = sanitize(a.DischargeKW)
	a.CurtailKW = sanitize(a.CurtailKW)

	if a.ChargeKW > 0 && a.DischargeKW > 0 {
		net := a.ChargeKW - a.DischargeKW
		a.ChargeKW, a.DischargeKW = math.Max(0, net), math.Max(0, -net)
	}
	a.ChargeKW = math.Min(a.ChargeKW, p.ChargeHeadroomKW(state))
	a.DischargeKW = math.Min(a.DischargeKW, p.DischargeHeadroomKW(state))
	charge, discharge := p.Allowed(point)
	if !charge {
		a.ChargeKW = 0
	}
	if !discharge {
		a.DischargeKW = 0
	}

	pv, _ := p.AvailablePV(state, point)
	a.CurtailKW = math.Min(a.CurtailKW, pv)

	return a, !a.Equal(orig, clipTol)
}

// Step clips a, realises the grid flows for the observed point and advances
// the ageing state. The returned state has TimeIndex incremented by one.
func (p Plant) Step(state model.SystemState, a model.Action, point model.ForecastPoint) (Outcome, error) {
	a, clipped := p.Clip(state, a, point)
	pvAvail, cellC := p.AvailablePV(state, point)
	load := math.Max(0, sanitize(point.LoadKW))

	var adjusted bool
	a, flows := p.realise(a, pvAvail, load, &adjusted)
	flows.CellTempC = cellC

	out := Outcome{Action: a, Flows: flows, Clipped: clipped || adjusted}

	bs, err := p.model.ApplyBatteryStress(state, a.NetBatteryKW(), p.cfg.StepDuration, p.model.BatteryTemperatureC(point.AmbientC))
	if err != nil {
		return out, err
	}
	util := 1.0
	if pvAvail > 0 {
		util = flows.PVKW / pvAvail
	}
	ps, err := p.model.ApplyPVStress(state, point.IrradianceWm2, cellC, p.cfg.StepDuration, util)
	if err != nil {
		return out, err
	}

	next := state
	next.TimeIndex++
	next.BatterySoC = clamp(p.NextSoC(state, a), p.socMin, p.socMax)
	next.BatterySoH = bs.SoH
	next.BatteryCalendarAgeH = bs.CalendarAgeH
	next.BatteryCycleCount = bs.CycleCount
	next.PVDeratingFactor = ps.Derating
	next.PVExposureAge = ps.ExposureAge

	out.Battery = bs
	out.PV = ps
	out.State = next
	out.CostGBP = (flows.ImportKW*point.ImportPrice - flows.ExportKW*point.ExportPrice) * p.hours
	out.CarbonKg = (flows.ImportKW - flows.ExportKW) * point.CarbonGPerKWh * p.hours / 1000
	return out, nil
}

// realise balances the bus. Exports above the allowed cap first reduce
// discharge, then curtail PV. Imports above the grid limit first drop
// charging, then become unserved load.
func (p Plant) realise(a model.Action, pvAvail, load float64, adjusted *bool) (model.Action, Flows) {
	f := Flows{PVAvailableKW: pvAvail, LoadKW: load}
	pvNet := pvAvail - a.CurtailKW
	residual := load - pvNet + a.ChargeKW - a.DischargeKW

	if residual < 0 {
		export := -residual
		if limit := p.ExportCapKW(pvNet, load); export > limit+clipTol {
			excess := export - limit
			cut := math.Min(a.DischargeKW, excess)
			a.DischargeKW -= cut
			excess -= cut
			if excess > 0 {
				extra := math.Min(excess, pvNet)
				a.CurtailKW += extra
				pvNet -= extra
			}
			*adjusted = true
		}
		residual = load - pvNet + a.ChargeKW - a.DischargeKW
	}

	if limit := p.cfg.Grid.ImportLimitKW; limit > 0 && residual > limit+clipTol {
		excess := residual - limit
		cut := math.Min(a.ChargeKW, excess)
		a.ChargeKW -= cut
		excess -= cut
		f.UnservedKW = excess
		residual = limit
		*adjusted = true
	}

	f.PVKW = pvNet
	if residual >= 0 {
		f.ImportKW = residual
	} else {
		f.ExportKW = -residual
	}
	return a, f
}

// ExportCapKW returns the largest export allowed for a step with pvNet
// non-curtailed PV and the given load. Zero limits mean unlimited.
func (p Plant) ExportCapKW(pvNet, load float64) float64 {
	limit := math.Inf(1)
	if !p.cfg.Battery.AllowExport {
		limit = math.Max(0, pvNet-load)
	}
	if g := p.cfg.Grid.ExportLimitKW; g > 0 {
		limit = math.Min(limit, g)
	}
	return limit
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
