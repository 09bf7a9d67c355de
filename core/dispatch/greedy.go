package dispatch

import (
	"math"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
)

// GreedySolver is a single-pass rule-based heuristic. For each step of the
// window, in order:
//
//  1. Self-consumption: PV surplus charges the battery when the stored energy
//     is worth more, at the best import price of the window, than exporting.
//     A PV deficit is covered by discharging at the highest remaining import
//     price, or when the import price beats the cheapest way of refilling
//     the battery later in the window.
//  2. Tariff arbitrage: at the cheapest import price of the window the
//     battery charges from the grid when a later step is expensive enough.
//     A baseline time-of-use schedule replaces both price tests with its
//     charge and discharge hours.
//  3. Degradation: every move is sized to the power where its value net of
//     cycle ageing peaks, and skipped when that net value is not positive.
//     With PV awareness, surplus that can only be exported is curtailed when
//     its PV stress cost exceeds the export value.
//  4. Anything else is idle, the action closest to zero net battery power.
//
// Bounds and the scenario policy are enforced through the plant, so the plan
// is always feasible.
type GreedySolver struct{}

// Name implements Solver.
func (GreedySolver) Name() string { return "greedy" }

// Solve implements Solver.
func (s GreedySolver) Solve(p Problem) (model.DispatchDecision, error) {
	pl := plant.New(p.Config)
	if err := checkFeasible(p, pl); err != nil {
		return model.DispatchDecision{}, err
	}
	cfg := p.Config
	w := cfg.EffectiveWeights()
	eta := cfg.Battery.Efficiency
	hours := cfg.StepHours()
	dm := pl.Model()
	tou := cfg.Policy.BaselineTOU
	if cfg.Scenario != model.ScenarioBaseline {
		tou.Enabled = false
	}

	// Energy refill cost per step: free PV surplus is valued at the export
	// price, otherwise the import price.
	refill := make([]float64, p.Window.Len())
	pvAvail := make([]float64, p.Window.Len())
	for k, pt := range p.Window.Points {
		pv, _ := pl.AvailablePV(p.State, pt)
		pvAvail[k] = pv
		refill[k] = pt.ImportPrice
		if pv > pt.LoadKW {
			refill[k] = pt.ExportPrice
		}
	}

	// size returns the power in [0, maxKW] maximising the value of moving
	// energy worth value £/kWh net of the cycle ageing of a full charge and
	// discharge, or 0 when no power pays for its wear.
	size := func(value, maxKW float64) float64 {
		if maxKW <= 0 || value <= 0 || w.Cost == 0 {
			return 0
		}
		if w.Batt == 0 {
			return maxKW
		}
		net := func(kw float64) float64 {
			return w.Cost*value*kw*hours - 2*w.Batt*dm.CycleCostGBP(kw, cfg.StepDuration)
		}
		kw := goldenMax(net, 0, maxKW)
		if net(maxKW) >= net(kw) {
			kw = maxKW
		}
		if net(kw) <= 0 {
			return 0
		}
		return kw
	}

	state := p.State
	actions := make([]model.Action, p.Window.Len())
	for k, pt := range p.Window.Points {
		hi := maxImport(p.Window.Points[k:])
		future := 0.0
		if k+1 < len(p.Window.Points) {
			future = maxImport(p.Window.Points[k+1:])
		}
		hour := cfg.Timestamp(pt.TimeIndex).Hour()
		load := math.Max(0, pt.LoadKW)
		pv := pvAvail[k]
		chargeKW, dischargeKW := pl.ChargeHeadroomKW(state), pl.DischargeHeadroomKW(state)
		canCharge, canDischarge := pl.Allowed(pt)
		if !canCharge {
			chargeKW = 0
		}
		if !canDischarge {
			dischargeKW = 0
		}
		var a model.Action

		switch surplus := pv - load; {
		case surplus > 0:
			a.ChargeKW = size(eta*hi-pt.ExportPrice, math.Min(surplus, chargeKW))
			rest := surplus - a.ChargeKW
			if capKW := pl.ExportCapKW(pv, load); rest > capKW {
				a.CurtailKW = rest - capKW
				rest = capKW
			}
			if rest > 0 && w.PV > 0 {
				cellC := dm.CellTemperatureC(pt.AmbientC, pt.IrradianceWm2)
				gain := dm.PVLossCostGBP(dm.PVBaseLoss(pt.IrradianceWm2, cellC, hours)) * dm.PVAgeing.UtilWeight / pv
				if w.PV*gain > w.Cost*pt.ExportPrice*hours {
					a.CurtailKW += rest
				}
			}
		default:
			deficit := -surplus
			dis := math.Min(deficit, dischargeKW)
			if tou.Discharging(hour) {
				a.DischargeKW = dis
				break
			}
			value := pt.ImportPrice
			if pt.ImportPrice < hi {
				value -= minOf(refill[k+1:]) / eta
			}
			a.DischargeKW = size(value, dis)
			if a.DischargeKW > 0 {
				break
			}
			gridKW := chargeKW
			if g := cfg.Grid.ImportLimitKW; g > 0 {
				gridKW = math.Min(gridKW, math.Max(0, g-deficit))
			}
			switch {
			case tou.Charging(hour):
				a.ChargeKW = gridKW
			case pt.ImportPrice <= minImport(p.Window.Points[k:]) && future > pt.ImportPrice:
				a.ChargeKW = size(eta*future-pt.ImportPrice, gridKW)
			}
		}

		out, err := pl.Step(state, a, pt)
		if err != nil {
			return model.DispatchDecision{}, err
		}
		actions[k] = out.Action
		state = out.State
	}

	obj, err := Evaluate(p, actions)
	if err != nil {
		return model.DispatchDecision{}, err
	}
	return model.DispatchDecision{Actions: actions, Objective: obj, Solver: s.Name()}, nil
}

// goldenMax returns the maximiser of the concave f on [lo, hi].
func goldenMax(f func(float64) float64, lo, hi float64) float64 {
	const ratio = 0.6180339887498949
	a, b := lo, hi
	x1 := b - ratio*(b-a)
	x2 := a + ratio*(b-a)
	f1, f2 := f(x1), f(x2)
	for i := 0; i < 40 && b-a > 1e-6; i++ {
		if f1 < f2 {
			a, x1, f1 = x1, x2, f2
			x2 = a + ratio*(b-a)
			f2 = f(x2)
		} else {
			b, x2, f2 = x2, x1, f1
			x1 = b - ratio*(b-a)
			f1 = f(x1)
		}
	}
	return (a + b) / 2
}

func maxImport(pts []model.ForecastPoint) float64 {
	v := math.Inf(-1)
	for _, p := range pts {
		v = math.Max(v, p.ImportPrice)
	}
	return v
}

func minImport(pts []model.ForecastPoint) float64 {
	v := math.Inf(1)
	for _, p := range pts {
		v = math.Min(v, p.ImportPrice)
	}
	return v
}

func minOf(xs []float64) float64 {
	v := math.Inf(1)
	for _, x := range xs {
		v = math.Min(v, x)
	}
	return v
}
