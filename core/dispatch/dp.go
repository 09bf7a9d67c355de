package dispatch

import (
	"math"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
)

// DefaultResolution is the state of charge grid spacing of the DP solver.
const DefaultResolution = 0.01

const (
	// improveTol is the gain a move must bring over the closer-to-idle moves
	// already considered to replace them.
	improveTol = 1e-12
	// flowTol matches the plant's tolerance on grid limits in kW.
	flowTol = 1e-6
)

// DPSolver optimises the window by backward dynamic programming over a state
// of charge grid anchored at the current state of charge. Every grid move is
// priced with the nonlinear cost terms of the plant: grid cost and carbon,
// cycle and calendar ageing and PV stress. The move cost does not depend on
// the level, so a solve costs one pricing pass per step plus additions.
type DPSolver struct {
	Resolution float64
}

// NewDPSolver returns a DP solver with the given grid spacing, or the default.
func NewDPSolver(resolution float64) DPSolver {
	if resolution <= 0 || resolution >= 1 {
		resolution = DefaultResolution
	}
	return DPSolver{Resolution: resolution}
}

// Name implements Solver.
func (DPSolver) Name() string { return "dp" }

// dpMove is one priced transition of a step.
type dpMove struct {
	delta  int
	action model.Action
	cost   float64
}

// Solve implements Solver.
func (s DPSolver) Solve(p Problem) (model.DispatchDecision, error) {
	pl := plant.New(p.Config)
	if err := checkFeasible(p, pl); err != nil {
		return model.DispatchDecision{}, err
	}
	res := s.Resolution
	if res <= 0 || res >= 1 {
		res = DefaultResolution
	}
	cfg := p.Config
	hours := cfg.StepHours()
	energy := pl.EnergyKWh(p.State)
	eta := cfg.Battery.OneWayEfficiency()
	lo, hi := pl.SoCBounds()
	soc0 := p.State.BatterySoC

	below := int(math.Max(0, math.Floor((soc0-lo)/res+1e-9)))
	above := int(math.Max(0, math.Floor((hi-soc0)/res+1e-9)))
	levels := below + above + 1
	level := func(i int) float64 { return soc0 + float64(i-below)*res }

	var up, down int
	if energy > 0 {
		up = int(math.Floor(cfg.Battery.PMaxKW*eta*hours/(energy*res) + 1e-9))
		down = int(math.Floor(cfg.Battery.PMaxKW*hours/(eta*energy*res) + 1e-9))
	}

	n := p.Window.Len()
	moves := make([][]dpMove, n)
	calendar := make([][]float64, n)
	for k, pt := range p.Window.Points {
		canCharge, canDischarge := pl.Allowed(pt)
		u, d := up, down
		if !canCharge {
			u = 0
		}
		if !canDischarge {
			d = 0
		}
		moves[k] = s.price(p, pl, pt, u, d, res, energy)
		calendar[k] = s.calendar(p, pl, pt, levels, level)
	}

	// Backward pass: value[i] is the cheapest cost-to-go from level i.
	inf := math.Inf(1)
	value := make([]float64, levels)
	next := make([]float64, levels)
	choice := make([][]int, n)
	for k := n - 1; k >= 0; k-- {
		choice[k] = make([]int, levels)
		for i := range levels {
			best, pick := inf, -1
			for m, mv := range moves[k] {
				j := i + mv.delta
				if j < 0 || j >= levels || math.IsInf(value[j], 1) {
					continue
				}
				if c := mv.cost + value[j]; c < best-improveTol {
					best, pick = c, m
				}
			}
			choice[k][i] = pick
			next[i] = best + calendar[k][i]
		}
		value, next = next, value
	}
	if math.IsInf(value[below], 1) {
		return model.DispatchDecision{}, &InfeasibleHorizonError{
			TimeIndex: p.State.TimeIndex,
			Reason:    "no state of charge path satisfies the grid limits",
		}
	}

	actions := make([]model.Action, n)
	i := below
	for k := range n {
		mv := moves[k][choice[k][i]]
		actions[k] = mv.action
		i += mv.delta
	}
	obj, err := Evaluate(p, actions)
	if err != nil {
		return model.DispatchDecision{}, err
	}
	return model.DispatchDecision{Actions: actions, Objective: obj, Solver: s.Name()}, nil
}

// price returns the feasible moves of one step ordered by distance from idle.
// A move the plant would have to alter, a discharge into a capped export or
// an import above the grid limit, is left out so that the planned state of
// charge path is the one the plant realises.
func (s DPSolver) price(p Problem, pl plant.Plant, pt model.ForecastPoint, up, down int, res, energy float64) []dpMove {
	cfg := p.Config
	w := cfg.EffectiveWeights()
	hours := cfg.StepHours()
	eta := cfg.Battery.OneWayEfficiency()
	dm := pl.Model()
	pv, cellC := pl.AvailablePV(p.State, pt)
	load := math.Max(0, pt.LoadKW)
	base := dm.PVBaseLoss(pt.IrradianceWm2, cellC, hours)
	carbon := pt.CarbonGPerKWh * hours / 1000

	out := make([]dpMove, 0, up+down+1)
	add := func(delta int) {
		var a model.Action
		switch {
		case delta > 0:
			a.ChargeKW = float64(delta) * res * energy / (eta * hours)
		case delta < 0:
			a.DischargeKW = float64(-delta) * res * energy * eta / hours
		}
		pvNet := pv
		residual := load - pv + a.ChargeKW - a.DischargeKW
		if residual < 0 {
			export := -residual
			if capKW := pl.ExportCapKW(pv, load); export > capKW+flowTol {
				if a.DischargeKW > 0 {
					return
				}
				a.CurtailKW = export - capKW
				pvNet -= a.CurtailKW
				export = capKW
			}
			// Exported PV is worth curtailing when its stress cost beats
			// the export value.
			if export > 0 && w.PV > 0 && pv > 0 {
				gain := w.PV * dm.PVLossCostGBP(base) * dm.PVAgeing.UtilWeight / pv
				if gain > (w.Cost*pt.ExportPrice*hours + w.Carbon*carbon) {
					extra := math.Min(export, pvNet)
					a.CurtailKW += extra
					pvNet -= extra
				}
			}
			residual = load - pvNet + a.ChargeKW - a.DischargeKW
		}
		if g := cfg.Grid.ImportLimitKW; g > 0 && residual > g+flowTol {
			return
		}
		util := 1.0
		if pv > 0 {
			util = pvNet / pv
		}
		imp, exp := math.Max(0, residual), math.Max(0, -residual)
		cost := w.Cost*(imp*pt.ImportPrice-exp*pt.ExportPrice)*hours +
			w.Carbon*(imp-exp)*carbon +
			w.Batt*dm.CycleCostGBP(a.NetBatteryKW(), cfg.StepDuration) +
			w.PV*dm.PVLossCostGBP(base*dm.UtilisationFactor(util))
		out = append(out, dpMove{delta: delta, action: a, cost: cost})
	}
	add(0)
	for m := 1; m <= max(up, down); m++ {
		if m <= up {
			add(m)
		}
		if m <= down {
			add(-m)
		}
	}
	return out
}

// calendar returns the weighted calendar ageing cost of every level at pt.
func (s DPSolver) calendar(p Problem, pl plant.Plant, pt model.ForecastPoint, levels int, level func(int) float64) []float64 {
	out := make([]float64, levels)
	wb := p.Config.EffectiveWeights().Batt
	if wb == 0 {
		return out
	}
	dm := pl.Model()
	temp := dm.BatteryTemperatureC(pt.AmbientC)
	hours := p.Config.StepHours()
	for i := range out {
		out[i] = wb * dm.LossCostGBP(dm.CalendarLoss(level(i), temp, hours))
	}
	return out
}
