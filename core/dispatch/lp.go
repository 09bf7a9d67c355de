package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// DefaultSegments is the number of linear pieces of the cycle cost curve.
	DefaultSegments = 3
	// DefaultTolerance is the simplex tolerance.
	DefaultTolerance = 1e-8
	// tieBreak penalises battery action and curtailment so that among equal
	// cost plans the one closest to idle wins.
	tieBreak = 1e-6
	// zeroTol rounds simplex noise to zero in the extracted plan.
	zeroTol = 1e-9
)

// LPSolver solves the linearised dispatch problem exactly with the simplex
// method. Cycle ageing is approximated by a convex piecewise-linear curve
// whose pieces are secants of the degradation model cost.
type LPSolver struct {
	Segments  int
	Tolerance float64
}

// NewLPSolver returns an LP solver with segments pieces, or the default.
func NewLPSolver(segments int) LPSolver {
	if segments < 1 {
		segments = DefaultSegments
	}
	return LPSolver{Segments: segments, Tolerance: DefaultTolerance}
}

// Name implements Solver.
func (LPSolver) Name() string { return "lp" }

// lpSolve points to the function used to solve the standard-form LP. Tests
// override it to simulate solver failures.
var lpSolve = func(c []float64, A mat.Matrix, b []float64, tol float64) ([]float64, error) {
	_, x, err := lp.Simplex(c, A, b, tol, nil)
	return x, err
}

type lpRow struct {
	idx []int
	val []float64
	rhs float64
}

// lpProblem is minimise cᵀx s.t. eq rows = rhs, le rows <= rhs, x >= 0.
type lpProblem struct {
	c  []float64
	eq []lpRow
	le []lpRow
}

// newVar appends a non-negative column of objective cost and returns its index.
func (p *lpProblem) newVar(cost float64) int {
	p.c = append(p.c, cost)
	return len(p.c) - 1
}

func (p *lpProblem) addEq(rhs float64, idx []int, val []float64) {
	p.eq = append(p.eq, lpRow{idx: idx, val: val, rhs: rhs})
}

func (p *lpProblem) addLe(rhs float64, idx []int, val []float64) {
	p.le = append(p.le, lpRow{idx: idx, val: val, rhs: rhs})
}

// standard adds one slack per inequality and flips rows so that b >= 0.
func (p *lpProblem) standard() ([]float64, *mat.Dense, []float64) {
	nx := len(p.c)
	m := len(p.eq) + len(p.le)
	n := nx + len(p.le)
	A := mat.NewDense(m, n, nil)
	b := make([]float64, m)
	c := make([]float64, n)
	copy(c, p.c)
	set := func(i int, r lpRow, slack int) {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for j, col := range r.idx {
			A.Set(i, col, A.At(i, col)+sign*r.val[j])
		}
		if slack >= 0 {
			A.Set(i, slack, sign)
		}
		b[i] = sign * r.rhs
	}
	for i, r := range p.eq {
		set(i, r, -1)
	}
	for i, r := range p.le {
		set(len(p.eq)+i, r, nx+i)
	}
	return c, A, b
}

// stepVars indexes the columns of one step. Columns that cannot be non-zero
// under the step's bounds are left out: nil segments, or -1.
type stepVars struct {
	charge    []int
	discharge []int
	imp       int
	exp       int
	curt      int
	soc       int
}

func (v stepVars) action(x []float64) model.Action {
	var a model.Action
	for _, j := range v.charge {
		a.ChargeKW += x[j]
	}
	for _, j := range v.discharge {
		a.DischargeKW += x[j]
	}
	if v.curt >= 0 {
		a.CurtailKW = x[v.curt]
	}
	return model.Action{
		ChargeKW:    snap(a.ChargeKW),
		DischargeKW: snap(a.DischargeKW),
		CurtailKW:   snap(a.CurtailKW),
	}
}

// Solve implements Solver.
func (s LPSolver) Solve(p Problem) (model.DispatchDecision, error) {
	pl := plant.New(p.Config)
	if err := checkFeasible(p, pl); err != nil {
		return model.DispatchDecision{}, err
	}
	segs := s.Segments
	if segs < 1 {
		segs = DefaultSegments
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	prob, vars := s.build(p, pl, segs)
	c, A, b := prob.standard()
	x, err := lpSolve(c, A, b, tol)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return model.DispatchDecision{}, &InfeasibleHorizonError{TimeIndex: p.State.TimeIndex, Reason: "simplex", Err: err}
	case err != nil:
		return model.DispatchDecision{}, fmt.Errorf("lp solve at step %d: %w", p.State.TimeIndex, err)
	case len(x) < len(prob.c):
		return model.DispatchDecision{}, fmt.Errorf("lp solve at step %d: short solution of %d values", p.State.TimeIndex, len(x))
	}

	actions := make([]model.Action, len(vars))
	for k, v := range vars {
		actions[k] = v.action(x)
	}
	obj, err := Evaluate(p, actions)
	if err != nil {
		return model.DispatchDecision{}, err
	}
	return model.DispatchDecision{Actions: actions, Objective: obj, Solver: s.Name()}, nil
}

// build writes the window as an LP. Per step it has a bus balance row, a
// state of charge row chaining soc_k to soc_k-1 and its upper bound, one cap
// per cost segment and the grid rows the configuration needs. soc_k is the
// state of charge above the lower bound, so its lower bound is x >= 0.
func (s LPSolver) build(p Problem, pl plant.Plant, segs int) (*lpProblem, []stepVars) {
	cfg := p.Config
	hours := cfg.StepHours()
	w := cfg.EffectiveWeights()
	bat := cfg.Battery
	eta := bat.OneWayEfficiency()
	energy := pl.EnergyKWh(p.State)
	dm := pl.Model()
	lo, hi := pl.SoCBounds()
	soc := math.Max(lo, math.Min(hi, p.State.BatterySoC))

	segW := bat.PMaxKW / float64(segs)
	slopes := make([]float64, segs)
	for j := range slopes {
		a := dm.CycleCostGBP(float64(j)*segW, cfg.StepDuration)
		b := dm.CycleCostGBP(float64(j+1)*segW, cfg.StepDuration)
		slopes[j] = w.Batt*(b-a)/segW + tieBreak
	}

	prob := &lpProblem{}
	vars := make([]stepVars, p.Window.Len())
	prevSoC := -1
	for k, pt := range p.Window.Points {
		pv, cellC := pl.AvailablePV(p.State, pt)
		load := math.Max(0, pt.LoadKW)
		surplus := pv - load
		canCharge, canDischarge := pl.Allowed(pt)
		carbon := w.Carbon * pt.CarbonGPerKWh * hours / 1000

		expCap := pv + bat.PMaxKW
		if !bat.AllowExport {
			expCap = math.Max(0, surplus)
		}
		if g := cfg.Grid.ExportLimitKW; g > 0 {
			expCap = math.Min(expCap, g)
		}

		v := stepVars{exp: -1, curt: -1}
		v.imp = prob.newVar(w.Cost*pt.ImportPrice*hours + carbon + tieBreak)
		if expCap > 0 {
			v.exp = prob.newVar(-w.Cost*pt.ExportPrice*hours - carbon + tieBreak)
		}
		if pv > 0 {
			// Curtailing reduces the utilisation term of PV stress linearly.
			base := dm.PVBaseLoss(pt.IrradianceWm2, cellC, hours)
			gain := dm.PVLossCostGBP(base) * dm.PVAgeing.UtilWeight / pv
			v.curt = prob.newVar(-w.PV*gain + tieBreak)
		}
		for j := 0; j < segs; j++ {
			if canCharge {
				v.charge = append(v.charge, prob.newVar(slopes[j]))
			}
			if canDischarge {
				v.discharge = append(v.discharge, prob.newVar(slopes[j]))
			}
		}
		v.soc = prob.newVar(0)

		// imp - exp - Σc + Σd - curt = load - pv
		idx := []int{v.imp}
		val := []float64{1}
		if v.exp >= 0 {
			idx, val = append(idx, v.exp), append(val, -1)
		}
		if v.curt >= 0 {
			idx, val = append(idx, v.curt), append(val, -1)
		}
		for _, j := range v.charge {
			idx, val = append(idx, j), append(val, -1)
		}
		for _, j := range v.discharge {
			idx, val = append(idx, j), append(val, 1)
		}
		prob.addEq(load-pv, idx, val)

		// soc_k - soc_k-1 - ηhΣc/E + hΣd/(ηE) = 0
		idx = []int{v.soc}
		val = []float64{1}
		rhs := soc - lo
		if prevSoC >= 0 {
			idx, val = append(idx, prevSoC), append(val, -1)
			rhs = 0
		}
		for _, j := range v.charge {
			idx, val = append(idx, j), append(val, -eta*hours/energy)
		}
		for _, j := range v.discharge {
			idx, val = append(idx, j), append(val, hours/(eta*energy))
		}
		prob.addEq(rhs, idx, val)
		prob.addLe(hi-lo, []int{v.soc}, []float64{1})
		prevSoC = v.soc

		for _, j := range v.charge {
			prob.addLe(segW, []int{j}, []float64{1})
		}
		for _, j := range v.discharge {
			prob.addLe(segW, []int{j}, []float64{1})
		}
		if g := cfg.Grid.ImportLimitKW; g > 0 {
			prob.addLe(g, []int{v.imp}, []float64{1})
		}
		switch {
		case v.exp >= 0 && !bat.AllowExport:
			// export limited to the non-curtailed PV surplus, which also
			// bounds curtailment
			prob.addLe(surplus, []int{v.exp, v.curt}, []float64{1, 1})
			if expCap < surplus {
				prob.addLe(expCap, []int{v.exp}, []float64{1})
			}
		case v.exp >= 0:
			prob.addLe(expCap, []int{v.exp}, []float64{1})
			if v.curt >= 0 {
				prob.addLe(pv, []int{v.curt}, []float64{1})
			}
		case v.curt >= 0:
			prob.addLe(pv, []int{v.curt}, []float64{1})
		}
		vars[k] = v
	}
	return prob, vars
}

func snap(v float64) float64 {
	if v < zeroTol {
		return 0
	}
	return v
}
