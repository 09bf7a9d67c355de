// Package dispatch implements the multi-period dispatch optimiser of the PV +
// battery installation. Strategies share the Solver capability so the
// rolling-horizon controller does not depend on which one is configured.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
)

// Problem is one dispatch decision problem over the window.
type Problem struct {
	State  model.SystemState
	Window model.ForecastWindow
	Config model.ScenarioConfig
}

// Solver computes a DispatchDecision for a Problem.
type Solver interface {
	Solve(p Problem) (model.DispatchDecision, error)
	Name() string
}

// ErrEmptyWindow is returned for a problem without forecast points.
var ErrEmptyWindow = errors.New("empty forecast window")

// InfeasibleHorizonError reports that no action sequence satisfies the SOC,
// power and grid bounds over the window.
type InfeasibleHorizonError struct {
	TimeIndex int
	Reason    string
	Err       error
}

func (e *InfeasibleHorizonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("infeasible horizon at step %d: %s: %v", e.TimeIndex, e.Reason, e.Err)
	}
	return fmt.Sprintf("infeasible horizon at step %d: %s", e.TimeIndex, e.Reason)
}

func (e *InfeasibleHorizonError) Unwrap() error { return e.Err }

// IsInfeasible reports whether err is an InfeasibleHorizonError.
func IsInfeasible(err error) bool {
	var ie *InfeasibleHorizonError
	return errors.As(err, &ie)
}

const socTol = 1e-9

// checkFeasible rejects problems that no solver can satisfy.
func checkFeasible(p Problem, pl plant.Plant) error {
	if p.Window.Len() == 0 {
		return ErrEmptyWindow
	}
	b := p.Config.Battery
	lo, hi := pl.SoCBounds()
	if soc := p.State.BatterySoC; soc < lo-socTol || soc > hi+socTol {
		return &InfeasibleHorizonError{
			TimeIndex: p.State.TimeIndex,
			Reason:    fmt.Sprintf("soc %.4f outside [%v, %v]", soc, lo, hi),
		}
	}
	if limit := p.Config.Grid.ImportLimitKW; limit > 0 {
		for k, pt := range p.Window.Points {
			pv, _ := pl.AvailablePV(p.State, pt)
			support := b.PMaxKW
			if _, discharge := pl.Allowed(pt); !discharge {
				support = 0
			}
			if residual := pt.LoadKW - pv - support; residual > limit {
				return &InfeasibleHorizonError{
					TimeIndex: p.Window.Start + k,
					Reason:    fmt.Sprintf("residual load %.3f kW exceeds import limit %v kW", residual, limit),
				}
			}
		}
	}
	return nil
}

// IdleSolver never uses the battery or curtails PV. It is the safe fallback.
type IdleSolver struct{}

// Name implements Solver.
func (IdleSolver) Name() string { return "idle" }

// Solve implements Solver.
func (s IdleSolver) Solve(p Problem) (model.DispatchDecision, error) {
	actions := make([]model.Action, p.Window.Len())
	obj, err := Evaluate(p, actions)
	if err != nil {
		return model.DispatchDecision{}, err
	}
	return model.DispatchDecision{Actions: actions, Objective: obj, Solver: s.Name()}, nil
}
