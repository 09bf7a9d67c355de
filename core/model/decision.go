package model

import "math"

// Action is the control applied to the installation during one step.
// Charge and discharge are non-negative powers in kW.
type Action struct {
	ChargeKW    float64 `json:"charge_kw"`
	DischargeKW float64 `json:"discharge_kw"`
	CurtailKW   float64 `json:"curtail_kw"`
}

// NetBatteryKW returns the net battery power, positive when charging.
func (a Action) NetBatteryKW() float64 { return a.ChargeKW - a.DischargeKW }

// IsIdle reports whether the action leaves the battery and PV untouched.
func (a Action) IsIdle() bool {
	return a.ChargeKW == 0 && a.DischargeKW == 0 && a.CurtailKW == 0
}

// Equal compares two actions within tol.
func (a Action) Equal(b Action, tol float64) bool {
	return math.Abs(a.ChargeKW-b.ChargeKW) <= tol &&
		math.Abs(a.DischargeKW-b.DischargeKW) <= tol &&
		math.Abs(a.CurtailKW-b.CurtailKW) <= tol
}

// ObjectiveBreakdown splits the objective of a planned trajectory into its
// unweighted components and the weighted total.
type ObjectiveBreakdown struct {
	CostGBP               float64 `json:"cost_gbp"`
	CarbonKg              float64 `json:"carbon_kg"`
	BatteryDegradationGBP float64 `json:"battery_degradation_gbp"`
	PVDegradationGBP      float64 `json:"pv_degradation_gbp"`
	Total                 float64 `json:"total"`
}

// DispatchDecision is the output of one optimiser solve. Only Actions[0] is
// ever committed.
type DispatchDecision struct {
	Actions   []Action           `json:"actions"`
	Objective ObjectiveBreakdown `json:"objective"`
	Solver    string             `json:"solver"`
}

// First returns the action to commit, or an idle action for an empty plan.
func (d DispatchDecision) First() Action {
	if len(d.Actions) == 0 {
		return Action{}
	}
	return d.Actions[0]
}
