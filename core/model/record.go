package model

import "time"

// StepRecord is the immutable log entry of one committed step.
type StepRecord struct {
	TimeIndex int       `json:"time_index"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`

	PVKW       float64 `json:"pv_kw"`
	LoadKW     float64 `json:"load_kw"`
	ImportKW   float64 `json:"import_kw"`
	ExportKW   float64 `json:"export_kw"`
	UnservedKW float64 `json:"unserved_kw"`

	ImportPrice   float64 `json:"import_price"`
	ExportPrice   float64 `json:"export_price"`
	CarbonGPerKWh float64 `json:"carbon_g_per_kwh"`

	CostGBP                float64 `json:"cost_gbp"`
	CarbonKg               float64 `json:"carbon_kg"`
	BatteryCalendarCostGBP float64 `json:"battery_calendar_cost_gbp"`
	BatteryCycleCostGBP    float64 `json:"battery_cycle_cost_gbp"`
	PVDegradationCostGBP   float64 `json:"pv_degradation_cost_gbp"`

	// Planned is the objective of the plan the action was taken from.
	Planned ObjectiveBreakdown `json:"planned"`
	// Solver names the solver that produced the committed action.
	Solver string `json:"solver"`
	// Fallback is empty for a normal step, otherwise the reason of the fallback.
	Fallback string `json:"fallback,omitempty"`
	// Clamped is set when the committed action was clipped to physical bounds.
	Clamped bool `json:"clamped"`
	// EndOfLife is set when battery health reached the configured floor.
	EndOfLife bool `json:"end_of_life"`

	State SystemState `json:"state"`
}
