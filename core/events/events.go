package events

import (
	"time"

	"github.com/kilianp07/pvbess/core/model"
)

// RunEvent is published when a run starts (Done false) and ends (Done true).
type RunEvent struct {
	RunID    string
	Scenario model.Scenario
	Steps    int
	Done     bool
	Err      error
}

// StepEvent is published for every committed step.
type StepEvent struct {
	RunID    string
	Scenario model.Scenario
	Record   model.StepRecord
	Latency  time.Duration
}

// FallbackEvent is emitted when the controller does not commit the primary
// solver's plan. Reason is "infeasible", "solver_error" or "secondary_error".
type FallbackEvent struct {
	RunID     string
	TimeIndex int
	From      string
	To        string
	Reason    string
	Err       error
}

// SweepEvent reports the completion of one sweep configuration.
type SweepEvent struct {
	Index    int
	Total    int
	Scenario model.Scenario
	Weights  model.Weights
	Err      error
}
