package metrics

import (
	"time"

	"github.com/kilianp07/pvbess/core/model"
)

// RunInfo identifies the run a record belongs to.
type RunInfo struct {
	RunID    string
	Scenario model.Scenario
	Solver   string
}

// MetricsSink records committed steps for observability purposes.
type MetricsSink interface {
	RecordStep(run RunInfo, rec model.StepRecord) error
}

// SolveEvent describes one optimiser invocation.
type SolveEvent struct {
	TimeIndex int
	Solver    string
	Latency   time.Duration
	Err       string
}

// SolveRecorder records optimiser invocations.
type SolveRecorder interface {
	RecordSolve(run RunInfo, ev SolveEvent) error
}

// FallbackEvent records a replaced decision.
type FallbackEvent struct {
	TimeIndex int
	From      string
	To        string
	Reason    string
}

// FallbackRecorder records fallback applications.
type FallbackRecorder interface {
	RecordFallback(run RunInfo, ev FallbackEvent) error
}

// RunSummary is emitted once a run has completed.
type RunSummary struct {
	Steps     int
	Fallbacks int
	Clamped   int
	CostGBP   float64
	Final     model.SystemState
	Duration  time.Duration
}

// SummaryRecorder records completed runs.
type SummaryRecorder interface {
	RecordRunSummary(run RunInfo, s RunSummary) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordStep(RunInfo, model.StepRecord) error  { return nil }
func (NopSink) RecordSolve(RunInfo, SolveEvent) error       { return nil }
func (NopSink) RecordFallback(RunInfo, FallbackEvent) error { return nil }
func (NopSink) RecordRunSummary(RunInfo, RunSummary) error  { return nil }
func (NopSink) Close() error                                { return nil }
