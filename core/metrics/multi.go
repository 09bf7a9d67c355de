package metrics

import (
	"errors"

	"github.com/kilianp07/pvbess/core/model"
)

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordStep forwards the record to all sinks and joins their errors.
func (m *MultiSink) RecordStep(run RunInfo, rec model.StepRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordStep(run, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSolve forwards solve events when supported by the sink.
func (m *MultiSink) RecordSolve(run RunInfo, ev SolveEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SolveRecorder); ok {
			if err := r.RecordSolve(run, ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordFallback forwards fallback events when supported by the sink.
func (m *MultiSink) RecordFallback(run RunInfo, ev FallbackEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(FallbackRecorder); ok {
			if err := r.RecordFallback(run, ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordRunSummary forwards run summaries when supported by the sink.
func (m *MultiSink) RecordRunSummary(run RunInfo, s RunSummary) error {
	var errs []error
	for _, sink := range m.Sinks {
		if r, ok := sink.(SummaryRecorder); ok {
			if err := r.RecordRunSummary(run, s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink holding resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
