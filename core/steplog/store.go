// Package steplog persists committed step records so that runs can be
// inspected after the fact.
package steplog

import (
	"context"
	"time"

	"github.com/kilianp07/pvbess/core/factory"
	"github.com/kilianp07/pvbess/core/model"
)

// LogRecord wraps one committed step with the run it belongs to.
type LogRecord struct {
	RunID    string           `json:"run_id"`
	Scenario model.Scenario   `json:"scenario"`
	Record   model.StepRecord `json:"record"`
}

// LogQuery defines filters for retrieving records. Zero fields match everything.
type LogQuery struct {
	RunID string
	// Scenario matches the scenario name, e.g. "batt_aware".
	Scenario string
	Start    time.Time
	End      time.Time
}

// Match reports whether r satisfies q.
func (q LogQuery) Match(r LogRecord) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.Scenario != "" && r.Scenario.String() != q.Scenario {
		return false
	}
	ts := r.Record.Timestamp
	if !q.Start.IsZero() && ts.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ts.After(q.End) {
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// Config selects and configures a store.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Registry holds the store factories keyed by type.
var Registry = factory.NewRegistry[LogStore]()

func init() {
	Registry.MustRegister("jsonl", func(conf map[string]any) (LogStore, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	Registry.MustRegister("rotating", func(conf map[string]any) (LogStore, error) {
		c := Config{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	Registry.MustRegister("sqlite", func(conf map[string]any) (LogStore, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

// NewStore creates the store described by cfg.
func NewStore(cfg factory.ModuleConfig) (LogStore, error) {
	return Registry.Create(cfg)
}
