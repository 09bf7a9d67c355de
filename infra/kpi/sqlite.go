// Package kpi persists KPI series in external stores.
package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	core "github.com/kilianp07/pvbess/core/kpi"
)

// SQLiteStore persists daily cost records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.DailyStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS daily_cost (
        run_id TEXT,
        scenario TEXT,
        day INTEGER,
        cost_gbp REAL,
        steps INTEGER,
        PRIMARY KEY(run_id, scenario, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts or replaces the record of the day.
func (s *SQLiteStore) Add(r core.DailyRecord) error {
	_, err := s.db.Exec(`INSERT INTO daily_cost (run_id, scenario, day, cost_gbp, steps)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(run_id, scenario, day) DO UPDATE SET
            cost_gbp = excluded.cost_gbp,
            steps = excluded.steps`,
		r.RunID, r.Scenario, core.Day(r.Day).Unix(), r.CostGBP, r.Steps)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(scenario string, start, end time.Time) ([]core.DailyRecord, error) {
	rows, err := s.db.Query(`SELECT run_id, day, cost_gbp, steps
        FROM daily_cost WHERE scenario = ? AND day >= ? AND day <= ? ORDER BY day, run_id`,
		scenario, core.Day(start).Unix(), core.Day(end).Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []core.DailyRecord
	for rows.Next() {
		var (
			run   string
			ts    int64
			cost  float64
			steps int
		)
		if err := rows.Scan(&run, &ts, &cost, &steps); err != nil {
			return nil, err
		}
		res = append(res, core.DailyRecord{
			RunID:     run,
			Scenario:  scenario,
			DailyCost: core.DailyCost{Day: time.Unix(ts, 0).UTC(), CostGBP: cost, Steps: steps},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
