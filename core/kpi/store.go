package kpi

import (
	"sort"
	"sync"
	"time"
)

// DailyRecord is the daily cost of one scenario run.
type DailyRecord struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	DailyCost
}

// DailyStore persists daily cost series across runs. Adding a record for an
// existing (run, scenario, day) replaces it.
type DailyStore interface {
	Add(r DailyRecord) error
	// Query returns the records of scenario between start and end inclusive,
	// ordered by day then run id.
	Query(scenario string, start, end time.Time) ([]DailyRecord, error)
	Close() error
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddRun stores every day of a run.
func AddRun(s DailyStore, runID, scenario string, days []DailyCost) error {
	for _, d := range days {
		if err := s.Add(DailyRecord{RunID: runID, Scenario: scenario, DailyCost: d}); err != nil {
			return err
		}
	}
	return nil
}

type dailyKey struct {
	run string
	day time.Time
}

// MemoryStore keeps daily records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[dailyKey]DailyRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[dailyKey]DailyRecord{}}
}

// Add implements DailyStore.
func (s *MemoryStore) Add(r DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[r.Scenario] == nil {
		s.data[r.Scenario] = map[dailyKey]DailyRecord{}
	}
	r.Day = Day(r.Day)
	s.data[r.Scenario][dailyKey{run: r.RunID, day: r.Day}] = r
	return nil
}

// Query implements DailyStore.
func (s *MemoryStore) Query(scenario string, start, end time.Time) ([]DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = Day(start), Day(end)
	var res []DailyRecord
	for k, r := range s.data[scenario] {
		if k.day.Before(start) || k.day.After(end) {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Day.Equal(res[j].Day) {
			return res[i].Day.Before(res[j].Day)
		}
		return res[i].RunID < res[j].RunID
	})
	return res, nil
}

// Close implements DailyStore.
func (s *MemoryStore) Close() error { return nil }
