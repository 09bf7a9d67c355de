// Package series holds the realised input data of a simulation: irradiance,
// load, tariffs, carbon intensity and ambient temperature per step.
package series

import (
	"fmt"
	"time"

	"github.com/kilianp07/pvbess/core/forecast"
	"github.com/kilianp07/pvbess/core/model"
)

// Table is an ordered, fixed-interval input table. It is never mutated after
// construction and is safe for concurrent readers.
type Table struct {
	Start  time.Time
	Step   time.Duration
	points []model.ForecastPoint
}

// NewTable returns a table over points. TimeIndex fields are rewritten to the
// row position.
func NewTable(start time.Time, step time.Duration, points []model.ForecastPoint) (*Table, error) {
	if step <= 0 {
		return nil, model.ConfigErrorf("series.step", "must be positive, got %s", step)
	}
	cp := make([]model.ForecastPoint, len(points))
	copy(cp, points)
	for i := range cp {
		cp[i].TimeIndex = i
	}
	return &Table{Start: start, Step: step, points: cp}, nil
}

// Len implements forecast.Observer.
func (t *Table) Len() int { return len(t.points) }

// Observe implements forecast.Observer.
func (t *Table) Observe(i int) (model.ForecastPoint, error) {
	if i < 0 || i >= len(t.points) {
		return model.ForecastPoint{}, fmt.Errorf("row %d of %d: %w", i, len(t.points), forecast.ErrOutOfRange)
	}
	return t.points[i], nil
}

// Window implements forecast.Provider with perfect foresight.
func (t *Table) Window(i, h int) (model.ForecastWindow, error) {
	return forecast.Perfect{Source: t}.Window(i, h)
}

// Timestamp returns the start time of row i.
func (t *Table) Timestamp(i int) time.Time {
	return t.Start.Add(time.Duration(i) * t.Step)
}

// Points returns a copy of the rows.
func (t *Table) Points() []model.ForecastPoint {
	cp := make([]model.ForecastPoint, len(t.points))
	copy(cp, t.points)
	return cp
}

// Head returns a table with the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.points) {
		n = len(t.points)
	}
	if n < 0 {
		n = 0
	}
	return &Table{Start: t.Start, Step: t.Step, points: t.points[:n:n]}
}
