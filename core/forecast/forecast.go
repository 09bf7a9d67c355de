// Package forecast supplies lookahead windows of exogenous inputs to the
// dispatch optimiser.
package forecast

import (
	"errors"
	"fmt"

	"github.com/kilianp07/pvbess/core/model"
)

// Provider returns a window of at most h forecast points starting at t.
// It returns fewer points only at the tail of the available data.
type Provider interface {
	Window(t, h int) (model.ForecastWindow, error)
}

// Observer exposes the realised inputs of every step.
type Observer interface {
	Observe(t int) (model.ForecastPoint, error)
	Len() int
}

// ErrOutOfRange is wrapped by ForecastUnavailableError when t lies outside
// the available data.
var ErrOutOfRange = errors.New("time index out of range")

// ForecastUnavailableError reports that no data exists for a requested index.
type ForecastUnavailableError struct {
	TimeIndex int
	Err       error
}

func (e *ForecastUnavailableError) Error() string {
	return fmt.Sprintf("forecast unavailable at step %d: %v", e.TimeIndex, e.Err)
}

func (e *ForecastUnavailableError) Unwrap() error { return e.Err }

// Unavailable builds a *ForecastUnavailableError for t.
func Unavailable(t int, err error) error {
	if err == nil {
		err = ErrOutOfRange
	}
	return &ForecastUnavailableError{TimeIndex: t, Err: err}
}

// span returns the number of points available in [t, t+h).
func span(src Observer, t, h int) (int, error) {
	if t < 0 || t >= src.Len() {
		return 0, Unavailable(t, ErrOutOfRange)
	}
	if h < 1 {
		return 0, Unavailable(t, fmt.Errorf("horizon %d < 1", h))
	}
	if end := t + h; end > src.Len() {
		h = src.Len() - t
	}
	return h, nil
}

// Perfect returns the realised data as forecast.
type Perfect struct {
	Source Observer
}

// Window implements Provider.
func (p Perfect) Window(t, h int) (model.ForecastWindow, error) {
	n, err := span(p.Source, t, h)
	if err != nil {
		return model.ForecastWindow{}, err
	}
	w := model.ForecastWindow{Start: t, Points: make([]model.ForecastPoint, n)}
	for k := range w.Points {
		pt, err := p.Source.Observe(t + k)
		if err != nil {
			return model.ForecastWindow{}, Unavailable(t+k, err)
		}
		w.Points[k] = pt
	}
	return w, nil
}

// Persistence repeats the last observed irradiance, load and ambient
// temperature over the whole window. Tariffs and carbon intensity are
// published schedules and taken from the realised data.
type Persistence struct {
	Source Observer
}

// Window implements Provider.
func (p Persistence) Window(t, h int) (model.ForecastWindow, error) {
	return build(p.Source, t, h, func(k int) int {
		if t == 0 {
			return 0
		}
		return t - 1
	})
}

// DayAhead repeats the weather and load observed one period earlier.
// Before a full period of history exists it degrades to persistence.
type DayAhead struct {
	Source Observer
	Period int
}

// Window implements Provider.
func (d DayAhead) Window(t, h int) (model.ForecastWindow, error) {
	period := d.Period
	if period < 1 {
		period = 1
	}
	return build(d.Source, t, h, func(k int) int {
		lag := period * (k/period + 1)
		if src := t + k - lag; src >= 0 {
			return src
		}
		if t == 0 {
			return 0
		}
		return t - 1
	})
}

func build(src Observer, t, h int, from func(k int) int) (model.ForecastWindow, error) {
	n, err := span(src, t, h)
	if err != nil {
		return model.ForecastWindow{}, err
	}
	w := model.ForecastWindow{Start: t, Points: make([]model.ForecastPoint, n)}
	for k := range w.Points {
		actual, err := src.Observe(t + k)
		if err != nil {
			return model.ForecastWindow{}, Unavailable(t+k, err)
		}
		hist, err := src.Observe(from(k))
		if err != nil {
			return model.ForecastWindow{}, Unavailable(from(k), err)
		}
		actual.IrradianceWm2 = hist.IrradianceWm2
		actual.LoadKW = hist.LoadKW
		actual.AmbientC = hist.AmbientC
		w.Points[k] = actual
	}
	return w, nil
}

// Kinds lists the provider names accepted by New.
var Kinds = []string{"perfect", "persistence", "day_ahead"}

// New returns the provider named kind over src. period is the number of
// steps in one day, used by the day-ahead provider.
func New(kind string, src Observer, period int) (Provider, error) {
	switch kind {
	case "", "perfect":
		return Perfect{Source: src}, nil
	case "persistence":
		return Persistence{Source: src}, nil
	case "day_ahead", "dayahead":
		return DayAhead{Source: src, Period: period}, nil
	default:
		return nil, model.ConfigErrorf("forecast.type", "unknown forecast provider %q", kind)
	}
}
