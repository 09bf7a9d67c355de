package model

import "math"

// SoCWindow narrows the usable state of charge of one scenario. The zero
// window leaves the battery limits in force.
type SoCWindow struct {
	Min float64 `json:"soc_min"`
	Max float64 `json:"soc_max"`
}

// IsZero reports whether the window is unset.
func (w SoCWindow) IsZero() bool { return w.Min == 0 && w.Max == 0 }

// TOUSchedule fixes the battery direction by hour of day. Hours are
// inclusive, so 0 and 6 cover 00:00 to 06:59.
type TOUSchedule struct {
	Enabled            bool `json:"enabled"`
	ChargeStartHour    int  `json:"charge_start_hour"`
	ChargeEndHour      int  `json:"charge_end_hour"`
	DischargeStartHour int  `json:"discharge_start_hour"`
	DischargeEndHour   int  `json:"discharge_end_hour"`
}

// Charging reports whether hour is a charge-only hour.
func (s TOUSchedule) Charging(hour int) bool {
	return s.Enabled && inHours(hour, s.ChargeStartHour, s.ChargeEndHour)
}

// Discharging reports whether hour is a discharge-only hour.
func (s TOUSchedule) Discharging(hour int) bool {
	return s.Enabled && inHours(hour, s.DischargeStartHour, s.DischargeEndHour)
}

// inHours handles ranges wrapping midnight such as 22 to 5.
func inHours(h, from, to int) bool {
	if from <= to {
		return h >= from && h <= to
	}
	return h >= from || h <= to
}

// Policy holds the per-scenario operating rules layered on the battery
// limits. Every solver and the plant apply them.
type Policy struct {
	BattAwareWindow SoCWindow `json:"batt_aware_window"`
	FullAwareWindow SoCWindow `json:"full_aware_window"`
	// DischargeCellLimitC blocks discharging in the PV-aware scenario while
	// the PV cell temperature is at or above it. Zero disables the rule.
	DischargeCellLimitC float64 `json:"discharge_cell_limit_c"`
	// BaselineTOU applies to the baseline scenario only.
	BaselineTOU TOUSchedule `json:"baseline_tou"`
}

// DefaultPolicy narrows the aware scenarios to [0.15, 0.85] and [0.20, 0.80],
// stops PV-aware discharging at a 35 °C cell and leaves the baseline
// schedule disabled with night charging and evening discharging hours.
func DefaultPolicy() Policy {
	return Policy{
		BattAwareWindow:     SoCWindow{Min: 0.15, Max: 0.85},
		FullAwareWindow:     SoCWindow{Min: 0.20, Max: 0.80},
		DischargeCellLimitC: 35,
		BaselineTOU: TOUSchedule{
			ChargeStartHour:    0,
			ChargeEndHour:      6,
			DischargeStartHour: 16,
			DischargeEndHour:   22,
		},
	}
}

// SoCBounds returns the state of charge bounds in force for the scenario,
// the battery limits intersected with the scenario window.
func (c ScenarioConfig) SoCBounds() (lo, hi float64) {
	lo, hi = c.Battery.SoCMin, c.Battery.SoCMax
	var w SoCWindow
	switch c.Scenario {
	case ScenarioBattAware:
		w = c.Policy.BattAwareWindow
	case ScenarioFullAware:
		w = c.Policy.FullAwareWindow
	}
	if w.IsZero() {
		return lo, hi
	}
	return math.Max(lo, w.Min), math.Min(hi, w.Max)
}

// ChargeBlocked reports whether charging is forbidden at step t.
func (c ScenarioConfig) ChargeBlocked(t int) bool {
	return c.Scenario == ScenarioBaseline && c.Policy.BaselineTOU.Discharging(c.Timestamp(t).Hour())
}

// DischargeBlocked reports whether discharging is forbidden at step t with
// the PV cell at cellC.
func (c ScenarioConfig) DischargeBlocked(t int, cellC float64) bool {
	switch c.Scenario {
	case ScenarioBaseline:
		return c.Policy.BaselineTOU.Charging(c.Timestamp(t).Hour())
	case ScenarioFullAware:
		return c.Policy.DischargeCellLimitC > 0 && cellC >= c.Policy.DischargeCellLimitC
	}
	return false
}

func (p Policy) validate(b BatteryLimits) error {
	for _, w := range []struct {
		name string
		win  SoCWindow
	}{
		{"policy.batt_aware_window", p.BattAwareWindow},
		{"policy.full_aware_window", p.FullAwareWindow},
	} {
		if w.win.IsZero() {
			continue
		}
		switch {
		case math.IsNaN(w.win.Min) || math.IsNaN(w.win.Max) || w.win.Min < 0 || w.win.Max > 1:
			return ConfigErrorf(w.name, "must lie within [0, 1], got [%v, %v]", w.win.Min, w.win.Max)
		case w.win.Min >= w.win.Max:
			return ConfigErrorf(w.name, "soc_min %v must be below soc_max %v", w.win.Min, w.win.Max)
		case math.Max(b.SoCMin, w.win.Min) >= math.Min(b.SoCMax, w.win.Max):
			return ConfigErrorf(w.name, "[%v, %v] does not overlap the battery limits [%v, %v]", w.win.Min, w.win.Max, b.SoCMin, b.SoCMax)
		}
	}
	if invalidNonNeg(p.DischargeCellLimitC) {
		return ConfigErrorf("policy.discharge_cell_limit_c", "must be >= 0, got %v", p.DischargeCellLimitC)
	}
	s := p.BaselineTOU
	for _, h := range []struct {
		name string
		v    int
	}{
		{"charge_start_hour", s.ChargeStartHour},
		{"charge_end_hour", s.ChargeEndHour},
		{"discharge_start_hour", s.DischargeStartHour},
		{"discharge_end_hour", s.DischargeEndHour},
	} {
		if h.v < 0 || h.v > 23 {
			return ConfigErrorf("policy.baseline_tou."+h.name, "must be an hour in [0, 23], got %d", h.v)
		}
	}
	if s.Enabled {
		for h := 0; h < 24; h++ {
			if s.Charging(h) && s.Discharging(h) {
				return ConfigErrorf("policy.baseline_tou", "hour %d is both a charge and a discharge hour", h)
			}
		}
	}
	return nil
}
