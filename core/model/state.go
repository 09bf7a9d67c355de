package model

// SystemState is the physical state of the installation. It is owned by a
// single controller run and advanced exactly once per committed step.
type SystemState struct {
	TimeIndex int `json:"time_index" yaml:"time_index"`
	// BatterySoC is the state of charge as a fraction of usable capacity.
	BatterySoC float64 `json:"battery_soc" yaml:"battery_soc"`
	// BatterySoH is the fraction of nominal capacity remaining.
	BatterySoH float64 `json:"battery_soh" yaml:"battery_soh"`
	// BatteryCalendarAgeH accumulates elapsed hours.
	BatteryCalendarAgeH float64 `json:"battery_calendar_age_h" yaml:"battery_calendar_age_h"`
	// BatteryCycleCount accumulates equivalent full cycles.
	BatteryCycleCount float64 `json:"battery_cycle_count" yaml:"battery_cycle_count"`
	// PVDeratingFactor scales rated PV output.
	PVDeratingFactor float64 `json:"pv_derating_factor" yaml:"pv_derating_factor"`
	// PVExposureAge accumulates equivalent sun-hours.
	PVExposureAge float64 `json:"pv_exposure_age" yaml:"pv_exposure_age"`
}

// NewSystemState returns a fresh installation at the given state of charge.
func NewSystemState(soc float64) SystemState {
	return SystemState{
		BatterySoC:       soc,
		BatterySoH:       1,
		PVDeratingFactor: 1,
	}
}
