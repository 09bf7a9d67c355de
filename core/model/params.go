package model

import (
	"math"
	"time"
)

// BatteryLimits are the static electrical limits of the battery.
type BatteryLimits struct {
	SoCMin      float64 `json:"soc_min"`
	SoCMax      float64 `json:"soc_max"`
	PMaxKW      float64 `json:"p_max"`
	Efficiency  float64 `json:"efficiency"` // round-trip
	CapacityKWh float64 `json:"capacity_kwh"`
	InitialSoC  float64 `json:"initial_soc"`
	// AllowExport permits discharging into the grid beyond the local load.
	AllowExport bool `json:"allow_export"`
}

// OneWayEfficiency returns the efficiency applied on each of charge and discharge.
func (b BatteryLimits) OneWayEfficiency() float64 { return math.Sqrt(b.Efficiency) }

// PVParams describe the PV array.
type PVParams struct {
	RatedKW       float64 `json:"rated_kw"`
	TempCoeffPerC float64 `json:"temp_coeff_per_c"`
	TRefC         float64 `json:"t_ref_c"`
	NOCTC         float64 `json:"noct_c"`
}

// GridLimits bound the grid connection. Zero means unlimited.
type GridLimits struct {
	ImportLimitKW float64 `json:"import_limit_kw"`
	ExportLimitKW float64 `json:"export_limit_kw"`
}

// Weights are the objective weighting coefficients.
type Weights struct {
	Cost   float64 `json:"lambda_cost"`
	Batt   float64 `json:"lambda_batt"`
	PV     float64 `json:"lambda_pv"`
	Carbon float64 `json:"lambda_carbon"`
}

// BatteryAgeing holds the reduced-order battery ageing coefficients.
type BatteryAgeing struct {
	KCal               float64 `json:"k_cal"` // SOH loss per hour at TRefC
	EaOverR            float64 `json:"ea_over_r"`
	TRefC              float64 `json:"t_ref_c"`
	KCyc               float64 `json:"k_cyc"`
	Alpha              float64 `json:"alpha"`
	KCRate             float64 `json:"k_crate"`
	CRateRef           float64 `json:"c_rate_ref"`
	EOLFloor           float64 `json:"eol_floor"`
	ReplacementCostGBP float64 `json:"replacement_cost_gbp"`
	TempMinC           float64 `json:"temp_min_c"`
	TempMaxC           float64 `json:"temp_max_c"`
	// AmbientCoupled makes the battery follow ambient temperature instead of TRefC.
	AmbientCoupled bool `json:"ambient_coupled"`
}

// PVAgeing holds the empirical PV derating coefficients.
type PVAgeing struct {
	KIrr               float64 `json:"k_irr"` // derating per sun-hour
	KTherm             float64 `json:"k_therm"`
	TRefC              float64 `json:"t_ref_c"`
	UtilWeight         float64 `json:"util_weight"`
	MinDerating        float64 `json:"min_derating"`
	ReplacementCostGBP float64 `json:"replacement_cost_gbp"`
	CellTempMinC       float64 `json:"cell_temp_min_c"`
	CellTempMaxC       float64 `json:"cell_temp_max_c"`
}

// DefaultBatteryAgeing returns coefficients for a generic LFP pack.
func DefaultBatteryAgeing() BatteryAgeing {
	return BatteryAgeing{
		KCal:               2.5e-6,
		EaOverR:            4000,
		TRefC:              25,
		KCyc:               4e-5,
		Alpha:              1.3,
		KCRate:             0.5,
		CRateRef:           0.5,
		EOLFloor:           0.7,
		ReplacementCostGBP: 3500,
		TempMinC:           -40,
		TempMaxC:           80,
	}
}

// DefaultPVAgeing returns coefficients for crystalline silicon modules.
func DefaultPVAgeing() PVAgeing {
	return PVAgeing{
		KIrr:               4.5e-6,
		KTherm:             0.02,
		TRefC:              25,
		UtilWeight:         0.3,
		MinDerating:        0.5,
		ReplacementCostGBP: 4000,
		CellTempMinC:       -40,
		CellTempMaxC:       90,
	}
}

// ScenarioConfig is the immutable configuration of one simulation run.
type ScenarioConfig struct {
	Scenario      Scenario      `json:"scenario"`
	HorizonLength int           `json:"horizon_length"`
	StepDuration  time.Duration `json:"step_duration"`
	TotalSteps    int           `json:"total_steps"`
	Start         time.Time     `json:"start_time"`

	Weights       Weights       `json:"weights"`
	Battery       BatteryLimits `json:"battery_limits"`
	PV            PVParams      `json:"pv"`
	Grid          GridLimits    `json:"grid"`
	BatteryAgeing BatteryAgeing `json:"battery_ageing"`
	PVAgeing      PVAgeing      `json:"pv_ageing"`
	Policy        Policy        `json:"policy"`
}

// DefaultScenarioConfig returns a one-year, 30 minute, 24 hour lookahead
// configuration of a 5 kWp / 10 kWh residential system.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Scenario:      ScenarioFullAware,
		HorizonLength: 48,
		StepDuration:  30 * time.Minute,
		TotalSteps:    365 * 48,
		Start:         time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Weights:       Weights{Cost: 1, Batt: 1, PV: 1},
		Battery: BatteryLimits{
			SoCMin:      0.1,
			SoCMax:      0.95,
			PMaxKW:      5,
			Efficiency:  0.92,
			CapacityKWh: 10,
			InitialSoC:  0.5,
		},
		PV:            PVParams{RatedKW: 5, TempCoeffPerC: 0.004, TRefC: 25, NOCTC: 45},
		BatteryAgeing: DefaultBatteryAgeing(),
		PVAgeing:      DefaultPVAgeing(),
		Policy:        DefaultPolicy(),
	}
}

// StepHours returns the control step length in hours.
func (c ScenarioConfig) StepHours() float64 { return c.StepDuration.Hours() }

// StepsPerDay returns the number of control steps in 24 hours, at least 1.
func (c ScenarioConfig) StepsPerDay() int {
	if c.StepDuration <= 0 {
		return 1
	}
	n := int((24 * time.Hour) / c.StepDuration)
	if n < 1 {
		return 1
	}
	return n
}

// Timestamp returns the wall-clock start of step t.
func (c ScenarioConfig) Timestamp(t int) time.Time {
	return c.Start.Add(time.Duration(t) * c.StepDuration)
}

// EffectiveWeights applies scenario gating to the configured weights.
func (c ScenarioConfig) EffectiveWeights() Weights {
	w := c.Weights
	switch c.Scenario {
	case ScenarioBaseline:
		w.Batt, w.PV = 0, 0
	case ScenarioBattAware:
		w.PV = 0
	}
	return w
}

// InitialState returns a fresh state at the configured initial SOC, moved
// into the scenario's state of charge window when it lies outside.
func (c ScenarioConfig) InitialState() SystemState {
	lo, hi := c.SoCBounds()
	return NewSystemState(math.Max(lo, math.Min(hi, c.Battery.InitialSoC)))
}

// WithScenario returns a copy of c for scenario s.
func (c ScenarioConfig) WithScenario(s Scenario) ScenarioConfig {
	c.Scenario = s
	return c
}

// Validate checks every parameter and returns the first violation as a
// *ConfigurationError.
func (c ScenarioConfig) Validate() error {
	if !c.Scenario.Valid() {
		return ConfigErrorf("scenario", "unknown scenario %d", int(c.Scenario))
	}
	if c.HorizonLength < 1 {
		return ConfigErrorf("horizon_length", "must be >= 1, got %d", c.HorizonLength)
	}
	if c.StepDuration <= 0 {
		return ConfigErrorf("step_duration", "must be positive, got %s", c.StepDuration)
	}
	if c.TotalSteps < 1 {
		return ConfigErrorf("total_steps", "must be >= 1, got %d", c.TotalSteps)
	}
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"lambda_cost", c.Weights.Cost},
		{"lambda_batt", c.Weights.Batt},
		{"lambda_pv", c.Weights.PV},
		{"lambda_carbon", c.Weights.Carbon},
	} {
		if invalidNonNeg(w.v) {
			return ConfigErrorf(w.name, "must be a non-negative number, got %v", w.v)
		}
	}
	if err := c.Battery.validate(); err != nil {
		return err
	}
	if invalidNonNeg(c.PV.RatedKW) {
		return ConfigErrorf("pv_rated_capacity", "must be a non-negative number, got %v", c.PV.RatedKW)
	}
	if c.PV.TempCoeffPerC < 0 || c.PV.TempCoeffPerC >= 0.1 {
		return ConfigErrorf("pv.temp_coeff_per_c", "must be in [0, 0.1), got %v", c.PV.TempCoeffPerC)
	}
	if c.PV.NOCTC < 20 {
		return ConfigErrorf("pv.noct_c", "must be >= 20, got %v", c.PV.NOCTC)
	}
	if invalidNonNeg(c.Grid.ImportLimitKW) {
		return ConfigErrorf("grid.import_limit_kw", "must be >= 0, got %v", c.Grid.ImportLimitKW)
	}
	if invalidNonNeg(c.Grid.ExportLimitKW) {
		return ConfigErrorf("grid.export_limit_kw", "must be >= 0, got %v", c.Grid.ExportLimitKW)
	}
	if err := c.BatteryAgeing.validate(); err != nil {
		return err
	}
	if err := c.PVAgeing.validate(); err != nil {
		return err
	}
	return c.Policy.validate(c.Battery)
}

func (b BatteryLimits) validate() error {
	switch {
	case math.IsNaN(b.SoCMin) || b.SoCMin < 0:
		return ConfigErrorf("battery_limits.soc_min", "must be >= 0, got %v", b.SoCMin)
	case math.IsNaN(b.SoCMax) || b.SoCMax > 1:
		return ConfigErrorf("battery_limits.soc_max", "must be <= 1, got %v", b.SoCMax)
	case b.SoCMin >= b.SoCMax:
		return ConfigErrorf("battery_limits.soc_min", "soc_min %v must be below soc_max %v", b.SoCMin, b.SoCMax)
	case math.IsNaN(b.PMaxKW) || math.IsInf(b.PMaxKW, 0) || b.PMaxKW <= 0:
		return ConfigErrorf("battery_limits.p_max", "must be positive, got %v", b.PMaxKW)
	case math.IsNaN(b.Efficiency) || b.Efficiency <= 0 || b.Efficiency > 1:
		return ConfigErrorf("battery_limits.efficiency", "must be in (0, 1], got %v", b.Efficiency)
	case math.IsNaN(b.CapacityKWh) || math.IsInf(b.CapacityKWh, 0) || b.CapacityKWh <= 0:
		return ConfigErrorf("battery_limits.capacity_kwh", "must be positive, got %v", b.CapacityKWh)
	case math.IsNaN(b.InitialSoC) || b.InitialSoC < b.SoCMin || b.InitialSoC > b.SoCMax:
		return ConfigErrorf("battery_limits.initial_soc", "must be within [%v, %v], got %v", b.SoCMin, b.SoCMax, b.InitialSoC)
	}
	return nil
}

func (a BatteryAgeing) validate() error {
	switch {
	case invalidNonNeg(a.KCal):
		return ConfigErrorf("degradation.battery.k_cal", "must be >= 0, got %v", a.KCal)
	case invalidNonNeg(a.EaOverR):
		return ConfigErrorf("degradation.battery.ea_over_r", "must be >= 0, got %v", a.EaOverR)
	case invalidNonNeg(a.KCyc):
		return ConfigErrorf("degradation.battery.k_cyc", "must be >= 0, got %v", a.KCyc)
	case math.IsNaN(a.Alpha) || a.Alpha < 1:
		// alpha < 1 would make cycle ageing concave and break the LP linearisation
		return ConfigErrorf("degradation.battery.alpha", "must be >= 1, got %v", a.Alpha)
	case invalidNonNeg(a.KCRate):
		return ConfigErrorf("degradation.battery.k_crate", "must be >= 0, got %v", a.KCRate)
	case invalidNonNeg(a.CRateRef):
		return ConfigErrorf("degradation.battery.c_rate_ref", "must be >= 0, got %v", a.CRateRef)
	case math.IsNaN(a.EOLFloor) || a.EOLFloor <= 0 || a.EOLFloor >= 1:
		return ConfigErrorf("degradation.battery.eol_floor", "must be in (0, 1), got %v", a.EOLFloor)
	case invalidNonNeg(a.ReplacementCostGBP):
		return ConfigErrorf("degradation.battery.replacement_cost_gbp", "must be >= 0, got %v", a.ReplacementCostGBP)
	case a.TempMinC >= a.TempMaxC:
		return ConfigErrorf("degradation.battery.temp_min_c", "must be below temp_max_c")
	case a.TRefC < a.TempMinC || a.TRefC > a.TempMaxC:
		return ConfigErrorf("degradation.battery.t_ref_c", "must be within [%v, %v]", a.TempMinC, a.TempMaxC)
	case a.TempMinC <= -273.15:
		return ConfigErrorf("degradation.battery.temp_min_c", "must be above absolute zero")
	}
	return nil
}

func (p PVAgeing) validate() error {
	switch {
	case invalidNonNeg(p.KIrr):
		return ConfigErrorf("degradation.pv.k_irr", "must be >= 0, got %v", p.KIrr)
	case invalidNonNeg(p.KTherm):
		return ConfigErrorf("degradation.pv.k_therm", "must be >= 0, got %v", p.KTherm)
	case math.IsNaN(p.UtilWeight) || p.UtilWeight < 0 || p.UtilWeight > 1:
		return ConfigErrorf("degradation.pv.util_weight", "must be in [0, 1], got %v", p.UtilWeight)
	case math.IsNaN(p.MinDerating) || p.MinDerating <= 0 || p.MinDerating > 1:
		return ConfigErrorf("degradation.pv.min_derating", "must be in (0, 1], got %v", p.MinDerating)
	case invalidNonNeg(p.ReplacementCostGBP):
		return ConfigErrorf("degradation.pv.replacement_cost_gbp", "must be >= 0, got %v", p.ReplacementCostGBP)
	case p.CellTempMinC >= p.CellTempMaxC:
		return ConfigErrorf("degradation.pv.cell_temp_min_c", "must be below cell_temp_max_c")
	}
	return nil
}

func invalidNonNeg(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}
