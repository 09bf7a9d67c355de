// Package degradation implements the reduced-order battery ageing and PV
// derating equations. Every function is pure.
package degradation

import (
	"math"
	"time"

	"github.com/kilianp07/pvbess/core/model"
)

const kelvin = 273.15

// Model evaluates ageing for one installation.
type Model struct {
	Battery     model.BatteryAgeing
	PVAgeing    model.PVAgeing
	PV          model.PVParams
	CapacityKWh float64
}

// New returns the degradation model of cfg.
func New(cfg model.ScenarioConfig) Model {
	return Model{
		Battery:     cfg.BatteryAgeing,
		PVAgeing:    cfg.PVAgeing,
		PV:          cfg.PV,
		CapacityKWh: cfg.Battery.CapacityKWh,
	}
}

// BatteryStress is the result of applying one step of battery stress.
type BatteryStress struct {
	SoH             float64
	CalendarAgeH    float64
	CycleCount      float64
	CalendarLoss    float64
	CycleLoss       float64
	CalendarCostGBP float64
	CycleCostGBP    float64
	// Clamped is set when the end-of-life floor was reached during the step.
	Clamped bool
}

// CostGBP returns the total incremental battery degradation cost.
func (s BatteryStress) CostGBP() float64 { return s.CalendarCostGBP + s.CycleCostGBP }

// PVStress is the result of applying one step of PV stress.
type PVStress struct {
	Derating    float64
	ExposureAge float64
	Loss        float64
	CostGBP     float64
	Clamped     bool
}

// CheckBatteryTemperature returns a *model.ConfigurationError when tempC is
// outside the plausible battery range.
func (m Model) CheckBatteryTemperature(tempC float64) error {
	if math.IsNaN(tempC) || tempC < m.Battery.TempMinC || tempC > m.Battery.TempMaxC {
		return model.ConfigErrorf("battery_temperature", "%v °C outside [%v, %v]", tempC, m.Battery.TempMinC, m.Battery.TempMaxC)
	}
	return nil
}

// CheckCellTemperature returns a *model.ConfigurationError when tempC is
// outside the plausible PV cell range.
func (m Model) CheckCellTemperature(tempC float64) error {
	if math.IsNaN(tempC) || tempC < m.PVAgeing.CellTempMinC || tempC > m.PVAgeing.CellTempMaxC {
		return model.ConfigErrorf("pv_cell_temperature", "%v °C outside [%v, %v]", tempC, m.PVAgeing.CellTempMinC, m.PVAgeing.CellTempMaxC)
	}
	return nil
}

// BatteryTemperatureC returns the battery temperature for an ambient reading.
func (m Model) BatteryTemperatureC(ambientC float64) float64 {
	if m.Battery.AmbientCoupled {
		return ambientC
	}
	return m.Battery.TRefC
}

// CalendarLoss returns the SOH lost to calendar ageing over hours at tempC and
// the given state of charge.
func (m Model) CalendarLoss(soc, tempC, hours float64) float64 {
	if hours <= 0 || m.Battery.KCal == 0 {
		return 0
	}
	t := tempC + kelvin
	tRef := m.Battery.TRefC + kelvin
	arrhenius := math.Exp(-m.Battery.EaOverR * (1/t - 1/tRef))
	return m.Battery.KCal * arrhenius * (0.5 + 0.5*clamp01(soc)) * hours
}

// CycleLoss returns the SOH lost to one step of throughput at |powerKW|.
func (m Model) CycleLoss(powerKW, hours float64) float64 {
	p := math.Abs(powerKW)
	if p == 0 || hours <= 0 || m.CapacityKWh <= 0 {
		return 0
	}
	dod := math.Min(1, p*hours/m.CapacityKWh)
	cRate := p / m.CapacityKWh
	return m.Battery.KCyc * math.Pow(dod, m.Battery.Alpha) * (1 + m.Battery.KCRate*math.Max(0, cRate-m.Battery.CRateRef))
}

// LossCostGBP converts a SOH loss into a share of the replacement cost.
func (m Model) LossCostGBP(loss float64) float64 {
	return loss / (1 - m.Battery.EOLFloor) * m.Battery.ReplacementCostGBP
}

// CycleCostGBP returns the cycle ageing cost of running the battery at
// |powerKW| for dt. It is convex in the power.
func (m Model) CycleCostGBP(powerKW float64, dt time.Duration) float64 {
	return m.LossCostGBP(m.CycleLoss(powerKW, dt.Hours()))
}

// ApplyBatteryStress returns the battery ageing state after applying
// powerKW (positive when charging) for dt at tempC.
func (m Model) ApplyBatteryStress(state model.SystemState, powerKW float64, dt time.Duration, tempC float64) (BatteryStress, error) {
	out := BatteryStress{
		SoH:          state.BatterySoH,
		CalendarAgeH: state.BatteryCalendarAgeH,
		CycleCount:   state.BatteryCycleCount,
	}
	hours := dt.Hours()
	if hours <= 0 {
		return out, nil
	}
	if err := m.CheckBatteryTemperature(tempC); err != nil {
		return out, err
	}
	if math.IsNaN(powerKW) || math.IsInf(powerKW, 0) {
		powerKW = 0
	}
	cal := m.CalendarLoss(state.BatterySoC, tempC, hours)
	cyc := m.CycleLoss(powerKW, hours)

	if room := state.BatterySoH - m.Battery.EOLFloor; cal+cyc > room {
		out.Clamped = true
		if room <= 0 {
			cal, cyc = 0, 0
		} else {
			scale := room / (cal + cyc)
			cal *= scale
			cyc *= scale
		}
	}
	out.CalendarLoss = cal
	out.CycleLoss = cyc
	switch {
	case out.Clamped:
		out.SoH = math.Min(m.Battery.EOLFloor, state.BatterySoH)
	default:
		out.SoH = state.BatterySoH - cal - cyc
	}
	out.CalendarAgeH += hours
	if m.CapacityKWh > 0 {
		out.CycleCount += math.Abs(powerKW) * hours / (2 * m.CapacityKWh)
	}
	out.CalendarCostGBP = m.LossCostGBP(cal)
	out.CycleCostGBP = m.LossCostGBP(cyc)
	return out, nil
}

// PVBaseLoss returns the derating increment for full utilisation at
// irradiance and cell temperature over hours, before the utilisation term.
func (m Model) PVBaseLoss(irradianceWm2, cellC, hours float64) float64 {
	if irradianceWm2 <= 0 || hours <= 0 {
		return 0
	}
	thermal := 1 + m.PVAgeing.KTherm*math.Max(0, cellC-m.PVAgeing.TRefC)
	return m.PVAgeing.KIrr * (irradianceWm2 / 1000) * hours * thermal
}

// PVLossCostGBP converts a derating loss into a share of the array replacement cost.
func (m Model) PVLossCostGBP(loss float64) float64 {
	return loss / (1 - m.PVAgeing.MinDerating) * m.PVAgeing.ReplacementCostGBP
}

// UtilisationFactor weights the derating increment by the share of available
// PV that is not curtailed.
func (m Model) UtilisationFactor(utilisation float64) float64 {
	w := m.PVAgeing.UtilWeight
	return 1 - w + w*clamp01(utilisation)
}

// ApplyPVStress returns the PV derating state after exposure to irradiance
// at cellC for dt. utilisation is the non-curtailed share of available PV.
func (m Model) ApplyPVStress(state model.SystemState, irradianceWm2, cellC float64, dt time.Duration, utilisation float64) (PVStress, error) {
	out := PVStress{Derating: state.PVDeratingFactor, ExposureAge: state.PVExposureAge}
	hours := dt.Hours()
	if hours <= 0 || irradianceWm2 <= 0 || math.IsNaN(irradianceWm2) {
		return out, nil
	}
	if err := m.CheckCellTemperature(cellC); err != nil {
		return out, err
	}
	loss := m.PVBaseLoss(irradianceWm2, cellC, hours) * m.UtilisationFactor(utilisation)
	if room := state.PVDeratingFactor - m.PVAgeing.MinDerating; loss > room {
		out.Clamped = true
		loss = math.Max(0, room)
	}
	out.Loss = loss
	out.Derating = state.PVDeratingFactor - loss
	if out.Clamped {
		out.Derating = math.Min(m.PVAgeing.MinDerating, state.PVDeratingFactor)
	}
	out.ExposureAge += irradianceWm2 / 1000 * hours
	out.CostGBP = m.PVLossCostGBP(loss)
	return out, nil
}

// CellTemperatureC estimates the PV cell temperature with the NOCT model.
func (m Model) CellTemperatureC(ambientC, irradianceWm2 float64) float64 {
	return ambientC + (m.PV.NOCTC-20)/800*math.Max(0, irradianceWm2)
}

// PVOutputKW returns the available PV power for the given conditions.
func (m Model) PVOutputKW(irradianceWm2, cellC, derating float64) float64 {
	if irradianceWm2 <= 0 || math.IsNaN(irradianceWm2) {
		return 0
	}
	p := m.PV.RatedKW * irradianceWm2 / 1000 * derating * (1 - m.PV.TempCoeffPerC*(cellC-m.PV.TRefC))
	return math.Max(0, p)
}

// UsableCapacityKWh returns the energy capacity left at the state's health.
func (m Model) UsableCapacityKWh(state model.SystemState) float64 {
	return m.CapacityKWh * state.BatterySoH
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
