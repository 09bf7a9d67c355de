package model

// ForecastPoint holds the exogenous inputs of one simulation step. The same
// type carries forecasts and realised observations.
type ForecastPoint struct {
	TimeIndex     int     `json:"time_index"`
	IrradianceWm2 float64 `json:"irradiance_wm2"`
	LoadKW        float64 `json:"load_kw"`
	ImportPrice   float64 `json:"import_price"` // £/kWh
	ExportPrice   float64 `json:"export_price"` // £/kWh
	CarbonGPerKWh float64 `json:"carbon_g_per_kwh"`
	AmbientC      float64 `json:"ambient_c"`
}

// ForecastWindow is an ordered sequence of points aligned to [Start, Start+Len).
type ForecastWindow struct {
	Start  int             `json:"start"`
	Points []ForecastPoint `json:"points"`
}

// Len returns the number of steps in the window.
func (w ForecastWindow) Len() int { return len(w.Points) }
