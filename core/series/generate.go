package series

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/kilianp07/pvbess/core/model"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tariff is a three-band time-of-use import tariff with a flat export price.
type Tariff struct {
	NightPrice  float64 `json:"night_price"`
	DayPrice    float64 `json:"day_price"`
	PeakPrice   float64 `json:"peak_price"`
	ExportPrice float64 `json:"export_price"`
	NightEndH   int     `json:"night_end_h"`
	PeakStartH  int     `json:"peak_start_h"`
	PeakEndH    int     `json:"peak_end_h"`
}

// ImportPrice returns the import price at hour h of the day.
func (t Tariff) ImportPrice(h int) float64 {
	switch {
	case h < t.NightEndH:
		return t.NightPrice
	case h >= t.PeakStartH && h < t.PeakEndH:
		return t.PeakPrice
	default:
		return t.DayPrice
	}
}

// GeneratorConfig parameterises the synthetic input table.
type GeneratorConfig struct {
	Start time.Time     `json:"start"`
	Step  time.Duration `json:"step"`
	Steps int           `json:"steps"`
	Seed  uint64        `json:"seed"`

	PeakIrradianceWm2 float64 `json:"peak_irradiance_wm2"`
	BaseLoadKW        float64 `json:"base_load_kw"`
	MorningPeakKW     float64 `json:"morning_peak_kw"`
	EveningPeakKW     float64 `json:"evening_peak_kw"`
	AmbientMeanC      float64 `json:"ambient_mean_c"`
	AmbientSeasonalC  float64 `json:"ambient_seasonal_c"`
	AmbientDailyC     float64 `json:"ambient_daily_c"`
	CarbonBase        float64 `json:"carbon_base"`
	CarbonAmplitude   float64 `json:"carbon_amplitude"`
	Tariff            Tariff  `json:"tariff"`
}

// DefaultGeneratorConfig returns a UK-like residential year at 30 minutes.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Start:             time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:              30 * time.Minute,
		Steps:             365 * 48,
		Seed:              42,
		PeakIrradianceWm2: 950,
		BaseLoadKW:        0.35,
		MorningPeakKW:     0.8,
		EveningPeakKW:     1.6,
		AmbientMeanC:      11,
		AmbientSeasonalC:  7,
		AmbientDailyC:     4,
		CarbonBase:        190,
		CarbonAmplitude:   60,
		Tariff: Tariff{
			NightPrice:  0.10,
			DayPrice:    0.25,
			PeakPrice:   0.35,
			ExportPrice: 0.05,
			NightEndH:   7,
			PeakStartH:  16,
			PeakEndH:    19,
		},
	}
}

// Generate builds a reproducible synthetic table from cfg. The same seed
// always yields the same table.
func Generate(cfg GeneratorConfig) (*Table, error) {
	if cfg.Steps < 1 {
		return nil, model.ConfigErrorf("series.steps", "must be >= 1, got %d", cfg.Steps)
	}
	if cfg.Step <= 0 {
		return nil, model.ConfigErrorf("series.step", "must be positive, got %s", cfg.Step)
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	sky := distuv.Uniform{Min: 0.25, Max: 1, Src: src}

	clearness := 0.7
	points := make([]model.ForecastPoint, cfg.Steps)
	for i := range points {
		ts := cfg.Start.Add(time.Duration(i) * cfg.Step)
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		season := 2 * math.Pi * float64(ts.YearDay()-80) / 365

		clearness = 0.97*clearness + 0.03*sky.Rand()
		irr := 0.0
		dayLen := 12 + 4*math.Sin(season)
		sunrise := 12.5 - dayLen/2
		if x := (hour - sunrise) / dayLen; x > 0 && x < 1 {
			peak := cfg.PeakIrradianceWm2 * (0.55 + 0.45*math.Sin(season))
			irr = peak * math.Sin(math.Pi*x) * clearness
		}

		winter := 1 + 0.2*math.Cos(2*math.Pi*float64(ts.YearDay()-15)/365)
		load := cfg.BaseLoadKW +
			cfg.MorningPeakKW*gauss(hour, 7.5, 1.2) +
			cfg.EveningPeakKW*gauss(hour, 18.5, 1.8)
		load *= winter * (1 + 0.1*noise.Rand())

		ambient := cfg.AmbientMeanC -
			cfg.AmbientSeasonalC*math.Cos(2*math.Pi*float64(ts.YearDay()-15)/365) +
			cfg.AmbientDailyC*math.Sin(2*math.Pi*(hour-9)/24) +
			0.8*noise.Rand()

		carbon := cfg.CarbonBase +
			cfg.CarbonAmplitude*math.Cos(2*math.Pi*(hour-18)/24) -
			60*irr/1000 +
			10*noise.Rand()

		points[i] = model.ForecastPoint{
			IrradianceWm2: irr,
			LoadKW:        math.Max(0.05, load),
			ImportPrice:   cfg.Tariff.ImportPrice(ts.Hour()),
			ExportPrice:   cfg.Tariff.ExportPrice,
			CarbonGPerKWh: math.Max(20, carbon),
			AmbientC:      ambient,
		}
	}
	return NewTable(cfg.Start, cfg.Step, points)
}

func gauss(x, mu, sigma float64) float64 {
	d := (x - mu) / sigma
	return math.Exp(-0.5 * d * d)
}
