package config

import (
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/series"
)

// SeriesConfig selects the input table: generated or read from CSV.
type SeriesConfig struct {
	// Source is "generate" or "csv".
	Source string `json:"source"`
	Path   string `json:"path"`
	Seed   uint64 `json:"seed"`

	PeakIrradianceWm2 float64       `json:"peak_irradiance_wm2"`
	BaseLoadKW        float64       `json:"base_load_kw"`
	MorningPeakKW     float64       `json:"morning_peak_kw"`
	EveningPeakKW     float64       `json:"evening_peak_kw"`
	AmbientMeanC      float64       `json:"ambient_mean_c"`
	Tariff            series.Tariff `json:"tariff"`
}

// DefaultSeriesConfig mirrors series.DefaultGeneratorConfig.
func DefaultSeriesConfig() SeriesConfig {
	g := series.DefaultGeneratorConfig()
	return SeriesConfig{
		Source:            "generate",
		Seed:              g.Seed,
		PeakIrradianceWm2: g.PeakIrradianceWm2,
		BaseLoadKW:        g.BaseLoadKW,
		MorningPeakKW:     g.MorningPeakKW,
		EveningPeakKW:     g.EveningPeakKW,
		AmbientMeanC:      g.AmbientMeanC,
		Tariff:            g.Tariff,
	}
}

// SetDefaults generates the input table when no source is given.
func (c *SeriesConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = "generate"
	}
}

// Validate checks the source and requires a path for CSV input.
func (c SeriesConfig) Validate() error {
	switch c.Source {
	case "generate":
		return nil
	case "csv":
		if c.Path == "" {
			return model.ConfigErrorf("series.path", "is required for csv input")
		}
		return nil
	default:
		return model.ConfigErrorf("series.source", "unknown source %q", c.Source)
	}
}

// Generator returns the generator configuration for the run in cfg.
func (c SeriesConfig) Generator(cfg model.ScenarioConfig) series.GeneratorConfig {
	g := series.DefaultGeneratorConfig()
	g.Start = cfg.Start
	g.Step = cfg.StepDuration
	g.Steps = cfg.TotalSteps
	g.Seed = c.Seed
	g.PeakIrradianceWm2 = c.PeakIrradianceWm2
	g.BaseLoadKW = c.BaseLoadKW
	g.MorningPeakKW = c.MorningPeakKW
	g.EveningPeakKW = c.EveningPeakKW
	g.AmbientMeanC = c.AmbientMeanC
	g.Tariff = c.Tariff
	return g
}
