// Package config loads the simulator configuration from a YAML or JSON file
// with PVBESS_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: PVBESS_BATTERY_LIMITS__SOC_MIN=0.15.
const EnvPrefix = "PVBESS_"

// Config is the full simulator configuration.
type Config struct {
	Scenario      model.Scenario `json:"scenario"`
	HorizonLength int            `json:"horizon_length"`
	StepDuration  time.Duration  `json:"step_duration"`
	TotalSteps    int            `json:"total_steps"`
	StartTime     time.Time      `json:"start_time"`

	LambdaCost   float64 `json:"lambda_cost"`
	LambdaBatt   float64 `json:"lambda_batt"`
	LambdaPV     float64 `json:"lambda_pv"`
	LambdaCarbon float64 `json:"lambda_carbon"`

	BatteryLimits   model.BatteryLimits `json:"battery_limits"`
	PVRatedCapacity float64             `json:"pv_rated_capacity"`
	PV              PVConfig            `json:"pv"`
	Grid            model.GridLimits    `json:"grid"`
	Degradation     DegradationConfig   `json:"degradation"`
	Policy          model.Policy        `json:"policy"`

	Solver    SolverConfig    `json:"solver"`
	Forecast  ForecastConfig  `json:"forecast"`
	Series    SeriesConfig    `json:"series"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   metrics.Config  `json:"metrics"`
	Sweep     SweepConfig     `json:"sweep"`
	Bootstrap BootstrapConfig `json:"bootstrap"`
	KPI       KPIConfig       `json:"kpi"`
}

// KPIConfig configures KPI persistence.
type KPIConfig struct {
	// DailyDB is the SQLite file receiving the daily cost of every simulated
	// scenario. Empty disables it.
	DailyDB string `json:"daily_db"`
}

// PVConfig holds the PV array parameters other than its rated capacity.
type PVConfig struct {
	TempCoeffPerC float64 `json:"temp_coeff_per_c"`
	TRefC         float64 `json:"t_ref_c"`
	NOCTC         float64 `json:"noct_c"`
}

// DegradationConfig holds the ageing coefficients.
type DegradationConfig struct {
	Battery model.BatteryAgeing `json:"battery"`
	PV      model.PVAgeing      `json:"pv"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	sc := model.DefaultScenarioConfig()
	return Config{
		Scenario:        sc.Scenario,
		HorizonLength:   sc.HorizonLength,
		StepDuration:    sc.StepDuration,
		TotalSteps:      sc.TotalSteps,
		StartTime:       sc.Start,
		LambdaCost:      sc.Weights.Cost,
		LambdaBatt:      sc.Weights.Batt,
		LambdaPV:        sc.Weights.PV,
		LambdaCarbon:    sc.Weights.Carbon,
		BatteryLimits:   sc.Battery,
		PVRatedCapacity: sc.PV.RatedKW,
		PV:              PVConfig{TempCoeffPerC: sc.PV.TempCoeffPerC, TRefC: sc.PV.TRefC, NOCTC: sc.PV.NOCTC},
		Grid:            sc.Grid,
		Degradation:     DegradationConfig{Battery: sc.BatteryAgeing, PV: sc.PVAgeing},
		Policy:          sc.Policy,
		Series:          DefaultSeriesConfig(),
	}
}

// Load reads path (YAML or JSON by extension) over the defaults, applies
// PVBESS_ environment overrides, then validates. An empty path loads the
// defaults and the environment only. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
		},
	}); err != nil {
		return nil, &model.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults fills the optional sections left empty.
func (c *Config) SetDefaults() {
	c.Solver.SetDefaults()
	c.Forecast.SetDefaults()
	c.Series.SetDefaults()
	c.Logging.SetDefaults()
	c.Sweep.SetDefaults()
	c.Bootstrap.SetDefaults()
}

// Validate checks every section and the resulting scenario configuration.
func (c Config) Validate() error {
	if err := c.ScenarioConfig().Validate(); err != nil {
		return err
	}
	for _, v := range []interface{ Validate() error }{c.Solver, c.Forecast, c.Series, c.Logging, c.Sweep, c.Bootstrap} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ScenarioConfig builds the immutable run configuration.
func (c Config) ScenarioConfig() model.ScenarioConfig {
	return model.ScenarioConfig{
		Scenario:      c.Scenario,
		HorizonLength: c.HorizonLength,
		StepDuration:  c.StepDuration,
		TotalSteps:    c.TotalSteps,
		Start:         c.StartTime,
		Weights: model.Weights{
			Cost:   c.LambdaCost,
			Batt:   c.LambdaBatt,
			PV:     c.LambdaPV,
			Carbon: c.LambdaCarbon,
		},
		Battery: c.BatteryLimits,
		PV: model.PVParams{
			RatedKW:       c.PVRatedCapacity,
			TempCoeffPerC: c.PV.TempCoeffPerC,
			TRefC:         c.PV.TRefC,
			NOCTC:         c.PV.NOCTC,
		},
		Grid:          c.Grid,
		BatteryAgeing: c.Degradation.Battery,
		PVAgeing:      c.Degradation.PV,
		Policy:        c.Policy,
	}
}
