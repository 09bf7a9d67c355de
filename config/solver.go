package config

import (
	"slices"

	"github.com/kilianp07/pvbess/core/dispatch"
	"github.com/kilianp07/pvbess/core/factory"
	"github.com/kilianp07/pvbess/core/forecast"
	"github.com/kilianp07/pvbess/core/model"
)

// SolverConfig selects the primary and secondary dispatch solvers.
type SolverConfig struct {
	// Type is the primary solver: "dp", "lp", "greedy" or "idle".
	Type string `json:"type"`
	// Fallback is retried when the primary fails for a reason other than
	// infeasibility. "none" disables it.
	Fallback  string  `json:"fallback"`
	Segments  int     `json:"segments"`
	Tolerance float64 `json:"tolerance"`
	// Resolution is the state of charge grid spacing of the dp solver.
	Resolution float64 `json:"resolution"`
}

// SetDefaults selects the DP solver with the greedy heuristic as fallback.
// The exact LP solver uses a dense simplex and suits short horizons.
func (c *SolverConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "dp"
	}
	if c.Fallback == "" {
		c.Fallback = "greedy"
	}
}

// Validate checks the solver names against the registry.
func (c SolverConfig) Validate() error {
	types := dispatch.Registry.Types()
	if !slices.Contains(types, c.Type) {
		return model.ConfigErrorf("solver.type", "unknown solver %q, expected one of %v", c.Type, types)
	}
	if c.Fallback != "none" && !slices.Contains(types, c.Fallback) {
		return model.ConfigErrorf("solver.fallback", "unknown solver %q", c.Fallback)
	}
	if c.Segments < 0 {
		return model.ConfigErrorf("solver.segments", "must be >= 0, got %d", c.Segments)
	}
	if c.Tolerance < 0 {
		return model.ConfigErrorf("solver.tolerance", "must be >= 0, got %v", c.Tolerance)
	}
	if c.Resolution < 0 || c.Resolution >= 1 {
		return model.ConfigErrorf("solver.resolution", "must lie in [0, 1), got %v", c.Resolution)
	}
	return nil
}

// Primary returns the module configuration of the primary solver.
func (c SolverConfig) Primary() factory.ModuleConfig {
	return c.module(c.Type)
}

// Secondary returns the fallback solver module and false when it is disabled.
func (c SolverConfig) Secondary() (factory.ModuleConfig, bool) {
	if c.Fallback == "none" || c.Fallback == c.Type {
		return factory.ModuleConfig{}, false
	}
	return c.module(c.Fallback), true
}

func (c SolverConfig) module(name string) factory.ModuleConfig {
	conf := map[string]any{}
	switch name {
	case "lp":
		if c.Segments > 0 {
			conf["segments"] = c.Segments
		}
		if c.Tolerance > 0 {
			conf["tolerance"] = c.Tolerance
		}
	case "dp":
		if c.Resolution > 0 {
			conf["resolution"] = c.Resolution
		}
	default:
		return factory.ModuleConfig{Type: name}
	}
	return factory.ModuleConfig{Type: name, Conf: conf}
}

// ForecastConfig selects the forecast provider.
type ForecastConfig struct {
	Type string `json:"type"`
}

// SetDefaults selects perfect foresight.
func (c *ForecastConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "perfect"
	}
}

// Validate checks the provider name.
func (c ForecastConfig) Validate() error {
	if !slices.Contains(forecast.Kinds, c.Type) {
		return model.ConfigErrorf("forecast.type", "unknown forecast provider %q, expected one of %v", c.Type, forecast.Kinds)
	}
	return nil
}
