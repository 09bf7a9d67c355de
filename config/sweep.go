package config

import (
	"runtime"

	"github.com/kilianp07/pvbess/core/kpi"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/sweep"
)

// SweepConfig defines the Pareto grid and the number of concurrent runs.
type SweepConfig struct {
	LambdasBatt []float64 `json:"lambdas_batt"`
	LambdasPV   []float64 `json:"lambdas_pv"`
	Workers     int       `json:"workers"`
}

// SetDefaults uses the default grid and one worker per CPU.
func (c *SweepConfig) SetDefaults() {
	g := sweep.DefaultGrid()
	if len(c.LambdasBatt) == 0 {
		c.LambdasBatt = g.LambdasBatt
	}
	if len(c.LambdasPV) == 0 {
		c.LambdasPV = g.LambdasPV
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate rejects negative weights and worker counts.
func (c SweepConfig) Validate() error {
	for _, l := range append(append([]float64{}, c.LambdasBatt...), c.LambdasPV...) {
		if l < 0 {
			return model.ConfigErrorf("sweep", "lambdas must be non-negative, got %v", l)
		}
	}
	if c.Workers < 0 {
		return model.ConfigErrorf("sweep.workers", "must be >= 0, got %d", c.Workers)
	}
	return nil
}

// Grid returns the configured sweep grid.
func (c SweepConfig) Grid() sweep.Grid {
	return sweep.Grid{LambdasBatt: c.LambdasBatt, LambdasPV: c.LambdasPV}
}

// BootstrapConfig parameterises the confidence interval of mean daily cost.
type BootstrapConfig struct {
	Samples int     `json:"samples"`
	Seed    uint64  `json:"seed"`
	Level   float64 `json:"level"`
}

// SetDefaults applies kpi.DefaultBootstrapConfig to unset fields.
func (c *BootstrapConfig) SetDefaults() {
	d := kpi.DefaultBootstrapConfig()
	if c.Samples == 0 {
		c.Samples = d.Samples
	}
	if c.Level == 0 {
		c.Level = d.Level
	}
}

// Validate checks the resample count and confidence level.
func (c BootstrapConfig) Validate() error {
	if c.Samples < 1 {
		return model.ConfigErrorf("bootstrap.samples", "must be >= 1, got %d", c.Samples)
	}
	if c.Level <= 0 || c.Level >= 1 {
		return model.ConfigErrorf("bootstrap.level", "must be in (0,1), got %v", c.Level)
	}
	return nil
}

// KPI converts c to the kpi package configuration.
func (c BootstrapConfig) KPI() kpi.BootstrapConfig {
	return kpi.BootstrapConfig{Samples: c.Samples, Seed: c.Seed, Level: c.Level}
}
