// Package plugins links the built-in module implementations into the binary
// and lists the registered type names.
package plugins

import (
	"github.com/kilianp07/pvbess/core/dispatch"
	"github.com/kilianp07/pvbess/core/forecast"
	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/steplog"

	// Metrics sinks register themselves on import.
	_ "github.com/kilianp07/pvbess/infra/metrics"
	_ "github.com/kilianp07/pvbess/infra/mqtt"
)

// Catalog lists the type names accepted in the configuration.
type Catalog struct {
	Solvers   []string `json:"solvers" yaml:"solvers"`
	Forecasts []string `json:"forecasts" yaml:"forecasts"`
	Sinks     []string `json:"metrics_sinks" yaml:"metrics_sinks"`
	Stores    []string `json:"log_stores" yaml:"log_stores"`
}

// Available returns the registered module types.
func Available() Catalog {
	return Catalog{
		Solvers:   dispatch.Registry.Types(),
		Forecasts: append([]string(nil), forecast.Kinds...),
		Sinks:     coremetrics.SinkTypes(),
		Stores:    steplog.Registry.Types(),
	}
}
