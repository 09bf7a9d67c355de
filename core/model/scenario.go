package model

import (
	"fmt"
	"strings"
)

// Scenario selects which degradation terms are active in the dispatch objective.
type Scenario int

const (
	// ScenarioBaseline minimises cost only.
	ScenarioBaseline Scenario = iota
	// ScenarioBattAware adds the battery degradation term.
	ScenarioBattAware
	// ScenarioFullAware adds both the battery and the PV degradation terms.
	ScenarioFullAware
)

// Scenarios lists every scenario in reporting order.
var Scenarios = []Scenario{ScenarioBaseline, ScenarioBattAware, ScenarioFullAware}

// String returns the configuration name of the scenario.
func (s Scenario) String() string {
	switch s {
	case ScenarioBaseline:
		return "baseline"
	case ScenarioBattAware:
		return "batt_aware"
	case ScenarioFullAware:
		return "full_aware"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known scenario.
func (s Scenario) Valid() bool {
	return s >= ScenarioBaseline && s <= ScenarioFullAware
}

// Label returns the human-readable scenario name used in reports.
func (s Scenario) Label() string {
	switch s {
	case ScenarioBaseline:
		return "Baseline"
	case ScenarioBattAware:
		return "Batt-Aware"
	case ScenarioFullAware:
		return "Batt+PV-Aware"
	default:
		return "unknown"
	}
}

// ParseScenario converts a configuration string into a Scenario.
// The short aliases "base", "batt" and "full" are accepted.
func ParseScenario(s string) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baseline", "base":
		return ScenarioBaseline, nil
	case "batt_aware", "batt":
		return ScenarioBattAware, nil
	case "full_aware", "full":
		return ScenarioFullAware, nil
	default:
		return 0, &ConfigurationError{Field: "scenario", Reason: fmt.Sprintf("unknown scenario %q", s)}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scenario) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scenario) UnmarshalText(b []byte) error {
	v, err := ParseScenario(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
