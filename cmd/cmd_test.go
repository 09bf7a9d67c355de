package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallConfig = `total_steps: 48
horizon_length: 8
solver:
  type: greedy
metrics:
  sinks:
    - type: nop
sweep:
  lambdas_batt: [0, 1]
  lambdas_pv: [0]
  workers: 2
bootstrap:
  samples: 50
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(smallConfig), 0o644))
	out := filepath.Join(dir, "results")

	got := execute(t, "generate", "-c", cfg, "-o", out, "--name", "inputs.csv")
	assert.Contains(t, got, "48 steps written")
	assert.FileExists(t, filepath.Join(out, "inputs.csv"))

	got = execute(t, "simulate", "-c", cfg, "-o", out, "-s", "all", "--format", "yaml")
	assert.Contains(t, got, "Baseline")
	assert.Contains(t, got, "Batt+PV-Aware")
	for _, name := range []string{"baseline_steps.csv", "batt_aware_steps.csv", "full_aware_steps.csv", "summary.csv", "report.yaml"} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	got = execute(t, "sweep", "-c", cfg, "-o", out)
	assert.Contains(t, got, "2 configurations")
	assert.FileExists(t, filepath.Join(out, "pareto.csv"))
	assert.FileExists(t, filepath.Join(out, "frontier.csv"))

	got = execute(t, "bootstrap", "-c", cfg, "-o", out, "-s", "baseline", "--format", "json")
	assert.Contains(t, got, "95% CI")
	assert.FileExists(t, filepath.Join(out, "report.json"))

	got = execute(t, "plugins")
	assert.Contains(t, got, "solvers:")
}

func TestParseScenarios(t *testing.T) {
	s, err := parseScenarios([]string{"base", "full"})
	require.NoError(t, err)
	assert.Len(t, s, 2)
	_, err = parseScenarios([]string{"nope"})
	assert.Error(t, err)
}
