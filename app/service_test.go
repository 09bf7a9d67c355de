package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/pvbess/config"
	"github.com/kilianp07/pvbess/core/events"
	"github.com/kilianp07/pvbess/core/factory"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/series"
	"github.com/kilianp07/pvbess/core/steplog"
	"github.com/kilianp07/pvbess/infra/logger"
	"github.com/kilianp07/pvbess/internal/eventbus"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TotalSteps = 96
	cfg.HorizonLength = 12
	cfg.Solver.Type = "greedy"
	cfg.Solver.Fallback = "idle"
	cfg.Logging.Backend = "jsonl"
	cfg.Logging.Path = filepath.Join(t.TempDir(), "steps.jsonl")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	cfg.Sweep.Workers = 2
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestSimulateAllScenarios(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	outs, err := svc.Simulate(context.Background(), model.Scenarios...)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	for i, o := range outs {
		require.NoError(t, o.Err)
		assert.Equal(t, model.Scenarios[i], o.Scenario)
		assert.Len(t, o.Result.Records, cfg.TotalSteps)
		assert.Equal(t, cfg.TotalSteps, o.Summary.Steps)
	}

	recs, err := svc.store.Query(context.Background(), steplog.LogQuery{Scenario: model.ScenarioBaseline.String()})
	require.NoError(t, err)
	assert.Len(t, recs, cfg.TotalSteps)
}

func TestSimulateDefaultsToConfiguredScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenario = model.ScenarioBattAware
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	outs, err := svc.Simulate(context.Background())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, model.ScenarioBattAware, outs[0].Scenario)
}

func TestSweepAndBootstrap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Backend = "none"
	cfg.Sweep.LambdasBatt = []float64{0, 1}
	cfg.Sweep.LambdasPV = []float64{0}
	cfg.Bootstrap.Samples = 200
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	outs, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, 1.0, outs[1].Weights.Batt)
	assert.Nil(t, outs[0].Result.Records)

	ivs, _, err := svc.Bootstrap(context.Background(), model.ScenarioBaseline)
	require.NoError(t, err)
	iv, ok := ivs["baseline"]
	require.True(t, ok)
	assert.Equal(t, 200, iv.Samples)
	assert.LessOrEqual(t, iv.Lower, iv.Mean)
	assert.GreaterOrEqual(t, iv.Upper, iv.Mean)
}

func TestLoadTableFromCSV(t *testing.T) {
	cfg := testConfig(t)
	gen, err := series.Generate(cfg.Series.Generator(cfg.ScenarioConfig()))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "inputs.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, series.WriteCSV(f, gen))
	require.NoError(t, f.Close())

	cfg.Series.Source = "csv"
	cfg.Series.Path = path
	tbl, err := LoadTable(cfg)
	require.NoError(t, err)
	assert.Equal(t, gen.Len(), tbl.Len())

	cfg.Series.Path = filepath.Join(t.TempDir(), "missing.csv")
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsUnknownSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSimulateStoresDailyCosts(t *testing.T) {
	cfg := testConfig(t)
	cfg.KPI.DailyDB = filepath.Join(t.TempDir(), "kpi.db")
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	outs, err := svc.Simulate(context.Background(), model.ScenarioBaseline)
	require.NoError(t, err)
	require.NoError(t, outs[0].Err)

	start := cfg.StartTime
	days, err := svc.DailyCosts(model.ScenarioBaseline, start, start.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, outs[0].Result.RunID, days[0].RunID)
	assert.Equal(t, 48, days[0].Steps)
	assert.InDelta(t, outs[0].Result.CostGBP(), days[0].CostGBP+days[1].CostGBP, 1e-9)
}

func TestProgressFollowsSweep(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Backend = "none"
	cfg.Sweep.LambdasBatt = []float64{0, 1}
	cfg.Sweep.LambdasPV = []float64{0}
	svc, err := New(cfg)
	require.NoError(t, err)

	_, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svc.Progress().SweepConfigs == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Close())

	st := svc.Progress()
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 2*cfg.TotalSteps, st.Steps)
	assert.Zero(t, st.SweepFailed)
}

func TestProgressLogsTenths(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.New()
	p := watchProgress(bus, logger.NewWithWriter(&buf, "progress", "info"))

	bus.Publish(events.RunEvent{RunID: "r", Scenario: model.ScenarioBaseline, Steps: 20})
	for i := range 20 {
		bus.Publish(events.StepEvent{RunID: "r", Scenario: model.ScenarioBaseline, Record: model.StepRecord{TimeIndex: i}})
	}
	bus.Publish(events.FallbackEvent{RunID: "r", TimeIndex: 3, Reason: "infeasible"})
	bus.Publish(events.RunEvent{RunID: "r", Done: true})
	bus.Publish(events.SweepEvent{Index: 0, Total: 1, Err: errors.New("boom")})
	bus.Close()
	<-p.done

	st := p.Stats()
	assert.Equal(t, ProgressStats{Runs: 1, Steps: 20, Fallbacks: 1, SweepConfigs: 1, SweepFailed: 1}, st)
	out := buf.String()
	assert.Equal(t, 10, strings.Count(out, "run r (baseline)"))
	assert.Contains(t, out, "100% (20/20 steps)")
	assert.Contains(t, out, "sweep 1/1 configurations done (1 failed)")
}
