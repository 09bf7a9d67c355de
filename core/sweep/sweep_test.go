package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/pvbess/core/controller"
	"github.com/kilianp07/pvbess/core/dispatch"
	"github.com/kilianp07/pvbess/core/events"
	"github.com/kilianp07/pvbess/core/forecast"
	"github.com/kilianp07/pvbess/core/kpi"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/series"
	"github.com/kilianp07/pvbess/internal/eventbus"
)

func fixture(t *testing.T) (model.ScenarioConfig, Factory) {
	t.Helper()
	gc := series.DefaultGeneratorConfig()
	gc.Steps = 48
	tbl, err := series.Generate(gc)
	require.NoError(t, err)
	cfg := model.DefaultScenarioConfig()
	cfg.Start = gc.Start
	cfg.TotalSteps = gc.Steps
	cfg.HorizonLength = 8
	factory := func(c model.ScenarioConfig) (*controller.Controller, error) {
		return controller.New(c, forecast.Perfect{Source: tbl}, tbl, dispatch.GreedySolver{})
	}
	return cfg, factory
}

func TestGridConfigs(t *testing.T) {
	cfg := model.DefaultScenarioConfig().WithScenario(model.ScenarioBaseline)
	cfgs := DefaultGrid().Configs(cfg)
	require.Len(t, cfgs, 12)
	assert.Equal(t, model.ScenarioFullAware, cfgs[0].Scenario)
	assert.Equal(t, 0.0, cfgs[0].Weights.Batt)
	assert.Equal(t, 0.5, cfgs[1].Weights.PV)
	assert.Equal(t, 2.0, cfgs[11].Weights.Batt)
	assert.Equal(t, 1.0, cfgs[11].Weights.PV)
}

func TestParetoMatchesSequentialRuns(t *testing.T) {
	base, factory := fixture(t)
	bus := eventbus.New()
	sub := bus.Subscribe()
	r := Runner{Factory: factory, Workers: 4, Bus: bus}

	outs, err := r.Pareto(context.Background(), base, DefaultGrid())
	require.NoError(t, err)
	require.Len(t, outs, 12)

	for i, cfg := range DefaultGrid().Configs(base) {
		require.NoError(t, outs[i].Err)
		assert.Equal(t, i, outs[i].Index)
		assert.Equal(t, cfg.Weights, outs[i].Weights)
		c, err := factory(cfg)
		require.NoError(t, err)
		res, err := c.Run()
		require.NoError(t, err)
		assert.Equal(t, kpi.Summarize(cfg, res.Records), outs[i].Summary, "configuration %d", i)
		assert.Nil(t, outs[i].Result.Records)
	}

	seen := map[int]bool{}
	timeout := time.After(time.Second)
	for len(seen) < 12 {
		select {
		case ev := <-sub:
			if se, ok := ev.(events.SweepEvent); ok {
				assert.Equal(t, 12, se.Total)
				seen[se.Index] = true
			}
		case <-timeout:
			t.Fatalf("got %d sweep events", len(seen))
		}
	}
}

func TestFailedConfigurationDoesNotAffectOthers(t *testing.T) {
	base, factory := fixture(t)
	boom := errors.New("bad solver setup")
	r := Runner{
		Workers: 2,
		Factory: func(c model.ScenarioConfig) (*controller.Controller, error) {
			if c.Scenario == model.ScenarioBattAware {
				return nil, boom
			}
			return factory(c)
		},
		KeepRecords: true,
	}
	outs, err := r.Scenarios(context.Background(), base, model.Scenarios)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.NoError(t, outs[0].Err)
	assert.ErrorIs(t, outs[1].Err, boom)
	assert.NoError(t, outs[2].Err)
	assert.Len(t, outs[2].Result.Records, base.TotalSteps)

	sorted := SortByCost(outs)
	assert.Len(t, sorted, 2)
}

func TestInvalidConfigurationIsReported(t *testing.T) {
	base, factory := fixture(t)
	grid := Grid{LambdasBatt: []float64{-1, 1}, LambdasPV: []float64{0}}
	outs, err := Runner{Factory: factory}.Pareto(context.Background(), base, grid)
	require.NoError(t, err)
	var ce *model.ConfigurationError
	assert.ErrorAs(t, outs[0].Err, &ce)
	assert.NoError(t, outs[1].Err)

	_, err = Runner{Factory: factory}.Pareto(context.Background(), base, Grid{})
	assert.ErrorAs(t, err, &ce)
}

func TestCanceledSweepSkipsConfigurations(t *testing.T) {
	base, factory := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outs, err := Runner{Factory: factory, Workers: 2}.Pareto(ctx, base, DefaultGrid())
	assert.ErrorIs(t, err, context.Canceled)
	for _, o := range outs {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestFrontier(t *testing.T) {
	mk := func(cost, efc float64) Outcome {
		return Outcome{Summary: kpi.Summary{AnnualCostGBP: cost, EquivalentFullCycles: efc}}
	}
	outs := []Outcome{mk(300, 50), mk(250, 120), mk(260, 90), mk(280, 95), mk(320, 40), mk(250, 130)}
	outs = append(outs, Outcome{Err: errors.New("failed")})
	front := Frontier(outs)
	var got [][2]float64
	for _, o := range front {
		got = append(got, [2]float64{o.Summary.AnnualCostGBP, o.Summary.EquivalentFullCycles})
	}
	assert.Equal(t, [][2]float64{{250, 120}, {260, 90}, {300, 50}, {320, 40}}, got)
}
