// Package sweep runs independent simulations concurrently: the three
// scenarios side by side, or a Pareto grid over the degradation weights.
package sweep

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/pvbess/core/controller"
	"github.com/kilianp07/pvbess/core/events"
	"github.com/kilianp07/pvbess/core/kpi"
	"github.com/kilianp07/pvbess/core/logger"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/internal/eventbus"
)

// Factory builds the controller of one configuration.
type Factory func(cfg model.ScenarioConfig) (*controller.Controller, error)

// Grid is the set of (λ_batt, λ_pv) pairs of a Pareto sweep.
type Grid struct {
	LambdasBatt []float64 `json:"lambdas_batt"`
	LambdasPV   []float64 `json:"lambdas_pv"`
}

// DefaultGrid returns λ_batt in {0, 0.5, 1, 2} and λ_pv in {0, 0.5, 1}.
func DefaultGrid() Grid {
	return Grid{LambdasBatt: []float64{0, 0.5, 1, 2}, LambdasPV: []float64{0, 0.5, 1}}
}

// Configs expands the grid over base, batt-major, in the FullAware scenario.
func (g Grid) Configs(base model.ScenarioConfig) []model.ScenarioConfig {
	out := make([]model.ScenarioConfig, 0, len(g.LambdasBatt)*len(g.LambdasPV))
	for _, lb := range g.LambdasBatt {
		for _, lpv := range g.LambdasPV {
			cfg := base.WithScenario(model.ScenarioFullAware)
			cfg.Weights.Batt = lb
			cfg.Weights.PV = lpv
			out = append(out, cfg)
		}
	}
	return out
}

// Outcome is the result of one configuration.
type Outcome struct {
	Index    int               `json:"index"`
	Scenario model.Scenario    `json:"scenario"`
	Weights  model.Weights     `json:"weights"`
	Summary  kpi.Summary       `json:"summary"`
	Result   controller.Result `json:"-"`
	Err      error             `json:"-"`
}

// Runner executes configurations with at most Workers concurrent runs.
type Runner struct {
	Factory Factory
	Workers int
	Bus     eventbus.EventBus
	Log     logger.Logger
	// KeepRecords retains the step records of every run in Outcome.Result.
	KeepRecords bool
}

// Scenarios runs base under each scenario.
func (r Runner) Scenarios(ctx context.Context, base model.ScenarioConfig, scenarios []model.Scenario) ([]Outcome, error) {
	cfgs := make([]model.ScenarioConfig, len(scenarios))
	for i, s := range scenarios {
		cfgs[i] = base.WithScenario(s)
	}
	return r.Run(ctx, cfgs)
}

// Pareto runs every point of g over base.
func (r Runner) Pareto(ctx context.Context, base model.ScenarioConfig, g Grid) ([]Outcome, error) {
	if len(g.LambdasBatt) == 0 || len(g.LambdasPV) == 0 {
		return nil, model.ConfigErrorf("sweep", "lambdas_batt and lambdas_pv must not be empty")
	}
	return r.Run(ctx, g.Configs(base))
}

// Run executes cfgs concurrently; outcomes keep the order of cfgs. A
// configuration that fails is reported in its Outcome.Err without affecting
// the others. Configurations not yet started when ctx is done are skipped
// with ctx.Err(), which is also returned.
func (r Runner) Run(ctx context.Context, cfgs []model.ScenarioConfig) ([]Outcome, error) {
	if r.Factory == nil {
		return nil, fmt.Errorf("sweep: nil factory")
	}
	log := logger.OrNop(r.Log)
	out := make([]Outcome, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, cfg := range cfgs {
		out[i] = Outcome{Index: i, Scenario: cfg.Scenario, Weights: cfg.Weights}
		if err := gctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i] = r.one(i, cfg)
			if out[i].Err != nil {
				log.Warnf("sweep configuration %d (%s, λ_batt=%v, λ_pv=%v) failed: %v",
					i, cfg.Scenario, cfg.Weights.Batt, cfg.Weights.PV, out[i].Err)
			}
			if r.Bus != nil {
				r.Bus.Publish(events.SweepEvent{Index: i, Total: len(cfgs), Scenario: cfg.Scenario, Weights: cfg.Weights, Err: out[i].Err})
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

func (r Runner) one(i int, cfg model.ScenarioConfig) Outcome {
	o := Outcome{Index: i, Scenario: cfg.Scenario, Weights: cfg.Weights}
	c, err := r.Factory(cfg)
	if err != nil {
		o.Err = err
		return o
	}
	res, err := c.Run()
	if err != nil {
		o.Err = err
		return o
	}
	o.Summary = kpi.Summarize(c.Config(), res.Records)
	if !r.KeepRecords {
		res.Records = nil
	}
	o.Result = res
	return o
}

// SortByCost orders successful outcomes by annual cost then equivalent full
// cycles. Failed outcomes are dropped.
func SortByCost(outs []Outcome) []Outcome {
	ok := make([]Outcome, 0, len(outs))
	for _, o := range outs {
		if o.Err == nil {
			ok = append(ok, o)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		a, b := ok[i].Summary, ok[j].Summary
		if a.AnnualCostGBP != b.AnnualCostGBP {
			return a.AnnualCostGBP < b.AnnualCostGBP
		}
		return a.EquivalentFullCycles < b.EquivalentFullCycles
	})
	return ok
}

// Frontier returns the outcomes not dominated in (annual cost, equivalent
// full cycles), sorted by cost.
func Frontier(outs []Outcome) []Outcome {
	sorted := SortByCost(outs)
	var front []Outcome
	for _, o := range sorted {
		dominated := false
		for _, f := range front {
			if dominates(f.Summary, o.Summary) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, o)
		}
	}
	return front
}

func dominates(a, b kpi.Summary) bool {
	if a.AnnualCostGBP > b.AnnualCostGBP || a.EquivalentFullCycles > b.EquivalentFullCycles {
		return false
	}
	return a.AnnualCostGBP < b.AnnualCostGBP || a.EquivalentFullCycles < b.EquivalentFullCycles
}
