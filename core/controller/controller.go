// Package controller drives the rolling-horizon simulation: at every step it
// asks the forecast provider for a window, solves the dispatch problem,
// commits the first action and advances the physical state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/pvbess/core/dispatch"
	"github.com/kilianp07/pvbess/core/events"
	"github.com/kilianp07/pvbess/core/forecast"
	"github.com/kilianp07/pvbess/core/logger"
	"github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
	"github.com/kilianp07/pvbess/core/steplog"
	"github.com/kilianp07/pvbess/internal/eventbus"
)

// Fallback reasons reported on StepRecord.Fallback.
const (
	ReasonInfeasible     = "infeasible"
	ReasonSolverError    = "solver_error"
	ReasonSecondaryError = "secondary_error"
)

// Controller runs one scenario over the observer's data. A Controller owns no
// state between runs, so Run may be called repeatedly and concurrently.
type Controller struct {
	cfg       model.ScenarioConfig
	plant     plant.Plant
	provider  forecast.Provider
	observer  forecast.Observer
	solver    dispatch.Solver
	secondary dispatch.Solver

	log   logger.Logger
	sink  metrics.MetricsSink
	bus   eventbus.EventBus
	store steplog.LogStore
	runID func() string
}

// Option customises a Controller.
type Option func(*Controller)

// WithSecondarySolver sets the solver retried when the primary fails for a
// reason other than infeasibility.
func WithSecondarySolver(s dispatch.Solver) Option {
	return func(c *Controller) { c.secondary = s }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink receiving every committed step.
func WithMetrics(s metrics.MetricsSink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithEventBus sets the bus StepEvent, FallbackEvent and RunEvent are published on.
func WithEventBus(b eventbus.EventBus) Option {
	return func(c *Controller) { c.bus = b }
}

// WithStore persists every committed step in s.
func WithStore(s steplog.LogStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithRunID fixes the identifier of every run instead of a random uuid.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = func() string { return id } }
}

// New validates cfg and returns a controller. Configuration errors are
// returned as *model.ConfigurationError.
func New(cfg model.ScenarioConfig, provider forecast.Provider, observer forecast.Observer, solver dispatch.Solver, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, model.ConfigErrorf("forecast", "provider is required")
	}
	if observer == nil {
		return nil, model.ConfigErrorf("series", "observer is required")
	}
	if solver == nil {
		return nil, model.ConfigErrorf("solver", "solver is required")
	}
	c := &Controller{
		cfg:      cfg,
		plant:    plant.New(cfg),
		provider: provider,
		observer: observer,
		solver:   solver,
		log:      logger.NopLogger{},
		sink:     metrics.NopSink{},
		runID:    uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the scenario configuration of the controller.
func (c *Controller) Config() model.ScenarioConfig { return c.cfg }

// Result is the output of a run.
type Result struct {
	RunID     string
	Scenario  model.Scenario
	Solver    string
	Records   []model.StepRecord
	Final     model.SystemState
	Fallbacks int
	Clamped   int
	Duration  time.Duration
}

// CostGBP returns the realised energy cost of the run.
func (r Result) CostGBP() float64 {
	var sum float64
	for _, rec := range r.Records {
		sum += rec.CostGBP
	}
	return sum
}

// Run simulates TotalSteps steps from the initial state. The only errors are
// a *model.ConfigurationError found during pre-flight and a
// *forecast.ForecastUnavailableError; in the latter case the records
// committed so far are returned with it.
func (c *Controller) Run() (Result, error) {
	start := time.Now()
	res := Result{
		RunID:    c.runID(),
		Scenario: c.cfg.Scenario,
		Solver:   c.solver.Name(),
		Final:    c.cfg.InitialState(),
	}
	if err := c.preflight(); err != nil {
		return res, err
	}
	run := metrics.RunInfo{RunID: res.RunID, Scenario: res.Scenario, Solver: res.Solver}
	c.publish(events.RunEvent{RunID: res.RunID, Scenario: res.Scenario, Steps: c.cfg.TotalSteps})
	c.log.Infof("run %s started: scenario=%s solver=%s steps=%d horizon=%d", res.RunID, res.Scenario, res.Solver, c.cfg.TotalSteps, c.cfg.HorizonLength)

	res.Records = make([]model.StepRecord, 0, c.cfg.TotalSteps)
	state := res.Final
	var err error
	for t := 0; t < c.cfg.TotalSteps; t++ {
		var rec model.StepRecord
		rec, state, err = c.step(run, t, state)
		if err != nil {
			break
		}
		res.Records = append(res.Records, rec)
		if rec.Fallback != "" {
			res.Fallbacks++
		}
		if rec.Clamped {
			res.Clamped++
		}
	}
	res.Final = state
	res.Duration = time.Since(start)

	if r, ok := c.sink.(metrics.SummaryRecorder); ok {
		if serr := r.RecordRunSummary(run, metrics.RunSummary{
			Steps:     len(res.Records),
			Fallbacks: res.Fallbacks,
			Clamped:   res.Clamped,
			CostGBP:   res.CostGBP(),
			Final:     res.Final,
			Duration:  res.Duration,
		}); serr != nil {
			c.log.Warnf("record run summary: %v", serr)
		}
	}
	c.publish(events.RunEvent{RunID: res.RunID, Scenario: res.Scenario, Steps: len(res.Records), Done: true, Err: err})
	if err != nil {
		c.log.Errorf("run %s aborted at step %d: %v", res.RunID, len(res.Records), err)
		return res, err
	}
	c.log.Infof("run %s finished in %s: cost=%.2f GBP soh=%.4f derating=%.4f fallbacks=%d clamped=%d",
		res.RunID, res.Duration, res.CostGBP(), res.Final.BatterySoH, res.Final.PVDeratingFactor, res.Fallbacks, res.Clamped)
	return res, nil
}

// preflight checks the temperatures of every observation the run will use.
func (c *Controller) preflight() error {
	m := c.plant.Model()
	n := min(c.cfg.TotalSteps, c.observer.Len())
	for t := 0; t < n; t++ {
		pt, err := c.observer.Observe(t)
		if err != nil {
			return forecast.Unavailable(t, err)
		}
		if err := m.CheckBatteryTemperature(m.BatteryTemperatureC(pt.AmbientC)); err != nil {
			return stepConfigError(t, err)
		}
		if err := m.CheckCellTemperature(m.CellTemperatureC(pt.AmbientC, pt.IrradianceWm2)); err != nil {
			return stepConfigError(t, err)
		}
	}
	return nil
}

func stepConfigError(t int, err error) error {
	var ce *model.ConfigurationError
	if errors.As(err, &ce) {
		return &model.ConfigurationError{Field: ce.Field, Reason: fmt.Sprintf("step %d: %s", t, ce.Reason)}
	}
	return err
}

// step runs one iteration of the loop and returns the committed record and
// the new state.
func (c *Controller) step(run metrics.RunInfo, t int, state model.SystemState) (model.StepRecord, model.SystemState, error) {
	h := min(c.cfg.HorizonLength, c.cfg.TotalSteps-t)
	win, err := c.provider.Window(t, h)
	if err != nil {
		return model.StepRecord{}, state, asUnavailable(t, err)
	}
	if win.Len() == 0 {
		return model.StepRecord{}, state, forecast.Unavailable(t, dispatch.ErrEmptyWindow)
	}
	obs, err := c.observer.Observe(t)
	if err != nil {
		return model.StepRecord{}, state, asUnavailable(t, err)
	}

	solveStart := time.Now()
	dec, reason := c.decide(run, dispatch.Problem{State: state, Window: win, Config: c.cfg})
	latency := time.Since(solveStart)

	action := dec.First()
	out, err := c.plant.Step(state, action, obs)
	if err != nil {
		// pre-flight covers every temperature, so only idle remains safe
		c.log.Errorf("step %d: commit %s action: %v", t, dec.Solver, err)
		dec, reason = model.DispatchDecision{Solver: dispatch.IdleSolver{}.Name()}, ReasonSolverError
		if out, err = c.plant.Step(state, model.Action{}, obs); err != nil {
			return model.StepRecord{}, state, err
		}
	}
	if out.Clipped {
		c.log.Warnw("committed action clamped", map[string]any{
			"run_id":    run.RunID,
			"step":      t,
			"solver":    dec.Solver,
			"requested": action,
			"committed": out.Action,
		})
		clampsTotal.WithLabelValues(run.Scenario.String()).Inc()
	}
	stepsTotal.WithLabelValues(run.Scenario.String()).Inc()

	rec := c.record(t, obs, out, dec, reason)
	if rec.State.TimeIndex != t+1 {
		return rec, state, fmt.Errorf("state time index %d after step %d", rec.State.TimeIndex, t)
	}
	c.log.Debugw("step committed", map[string]any{
		"run_id":       run.RunID,
		"step":         t,
		"solver":       rec.Solver,
		"charge_kw":    rec.Action.ChargeKW,
		"discharge_kw": rec.Action.DischargeKW,
		"curtail_kw":   rec.Action.CurtailKW,
		"soc":          rec.State.BatterySoC,
		"soh":          rec.State.BatterySoH,
		"cost_gbp":     rec.CostGBP,
	})
	c.emit(run, rec, latency)
	return rec, out.State, nil
}

// decide returns the decision to commit and the fallback reason, empty when
// the primary solver succeeded. Infeasible horizons fall back to idle; other
// solver failures try the secondary solver first.
func (c *Controller) decide(run metrics.RunInfo, p dispatch.Problem) (model.DispatchDecision, string) {
	dec, err := c.solve(run, c.solver, p)
	if err == nil {
		return dec, ""
	}
	t := p.State.TimeIndex
	if dispatch.IsInfeasible(err) {
		return c.fallback(run, p, c.solver.Name(), ReasonInfeasible, err), ReasonInfeasible
	}
	if c.secondary == nil {
		return c.fallback(run, p, c.solver.Name(), ReasonSolverError, err), ReasonSolverError
	}
	c.log.Warnf("step %d: solver %s failed, retrying with %s: %v", t, c.solver.Name(), c.secondary.Name(), err)
	c.notifyFallback(run, t, c.solver.Name(), c.secondary.Name(), ReasonSolverError, err)
	dec, err2 := c.solve(run, c.secondary, p)
	if err2 == nil {
		return dec, ReasonSolverError
	}
	reason := ReasonSecondaryError
	if dispatch.IsInfeasible(err2) {
		reason = ReasonInfeasible
	}
	return c.fallback(run, p, c.secondary.Name(), reason, err2), reason
}

func (c *Controller) solve(run metrics.RunInfo, s dispatch.Solver, p dispatch.Problem) (model.DispatchDecision, error) {
	start := time.Now()
	dec, err := s.Solve(p)
	lat := time.Since(start)
	solveLatency.WithLabelValues(s.Name()).Observe(lat.Seconds())
	if r, ok := c.sink.(metrics.SolveRecorder); ok {
		ev := metrics.SolveEvent{TimeIndex: p.State.TimeIndex, Solver: s.Name(), Latency: lat}
		if err != nil {
			ev.Err = err.Error()
		}
		if rerr := r.RecordSolve(run, ev); rerr != nil {
			c.log.Warnf("record solve: %v", rerr)
		}
	}
	if err == nil && len(dec.Actions) == 0 {
		err = fmt.Errorf("solver %s returned an empty plan", s.Name())
	}
	return dec, err
}

// fallback returns the idle decision for p.
func (c *Controller) fallback(run metrics.RunInfo, p dispatch.Problem, from, reason string, cause error) model.DispatchDecision {
	idle := dispatch.IdleSolver{}
	t := p.State.TimeIndex
	c.log.Warnf("step %d: %s fallback from %s to %s: %v", t, reason, from, idle.Name(), cause)
	c.notifyFallback(run, t, from, idle.Name(), reason, cause)
	dec, err := idle.Solve(p)
	if err != nil {
		c.log.Errorf("step %d: idle plan evaluation: %v", t, err)
		return model.DispatchDecision{Actions: []model.Action{{}}, Solver: idle.Name()}
	}
	return dec
}

func (c *Controller) notifyFallback(run metrics.RunInfo, t int, from, to, reason string, cause error) {
	fallbacksTotal.WithLabelValues(reason).Inc()
	if r, ok := c.sink.(metrics.FallbackRecorder); ok {
		if err := r.RecordFallback(run, metrics.FallbackEvent{TimeIndex: t, From: from, To: to, Reason: reason}); err != nil {
			c.log.Warnf("record fallback: %v", err)
		}
	}
	c.publish(events.FallbackEvent{RunID: run.RunID, TimeIndex: t, From: from, To: to, Reason: reason, Err: cause})
}

func (c *Controller) record(t int, obs model.ForecastPoint, out plant.Outcome, dec model.DispatchDecision, reason string) model.StepRecord {
	return model.StepRecord{
		TimeIndex:              t,
		Timestamp:              c.cfg.Timestamp(t),
		Action:                 out.Action,
		PVKW:                   out.Flows.PVKW,
		LoadKW:                 out.Flows.LoadKW,
		ImportKW:               out.Flows.ImportKW,
		ExportKW:               out.Flows.ExportKW,
		UnservedKW:             out.Flows.UnservedKW,
		ImportPrice:            obs.ImportPrice,
		ExportPrice:            obs.ExportPrice,
		CarbonGPerKWh:          obs.CarbonGPerKWh,
		CostGBP:                out.CostGBP,
		CarbonKg:               out.CarbonKg,
		BatteryCalendarCostGBP: out.Battery.CalendarCostGBP,
		BatteryCycleCostGBP:    out.Battery.CycleCostGBP,
		PVDegradationCostGBP:   out.PV.CostGBP,
		Planned:                dec.Objective,
		Solver:                 dec.Solver,
		Fallback:               reason,
		Clamped:                out.Clipped,
		EndOfLife:              out.Battery.Clamped || out.State.BatterySoH <= c.cfg.BatteryAgeing.EOLFloor,
		State:                  out.State,
	}
}

// emit forwards rec to the sink, the store and the bus. Failures are logged.
func (c *Controller) emit(run metrics.RunInfo, rec model.StepRecord, latency time.Duration) {
	if err := c.sink.RecordStep(run, rec); err != nil {
		c.log.Warnf("step %d: record metrics: %v", rec.TimeIndex, err)
	}
	if c.store != nil {
		err := c.store.Append(context.Background(), steplog.LogRecord{RunID: run.RunID, Scenario: run.Scenario, Record: rec})
		if err != nil {
			c.log.Warnf("step %d: append step log: %v", rec.TimeIndex, err)
		}
	}
	c.publish(events.StepEvent{RunID: run.RunID, Scenario: run.Scenario, Record: rec, Latency: latency})
}

func (c *Controller) publish(ev eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func asUnavailable(t int, err error) error {
	var fe *forecast.ForecastUnavailableError
	if errors.As(err, &fe) {
		return err
	}
	return forecast.Unavailable(t, err)
}
