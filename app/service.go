// Package app wires a configuration into runnable simulations.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kilianp07/pvbess/config"
	"github.com/kilianp07/pvbess/core/controller"
	"github.com/kilianp07/pvbess/core/dispatch"
	"github.com/kilianp07/pvbess/core/forecast"
	"github.com/kilianp07/pvbess/core/kpi"
	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/series"
	"github.com/kilianp07/pvbess/core/steplog"
	"github.com/kilianp07/pvbess/core/sweep"
	infrakpi "github.com/kilianp07/pvbess/infra/kpi"
	"github.com/kilianp07/pvbess/infra/logger"
	"github.com/kilianp07/pvbess/infra/metrics"
	"github.com/kilianp07/pvbess/internal/eventbus"

	// Registers the built-in solvers, sinks and stores.
	_ "github.com/kilianp07/pvbess/app/plugins"
)

// Service holds the collaborators shared by every run of a configuration.
type Service struct {
	cfg   *config.Config
	table *series.Table
	sink  coremetrics.MetricsSink
	store steplog.LogStore
	daily kpi.DailyStore
	bus   *eventbus.Bus
	prog  *progress
	log   logger.Logger
}

// New loads the input table and creates the metrics sinks and the step log
// store described by cfg. A progress logger follows the event bus until
// Close.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")
	table, err := LoadTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("input series: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	var store steplog.LogStore
	if cfg.Logging.Enabled() {
		store, err = steplog.NewStore(cfg.Logging.Store())
		if err != nil {
			_ = coremetrics.Close(sink)
			return nil, fmt.Errorf("step log: %w", err)
		}
	}
	bus := eventbus.NewTypedBuffered[eventbus.Event](progressBuffer)
	svc := &Service{cfg: cfg, table: table, sink: sink, store: store, bus: bus, log: log}
	svc.prog = watchProgress(bus, logger.New("progress"))
	if cfg.KPI.DailyDB != "" {
		daily, err := infrakpi.NewSQLiteStore(cfg.KPI.DailyDB)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("kpi store: %w", err)
		}
		svc.daily = daily
	}
	return svc, nil
}

// LoadTable generates the input table or reads it from CSV.
func LoadTable(cfg *config.Config) (*series.Table, error) {
	sc := cfg.ScenarioConfig()
	if cfg.Series.Source != "csv" {
		return series.Generate(cfg.Series.Generator(sc))
	}
	f, err := os.Open(cfg.Series.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return series.ReadCSV(f, sc.StepDuration)
}

// Table returns the realised input data.
func (s *Service) Table() *series.Table { return s.table }

// Bus returns the event bus every controller publishes on.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Progress returns the event counts seen by the progress logger.
func (s *Service) Progress() ProgressStats { return s.prog.Stats() }

// Config returns the loaded configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Controller builds a controller for sc over the service's collaborators.
// It is safe for concurrent use and serves as the sweep factory.
func (s *Service) Controller(sc model.ScenarioConfig) (*controller.Controller, error) {
	provider, err := forecast.New(s.cfg.Forecast.Type, s.table, sc.StepsPerDay())
	if err != nil {
		return nil, err
	}
	primary, err := dispatch.NewSolver(s.cfg.Solver.Primary())
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	opts := []controller.Option{
		controller.WithLogger(logger.New("controller")),
		controller.WithMetrics(s.sink),
		controller.WithEventBus(s.bus),
	}
	if mc, ok := s.cfg.Solver.Secondary(); ok {
		secondary, err := dispatch.NewSolver(mc)
		if err != nil {
			return nil, fmt.Errorf("fallback solver: %w", err)
		}
		opts = append(opts, controller.WithSecondarySolver(secondary))
	}
	if s.store != nil {
		opts = append(opts, controller.WithStore(s.store))
	}
	return controller.New(sc, provider, s.table, primary, opts...)
}

func (s *Service) runner(keep bool) sweep.Runner {
	return sweep.Runner{
		Factory:     s.Controller,
		Workers:     s.cfg.Sweep.Workers,
		Bus:         s.bus,
		Log:         logger.New("sweep"),
		KeepRecords: keep,
	}
}

// Simulate runs the configured scenario, or each of scenarios when given,
// keeping the step records.
func (s *Service) Simulate(ctx context.Context, scenarios ...model.Scenario) ([]sweep.Outcome, error) {
	if len(scenarios) == 0 {
		scenarios = []model.Scenario{s.cfg.Scenario}
	}
	outs, err := s.runner(true).Scenarios(ctx, s.cfg.ScenarioConfig(), scenarios)
	if s.daily != nil {
		for _, o := range outs {
			if o.Err != nil {
				continue
			}
			if err := kpi.AddRun(s.daily, o.Result.RunID, o.Scenario.String(), kpi.DailyCosts(o.Result.Records)); err != nil {
				s.log.Errorf("store daily costs of %s: %v", o.Scenario, err)
			}
		}
	}
	return outs, err
}

// DailyCosts returns the stored daily costs of scenario between start and end.
func (s *Service) DailyCosts(scenario model.Scenario, start, end time.Time) ([]kpi.DailyRecord, error) {
	if s.daily == nil {
		return nil, errors.New("kpi.daily_db is not configured")
	}
	return s.daily.Query(scenario.String(), start, end)
}

// Sweep runs the configured Pareto grid.
func (s *Service) Sweep(ctx context.Context) ([]sweep.Outcome, error) {
	return s.runner(false).Pareto(ctx, s.cfg.ScenarioConfig(), s.cfg.Sweep.Grid())
}

// Bootstrap runs each scenario and returns the confidence interval of its
// mean daily cost keyed by scenario name.
func (s *Service) Bootstrap(ctx context.Context, scenarios ...model.Scenario) (map[string]kpi.Interval, []sweep.Outcome, error) {
	outs, err := s.Simulate(ctx, scenarios...)
	if err != nil {
		return nil, outs, err
	}
	res := make(map[string]kpi.Interval, len(outs))
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Scenario, o.Err))
			continue
		}
		iv, err := kpi.BootstrapMean(kpi.Values(kpi.DailyCosts(o.Result.Records)), s.cfg.Bootstrap.KPI())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Scenario, err))
			continue
		}
		res[o.Scenario.String()] = iv
	}
	return res, outs, errors.Join(errs...)
}

// Serve exposes the Prometheus metrics until ctx is done when an address is
// configured.
func (s *Service) Serve(ctx context.Context) {
	addr := s.cfg.Metrics.PrometheusAddr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.StartPromServer(ctx, addr); err != nil {
			s.log.Errorf("prom server: %v", err)
		}
	}()
}

// Close releases the sinks and the step log store.
func (s *Service) Close() error {
	var errs []error
	if err := coremetrics.Close(s.sink); err != nil {
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.daily != nil {
		if err := s.daily.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.bus.Close()
	<-s.prog.done
	return errors.Join(errs...)
}
