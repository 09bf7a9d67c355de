package metrics

import (
	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes the state of running simulations as Prometheus gauges
// labelled by run and scenario, so concurrent sweep runs keep separate
// series. Solver latency, fallbacks and clamps are exported by the
// controller collectors.
type PromSink struct {
	soc      *prometheus.GaugeVec
	soh      *prometheus.GaugeVec
	derating *prometheus.GaugeVec
	cost     *prometheus.GaugeVec
}

var runLabels = []string{"run_id", "scenario"}

// NewPromSink registers simulation metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvbess_battery_soc_ratio",
			Help: "Battery state of charge after the last committed step",
		}, runLabels),
		soh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvbess_battery_soh_ratio",
			Help: "Battery state of health after the last committed step",
		}, runLabels),
		derating: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvbess_pv_derating_ratio",
			Help: "PV derating factor after the last committed step",
		}, runLabels),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pvbess_energy_cost_gbp",
			Help: "Cumulative energy cost of the run",
		}, runLabels),
	}

	var err error
	if s.soc, err = register(reg, s.soc); err != nil {
		return nil, err
	}
	if s.soh, err = register(reg, s.soh); err != nil {
		return nil, err
	}
	if s.derating, err = register(reg, s.derating); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, s.cost); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordStep updates the state gauges of the run. Step 0 restarts the
// cumulative cost of the run.
func (s *PromSink) RecordStep(run coremetrics.RunInfo, rec model.StepRecord) error {
	labels := prometheus.Labels{"run_id": run.RunID, "scenario": run.Scenario.String()}
	s.soc.With(labels).Set(rec.State.BatterySoC)
	s.soh.With(labels).Set(rec.State.BatterySoH)
	s.derating.With(labels).Set(rec.State.PVDeratingFactor)
	if rec.TimeIndex == 0 {
		s.cost.With(labels).Set(0)
	}
	s.cost.With(labels).Add(rec.CostGBP)
	return nil
}
