package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	solveLatency   *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec
	clampsTotal    *prometheus.CounterVec
	stepsTotal     *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvbess_controller_solve_latency_seconds",
			Help:    "Latency of one optimiser invocation",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"solver"},
	)
	fb := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvbess_controller_fallbacks_total",
			Help: "Decisions replaced by a fallback solver",
		},
		[]string{"reason"},
	)
	cl := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvbess_controller_clamped_actions_total",
			Help: "Committed actions clipped to physical bounds",
		},
		[]string{"scenario"},
	)
	st := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvbess_controller_steps_total",
			Help: "Committed simulation steps",
		},
		[]string{"scenario"},
	)
	return lat, fb, cl, st
}

func init() {
	solveLatency, fallbacksTotal, clampsTotal, stepsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers controller metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveLatency, fallbacksTotal, clampsTotal, stepsTotal)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveLatency, fallbacksTotal, clampsTotal, stepsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
