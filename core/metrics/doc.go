// Package metrics defines the sinks that observe a simulation run. Every sink
// records committed steps; optional recorder interfaces receive solver
// timings, fallbacks and run summaries. Sinks are built from configuration
// through a factory registry, and several configured sinks are combined into
// a MultiSink automatically.
package metrics
