// Package events defines the simulation events emitted on the event bus.
//
// Available event types:
//   - RunEvent: a scenario run started or finished
//   - StepEvent: a step was committed
//   - FallbackEvent: the controller replaced the optimiser's decision
//   - SweepEvent: one sweep configuration completed
package events
