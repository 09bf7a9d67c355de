package app

import (
	"sync"

	"github.com/kilianp07/pvbess/core/events"
	"github.com/kilianp07/pvbess/infra/logger"
	"github.com/kilianp07/pvbess/internal/eventbus"
)

// progressBuffer holds the step events of a few busy sweep workers.
const progressBuffer = 1024

// ProgressStats counts the events seen by the progress logger.
type ProgressStats struct {
	Runs         int
	Steps        int
	Fallbacks    int
	SweepConfigs int
	SweepFailed  int
}

type runProgress struct {
	total  int
	decile int
}

// progress logs run completion by tenths and sweep completion from the
// service event bus. It stops once the bus is closed.
type progress struct {
	log  logger.Logger
	done chan struct{}

	mu    sync.Mutex
	runs  map[string]*runProgress
	stats ProgressStats
}

func watchProgress(bus eventbus.EventBus, log logger.Logger) *progress {
	p := &progress{log: log, done: make(chan struct{}), runs: map[string]*runProgress{}}
	sub := bus.Subscribe()
	go func() {
		defer close(p.done)
		for ev := range sub {
			p.handle(ev)
		}
	}()
	return p
}

func (p *progress) handle(ev eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := ev.(type) {
	case events.RunEvent:
		if e.Done {
			delete(p.runs, e.RunID)
			return
		}
		p.stats.Runs++
		p.runs[e.RunID] = &runProgress{total: e.Steps}
	case events.StepEvent:
		p.stats.Steps++
		r, ok := p.runs[e.RunID]
		if !ok || r.total <= 0 {
			return
		}
		// the record index survives dropped events
		done := e.Record.TimeIndex + 1
		if d := done * 10 / r.total; d > r.decile {
			r.decile = d
			p.log.Infof("run %s (%s): %d%% (%d/%d steps)", e.RunID, e.Scenario, d*10, done, r.total)
		}
	case events.FallbackEvent:
		p.stats.Fallbacks++
	case events.SweepEvent:
		p.stats.SweepConfigs++
		if e.Err != nil {
			p.stats.SweepFailed++
		}
		p.log.Infof("sweep %d/%d configurations done (%d failed), last %s λ_batt=%v λ_pv=%v",
			p.stats.SweepConfigs, e.Total, p.stats.SweepFailed, e.Scenario, e.Weights.Batt, e.Weights.PV)
	}
}

// Stats returns the counts so far.
func (p *progress) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
