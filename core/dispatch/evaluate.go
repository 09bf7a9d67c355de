package dispatch

import (
	"fmt"

	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/plant"
)

// Evaluate runs actions through the plant along the forecast window and
// returns the objective breakdown of the planned trajectory. Every solver
// reports its objective through Evaluate so breakdowns are comparable.
func Evaluate(p Problem, actions []model.Action) (model.ObjectiveBreakdown, error) {
	if len(actions) != p.Window.Len() {
		return model.ObjectiveBreakdown{}, fmt.Errorf("evaluate: %d actions for a window of %d", len(actions), p.Window.Len())
	}
	pl := plant.New(p.Config)
	state := p.State
	var out model.ObjectiveBreakdown
	for k, pt := range p.Window.Points {
		o, err := pl.Step(state, actions[k], pt)
		if err != nil {
			return model.ObjectiveBreakdown{}, fmt.Errorf("evaluate step %d: %w", p.Window.Start+k, err)
		}
		out.CostGBP += o.CostGBP
		out.CarbonKg += o.CarbonKg
		out.BatteryDegradationGBP += o.Battery.CostGBP()
		out.PVDegradationGBP += o.PV.CostGBP
		state = o.State
	}
	w := p.Config.EffectiveWeights()
	out.Total = w.Cost*out.CostGBP + w.Carbon*out.CarbonKg +
		w.Batt*out.BatteryDegradationGBP + w.PV*out.PVDegradationGBP
	return out, nil
}
