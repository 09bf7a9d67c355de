package dispatch

import (
	"github.com/kilianp07/pvbess/core/factory"
)

// Registry holds the built-in solver factories keyed by type name.
var Registry = factory.NewRegistry[Solver]()

type lpConf struct {
	Segments  int     `json:"segments"`
	Tolerance float64 `json:"tolerance"`
}

type dpConf struct {
	Resolution float64 `json:"resolution"`
}

func init() {
	Registry.MustRegister("dp", func(conf map[string]any) (Solver, error) {
		var c dpConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewDPSolver(c.Resolution), nil
	})
	Registry.MustRegister("lp", func(conf map[string]any) (Solver, error) {
		var c lpConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s := NewLPSolver(c.Segments)
		if c.Tolerance > 0 {
			s.Tolerance = c.Tolerance
		}
		return s, nil
	})
	Registry.MustRegister("greedy", func(conf map[string]any) (Solver, error) {
		if err := factory.Decode(conf, &struct{}{}); err != nil {
			return nil, err
		}
		return GreedySolver{}, nil
	})
	Registry.MustRegister("idle", func(map[string]any) (Solver, error) {
		return IdleSolver{}, nil
	})
}

// NewSolver builds the solver described by cfg.
func NewSolver(cfg factory.ModuleConfig) (Solver, error) {
	return Registry.Create(cfg)
}
