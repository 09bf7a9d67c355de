// Package factory provides the generic registry used to build solvers and
// metrics sinks from configuration. A module is named by a type string and
// carries a raw settings map; factories decode the map into a typed struct
// with Decode and return the concrete implementation.
//
//	reg := factory.NewRegistry[dispatch.Solver]()
//	reg.MustRegister("lp", func(conf map[string]any) (dispatch.Solver, error) {
//	    var c struct{ Segments int `json:"segments"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return dispatch.NewLPSolver(c.Segments), nil
//	})
package factory
