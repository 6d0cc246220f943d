package control

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// minSurfaceGain is the smallest |L·B| accepted before the equivalent
// control is treated as singular.
const minSurfaceGain = 1e-10

// equivalent computes the feed-forward term that keeps ṡ = 0 on the local
// affine model ẋ ≈ f(x, 0) + B(x)·u:
//
//	u_eq = -(L·f(x, 0)) / (L·B)
//
// B comes from the plant's input column when it has one and from a full
// linearization otherwise. Any degenerate case yields zero.
type equivalent struct {
	enabled   bool
	requested bool
	plant     dynamo.System
	input     func(x dynamo.State) []float64
	inertia   dynamo.InertiaProvider
	row       []float64
	maxCond   float64
	zero      dynamo.Control
}

func newEquivalent(plant dynamo.System, s Surface, o Options) equivalent {
	e := equivalent{maxCond: o.MaxCondition, requested: o.UseEquivalent}
	if !o.UseEquivalent || plant == nil {
		return e
	}
	if plant.StateDim() < surfaceStateDim || plant.ControlDim() < 1 {
		return e
	}
	zero := make(dynamo.Control, plant.ControlDim())
	switch p := plant.(type) {
	case dynamo.InputMapper:
		e.input = func(x dynamo.State) []float64 { return p.InputColumn(x, zero) }
	case dynamo.Linearizer:
		e.input = func(x dynamo.State) []float64 {
			_, b := p.Linearize(x, zero)
			if b == nil {
				return nil
			}
			return mat.Col(nil, 0, b)
		}
	default:
		return e
	}
	e.enabled = true
	e.plant = plant
	e.zero = zero
	e.inertia, _ = plant.(dynamo.InertiaProvider)
	e.row = s.Row(plant.StateDim())
	return e
}

// compute returns u_eq and whether a requested term fell back to zero.
func (e *equivalent) compute(x dynamo.State) (float64, bool) {
	if !e.enabled {
		return 0, e.requested
	}
	if !x.IsValid() || len(x) != len(e.row) {
		return 0, true
	}
	if e.inertia != nil {
		m := e.inertia.Inertia(x)
		if m == nil {
			return 0, true
		}
		c := mat.Cond(m, 2)
		if math.IsNaN(c) || c > e.maxCond {
			return 0, true
		}
	}

	col := e.input(x)
	if len(col) != len(e.row) {
		return 0, true
	}
	lb := floats.Dot(e.row, col)
	if math.Abs(lb) < minSurfaceGain || !isFinite(lb) {
		return 0, true
	}
	drift := e.plant.Derive(x, e.zero, 0)
	ueq := -floats.Dot(e.row, drift) / lb
	if !isFinite(ueq) {
		return 0, true
	}
	return ueq, false
}
