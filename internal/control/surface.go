package control

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

// Plant state layout consumed by the surface: [x, θ1, θ2, ẋ, θ̇1, θ̇2].
const (
	idxTheta1    = 1
	idxTheta2    = 2
	idxTheta1Dot = 4
	idxTheta2Dot = 5

	surfaceStateDim = 6
)

// Surface is the linear sliding surface
//
//	s = k1·(θ̇1 + λ1·θ1) + k2·(θ̇2 + λ2·θ2)
//
// measured against the upright reference.
type Surface struct {
	K1, K2           float64
	Lambda1, Lambda2 float64
}

// Compute returns s(x). Non-finite components count as zero and a
// non-finite result is reported as zero.
func (s Surface) Compute(x dynamo.State) float64 {
	if len(x) < surfaceStateDim {
		return 0
	}
	v := s.K1*(finite(x[idxTheta1Dot])+s.Lambda1*finite(x[idxTheta1])) +
		s.K2*(finite(x[idxTheta2Dot])+s.Lambda2*finite(x[idxTheta2]))
	return finite(v)
}

// ComputeDerivative returns ṡ given the state and its time derivative.
func (s Surface) ComputeDerivative(x, dx dynamo.State) float64 {
	if len(x) < surfaceStateDim || len(dx) < surfaceStateDim {
		return 0
	}
	v := s.K1*(finite(dx[idxTheta1Dot])+s.Lambda1*finite(x[idxTheta1Dot])) +
		s.K2*(finite(dx[idxTheta2Dot])+s.Lambda2*finite(x[idxTheta2Dot]))
	return finite(v)
}

// Row returns L such that s = L·x for a state of dimension n.
func (s Surface) Row(n int) []float64 {
	row := make([]float64, n)
	if n < surfaceStateDim {
		return row
	}
	row[idxTheta1] = s.K1 * s.Lambda1
	row[idxTheta2] = s.K2 * s.Lambda2
	row[idxTheta1Dot] = s.K1
	row[idxTheta2Dot] = s.K2
	return row
}

// oriented is a surface multiplied by the sign of its input gain L·B, so
// that -K·sw(s) pushes s towards zero whichever way the actuator moves it.
// Surfaces that weight the upper link heavily have L·B < 0 on the double
// pendulum.
type oriented struct {
	Surface
	sign float64
}

// orient measures L·B at the zero state. Plants that do not expose their
// input column keep the surface as given.
func orient(s Surface, plant dynamo.System) oriented {
	o := oriented{Surface: s, sign: 1}
	m, ok := plant.(dynamo.InputMapper)
	if !ok || plant.StateDim() < surfaceStateDim || plant.ControlDim() < 1 {
		return o
	}
	col := m.InputColumn(make(dynamo.State, plant.StateDim()), make(dynamo.Control, plant.ControlDim()))
	if floats.Dot(s.Row(len(col)), col) < 0 {
		o.sign = -1
	}
	return o
}

func (o oriented) Compute(x dynamo.State) float64 {
	return o.sign * o.Surface.Compute(x)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
