package integrators

import "github.com/san-kum/smctune/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta scheme for one trajectory.
// Stage buffers are reused between steps, so an RK4 must not be shared
// between goroutines.
type RK4 struct {
	k       [4]dynamo.State
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return string(SchemeRK4) }

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	if len(r.scratch) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}

	half := dt * 0.5
	copy(r.k[0], dyn.Derive(x, u, t))
	stageTo(r.scratch, x, half, r.k[0])
	copy(r.k[1], dyn.Derive(r.scratch, u, t+half))
	stageTo(r.scratch, x, half, r.k[1])
	copy(r.k[2], dyn.Derive(r.scratch, u, t+half))
	stageTo(r.scratch, x, dt, r.k[2])
	copy(r.k[3], dyn.Derive(r.scratch, u, t+dt))

	out := make(dynamo.State, n)
	combineTo(out, x, dt/6.0, r.k[0], r.k[1], r.k[2], r.k[3])
	return out
}

// stageTo sets dst = x + h·k.
func stageTo(dst, x []float64, h float64, k []float64) {
	for i := range dst {
		dst[i] = x[i] + h*k[i]
	}
}

// combineTo sets dst = x + dt6·(k1 + 2k2 + 2k3 + k4). dst may alias x.
func combineTo(dst, x []float64, dt6 float64, k1, k2, k3, k4 []float64) {
	for i := range dst {
		dst[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
}
