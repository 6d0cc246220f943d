package integrators

import (
	"fmt"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Scheme names a fixed-step explicit integration scheme.
type Scheme string

const (
	SchemeEuler Scheme = "euler"
	SchemeRK4   Scheme = "rk4"
)

// New returns a single-trajectory integrator for the scheme.
func New(s Scheme) (dynamo.Integrator, error) {
	switch s {
	case SchemeEuler:
		return NewEuler(), nil
	case SchemeRK4, "":
		return NewRK4(), nil
	}
	return nil, fmt.Errorf("unknown integrator: %s", s)
}

// NewBatch returns a population integrator for the scheme.
func NewBatch(s Scheme) (dynamo.BatchIntegrator, error) {
	switch s {
	case SchemeEuler:
		return NewBatchEuler(), nil
	case SchemeRK4, "":
		return NewBatchRK4(), nil
	}
	return nil, fmt.Errorf("unknown integrator: %s", s)
}

// deriveBatch evaluates dx for every alive row, using the plant's batched
// form when it has one and a per-particle loop otherwise.
func deriveBatch(dyn dynamo.System, x, u []float64, t float64, alive []bool, dx []float64) {
	if bs, ok := dyn.(dynamo.BatchSystem); ok {
		bs.DeriveBatch(x, u, t, alive, dx)
		return
	}
	n := dyn.StateDim()
	m := dyn.ControlDim()
	for p := range alive {
		if !alive[p] {
			continue
		}
		row := dyn.Derive(dynamo.State(x[p*n:(p+1)*n]), dynamo.Control(u[p*m:(p+1)*m]), t)
		copy(dx[p*n:(p+1)*n], row)
	}
}

type BatchEuler struct {
	dx []float64
}

func NewBatchEuler() *BatchEuler {
	return &BatchEuler{}
}

func (e *BatchEuler) Name() string { return string(SchemeEuler) }

func (e *BatchEuler) StepBatch(dyn dynamo.System, x, u []float64, alive []bool, t, dt float64) {
	if len(e.dx) != len(x) {
		e.dx = make([]float64, len(x))
	}
	deriveBatch(dyn, x, u, t, alive, e.dx)

	n := dyn.StateDim()
	for p := range alive {
		if !alive[p] {
			continue
		}
		for i := p * n; i < (p+1)*n; i++ {
			x[i] = x[i] + dt*e.dx[i]
		}
	}
}

// BatchRK4 applies RK4 to a row-major population. Per row it runs the
// same stageTo/combineTo arithmetic as RK4, so results match bit for bit.
type BatchRK4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func NewBatchRK4() *BatchRK4 {
	return &BatchRK4{}
}

func (r *BatchRK4) Name() string { return string(SchemeRK4) }

func (r *BatchRK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.scratch = make([]float64, n)
	}
}

func (r *BatchRK4) StepBatch(dyn dynamo.System, x, u []float64, alive []bool, t, dt float64) {
	r.ensureScratch(len(x))
	n := dyn.StateDim()

	half := dt * 0.5
	stage := func(src []float64, h float64) {
		for p := range alive {
			if alive[p] {
				lo, hi := p*n, (p+1)*n
				stageTo(r.scratch[lo:hi], x[lo:hi], h, src[lo:hi])
			}
		}
	}

	deriveBatch(dyn, x, u, t, alive, r.k1)
	stage(r.k1, half)
	deriveBatch(dyn, r.scratch, u, t+half, alive, r.k2)
	stage(r.k2, half)
	deriveBatch(dyn, r.scratch, u, t+half, alive, r.k3)
	stage(r.k3, dt)
	deriveBatch(dyn, r.scratch, u, t+dt, alive, r.k4)

	dt6 := dt / 6.0
	for p := range alive {
		if alive[p] {
			lo, hi := p*n, (p+1)*n
			combineTo(x[lo:hi], x[lo:hi], dt6, r.k1[lo:hi], r.k2[lo:hi], r.k3[lo:hi], r.k4[lo:hi])
		}
	}
}
