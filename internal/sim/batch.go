package sim

import (
	"fmt"
	"math"

	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/integrators"
)

// Batch advances a population of closed loops in lock-step. Particles are
// split into chunks that run on separate goroutines; inside a chunk every
// step is one batched integrator call over all alive rows.
type Batch struct {
	plant dynamo.System
	cfg   Config
	pool  BufferPool
}

func NewBatch(plant dynamo.System, cfg Config) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if plant.ControlDim() != 1 {
		return nil, fmt.Errorf("%w: batch simulator drives a single actuator, plant has %d",
			dynamo.ErrDimensionMismatch, plant.ControlDim())
	}
	return &Batch{plant: plant, cfg: cfg}, nil
}

func (b *Batch) Config() Config {
	return b.cfg
}

// Run simulates one trajectory per controller. x0 holds either one shared
// initial state or one per controller. Controllers are initialized here
// and must not be shared between particles.
func (b *Batch) Run(ctrls []control.Controller, x0 []dynamo.State) (*Trajectory, error) {
	n := b.plant.StateDim()
	if len(x0) != 1 && len(x0) != len(ctrls) {
		return nil, fmt.Errorf("%w: %d initial states for %d particles",
			dynamo.ErrDimensionMismatch, len(x0), len(ctrls))
	}
	for _, x := range x0 {
		if len(x) != n {
			return nil, fmt.Errorf("%w: initial state has %d entries, plant has %d",
				dynamo.ErrDimensionMismatch, len(x), n)
		}
		if b.cfg.ValidateState && !x.IsValid() {
			return nil, dynamo.ErrInvalidState
		}
	}

	tr := NewTrajectory(len(ctrls), b.cfg.Steps(), n, b.cfg.Dt)
	err := dynamo.ParallelFor(len(ctrls), b.cfg.MinChunk, b.cfg.Workers, func(start, end int) error {
		integ, err := integrators.NewBatch(b.cfg.Scheme)
		if err != nil {
			return err
		}
		b.runChunk(integ, ctrls[start:end], x0, start, tr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// RunConfigs instantiates one controller per config and runs them.
func (b *Batch) RunConfigs(reg *control.Registry, cfgs []control.Config, x0 []dynamo.State) (*Trajectory, error) {
	ctrls := make([]control.Controller, len(cfgs))
	for i, c := range cfgs {
		ctrl, err := reg.Instantiate(c, b.plant)
		if err != nil {
			return nil, fmt.Errorf("particle %d: %w", i, err)
		}
		ctrls[i] = ctrl
	}
	return b.Run(ctrls, x0)
}

func (b *Batch) runChunk(integ dynamo.BatchIntegrator, ctrls []control.Controller, x0 []dynamo.State, offset int, tr *Trajectory) {
	n := tr.StateDim
	m := len(ctrls)
	steps := tr.Steps
	dt := b.cfg.Dt
	bounds := b.cfg.Bounds

	x := b.pool.Get(m * n)
	u := b.pool.Get(m)
	e0 := b.pool.Get(m)
	defer b.pool.Put(x)
	defer b.pool.Put(u)
	defer b.pool.Put(e0)
	alive := make([]bool, m)

	var energy func([]float64) float64
	if h, ok := b.plant.(dynamo.Hamiltonian); ok && bounds.MaxEnergy > 0 {
		energy = func(s []float64) float64 { return h.Energy(dynamo.State(s)) }
	}

	for i, c := range ctrls {
		p := offset + i
		init := x0[0]
		if len(x0) > 1 {
			init = x0[p]
		}
		row := x[i*n : (i+1)*n]
		copy(row, init)
		copy(tr.State(p, 0), row)
		if energy != nil {
			e0[i] = energy(row)
		}
		if r := bounds.check(row, energy, e0[i]); r != ReasonNone {
			tr.Reasons[p] = r
			continue
		}
		c.InitializeState(dynamo.State(row))
		alive[i] = true
	}

	for k := 0; k < steps; k++ {
		t := float64(k) * dt
		active := false
		for i, c := range ctrls {
			if !alive[i] {
				continue
			}
			p := offset + i
			out := c.Compute(dynamo.State(x[i*n:(i+1)*n]), t)
			recordStats(&tr.Stats[p], out)
			if math.IsNaN(out.U) || math.IsInf(out.U, 0) {
				alive[i] = false
				tr.Reasons[p] = ReasonControlFault
				continue
			}
			u[i] = out.U
			tr.Controls[p*steps+k] = out.U
			tr.Surfaces[p*steps+k] = out.Surface
			active = true
		}
		if !active {
			break
		}

		integ.StepBatch(b.plant, x, u, alive, t, dt)

		for i := range ctrls {
			if !alive[i] {
				continue
			}
			p := offset + i
			row := x[i*n : (i+1)*n]
			if r := bounds.check(row, energy, e0[i]); r != ReasonNone {
				alive[i] = false
				tr.Reasons[p] = r
				tr.Controls[p*steps+k] = 0
				tr.Surfaces[p*steps+k] = 0
				continue
			}
			copy(tr.State(p, k+1), row)
			tr.ValidUntil[p] = k + 1
		}
	}

	for i := range ctrls {
		p := offset + i
		last := tr.State(p, tr.ValidUntil[p])
		for k := tr.ValidUntil[p] + 1; k <= steps; k++ {
			copy(tr.State(p, k), last)
		}
	}
}

func recordStats(st *ParticleStats, out control.Output) {
	if out.Transitioned {
		st.Transitions++
	}
	if out.Emergency {
		st.Emergencies++
	}
	if out.Degenerate {
		st.DegenerateSteps++
	}
	if out.Saturated() {
		st.SaturatedSteps++
	}
}
