package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/integrators"
)

// Simulator runs a single closed-loop trajectory one step at a time. It is
// the reference the batch simulator is checked against and the engine
// behind the simulate command.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	controller control.Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(plant dynamo.System, integrator dynamo.Integrator, controller control.Controller) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

// NewFromConfig picks the integrator named by cfg.Scheme.
func NewFromConfig(plant dynamo.System, controller control.Controller, cfg Config) (*Simulator, error) {
	integ, err := integrators.New(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	return New(plant, integ, controller), nil
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Result is one reference trajectory. States has ValidUntil+1 entries,
// Controls, Surfaces and Outputs have ValidUntil.
type Result struct {
	States     []dynamo.State
	Controls   []float64
	Surfaces   []float64
	Outputs    []control.Output
	Times      []float64
	Steps      int
	ValidUntil int
	Reason     Reason
	Metrics    map[string]float64

	EnergyDrift float64
}

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != s.plant.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d entries, plant has %d",
			dynamo.ErrDimensionMismatch, len(x0), s.plant.StateDim())
	}
	if cfg.ValidateState && !x0.IsValid() {
		return nil, dynamo.ErrInvalidState
	}

	steps := cfg.Steps()
	result := &Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]float64, 0, steps),
		Surfaces: make([]float64, 0, steps),
		Outputs:  make([]control.Output, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Steps:    steps,
		Metrics:  make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	var energy func([]float64) float64
	h, hasEnergy := s.plant.(dynamo.Hamiltonian)
	if hasEnergy && cfg.Bounds.MaxEnergy > 0 {
		energy = func(x []float64) float64 { return h.Energy(dynamo.State(x)) }
	}

	x := x0.Clone()
	dt := cfg.Dt
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, 0)

	var e0 float64
	if hasEnergy {
		e0 = h.Energy(x)
	}
	if r := cfg.Bounds.check(x, energy, e0); r != ReasonNone {
		result.Reason = r
		return result, nil
	}
	s.controller.InitializeState(x)

	control1 := make(dynamo.Control, 1)
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, &dynamo.SimulationError{Step: i, Time: float64(i) * dt, State: x.Clone(), Wrapped: ctx.Err()}
		default:
		}

		t := float64(i) * dt
		out := s.controller.Compute(x, t)
		if math.IsNaN(out.U) || math.IsInf(out.U, 0) {
			result.Reason = ReasonControlFault
			break
		}
		control1[0] = out.U

		newX := s.integrator.Step(s.plant, x, control1, t, dt)
		if r := cfg.Bounds.check(newX, energy, e0); r != ReasonNone {
			result.Reason = r
			break
		}

		for _, m := range s.metrics {
			m.Observe(x, control1, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, control1, t)
		}

		x = newX
		result.ValidUntil++
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, out.U)
		result.Surfaces = append(result.Surfaces, out.Surface)
		result.Outputs = append(result.Outputs, out)
		result.Times = append(result.Times, float64(i+1)*dt)
	}

	if hasEnergy && e0 != 0 {
		result.EnergyDrift = math.Abs(h.Energy(x)-e0) / math.Abs(e0)
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// Trajectory converts r into a single-particle batch layout so the same
// cost reduction applies to both simulators.
func (r *Result) Trajectory(dt float64) *Trajectory {
	n := 0
	if len(r.States) > 0 {
		n = len(r.States[0])
	}
	tr := NewTrajectory(1, r.Steps, n, dt)
	for k := 0; k <= r.Steps; k++ {
		src := r.States[len(r.States)-1]
		if k < len(r.States) {
			src = r.States[k]
		}
		copy(tr.State(0, k), src)
	}
	copy(tr.Controls, r.Controls)
	copy(tr.Surfaces, r.Surfaces)
	tr.ValidUntil[0] = r.ValidUntil
	tr.Reasons[0] = r.Reason
	for _, out := range r.Outputs {
		recordStats(&tr.Stats[0], out)
	}
	return tr
}
