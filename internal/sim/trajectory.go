package sim

// ParticleStats counts per-step controller events of one trajectory.
type ParticleStats struct {
	Transitions     int `json:"transitions" yaml:"transitions"`
	Emergencies     int `json:"emergencies" yaml:"emergencies"`
	DegenerateSteps int `json:"degenerate_steps" yaml:"degenerate_steps"`
	SaturatedSteps  int `json:"saturated_steps" yaml:"saturated_steps"`
}

// Trajectory holds the dense result of a batch run.
//
// States is particles × (Steps+1) × StateDim, Controls and Surfaces are
// particles × Steps, all row-major. ValidUntil[p] is the number of steps
// particle p completed before it was frozen; past it states repeat the
// last valid state and controls and surfaces are zero.
type Trajectory struct {
	Particles int
	Steps     int
	StateDim  int
	Dt        float64

	States   []float64
	Controls []float64
	Surfaces []float64

	ValidUntil []int
	Reasons    []Reason
	Stats      []ParticleStats
}

func NewTrajectory(particles, steps, stateDim int, dt float64) *Trajectory {
	return &Trajectory{
		Particles:  particles,
		Steps:      steps,
		StateDim:   stateDim,
		Dt:         dt,
		States:     make([]float64, particles*(steps+1)*stateDim),
		Controls:   make([]float64, particles*steps),
		Surfaces:   make([]float64, particles*steps),
		ValidUntil: make([]int, particles),
		Reasons:    make([]Reason, particles),
		Stats:      make([]ParticleStats, particles),
	}
}

// State returns a view of particle p's state at step k.
func (tr *Trajectory) State(p, k int) []float64 {
	off := (p*(tr.Steps+1) + k) * tr.StateDim
	return tr.States[off : off+tr.StateDim]
}

func (tr *Trajectory) ControlRow(p int) []float64 {
	return tr.Controls[p*tr.Steps : (p+1)*tr.Steps]
}

func (tr *Trajectory) SurfaceRow(p int) []float64 {
	return tr.Surfaces[p*tr.Steps : (p+1)*tr.Steps]
}

// Diverged reports whether particle p was frozen before the final step.
func (tr *Trajectory) Diverged(p int) bool {
	return tr.ValidUntil[p] < tr.Steps
}

// Particle copies particle p into a single-particle trajectory.
func (tr *Trajectory) Particle(p int) *Trajectory {
	out := NewTrajectory(1, tr.Steps, tr.StateDim, tr.Dt)
	n := (tr.Steps + 1) * tr.StateDim
	copy(out.States, tr.States[p*n:(p+1)*n])
	copy(out.Controls, tr.ControlRow(p))
	copy(out.Surfaces, tr.SurfaceRow(p))
	out.ValidUntil[0] = tr.ValidUntil[p]
	out.Reasons[0] = tr.Reasons[p]
	out.Stats[0] = tr.Stats[p]
	return out
}

// Permute returns a trajectory whose particle i is particle perm[i] of tr.
func (tr *Trajectory) Permute(perm []int) *Trajectory {
	out := NewTrajectory(len(perm), tr.Steps, tr.StateDim, tr.Dt)
	n := (tr.Steps + 1) * tr.StateDim
	for i, p := range perm {
		copy(out.States[i*n:(i+1)*n], tr.States[p*n:(p+1)*n])
		copy(out.ControlRow(i), tr.ControlRow(p))
		copy(out.SurfaceRow(i), tr.SurfaceRow(p))
		out.ValidUntil[i] = tr.ValidUntil[p]
		out.Reasons[i] = tr.Reasons[p]
		out.Stats[i] = tr.Stats[p]
	}
	return out
}

// Summary aggregates divergence and controller events over the batch.
type Summary struct {
	Particles   int            `json:"particles" yaml:"particles"`
	Diverged    int            `json:"diverged" yaml:"diverged"`
	Reasons     map[string]int `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	Transitions int            `json:"transitions" yaml:"transitions"`
	Emergencies int            `json:"emergencies" yaml:"emergencies"`
	Degenerate  int            `json:"degenerate_steps" yaml:"degenerate_steps"`
	Saturated   int            `json:"saturated_steps" yaml:"saturated_steps"`
}

func (tr *Trajectory) Summary() Summary {
	s := Summary{Particles: tr.Particles, Reasons: make(map[string]int)}
	for p := 0; p < tr.Particles; p++ {
		if tr.Diverged(p) {
			s.Diverged++
			s.Reasons[tr.Reasons[p].String()]++
		}
		st := tr.Stats[p]
		s.Transitions += st.Transitions
		s.Emergencies += st.Emergencies
		s.Degenerate += st.DegenerateSteps
		s.Saturated += st.SaturatedSteps
	}
	return s
}

// Add merges another summary into s.
func (s *Summary) Add(o Summary) {
	s.Particles += o.Particles
	s.Diverged += o.Diverged
	s.Transitions += o.Transitions
	s.Emergencies += o.Emergencies
	s.Degenerate += o.Degenerate
	s.Saturated += o.Saturated
	if len(o.Reasons) > 0 && s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	for k, v := range o.Reasons {
		s.Reasons[k] += v
	}
}
