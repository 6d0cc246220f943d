package optim

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Particle is one swarm member. It owns all of its slices.
type Particle struct {
	Position     []float64
	Velocity     []float64
	BestPosition []float64
	BestFitness  float64
	Fitness      float64
}

// Swarm is the population plus its global best.
type Swarm struct {
	Particles         []Particle
	GlobalBest        []float64
	GlobalBestFitness float64

	bounds Bounds
	vmax   []float64
}

// newSwarm scatters n particles uniformly inside b. Initial velocities are
// uniform in ±vmax, or ±span/10 without clamping.
func newSwarm(n int, b Bounds, clamp float64, rng *rand.Rand) *Swarm {
	dim := b.Dim()
	s := &Swarm{
		Particles:         make([]Particle, n),
		GlobalBest:        make([]float64, dim),
		GlobalBestFitness: math.Inf(1),
		bounds:            b,
		vmax:              make([]float64, dim),
	}
	for d := 0; d < dim; d++ {
		s.vmax[d] = math.Inf(1)
		if clamp > 0 {
			s.vmax[d] = clamp * b.Span(d)
		}
	}
	for i := range s.Particles {
		p := Particle{
			Position:     make([]float64, dim),
			Velocity:     make([]float64, dim),
			BestPosition: make([]float64, dim),
			BestFitness:  math.Inf(1),
			Fitness:      math.Inf(1),
		}
		for d := 0; d < dim; d++ {
			p.Position[d] = b.Lower[d] + rng.Float64()*b.Span(d)
			vr := b.Span(d) / 10
			if clamp > 0 {
				vr = s.vmax[d]
			}
			p.Velocity[d] = (2*rng.Float64() - 1) * vr
		}
		copy(p.BestPosition, p.Position)
		s.Particles[i] = p
	}
	return s
}

// Positions returns copies of every particle position.
func (s *Swarm) Positions() [][]float64 {
	out := make([][]float64, len(s.Particles))
	for i, p := range s.Particles {
		out[i] = append([]float64(nil), p.Position...)
	}
	return out
}

// update records fitness values and refreshes personal and global bests.
// Non-finite fitness counts as +Inf. It reports whether the global best
// improved.
func (s *Swarm) update(fitness []float64) bool {
	improved := false
	for i := range s.Particles {
		p := &s.Particles[i]
		f := fitness[i]
		if math.IsNaN(f) {
			f = math.Inf(1)
		}
		p.Fitness = f
		if f < p.BestFitness {
			p.BestFitness = f
			copy(p.BestPosition, p.Position)
		}
		if f < s.GlobalBestFitness {
			s.GlobalBestFitness = f
			copy(s.GlobalBest, p.Position)
			improved = true
		}
	}
	return improved
}

// move applies the velocity and position update with per-dimension random
// factors. A particle that hits a wall loses its velocity on that axis.
func (s *Swarm) move(w, c1, c2 float64, rng *rand.Rand) {
	for i := range s.Particles {
		p := &s.Particles[i]
		for d := range p.Position {
			r1, r2 := rng.Float64(), rng.Float64()
			v := w*p.Velocity[d] +
				c1*r1*(p.BestPosition[d]-p.Position[d]) +
				c2*r2*(s.GlobalBest[d]-p.Position[d])
			v = math.Max(-s.vmax[d], math.Min(s.vmax[d], v))

			p.Position[d] += v
			p.Velocity[d] = v
			if s.bounds.Clip(p.Position, d) {
				p.Velocity[d] = 0
			}
		}
	}
}

// MeanFitness averages the finite fitness values of the last evaluation.
func (s *Swarm) MeanFitness() float64 {
	vals := make([]float64, 0, len(s.Particles))
	for _, p := range s.Particles {
		if !math.IsInf(p.Fitness, 0) && !math.IsNaN(p.Fitness) {
			vals = append(vals, p.Fitness)
		}
	}
	if len(vals) == 0 {
		return math.Inf(1)
	}
	return stat.Mean(vals, nil)
}

// Diversity is the mean distance of the particles from their centroid
// divided by the search-space diagonal.
func (s *Swarm) Diversity() float64 {
	if len(s.Particles) == 0 {
		return 0
	}
	centroid := make([]float64, s.bounds.Dim())
	for _, p := range s.Particles {
		floats.Add(centroid, p.Position)
	}
	floats.Scale(1/float64(len(s.Particles)), centroid)

	var sum float64
	for _, p := range s.Particles {
		sum += floats.Distance(p.Position, centroid, 2)
	}
	return sum / float64(len(s.Particles)) / s.bounds.Diagonal()
}
