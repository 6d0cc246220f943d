package integrators

import (
	"testing"

	"github.com/san-kum/smctune/internal/dynamo"
)

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &simpleDynamics{}
	x := dynamo.State{1.0, 0.0}
	u := dynamo.Control{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, u, 0, 0.01)
	}
}

func BenchmarkBatchRK4(b *testing.B) {
	const particles = 256
	integrator := NewBatchRK4()
	dyn := &simpleDynamics{}
	x := make([]float64, particles*2)
	u := make([]float64, particles)
	alive := make([]bool, particles)
	for p := range alive {
		alive[p] = true
		x[p*2] = 1
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		integrator.StepBatch(dyn, x, u, alive, 0, 0.01)
	}
}
