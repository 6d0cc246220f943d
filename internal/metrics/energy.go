package metrics

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// uprightReference is implemented by plants that know the energy of their
// balanced configuration.
type uprightReference interface {
	UprightEnergy() float64
}

// EnergyDrift reports the largest excursion of the plant energy from its
// starting value as a fraction of a reference energy. A controlled plant
// exchanges energy with the actuator, so the excursion measures how hard
// the loop pumps the links rather than integration error. The reference is
// the balanced energy when the plant reports one and |E(x0)| otherwise.
type EnergyDrift struct {
	energy    dynamo.Hamiltonian
	reference float64

	started bool
	start   float64
	scale   float64
	peak    float64
}

func NewEnergyDrift(plant dynamo.System) *EnergyDrift {
	d := &EnergyDrift{}
	d.energy, _ = plant.(dynamo.Hamiltonian)
	if r, ok := plant.(uprightReference); ok {
		d.reference = math.Abs(r.UprightEnergy())
	}
	return d
}

func (d *EnergyDrift) Name() string { return "energy_drift" }

// Observe ignores plants without an energy function and non-finite energies.
func (d *EnergyDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if d.energy == nil {
		return
	}
	e := d.energy.Energy(x)
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return
	}
	if !d.started {
		d.started = true
		d.start = e
		d.scale = d.reference
		if !(d.scale > 0) {
			d.scale = math.Abs(e)
		}
		return
	}
	if d.scale > 0 {
		d.peak = math.Max(d.peak, math.Abs(e-d.start)/d.scale)
	}
}

func (d *EnergyDrift) Value() float64 {
	return d.peak
}

func (d *EnergyDrift) Reset() {
	d.started = false
	d.start, d.scale, d.peak = 0, 0, 0
}
