package sim

import (
	"math"

	"github.com/san-kum/smctune/internal/physics"
)

// Reason records why a trajectory was frozen.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNonFinite
	ReasonAngle
	ReasonPosition
	ReasonEnergy
	ReasonControlFault
)

func (r Reason) String() string {
	switch r {
	case ReasonNonFinite:
		return "non_finite"
	case ReasonAngle:
		return "angle"
	case ReasonPosition:
		return "position"
	case ReasonEnergy:
		return "energy"
	case ReasonControlFault:
		return "control_fault"
	}
	return "none"
}

// Bounds are the physical limits past which a trajectory is frozen. A
// non-positive limit disables its check.
type Bounds struct {
	MaxAngle    float64 `yaml:"max_angle" mapstructure:"max_angle"`
	MaxPosition float64 `yaml:"max_position" mapstructure:"max_position"`
	// MaxEnergy bounds |E(x) - E(x0)| for plants that report energy.
	MaxEnergy float64 `yaml:"max_energy" mapstructure:"max_energy"`

	AngleIdx    []int `yaml:"angle_idx" mapstructure:"angle_idx"`
	PositionIdx []int `yaml:"position_idx" mapstructure:"position_idx"`
}

func DefaultBounds() Bounds {
	return Bounds{
		MaxAngle:    math.Pi / 2,
		MaxPosition: 5,
		MaxEnergy:   50,
		AngleIdx:    []int{physics.IdxTheta1, physics.IdxTheta2},
		PositionIdx: []int{physics.IdxX},
	}
}

// check classifies x. energy is nil when the energy bound is inactive.
func (b Bounds) check(x []float64, energy func([]float64) float64, e0 float64) Reason {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ReasonNonFinite
		}
	}
	if b.MaxAngle > 0 {
		for _, i := range b.AngleIdx {
			if i < len(x) && math.Abs(x[i]) > b.MaxAngle {
				return ReasonAngle
			}
		}
	}
	if b.MaxPosition > 0 {
		for _, i := range b.PositionIdx {
			if i < len(x) && math.Abs(x[i]) > b.MaxPosition {
				return ReasonPosition
			}
		}
	}
	if energy != nil && b.MaxEnergy > 0 {
		e := energy(x)
		if math.IsNaN(e) || math.Abs(e-e0) > b.MaxEnergy {
			return ReasonEnergy
		}
	}
	return ReasonNone
}
