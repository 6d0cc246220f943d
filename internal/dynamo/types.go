package dynamo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Control []float64

// System is the plant contract: dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// BatchSystem evaluates the derivative of a whole population at once.
// x and dx are row-major (particles × StateDim), u is (particles × ControlDim).
// Rows whose alive flag is false must be left untouched in dx.
type BatchSystem interface {
	System
	DeriveBatch(x, u []float64, t float64, alive []bool, dx []float64)
}

// Linearizer exposes the local linear model ẋ ≈ A·x + B·u around (x, u).
type Linearizer interface {
	Linearize(x State, u Control) (a, b *mat.Dense)
}

// InputMapper exposes ∂f/∂u for a single-actuator plant without the cost
// of a full linearization.
type InputMapper interface {
	InputColumn(x State, u Control) State
}

// InertiaProvider exposes the generalized mass matrix M(q) used to judge
// how well conditioned the local linear model is.
type InertiaProvider interface {
	Inertia(x State) *mat.Dense
}

type Hamiltonian interface {
	Energy(x State) float64
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// BatchIntegrator advances every alive row of x in place.
type BatchIntegrator interface {
	Name() string
	StepBatch(dyn System, x, u []float64, alive []bool, t, dt float64)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Config struct {
	Dt            float64 `yaml:"dt" mapstructure:"dt"`
	Duration      float64 `yaml:"duration" mapstructure:"duration"`
	Seed          int64   `yaml:"seed" mapstructure:"seed"`
	ValidateState bool    `yaml:"validate_state" mapstructure:"validate_state"`
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.001,
		Duration:      5.0,
		ValidateState: true,
	}
}

// Steps returns the number of fixed steps covering Duration.
func (c Config) Steps() int {
	if c.Dt <= 0 {
		return 0
	}
	return int(math.Round(c.Duration / c.Dt))
}
