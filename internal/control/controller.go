package control

import (
	"fmt"
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Variant tags one of the four control laws.
type Variant string

const (
	VariantClassical     Variant = "classical"
	VariantSuperTwisting Variant = "super_twisting"
	VariantAdaptive      Variant = "adaptive"
	VariantHybrid        Variant = "hybrid"
)

// Variants lists the built-in control laws in a stable order.
func Variants() []Variant {
	return []Variant{VariantClassical, VariantSuperTwisting, VariantAdaptive, VariantHybrid}
}

func ParseVariant(s string) (Variant, error) {
	switch s {
	case "classical", "classic", "smc":
		return VariantClassical, nil
	case "super_twisting", "super-twisting", "sta":
		return VariantSuperTwisting, nil
	case "adaptive":
		return VariantAdaptive, nil
	case "hybrid":
		return VariantHybrid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Mode is the active sub-law of the hybrid controller. Single-law
// controllers always report ModeNone.
type Mode int

const (
	ModeNone Mode = iota
	ModeClassical
	ModeAdaptive
)

func (m Mode) String() string {
	switch m {
	case ModeClassical:
		return "classical"
	case ModeAdaptive:
		return "adaptive"
	}
	return "none"
}

// Output is the control value of one step plus telemetry.
type Output struct {
	U          float64 // saturated control
	Raw        float64 // control before saturation
	Surface    float64 // sign-flipped when the surface's input gain is negative
	SurfaceDot float64
	Equivalent float64
	Switching  float64
	Damping    float64
	Integral   float64 // super-twisting z or adaptive integral error
	Gain       float64 // adaptive gain estimate
	Mode       Mode

	Transitioned bool // hybrid switched mode after this step
	Emergency    bool // hybrid fallback replaced a non-finite control
	Degenerate   bool // equivalent control fell back to zero
}

// Saturated reports whether the raw control exceeded the actuator limit.
func (o Output) Saturated() bool {
	return math.Abs(o.Raw) > math.Abs(o.U)
}

// Controller is the capability shared by every control law. Instances own
// their memory and are not safe for concurrent use.
type Controller interface {
	Variant() Variant
	Config() Config
	Compute(x dynamo.State, t float64) Output
	// InitializeState prepares the controller for a run starting at x0.
	InitializeState(x0 dynamo.State)
	// Reset clears all per-run memory.
	Reset()
}

// derivativeTracker estimates ṡ by a low-pass filtered first difference.
type derivativeTracker struct {
	dt     float64
	alpha  float64
	prev   float64
	value  float64
	primed bool
}

func (d *derivativeTracker) update(s float64) float64 {
	if !d.primed {
		d.prev = s
		d.primed = true
		return d.value
	}
	raw := (s - d.prev) / d.dt
	d.prev = s
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return d.value
	}
	d.value = d.alpha*d.value + (1-d.alpha)*raw
	return d.value
}

// prime starts a new estimate from the surface value s with zero slope.
func (d *derivativeTracker) prime(s float64) {
	d.prev = s
	d.value = 0
	d.primed = true
}

func (d *derivativeTracker) reset() {
	d.prev, d.value, d.primed = 0, 0, false
}
