package control

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Adaptive is a sliding-mode law whose switching gain K is estimated
// online:
//
//	K̇ = γ·|s|             if |s| > dead zone
//	K̇ = -leak·(K - Kinit)  otherwise
//
// K̇ is clipped to ±RateLimit and K to [KMin, KMax].
type Adaptive struct {
	cfg     Config
	surface oriented
	gamma   float64
	opts    Options
	eq      equivalent
	sdot    derivativeTracker

	k        float64
	integral float64
}

func NewAdaptive(cfg Config, plant dynamo.System) *Adaptive {
	o := cfg.opts
	c := &Adaptive{
		cfg:     cfg,
		surface: orient(cfg.Surface(), plant),
		gamma:   cfg.gain(4),
		opts:    o,
		sdot:    derivativeTracker{dt: o.Dt, alpha: o.DerivativeFilter},
		k:       o.Adaptive.KInit,
	}
	c.eq = newEquivalent(plant, c.surface.Surface, o)
	return c
}

func (c *Adaptive) Variant() Variant { return VariantAdaptive }
func (c *Adaptive) Config() Config   { return c.cfg }

func (c *Adaptive) Compute(x dynamo.State, t float64) Output {
	o := c.opts
	a := o.Adaptive
	s := c.surface.Compute(x)
	sdot := c.sdot.update(s)

	c.adapt(s)
	if a.IntegralGain > 0 {
		c.integral = Saturate(c.integral+s*o.Dt, o.MaxForce/a.IntegralGain)
	}

	width := AdaptiveWidth(o.BoundaryLayer, o.BoundarySlope, sdot)
	ueq, degenerate := c.eq.compute(x)
	usw := -c.k * Switch(s, width, o.Method, o.TanhSlope)
	integ := -a.IntegralGain * c.integral
	raw := ueq + usw + integ

	return Output{
		U:          Saturate(raw, o.MaxForce),
		Raw:        raw,
		Surface:    s,
		SurfaceDot: sdot,
		Equivalent: ueq,
		Switching:  usw,
		Integral:   c.integral,
		Gain:       c.k,
		Degenerate: degenerate,
	}
}

func (c *Adaptive) adapt(s float64) {
	a := c.opts.Adaptive
	var rate float64
	if math.Abs(s) <= a.DeadZone {
		rate = -a.LeakRate * (c.k - a.KInit)
	} else {
		rate = c.gamma * math.Abs(s)
	}
	rate = Saturate(rate, a.RateLimit)
	c.k = math.Min(math.Max(c.k+rate*c.opts.Dt, a.KMin), a.KMax)
}

// Gain returns the current adaptive gain estimate.
func (c *Adaptive) Gain() float64 {
	return c.k
}

// GainSaturated reports whether K sits at its upper bound.
func (c *Adaptive) GainSaturated() bool {
	return c.k >= c.opts.Adaptive.KMax
}

func (c *Adaptive) InitializeState(x0 dynamo.State) {
	c.Reset()
	c.sdot.prime(c.surface.Compute(x0))
}

func (c *Adaptive) Reset() {
	c.k = c.opts.Adaptive.KInit
	c.integral = 0
	c.sdot.reset()
}

func (c *Adaptive) handoff(s float64) {
	c.Reset()
	c.sdot.prime(s)
}
