package control

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// SuperTwisting is the second-order sliding-mode law
//
//	u = sat(u_eq - K1·√|s|·sw(s) + z - c·s)
//	ż = -K2·sw(s) + Kaw·(u - raw)
//
// with z clipped to ±MaxForce. K1 > K2 > 0 is enforced at build time.
type SuperTwisting struct {
	cfg     Config
	surface oriented
	k1, k2  float64
	opts    Options
	eq      equivalent
	sdot    derivativeTracker

	z float64
}

func NewSuperTwisting(cfg Config, plant dynamo.System) *SuperTwisting {
	o := cfg.opts
	c := &SuperTwisting{
		cfg:     cfg,
		surface: orient(cfg.Surface(), plant),
		k1:      cfg.gain(0),
		k2:      cfg.gain(1),
		opts:    o,
		sdot:    derivativeTracker{dt: o.Dt, alpha: o.DerivativeFilter},
	}
	c.eq = newEquivalent(plant, c.surface.Surface, o)
	return c
}

func (c *SuperTwisting) Variant() Variant { return VariantSuperTwisting }
func (c *SuperTwisting) Config() Config   { return c.cfg }

func (c *SuperTwisting) Compute(x dynamo.State, t float64) Output {
	o := c.opts
	s := c.surface.Compute(x)
	sdot := c.sdot.update(s)
	width := AdaptiveWidth(o.BoundaryLayer, o.BoundarySlope, sdot)
	sw := Switch(s, width, o.Method, o.TanhSlope)

	ueq, degenerate := c.eq.compute(x)
	ucont := -c.k1 * math.Sqrt(math.Abs(s)) * sw
	damp := -o.SuperTwisting.Damping * s
	raw := ueq + ucont + c.z + damp
	u := Saturate(raw, o.MaxForce)

	out := Output{
		U:          u,
		Raw:        raw,
		Surface:    s,
		SurfaceDot: sdot,
		Equivalent: ueq,
		Switching:  ucont,
		Damping:    damp,
		Integral:   c.z,
		Degenerate: degenerate,
	}

	z := c.z - c.k2*sw*o.Dt
	if isFinite(raw) {
		z += o.SuperTwisting.AntiWindupGain * (u - raw) * o.Dt
	}
	if isFinite(z) {
		c.z = Saturate(z, o.MaxForce)
	}
	return out
}

func (c *SuperTwisting) InitializeState(x0 dynamo.State) {
	c.z = 0
	c.sdot.prime(c.surface.Compute(x0))
}

func (c *SuperTwisting) Reset() {
	c.z = 0
	c.sdot.reset()
}

// IntegralState returns z.
func (c *SuperTwisting) IntegralState() float64 {
	return c.z
}
