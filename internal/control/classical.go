package control

import "github.com/san-kum/smctune/internal/dynamo"

// Classical is the boundary-layer sliding-mode law
//
//	u = sat(u_eq - K·sw(s, ε) - kd·ṡ)
//
// with ε = base + slope·|ṡ| and ṡ a filtered first difference of s.
type Classical struct {
	cfg     Config
	surface oriented
	k       float64
	kd      float64
	opts    Options
	eq      equivalent
	sdot    derivativeTracker
}

func NewClassical(cfg Config, plant dynamo.System) *Classical {
	o := cfg.opts
	c := &Classical{
		cfg:     cfg,
		surface: orient(cfg.Surface(), plant),
		k:       cfg.gain(4),
		kd:      cfg.gain(5),
		opts:    o,
		sdot:    derivativeTracker{dt: o.Dt, alpha: o.DerivativeFilter},
	}
	c.eq = newEquivalent(plant, c.surface.Surface, o)
	return c
}

func (c *Classical) Variant() Variant { return VariantClassical }
func (c *Classical) Config() Config   { return c.cfg }

func (c *Classical) Compute(x dynamo.State, t float64) Output {
	s := c.surface.Compute(x)
	sdot := c.sdot.update(s)
	width := AdaptiveWidth(c.opts.BoundaryLayer, c.opts.BoundarySlope, sdot)

	ueq, degenerate := c.eq.compute(x)
	usw := -c.k * Switch(s, width, c.opts.Method, c.opts.TanhSlope)
	damp := -c.kd * sdot
	raw := ueq + usw + damp

	return Output{
		U:          Saturate(raw, c.opts.MaxForce),
		Raw:        raw,
		Surface:    s,
		SurfaceDot: sdot,
		Equivalent: ueq,
		Switching:  usw,
		Damping:    damp,
		Degenerate: degenerate,
	}
}

func (c *Classical) InitializeState(x0 dynamo.State) {
	c.sdot.prime(c.surface.Compute(x0))
}

func (c *Classical) Reset() {
	c.sdot.reset()
}

// handoff restarts the law from surface value s with no other memory.
func (c *Classical) handoff(s float64) {
	c.Reset()
	c.sdot.prime(s)
}
