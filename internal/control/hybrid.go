package control

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Hybrid runs a classical law by default and hands over to an adaptive
// law when the classical one is visibly struggling. Each sub-law is built
// on first entry and owns its own memory; a hand-off carries only the
// surface value.
//
// Compute always returns a finite control. A non-finite result from the
// active sub-law is replaced by the last finite control, the sub-law is
// restarted and the output is flagged Emergency.
type Hybrid struct {
	cfg     Config
	plant   dynamo.System
	surface oriented
	opts    Options

	classicalCfg Config
	adaptiveCfg  Config
	classical    *Classical
	adaptive     *Adaptive

	machine     *ModeSwitch
	lastSafe    float64
	lastSurface float64
	emergency   int
}

func NewHybrid(cfg Config, plant dynamo.System) *Hybrid {
	classical, adaptive, _ := cfg.SubConfigs()
	return &Hybrid{
		cfg:          cfg,
		plant:        plant,
		surface:      orient(cfg.Surface(), plant),
		opts:         cfg.opts,
		classicalCfg: classical,
		adaptiveCfg:  adaptive,
		machine:      NewModeSwitch(cfg.opts.Hybrid, cfg.opts.Dt),
	}
}

func (h *Hybrid) Variant() Variant { return VariantHybrid }
func (h *Hybrid) Config() Config   { return h.cfg }

// Mode returns the sub-law that will produce the next control.
func (h *Hybrid) Mode() Mode {
	return h.machine.Mode()
}

func (h *Hybrid) Transitions() int {
	return h.machine.Transitions()
}

func (h *Hybrid) Emergencies() int {
	return h.emergency
}

func (h *Hybrid) classicalLaw() *Classical {
	if h.classical == nil {
		h.classical = NewClassical(h.classicalCfg, h.plant)
		h.classical.handoff(h.lastSurface)
	}
	return h.classical
}

func (h *Hybrid) adaptiveLaw() *Adaptive {
	if h.adaptive == nil {
		h.adaptive = NewAdaptive(h.adaptiveCfg, h.plant)
		h.adaptive.handoff(h.lastSurface)
	}
	return h.adaptive
}

func (h *Hybrid) Compute(x dynamo.State, t float64) Output {
	mode := h.machine.Mode()

	var (
		out     Output
		gainSat bool
	)
	switch mode {
	case ModeAdaptive:
		law := h.adaptiveLaw()
		out = law.Compute(x, t)
		gainSat = law.GainSaturated()
	default:
		out = h.classicalLaw().Compute(x, t)
	}
	out.Mode = mode

	if !isFinite(out.U) {
		h.emergency++
		out.U = Saturate(h.lastSafe, h.opts.MaxForce)
		out.Emergency = true
		h.restart(mode, h.lastSurface)
		return out
	}
	h.lastSafe = out.U
	h.lastSurface = out.Surface

	saturated := mode == ModeClassical &&
		math.Abs(out.Raw) >= h.opts.Hybrid.SaturationRatio*h.opts.MaxForce
	next, fired := h.machine.Step(Signal{
		Surface:          out.Surface,
		ControlSaturated: saturated,
		GainSaturated:    gainSat,
	})
	if fired {
		h.restart(next, out.Surface)
		out.Transitioned = true
	}
	return out
}

// restart puts the given sub-law into a fresh state at surface value s.
func (h *Hybrid) restart(mode Mode, s float64) {
	switch mode {
	case ModeAdaptive:
		if h.adaptive == nil {
			h.lastSurface = s
			h.adaptiveLaw()
			return
		}
		h.adaptive.handoff(s)
	default:
		if h.classical == nil {
			h.lastSurface = s
			h.classicalLaw()
			return
		}
		h.classical.handoff(s)
	}
}

func (h *Hybrid) InitializeState(x0 dynamo.State) {
	h.Reset()
	h.lastSurface = h.surface.Compute(x0)
	h.classicalLaw()
}

func (h *Hybrid) Reset() {
	h.machine.Reset()
	h.classical = nil
	h.adaptive = nil
	h.lastSafe = 0
	h.lastSurface = 0
	h.emergency = 0
}
