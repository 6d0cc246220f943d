package control

import "math"

// dwellEps absorbs accumulated rounding in dwell timers.
const dwellEps = 1e-9

// Signal is what the mode machine observes on each step.
type Signal struct {
	Surface          float64 // |s| is used
	ControlSaturated bool
	GainSaturated    bool
}

// ModeSwitch is the hysteresis state machine of the hybrid controller.
//
// Classical → adaptive fires once |s| > enter or the control saturates,
// held for EnterDwell. Adaptive → classical fires once |s| < exit with the
// adaptive gain below its ceiling, held for ExitDwell. exit < enter.
type ModeSwitch struct {
	opts HybridOptions
	dt   float64

	mode        Mode
	enterTimer  float64
	exitTimer   float64
	transitions int
}

func NewModeSwitch(opts HybridOptions, dt float64) *ModeSwitch {
	return &ModeSwitch{opts: opts, dt: dt, mode: ModeClassical}
}

func (m *ModeSwitch) Mode() Mode {
	return m.mode
}

func (m *ModeSwitch) Transitions() int {
	return m.transitions
}

// Step feeds one observation and returns the mode for the next step and
// whether a transition fired.
func (m *ModeSwitch) Step(sig Signal) (Mode, bool) {
	mag := math.Abs(sig.Surface)
	if math.IsNaN(mag) {
		mag = math.Inf(1)
	}

	switch m.mode {
	case ModeClassical:
		if mag > m.opts.EnterThreshold || sig.ControlSaturated {
			m.enterTimer += m.dt
		} else {
			m.enterTimer = 0
		}
		if m.enterTimer+dwellEps >= m.opts.EnterDwell {
			m.switchTo(ModeAdaptive)
			return m.mode, true
		}
	case ModeAdaptive:
		if mag < m.opts.ExitThreshold && !sig.GainSaturated {
			m.exitTimer += m.dt
		} else {
			m.exitTimer = 0
		}
		if m.exitTimer+dwellEps >= m.opts.ExitDwell {
			m.switchTo(ModeClassical)
			return m.mode, true
		}
	}
	return m.mode, false
}

func (m *ModeSwitch) switchTo(mode Mode) {
	m.mode = mode
	m.enterTimer = 0
	m.exitTimer = 0
	m.transitions++
}

func (m *ModeSwitch) Reset() {
	m.mode = ModeClassical
	m.enterTimer = 0
	m.exitTimer = 0
	m.transitions = 0
}
