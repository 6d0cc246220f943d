package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/smctune/internal/sim"
)

// Weights scale the four normalized cost terms.
type Weights struct {
	State   float64 `yaml:"state" mapstructure:"state"`
	Control float64 `yaml:"control" mapstructure:"control"`
	Rate    float64 `yaml:"rate" mapstructure:"rate"`
	Surface float64 `yaml:"surface" mapstructure:"surface"`
}

// Terms are the four time integrals of one trajectory, either raw or
// normalized.
type Terms struct {
	ISE     float64 `json:"ise" yaml:"ise" mapstructure:"ise"`
	Control float64 `json:"control" yaml:"control" mapstructure:"control"`
	Rate    float64 `json:"rate" yaml:"rate" mapstructure:"rate"`
	Surface float64 `json:"surface" yaml:"surface" mapstructure:"surface"`
}

// Baseline holds the normalization denominators of each term.
type Baseline = Terms

type CostConfig struct {
	Weights Weights `yaml:"weights" mapstructure:"weights"`
	// StateWeights weight each state component inside the ISE term.
	StateWeights []float64 `yaml:"state_weights" mapstructure:"state_weights"`
	Baseline     Baseline  `yaml:"baseline" mapstructure:"baseline"`
	// MinDenominator floors every baseline term.
	MinDenominator     float64 `yaml:"min_denominator" mapstructure:"min_denominator"`
	InstabilityPenalty float64 `yaml:"instability_penalty" mapstructure:"instability_penalty"`
}

func DefaultCostConfig() CostConfig {
	return CostConfig{
		Weights:            Weights{State: 1, Control: 0.1, Rate: 0.01, Surface: 0.5},
		StateWeights:       []float64{1, 10, 10, 0.1, 1, 1},
		Baseline:           Baseline{ISE: 1, Control: 1, Rate: 1, Surface: 1},
		MinDenominator:     1e-6,
		InstabilityPenalty: 1000,
	}
}

func (c CostConfig) Validate() error {
	if !(c.MinDenominator > 0) {
		return fmt.Errorf("cost: min_denominator must be positive, got %g", c.MinDenominator)
	}
	for name, w := range map[string]float64{
		"weights.state":       c.Weights.State,
		"weights.control":     c.Weights.Control,
		"weights.rate":        c.Weights.Rate,
		"weights.surface":     c.Weights.Surface,
		"instability_penalty": c.InstabilityPenalty,
	} {
		if !(w >= 0) || math.IsInf(w, 0) {
			return fmt.Errorf("cost: %s must be finite and non-negative, got %g", name, w)
		}
	}
	for i, w := range c.StateWeights {
		if !(w >= 0) || math.IsInf(w, 0) {
			return fmt.Errorf("cost: state_weights[%d] must be finite and non-negative, got %g", i, w)
		}
	}
	return nil
}

// Breakdown is the cost of one particle with its components.
type Breakdown struct {
	Raw        Terms   `json:"raw" yaml:"raw"`
	Normalized Terms   `json:"normalized" yaml:"normalized"`
	Penalty    float64 `json:"penalty" yaml:"penalty"`
	Total      float64 `json:"total" yaml:"total"`
}

// Cost reduces batch trajectories to one scalar per particle. Every sum
// stops at the particle's ValidUntil index.
type Cost struct {
	cfg CostConfig
}

func NewCost(cfg CostConfig) (*Cost, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.StateWeights = append([]float64(nil), cfg.StateWeights...)
	return &Cost{cfg: cfg}, nil
}

func (c *Cost) Config() CostConfig {
	return c.cfg
}

// WithBaseline returns a copy of c normalized by b.
func (c *Cost) WithBaseline(b Baseline) *Cost {
	cfg := c.cfg
	cfg.Baseline = b
	return &Cost{cfg: cfg}
}

// Degenerate reports whether every baseline term sits at or below the
// floor, in which case normalization no longer separates candidates.
func (c *Cost) Degenerate() bool {
	b, floor := c.cfg.Baseline, c.cfg.MinDenominator
	return b.ISE <= floor && b.Control <= floor && b.Rate <= floor && b.Surface <= floor
}

// RawTerms integrates particle p's trajectory over its valid steps.
func RawTerms(tr *sim.Trajectory, p int, stateWeights []float64) Terms {
	var out Terms
	dt := tr.Dt
	valid := tr.ValidUntil[p]
	u := tr.ControlRow(p)
	s := tr.SurfaceRow(p)
	for k := 0; k < valid; k++ {
		x := tr.State(p, k)
		for j, v := range x {
			w := 1.0
			if j < len(stateWeights) {
				w = stateWeights[j]
			}
			out.ISE += w * v * v * dt
		}
		out.Control += u[k] * u[k] * dt
		if k > 0 {
			du := u[k] - u[k-1]
			out.Rate += du * du / dt
		}
		out.Surface += s[k] * s[k] * dt
	}
	return out
}

func (c *Cost) Evaluate(tr *sim.Trajectory, p int) Breakdown {
	raw := RawTerms(tr, p, c.cfg.StateWeights)
	b, floor := c.cfg.Baseline, c.cfg.MinDenominator
	norm := Terms{
		ISE:     raw.ISE / math.Max(b.ISE, floor),
		Control: raw.Control / math.Max(b.Control, floor),
		Rate:    raw.Rate / math.Max(b.Rate, floor),
		Surface: raw.Surface / math.Max(b.Surface, floor),
	}
	w := c.cfg.Weights
	total := w.State*norm.ISE + w.Control*norm.Control + w.Rate*norm.Rate + w.Surface*norm.Surface

	var penalty float64
	if tr.Steps > 0 {
		penalty = c.cfg.InstabilityPenalty * float64(tr.Steps-tr.ValidUntil[p]) / float64(tr.Steps)
	}
	return Breakdown{Raw: raw, Normalized: norm, Penalty: penalty, Total: total + penalty}
}

// Reduce returns the total cost of every particle.
func (c *Cost) Reduce(tr *sim.Trajectory) []float64 {
	out := make([]float64, tr.Particles)
	for p := range out {
		out[p] = c.Evaluate(tr, p).Total
	}
	return out
}

// BaselineFrom averages the raw terms of the particles of a reference
// run that never diverged. ok is false when every particle diverged.
func BaselineFrom(tr *sim.Trajectory, stateWeights []float64) (b Baseline, ok bool) {
	n := 0
	for p := 0; p < tr.Particles; p++ {
		if tr.Diverged(p) {
			continue
		}
		t := RawTerms(tr, p, stateWeights)
		b.ISE += t.ISE
		b.Control += t.Control
		b.Rate += t.Rate
		b.Surface += t.Surface
		n++
	}
	if n == 0 {
		return Baseline{}, false
	}
	f := float64(n)
	return Baseline{ISE: b.ISE / f, Control: b.Control / f, Rate: b.Rate / f, Surface: b.Surface / f}, true
}
