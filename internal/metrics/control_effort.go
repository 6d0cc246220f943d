package metrics

import (
	"github.com/san-kum/smctune/internal/dynamo"
)

// ControlEffort integrates u² over the observed steps.
type ControlEffort struct {
	name string
	dt   float64
	sum  float64
}

func NewControlEffort(dt float64) *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
		dt:   dt,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, val := range u {
		c.sum += val * val * c.dt
	}
}

func (c *ControlEffort) Value() float64 {
	return c.sum
}

func (c *ControlEffort) Reset() {
	c.sum = 0
}

// PeakControl tracks max |u|.
type PeakControl struct {
	peak float64
}

func NewPeakControl() *PeakControl { return &PeakControl{} }

func (c *PeakControl) Name() string { return "peak_control" }

func (c *PeakControl) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, val := range u {
		if val < 0 {
			val = -val
		}
		if val > c.peak {
			c.peak = val
		}
	}
}

func (c *PeakControl) Value() float64 { return c.peak }
func (c *PeakControl) Reset()         { c.peak = 0 }
