package metrics

import (
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Stability is the fraction of observed steps with every watched state
// component inside ±threshold.
type Stability struct {
	name       string
	threshold  float64
	idx        []int
	violations int
	samples    int
}

func NewStability(threshold float64, idx ...int) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
		idx:       idx,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	for _, i := range s.idx {
		if i < len(x) && math.Abs(x[i]) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// SettlingTime reports the last time any watched component was outside
// ±threshold, i.e. the time after which the run stayed settled.
type SettlingTime struct {
	threshold float64
	idx       []int
	last      float64
}

func NewSettlingTime(threshold float64, idx ...int) *SettlingTime {
	return &SettlingTime{threshold: threshold, idx: idx}
}

func (s *SettlingTime) Name() string { return "settling_time" }

func (s *SettlingTime) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, i := range s.idx {
		if i < len(x) && math.Abs(x[i]) > s.threshold {
			s.last = t
			return
		}
	}
}

func (s *SettlingTime) Value() float64 { return s.last }
func (s *SettlingTime) Reset()         { s.last = 0 }
