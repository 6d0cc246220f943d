package optim

import (
	"fmt"
	"math"
)

// Bounds is a box in gain space.
type Bounds struct {
	Lower []float64 `yaml:"lower" mapstructure:"lower"`
	Upper []float64 `yaml:"upper" mapstructure:"upper"`
}

func NewBounds(lower, upper []float64) (Bounds, error) {
	b := Bounds{
		Lower: append([]float64(nil), lower...),
		Upper: append([]float64(nil), upper...),
	}
	return b, b.Validate()
}

func (b Bounds) Validate() error {
	if len(b.Lower) == 0 || len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("bounds: lower has %d entries, upper has %d", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		lo, hi := b.Lower[i], b.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return fmt.Errorf("bounds: dimension %d is not finite", i)
		}
		if !(hi > lo) {
			return fmt.Errorf("bounds: dimension %d has upper %g <= lower %g", i, hi, lo)
		}
	}
	return nil
}

func (b Bounds) Dim() int {
	return len(b.Lower)
}

func (b Bounds) Span(i int) float64 {
	return b.Upper[i] - b.Lower[i]
}

// Diagonal is the length of the box diagonal.
func (b Bounds) Diagonal() float64 {
	var sum float64
	for i := range b.Lower {
		s := b.Span(i)
		sum += s * s
	}
	return math.Sqrt(sum)
}

// Contains reports whether x lies inside the closed box.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b.Lower) {
		return false
	}
	for i, v := range x {
		if v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}

// Clip clamps x[i] into the box and reports whether it moved.
func (b Bounds) Clip(x []float64, i int) bool {
	switch {
	case x[i] < b.Lower[i]:
		x[i] = b.Lower[i]
		return true
	case x[i] > b.Upper[i]:
		x[i] = b.Upper[i]
		return true
	}
	return false
}
