package control

import (
	"fmt"
	"math"
)

// minBoundaryWidth keeps every boundary layer strictly positive.
const minBoundaryWidth = 1e-9

// Method selects the switching function used inside the boundary layer.
type Method string

const (
	MethodSign   Method = "sign"
	MethodLinear Method = "linear"
	MethodTanh   Method = "tanh"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodSign, MethodLinear, MethodTanh:
		return Method(s), nil
	case "sat", "saturation":
		return MethodLinear, nil
	}
	return "", fmt.Errorf("unknown switching method: %q", s)
}

// Switch maps a surface value into [-1, 1].
//
// sign is discontinuous, linear is the clipped ramp s/width, tanh is
// tanh(slope·s/width). All three are monotone non-decreasing in s; sign
// and linear saturate exactly to ±1 outside the boundary. Non-positive or
// non-finite widths are raised to a tiny positive floor.
func Switch(s, width float64, method Method, slope float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	if math.IsNaN(width) || width < minBoundaryWidth {
		width = minBoundaryWidth
	}

	switch method {
	case MethodSign:
		switch {
		case s > 0:
			return 1
		case s < 0:
			return -1
		}
		return 0
	case MethodTanh:
		if !(slope > 0) {
			slope = 1
		}
		return math.Tanh(slope * s / width)
	default:
		return Saturate(s/width, 1)
	}
}

// AdaptiveWidth returns base + slope·|sdot|, never below the positive floor.
// A non-finite derivative leaves the base width unchanged.
func AdaptiveWidth(base, slope, sdot float64) float64 {
	w := base
	if slope > 0 && !math.IsNaN(sdot) && !math.IsInf(sdot, 0) {
		w += slope * math.Abs(sdot)
	}
	if !(w > minBoundaryWidth) {
		return minBoundaryWidth
	}
	return w
}

// Saturate clips u to [-limit, limit]. NaN passes through so callers can
// detect a failed computation.
func Saturate(u, limit float64) float64 {
	if u > limit {
		return limit
	}
	if u < -limit {
		return -limit
	}
	return u
}
