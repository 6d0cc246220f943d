package control

import (
	"fmt"
	"math"
)

var (
	classicalGainNames     = []string{"k1", "k2", "lambda1", "lambda2", "K", "kd"}
	superTwistingGainNames = []string{"K1", "K2", "k1", "k2", "lambda1", "lambda2"}
	adaptiveGainNames      = []string{"k1", "k2", "lambda1", "lambda2", "gamma"}
	hybridGainNames        = []string{"k1", "k2", "lambda1", "lambda2"}
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func gainError(v Variant, names []string, i int, value float64, constraint string) error {
	name := fmt.Sprintf("g%d", i)
	if i < len(names) {
		name = names[i]
	}
	return &StructuralError{Variant: v, Index: i, Name: name, Value: value, Constraint: constraint}
}

func optionError(v Variant, name string, value float64, constraint string) error {
	return &StructuralError{Variant: v, Index: -1, Name: name, Value: value, Constraint: constraint}
}

func requirePositive(v Variant, names []string, gains []float64, idx ...int) error {
	for _, i := range idx {
		if !(gains[i] > 0) {
			return gainError(v, names, i, gains[i], "must be strictly positive")
		}
	}
	return nil
}

// validateCommon checks the options shared by every variant.
func validateCommon(v Variant, o Options) error {
	checks := []struct {
		name  string
		value float64
		ok    bool
		rule  string
	}{
		{"max_force", o.MaxForce, o.MaxForce > 0 && isFinite(o.MaxForce), "must be positive and finite"},
		{"dt", o.Dt, o.Dt > 0 && isFinite(o.Dt), "must be positive and finite"},
		{"boundary_layer", o.BoundaryLayer, o.BoundaryLayer > 0 && isFinite(o.BoundaryLayer), "must be strictly positive"},
		{"boundary_slope", o.BoundarySlope, o.BoundarySlope >= 0 && isFinite(o.BoundarySlope), "must be non-negative"},
		{"tanh_slope", o.TanhSlope, o.TanhSlope > 0 && isFinite(o.TanhSlope), "must be strictly positive"},
		{"derivative_filter", o.DerivativeFilter, o.DerivativeFilter >= 0 && o.DerivativeFilter < 1, "must lie in [0, 1)"},
		{"max_condition", o.MaxCondition, o.MaxCondition > 1, "must exceed 1"},
	}
	for _, c := range checks {
		if !c.ok {
			return optionError(v, c.name, c.value, c.rule)
		}
	}
	if _, err := ParseMethod(string(o.Method)); err != nil {
		return &StructuralError{Variant: v, Index: -1, Name: "switch_method", Value: math.NaN(), Constraint: err.Error()}
	}
	return nil
}

func validateClassical(gains []float64, o Options) error {
	v, names := VariantClassical, classicalGainNames
	if err := requirePositive(v, names, gains, 0, 1, 2, 3, 4); err != nil {
		return err
	}
	if gains[5] < 0 {
		return gainError(v, names, 5, gains[5], "must be non-negative")
	}
	return nil
}

func validateSuperTwisting(gains []float64, o Options) error {
	v, names := VariantSuperTwisting, superTwistingGainNames
	if err := requirePositive(v, names, gains, 1); err != nil {
		return err
	}
	if !(gains[0] > gains[1]) {
		return gainError(v, names, 0, gains[0], fmt.Sprintf("must be greater than K2 (%g)", gains[1]))
	}
	if err := requirePositive(v, names, gains, 2, 3, 4, 5); err != nil {
		return err
	}
	st := o.SuperTwisting
	if !(st.AntiWindupGain >= 0) || !isFinite(st.AntiWindupGain) {
		return optionError(v, "anti_windup_gain", st.AntiWindupGain, "must be non-negative")
	}
	if !(st.Damping >= 0) || !isFinite(st.Damping) {
		return optionError(v, "damping", st.Damping, "must be non-negative")
	}
	return nil
}

func validateAdaptive(gains []float64, o Options) error {
	v, names := VariantAdaptive, adaptiveGainNames
	if err := requirePositive(v, names, gains, 0, 1, 2, 3); err != nil {
		return err
	}
	a := o.Adaptive
	if !(a.RateFloor >= 0 && a.RateCeiling > a.RateFloor) {
		return optionError(v, "rate_ceiling", a.RateCeiling, fmt.Sprintf("must exceed rate_floor (%g)", a.RateFloor))
	}
	if !(gains[4] > a.RateFloor && gains[4] < a.RateCeiling) {
		return gainError(v, names, 4, gains[4], fmt.Sprintf("must lie in (%g, %g)", a.RateFloor, a.RateCeiling))
	}
	if !(a.KMin >= 0) {
		return optionError(v, "k_min", a.KMin, "must be non-negative")
	}
	if !(a.KMin < a.KInit) {
		return optionError(v, "k_init", a.KInit, fmt.Sprintf("must exceed k_min (%g)", a.KMin))
	}
	if !(a.KInit < a.KMax) || !isFinite(a.KMax) {
		return optionError(v, "k_max", a.KMax, fmt.Sprintf("must be finite and exceed k_init (%g)", a.KInit))
	}
	if !(a.DeadZone >= 0) {
		return optionError(v, "dead_zone", a.DeadZone, "must be non-negative")
	}
	if !(a.LeakRate >= 0) || !isFinite(a.LeakRate) {
		return optionError(v, "leak_rate", a.LeakRate, "must be non-negative")
	}
	if !(a.RateLimit > 0) {
		return optionError(v, "rate_limit", a.RateLimit, "must be strictly positive")
	}
	if !(a.IntegralGain >= 0) || !isFinite(a.IntegralGain) {
		return optionError(v, "integral_gain", a.IntegralGain, "must be non-negative")
	}
	return nil
}

// validateHybrid checks the surface gains and the mode-machine settings.
// The sub-configurations are validated by the registry afterwards.
func validateHybrid(gains []float64, o Options) error {
	v, names := VariantHybrid, hybridGainNames
	if err := requirePositive(v, names, gains, 0, 1, 2, 3); err != nil {
		return err
	}
	h := o.Hybrid
	if !(h.ExitThreshold > 0) {
		return optionError(v, "exit_threshold", h.ExitThreshold, "must be strictly positive")
	}
	if !(h.EnterThreshold > h.ExitThreshold) || !isFinite(h.EnterThreshold) {
		return optionError(v, "enter_threshold", h.EnterThreshold,
			fmt.Sprintf("must be finite and exceed exit_threshold (%g)", h.ExitThreshold))
	}
	if !(h.EnterDwell >= o.Dt) || !isFinite(h.EnterDwell) {
		return optionError(v, "enter_dwell", h.EnterDwell, fmt.Sprintf("must be at least one step (%g)", o.Dt))
	}
	if !(h.ExitDwell >= o.Dt) || !isFinite(h.ExitDwell) {
		return optionError(v, "exit_dwell", h.ExitDwell, fmt.Sprintf("must be at least one step (%g)", o.Dt))
	}
	if !(h.SaturationRatio > 0 && h.SaturationRatio <= 1) {
		return optionError(v, "saturation_ratio", h.SaturationRatio, "must lie in (0, 1]")
	}
	return nil
}

// hybridSubGains overlays the hybrid surface gains on a sub-law gain
// vector. Missing sub-gains are reported as a structural error.
func hybridSubGains(surface []float64, sub []float64, arity int, name string) ([]float64, error) {
	if len(sub) != arity {
		return nil, optionError(VariantHybrid, name, float64(len(sub)), fmt.Sprintf("must hold %d gains", arity))
	}
	out := append([]float64(nil), sub...)
	copy(out, surface[:4])
	return out, nil
}
