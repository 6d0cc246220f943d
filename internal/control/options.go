package control

// Options are the algorithm scalars that are not part of the tuned gain
// vector. They are validated together with the gains by Registry.Build.
type Options struct {
	MaxForce float64 `yaml:"max_force" mapstructure:"max_force"`
	Dt       float64 `yaml:"dt" mapstructure:"dt"`

	BoundaryLayer float64 `yaml:"boundary_layer" mapstructure:"boundary_layer"`
	BoundarySlope float64 `yaml:"boundary_slope" mapstructure:"boundary_slope"`
	Method        Method  `yaml:"switch_method" mapstructure:"switch_method"`
	TanhSlope     float64 `yaml:"tanh_slope" mapstructure:"tanh_slope"`

	// DerivativeFilter is the low-pass coefficient in [0, 1) applied to the
	// finite-difference estimate of ṡ.
	DerivativeFilter float64 `yaml:"derivative_filter" mapstructure:"derivative_filter"`

	UseEquivalent bool    `yaml:"use_equivalent" mapstructure:"use_equivalent"`
	MaxCondition  float64 `yaml:"max_condition" mapstructure:"max_condition"`

	SuperTwisting SuperTwistingOptions `yaml:"super_twisting" mapstructure:"super_twisting"`
	Adaptive      AdaptiveOptions      `yaml:"adaptive" mapstructure:"adaptive"`
	Hybrid        HybridOptions        `yaml:"hybrid" mapstructure:"hybrid"`
}

type SuperTwistingOptions struct {
	AntiWindupGain float64 `yaml:"anti_windup_gain" mapstructure:"anti_windup_gain"`
	Damping        float64 `yaml:"damping" mapstructure:"damping"`
}

type AdaptiveOptions struct {
	KMin         float64 `yaml:"k_min" mapstructure:"k_min"`
	KInit        float64 `yaml:"k_init" mapstructure:"k_init"`
	KMax         float64 `yaml:"k_max" mapstructure:"k_max"`
	DeadZone     float64 `yaml:"dead_zone" mapstructure:"dead_zone"`
	LeakRate     float64 `yaml:"leak_rate" mapstructure:"leak_rate"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	IntegralGain float64 `yaml:"integral_gain" mapstructure:"integral_gain"`

	// the adaptation rate gamma must lie strictly inside (RateFloor, RateCeiling)
	RateFloor   float64 `yaml:"rate_floor" mapstructure:"rate_floor"`
	RateCeiling float64 `yaml:"rate_ceiling" mapstructure:"rate_ceiling"`
}

// HybridOptions configure the two embedded sub-laws and the mode machine.
// The surface gains of both sub-configurations are overwritten by the
// hybrid gain vector so every mode drives the same manifold.
type HybridOptions struct {
	ClassicalGains []float64 `yaml:"classical_gains" mapstructure:"classical_gains"`
	AdaptiveGains  []float64 `yaml:"adaptive_gains" mapstructure:"adaptive_gains"`

	EnterThreshold float64 `yaml:"enter_threshold" mapstructure:"enter_threshold"`
	ExitThreshold  float64 `yaml:"exit_threshold" mapstructure:"exit_threshold"`
	EnterDwell     float64 `yaml:"enter_dwell" mapstructure:"enter_dwell"`
	ExitDwell      float64 `yaml:"exit_dwell" mapstructure:"exit_dwell"`

	// SaturationRatio is the fraction of MaxForce at which the classical
	// mode counts as saturated.
	SaturationRatio float64 `yaml:"saturation_ratio" mapstructure:"saturation_ratio"`
}

func DefaultOptions() Options {
	return Options{
		MaxForce:         150,
		Dt:               0.001,
		BoundaryLayer:    0.5,
		BoundarySlope:    0,
		Method:           MethodLinear,
		TanhSlope:        3,
		DerivativeFilter: 0.9,
		UseEquivalent:    false,
		MaxCondition:     1e8,
		SuperTwisting: SuperTwistingOptions{
			AntiWindupGain: 1,
			Damping:        0,
		},
		Adaptive: AdaptiveOptions{
			KMin:        0.1,
			KInit:       10,
			KMax:        100,
			DeadZone:    0.01,
			LeakRate:    0.01,
			RateLimit:   100,
			RateFloor:   1e-3,
			RateCeiling: 1e3,
		},
		Hybrid: HybridOptions{
			ClassicalGains:  []float64{1, 8, 5, 20, 50, 2},
			AdaptiveGains:   []float64{1, 8, 5, 20, 4},
			EnterThreshold:  20,
			ExitThreshold:   4,
			EnterDwell:      0.05,
			ExitDwell:       0.1,
			SaturationRatio: 0.95,
		},
	}
}

func (o Options) clone() Options {
	c := o
	c.Hybrid.ClassicalGains = append([]float64(nil), o.Hybrid.ClassicalGains...)
	c.Hybrid.AdaptiveGains = append([]float64(nil), o.Hybrid.AdaptiveGains...)
	return c
}
