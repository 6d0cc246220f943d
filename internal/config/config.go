package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/metrics"
	"github.com/san-kum/smctune/internal/observability"
	"github.com/san-kum/smctune/internal/optim"
	"github.com/san-kum/smctune/internal/physics"
	"github.com/san-kum/smctune/internal/sim"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "SMCTUNE"

	MethodPSO  = "pso"
	MethodGrid = "grid"

	DefaultOutputDir      = "runs"
	DefaultInvalidPenalty = 1e6
	DefaultGridLevels     = 3
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Controller ControllerConfig     `yaml:"controller" mapstructure:"controller"`
	Plant      physics.Params       `yaml:"plant" mapstructure:"plant"`
	Simulation sim.Config           `yaml:"simulation" mapstructure:"simulation"`
	Cost       metrics.CostConfig   `yaml:"cost" mapstructure:"cost"`
	PSO        optim.PSOConfig      `yaml:"pso" mapstructure:"pso"`
	Tuning     TuningConfig         `yaml:"tuning" mapstructure:"tuning"`
	Logging    observability.Config `yaml:"logging" mapstructure:"logging"`
	OutputDir  string               `yaml:"output_dir" mapstructure:"output_dir"`
}

// ControllerConfig selects the control law. Empty Gains fall back to the
// variant's preset.
type ControllerConfig struct {
	Variant string          `yaml:"variant" mapstructure:"variant"`
	Gains   []float64       `yaml:"gains,omitempty" mapstructure:"gains"`
	Options control.Options `yaml:"options" mapstructure:"options"`
}

type TuningConfig struct {
	Method     string `yaml:"method" mapstructure:"method"`
	GridLevels int    `yaml:"grid_levels" mapstructure:"grid_levels"`
	// Bounds override the variant's preset search box when non-empty.
	Bounds        optim.Bounds `yaml:"bounds,omitempty" mapstructure:"bounds"`
	InitialStates [][]float64  `yaml:"initial_states" mapstructure:"initial_states"`
	// Calibrate replaces the cost baselines with the integrals of the
	// default gains before the search starts.
	Calibrate      bool    `yaml:"calibrate" mapstructure:"calibrate"`
	InvalidPenalty float64 `yaml:"invalid_penalty" mapstructure:"invalid_penalty"`
}

func DefaultConfig() *Config {
	opts := control.DefaultOptions()
	simCfg := sim.DefaultConfig()
	opts.Dt = simCfg.Dt
	return &Config{
		Controller: ControllerConfig{
			Variant: string(control.VariantClassical),
			Options: opts,
		},
		Plant:      physics.DefaultParams(),
		Simulation: simCfg,
		Cost:       metrics.DefaultCostConfig(),
		PSO:        optim.DefaultPSOConfig(),
		Tuning: TuningConfig{
			Method:         MethodPSO,
			GridLevels:     DefaultGridLevels,
			InitialStates:  GetScenario("default"),
			Calibrate:      true,
			InvalidPenalty: DefaultInvalidPenalty,
		},
		Logging:   observability.DefaultConfig(),
		OutputDir: DefaultOutputDir,
	}
}

// SetDefaults registers every key with viper so environment overrides
// apply even when the config file omits them.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("output_dir", d.OutputDir)

	// Controller
	o := d.Controller.Options
	v.SetDefault("controller.variant", d.Controller.Variant)
	v.SetDefault("controller.gains", []float64{})
	v.SetDefault("controller.options.max_force", o.MaxForce)
	v.SetDefault("controller.options.dt", o.Dt)
	v.SetDefault("controller.options.boundary_layer", o.BoundaryLayer)
	v.SetDefault("controller.options.boundary_slope", o.BoundarySlope)
	v.SetDefault("controller.options.switch_method", string(o.Method))
	v.SetDefault("controller.options.tanh_slope", o.TanhSlope)
	v.SetDefault("controller.options.derivative_filter", o.DerivativeFilter)
	v.SetDefault("controller.options.use_equivalent", o.UseEquivalent)
	v.SetDefault("controller.options.max_condition", o.MaxCondition)
	v.SetDefault("controller.options.super_twisting.anti_windup_gain", o.SuperTwisting.AntiWindupGain)
	v.SetDefault("controller.options.super_twisting.damping", o.SuperTwisting.Damping)
	v.SetDefault("controller.options.adaptive.k_min", o.Adaptive.KMin)
	v.SetDefault("controller.options.adaptive.k_init", o.Adaptive.KInit)
	v.SetDefault("controller.options.adaptive.k_max", o.Adaptive.KMax)
	v.SetDefault("controller.options.adaptive.dead_zone", o.Adaptive.DeadZone)
	v.SetDefault("controller.options.adaptive.leak_rate", o.Adaptive.LeakRate)
	v.SetDefault("controller.options.adaptive.rate_limit", o.Adaptive.RateLimit)
	v.SetDefault("controller.options.adaptive.integral_gain", o.Adaptive.IntegralGain)
	v.SetDefault("controller.options.adaptive.rate_floor", o.Adaptive.RateFloor)
	v.SetDefault("controller.options.adaptive.rate_ceiling", o.Adaptive.RateCeiling)
	v.SetDefault("controller.options.hybrid.classical_gains", o.Hybrid.ClassicalGains)
	v.SetDefault("controller.options.hybrid.adaptive_gains", o.Hybrid.AdaptiveGains)
	v.SetDefault("controller.options.hybrid.enter_threshold", o.Hybrid.EnterThreshold)
	v.SetDefault("controller.options.hybrid.exit_threshold", o.Hybrid.ExitThreshold)
	v.SetDefault("controller.options.hybrid.enter_dwell", o.Hybrid.EnterDwell)
	v.SetDefault("controller.options.hybrid.exit_dwell", o.Hybrid.ExitDwell)
	v.SetDefault("controller.options.hybrid.saturation_ratio", o.Hybrid.SaturationRatio)

	// Plant
	p := d.Plant
	v.SetDefault("plant.cart_mass", p.CartMass)
	v.SetDefault("plant.mass1", p.Mass1)
	v.SetDefault("plant.mass2", p.Mass2)
	v.SetDefault("plant.length1", p.Length1)
	v.SetDefault("plant.length2", p.Length2)
	v.SetDefault("plant.gravity", p.Gravity)
	v.SetDefault("plant.cart_friction", p.CartFriction)
	v.SetDefault("plant.joint_friction", p.JointFriction)

	// Simulation
	s := d.Simulation
	v.SetDefault("simulation.dt", s.Dt)
	v.SetDefault("simulation.duration", s.Duration)
	v.SetDefault("simulation.seed", s.Seed)
	v.SetDefault("simulation.validate_state", s.ValidateState)
	v.SetDefault("simulation.scheme", string(s.Scheme))
	v.SetDefault("simulation.workers", s.Workers)
	v.SetDefault("simulation.min_chunk", s.MinChunk)
	v.SetDefault("simulation.bounds.max_angle", s.Bounds.MaxAngle)
	v.SetDefault("simulation.bounds.max_position", s.Bounds.MaxPosition)
	v.SetDefault("simulation.bounds.max_energy", s.Bounds.MaxEnergy)
	v.SetDefault("simulation.bounds.angle_idx", s.Bounds.AngleIdx)
	v.SetDefault("simulation.bounds.position_idx", s.Bounds.PositionIdx)

	// Cost
	c := d.Cost
	v.SetDefault("cost.weights.state", c.Weights.State)
	v.SetDefault("cost.weights.control", c.Weights.Control)
	v.SetDefault("cost.weights.rate", c.Weights.Rate)
	v.SetDefault("cost.weights.surface", c.Weights.Surface)
	v.SetDefault("cost.state_weights", c.StateWeights)
	v.SetDefault("cost.baseline.ise", c.Baseline.ISE)
	v.SetDefault("cost.baseline.control", c.Baseline.Control)
	v.SetDefault("cost.baseline.rate", c.Baseline.Rate)
	v.SetDefault("cost.baseline.surface", c.Baseline.Surface)
	v.SetDefault("cost.min_denominator", c.MinDenominator)
	v.SetDefault("cost.instability_penalty", c.InstabilityPenalty)

	// PSO
	q := d.PSO
	v.SetDefault("pso.population", q.Population)
	v.SetDefault("pso.max_iterations", q.MaxIterations)
	v.SetDefault("pso.inertia.start", q.Inertia.Start)
	v.SetDefault("pso.inertia.end", q.Inertia.End)
	v.SetDefault("pso.cognitive.start", q.Cognitive.Start)
	v.SetDefault("pso.cognitive.end", q.Cognitive.End)
	v.SetDefault("pso.social.start", q.Social.Start)
	v.SetDefault("pso.social.end", q.Social.End)
	v.SetDefault("pso.velocity_clamp", q.VelocityClamp)
	v.SetDefault("pso.stagnation_window", q.StagnationWindow)
	v.SetDefault("pso.stagnation_tolerance", q.StagnationTolerance)
	v.SetDefault("pso.early_stop", q.EarlyStop)
	v.SetDefault("pso.history_size", q.HistorySize)
	v.SetDefault("pso.seed", q.Seed)

	// Tuning
	t := d.Tuning
	v.SetDefault("tuning.method", t.Method)
	v.SetDefault("tuning.grid_levels", t.GridLevels)
	v.SetDefault("tuning.initial_states", t.InitialStates)
	v.SetDefault("tuning.calibrate", t.Calibrate)
	v.SetDefault("tuning.invalid_penalty", t.InvalidPenalty)

	// Logging
	l := d.Logging
	v.SetDefault("logging.level", l.Level)
	v.SetDefault("logging.format", l.Format)
	v.SetDefault("logging.add_source", l.AddSource)
	v.SetDefault("logging.service_name", l.ServiceName)
	v.SetDefault("logging.log_file", l.LogFile)
	v.SetDefault("logging.max_size", l.MaxSize)
	v.SetDefault("logging.max_backups", l.MaxBackups)
	v.SetDefault("logging.max_age", l.MaxAge)
	v.SetDefault("logging.compress", l.Compress)
}

// NewViper returns a viper instance with defaults and SMCTUNE_* environment
// overrides. An empty path skips the config file.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return v, nil
}

// NewConfigFromViper unmarshals and validates the effective configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.Plant.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("%w: simulation: %v", ErrInvalidConfig, err)
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("%w: cost: %v", ErrInvalidConfig, err)
	}
	if err := c.PSO.Validate(); err != nil {
		return fmt.Errorf("%w: pso: %v", ErrInvalidConfig, err)
	}

	variant, err := c.Variant()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	gains, err := c.Gains()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := control.DefaultRegistry().Build(variant, gains, c.ControllerOptions()); err != nil {
		return fmt.Errorf("%w: controller: %v", ErrInvalidConfig, err)
	}

	switch c.Tuning.Method {
	case MethodPSO, MethodGrid:
	default:
		return fmt.Errorf("%w: tuning.method must be %q or %q, got %q", ErrInvalidConfig, MethodPSO, MethodGrid, c.Tuning.Method)
	}
	if c.Tuning.Method == MethodGrid && c.Tuning.GridLevels < 2 {
		return fmt.Errorf("%w: tuning.grid_levels must be at least 2", ErrInvalidConfig)
	}
	bounds, err := c.Bounds()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if arity, _ := control.DefaultRegistry().Arity(variant); bounds.Dim() != arity {
		return fmt.Errorf("%w: tuning.bounds has %d dimensions, %s takes %d gains", ErrInvalidConfig, bounds.Dim(), variant, arity)
	}
	if len(c.Tuning.InitialStates) == 0 {
		return fmt.Errorf("%w: tuning.initial_states is empty", ErrInvalidConfig)
	}
	for i, x := range c.Tuning.InitialStates {
		if len(x) != physics.StateDim {
			return fmt.Errorf("%w: tuning.initial_states[%d] has %d components, want %d", ErrInvalidConfig, i, len(x), physics.StateDim)
		}
		if !dynamo.State(x).IsValid() {
			return fmt.Errorf("%w: tuning.initial_states[%d] is not finite", ErrInvalidConfig, i)
		}
	}
	if !(c.Tuning.InvalidPenalty > 0) || math.IsInf(c.Tuning.InvalidPenalty, 0) {
		return fmt.Errorf("%w: tuning.invalid_penalty must be positive and finite", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) Variant() (control.Variant, error) {
	return control.ParseVariant(c.Controller.Variant)
}

// Gains returns the configured gains or the variant's preset defaults.
func (c *Config) Gains() ([]float64, error) {
	if len(c.Controller.Gains) > 0 {
		return append([]float64(nil), c.Controller.Gains...), nil
	}
	v, err := c.Variant()
	if err != nil {
		return nil, err
	}
	p, ok := GetPreset(v)
	if !ok {
		return nil, fmt.Errorf("no preset gains for %s", v)
	}
	return append([]float64(nil), p.Gains...), nil
}

// Bounds returns the configured search box or the variant's preset box.
func (c *Config) Bounds() (optim.Bounds, error) {
	if len(c.Tuning.Bounds.Lower) > 0 || len(c.Tuning.Bounds.Upper) > 0 {
		return optim.NewBounds(c.Tuning.Bounds.Lower, c.Tuning.Bounds.Upper)
	}
	v, err := c.Variant()
	if err != nil {
		return optim.Bounds{}, err
	}
	p, ok := GetPreset(v)
	if !ok {
		return optim.Bounds{}, fmt.Errorf("no preset bounds for %s", v)
	}
	return optim.NewBounds(p.Lower, p.Upper)
}

// ControllerOptions returns the controller options with the sample period
// taken from the simulation.
func (c *Config) ControllerOptions() control.Options {
	o := c.Controller.Options
	o.Dt = c.Simulation.Dt
	o.Hybrid.ClassicalGains = append([]float64(nil), o.Hybrid.ClassicalGains...)
	o.Hybrid.AdaptiveGains = append([]float64(nil), o.Hybrid.AdaptiveGains...)
	return o
}

func (c *Config) InitialStates() []dynamo.State {
	out := make([]dynamo.State, len(c.Tuning.InitialStates))
	for i, x := range c.Tuning.InitialStates {
		out[i] = dynamo.State(x).Clone()
	}
	return out
}
