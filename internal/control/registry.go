package control

import (
	"fmt"
	"sort"

	"github.com/san-kum/smctune/internal/dynamo"
)

// Builder describes one control law to the registry.
type Builder struct {
	Arity     int
	GainNames []string
	// Validate applies the variant's sign and ordering rules. Length and
	// finiteness have already been checked.
	Validate func(gains []float64, opts Options) error
	New      func(cfg Config, plant dynamo.System) Controller
}

// Registry maps variants to builders. It is passed explicitly to whoever
// needs to construct controllers.
type Registry struct {
	builders map[Variant]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[Variant]Builder)}
}

// DefaultRegistry returns a fresh registry holding the four built-in laws.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(VariantClassical, Builder{
		Arity:     len(classicalGainNames),
		GainNames: classicalGainNames,
		Validate:  validateClassical,
		New:       func(cfg Config, p dynamo.System) Controller { return NewClassical(cfg, p) },
	})
	r.Register(VariantSuperTwisting, Builder{
		Arity:     len(superTwistingGainNames),
		GainNames: superTwistingGainNames,
		Validate:  validateSuperTwisting,
		New:       func(cfg Config, p dynamo.System) Controller { return NewSuperTwisting(cfg, p) },
	})
	r.Register(VariantAdaptive, Builder{
		Arity:     len(adaptiveGainNames),
		GainNames: adaptiveGainNames,
		Validate:  validateAdaptive,
		New:       func(cfg Config, p dynamo.System) Controller { return NewAdaptive(cfg, p) },
	})
	r.Register(VariantHybrid, Builder{
		Arity:     len(hybridGainNames),
		GainNames: hybridGainNames,
		Validate:  validateHybrid,
		New:       func(cfg Config, p dynamo.System) Controller { return NewHybrid(cfg, p) },
	})
	return r
}

func (r *Registry) Register(v Variant, b Builder) {
	r.builders[v] = b
}

func (r *Registry) Variants() []Variant {
	out := make([]Variant, 0, len(r.builders))
	for v := range r.builders {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Arity returns the expected gain-vector length of v.
func (r *Registry) Arity(v Variant) (int, bool) {
	b, ok := r.builders[v]
	return b.Arity, ok
}

func (r *Registry) GainNames(v Variant) []string {
	return append([]string(nil), r.builders[v].GainNames...)
}

// Build validates gains against v's rules and returns an immutable config.
// Checks run in order: arity, finiteness, variant rules (options
// included); hybrid sub-configs are built last.
func (r *Registry) Build(v Variant, gains []float64, opts Options) (Config, error) {
	b, ok := r.builders[v]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	if len(gains) != b.Arity {
		return Config{}, &StructuralError{
			Variant: v, Index: -1, Name: "gains", Value: float64(len(gains)),
			Constraint: fmt.Sprintf("expected %d gains", b.Arity),
		}
	}
	for i, g := range gains {
		if !isFinite(g) {
			return Config{}, gainError(v, b.GainNames, i, g, "must be finite")
		}
	}
	if err := validateCommon(v, opts); err != nil {
		return Config{}, err
	}
	if b.Validate != nil {
		if err := b.Validate(gains, opts); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		variant: v,
		gains:   append([]float64(nil), gains...),
		opts:    opts.clone(),
	}
	if v != VariantHybrid {
		return cfg, nil
	}

	cg, err := hybridSubGains(gains, opts.Hybrid.ClassicalGains, len(classicalGainNames), "classical_gains")
	if err != nil {
		return Config{}, err
	}
	classical, err := r.Build(VariantClassical, cg, opts)
	if err != nil {
		return Config{}, fmt.Errorf("hybrid classical sub-config: %w", err)
	}
	ag, err := hybridSubGains(gains, opts.Hybrid.AdaptiveGains, len(adaptiveGainNames), "adaptive_gains")
	if err != nil {
		return Config{}, err
	}
	adaptive, err := r.Build(VariantAdaptive, ag, opts)
	if err != nil {
		return Config{}, fmt.Errorf("hybrid adaptive sub-config: %w", err)
	}
	cfg.classical = &classical
	cfg.adaptive = &adaptive
	return cfg, nil
}

// Instantiate creates a controller from a config produced by Build. plant
// may be nil, in which case the equivalent-control term is always zero.
func (r *Registry) Instantiate(cfg Config, plant dynamo.System) (Controller, error) {
	b, ok := r.builders[cfg.variant]
	if !ok || b.New == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, cfg.variant)
	}
	if len(cfg.gains) != b.Arity {
		return nil, fmt.Errorf("control: config for %s was not produced by Build", cfg.variant)
	}
	return b.New(cfg, plant), nil
}

// BuildAndInstantiate is a convenience for Build followed by Instantiate.
func (r *Registry) BuildAndInstantiate(v Variant, gains []float64, opts Options, plant dynamo.System) (Controller, error) {
	cfg, err := r.Build(v, gains, opts)
	if err != nil {
		return nil, err
	}
	return r.Instantiate(cfg, plant)
}
