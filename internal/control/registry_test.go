package control

import (
	"errors"
	"math"
	"testing"
)

func TestBuildSuperTwistingOrdering(t *testing.T) {
	reg := DefaultRegistry()
	opts := DefaultOptions()

	_, err := reg.Build(VariantSuperTwisting, []float64{5, 10, 20, 12, 8, 6}, opts)
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("expected structural error for K1 < K2, got %v", err)
	}
	var se *StructuralError
	if !errors.As(err, &se) || se.Name != "K1" || se.Index != 0 {
		t.Errorf("expected K1 to be named in the error, got %v", err)
	}

	if _, err := reg.Build(VariantSuperTwisting, []float64{25, 15, 20, 12, 8, 6}, opts); err != nil {
		t.Errorf("expected valid gains to build, got %v", err)
	}
}

func TestBuildChecks(t *testing.T) {
	reg := DefaultRegistry()
	opts := DefaultOptions()

	tests := []struct {
		name    string
		variant Variant
		gains   []float64
		field   string
	}{
		{"short vector", VariantClassical, []float64{1, 2, 3}, "gains"},
		{"NaN gain", VariantClassical, []float64{1, math.NaN(), 3, 4, 5, 0}, "k2"},
		{"Inf gain", VariantAdaptive, []float64{1, 2, 3, 4, math.Inf(1)}, "gamma"},
		{"negative surface", VariantClassical, []float64{1, 2, -3, 4, 5, 0}, "lambda1"},
		{"zero switching gain", VariantClassical, []float64{1, 2, 3, 4, 0, 0}, "K"},
		{"negative damping", VariantClassical, []float64{1, 2, 3, 4, 5, -1}, "kd"},
		{"gamma above ceiling", VariantAdaptive, []float64{1, 2, 3, 4, 1e6}, "gamma"},
		{"zero hybrid surface", VariantHybrid, []float64{0, 2, 3, 4}, "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Build(tt.variant, tt.gains, opts)
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("expected StructuralError, got %v", err)
			}
			if se.Name != tt.field {
				t.Errorf("expected field %q, got %q (%v)", tt.field, se.Name, err)
			}
		})
	}
}

func TestBuildOptionChecks(t *testing.T) {
	reg := DefaultRegistry()
	gains := []float64{10, 8, 15, 12, 50, 5}

	opts := DefaultOptions()
	opts.BoundaryLayer = 0
	if _, err := reg.Build(VariantClassical, gains, opts); !errors.Is(err, ErrStructural) {
		t.Errorf("expected zero boundary layer to be rejected, got %v", err)
	}

	opts = DefaultOptions()
	opts.Adaptive.KInit = opts.Adaptive.KMax
	if _, err := reg.Build(VariantAdaptive, []float64{1, 2, 3, 4, 5}, opts); !errors.Is(err, ErrStructural) {
		t.Errorf("expected k_init >= k_max to be rejected, got %v", err)
	}

	opts = DefaultOptions()
	opts.Hybrid.ExitThreshold = opts.Hybrid.EnterThreshold
	if _, err := reg.Build(VariantHybrid, []float64{1, 2, 3, 4}, opts); !errors.Is(err, ErrStructural) {
		t.Errorf("expected overlapping thresholds to be rejected, got %v", err)
	}

	opts = DefaultOptions()
	opts.Hybrid.AdaptiveGains = []float64{1, 2, 3, 4, -5}
	if _, err := reg.Build(VariantHybrid, []float64{1, 2, 3, 4}, opts); !errors.Is(err, ErrStructural) {
		t.Errorf("expected invalid adaptive sub-config to be rejected, got %v", err)
	}
}

func TestBuildUnknownVariant(t *testing.T) {
	_, err := DefaultRegistry().Build("pid", []float64{1}, DefaultOptions())
	if !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
	if errors.Is(err, ErrStructural) {
		t.Error("unknown variant should not be a structural error")
	}
}

func TestConfigIsImmutable(t *testing.T) {
	reg := DefaultRegistry()
	gains := []float64{10, 8, 15, 12, 50, 5}
	cfg, err := reg.Build(VariantClassical, gains, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	gains[0] = 999
	got := cfg.Gains()
	got[1] = 999
	if cfg.Gains()[0] != 10 || cfg.Gains()[1] != 8 {
		t.Errorf("config gains changed: %v", cfg.Gains())
	}
}

func TestHybridSubConfigsShareSurface(t *testing.T) {
	reg := DefaultRegistry()
	cfg, err := reg.Build(VariantHybrid, []float64{3, 4, 5, 6}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	classical, adaptive, ok := cfg.SubConfigs()
	if !ok {
		t.Fatal("expected sub-configs on hybrid config")
	}
	want := cfg.Surface()
	if classical.Surface() != want || adaptive.Surface() != want {
		t.Errorf("expected shared surface %+v, got %+v and %+v", want, classical.Surface(), adaptive.Surface())
	}
	if _, _, ok := classical.SubConfigs(); ok {
		t.Error("classical config should not report sub-configs")
	}
}

func TestInstantiateRejectsZeroConfig(t *testing.T) {
	if _, err := DefaultRegistry().Instantiate(Config{}, nil); err == nil {
		t.Error("expected zero config to be rejected")
	}
}

func TestRegistryIsolated(t *testing.T) {
	a := DefaultRegistry()
	b := NewRegistry()
	if len(b.Variants()) != 0 {
		t.Errorf("expected empty registry, got %v", b.Variants())
	}
	if len(a.Variants()) != 4 {
		t.Errorf("expected 4 built-in variants, got %v", a.Variants())
	}
	if n, ok := a.Arity(VariantSuperTwisting); !ok || n != 6 {
		t.Errorf("expected arity 6, got %d", n)
	}
}
