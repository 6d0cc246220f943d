package control

import (
	"math"
	"testing"

	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/physics"
	"gonum.org/v1/gonum/mat"
)

// columnCounter records which model queries the equivalent term makes.
type columnCounter struct {
	*physics.DoubleInvertedPendulum
	columns        int
	linearizations int
}

func (p *columnCounter) InputColumn(x dynamo.State, u dynamo.Control) dynamo.State {
	p.columns++
	return p.DoubleInvertedPendulum.InputColumn(x, u)
}

func (p *columnCounter) Linearize(x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	p.linearizations++
	return p.DoubleInvertedPendulum.Linearize(x, u)
}

// linearOnly hides the input column so only Linearize is available.
type linearOnly struct {
	plant *physics.DoubleInvertedPendulum
}

func (p linearOnly) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return p.plant.Derive(x, u, t)
}

func (p linearOnly) StateDim() int                     { return p.plant.StateDim() }
func (p linearOnly) ControlDim() int                   { return p.plant.ControlDim() }
func (p linearOnly) Inertia(x dynamo.State) *mat.Dense { return p.plant.Inertia(x) }

func (p linearOnly) Linearize(x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	return p.plant.Linearize(x, u)
}

func build(t *testing.T, v Variant, gains []float64, opts Options, plant dynamo.System) Controller {
	t.Helper()
	c, err := DefaultRegistry().BuildAndInstantiate(v, gains, opts, plant)
	if err != nil {
		t.Fatalf("build %s: %v", v, err)
	}
	return c
}

func TestZeroStateGivesZeroControl(t *testing.T) {
	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	zero := make(dynamo.State, physics.StateDim)

	for _, useEq := range []bool{false, true} {
		for _, m := range []Method{MethodLinear, MethodTanh} {
			opts := DefaultOptions()
			opts.UseEquivalent = useEq
			opts.Method = m
			c := build(t, VariantClassical, []float64{10, 8, 15, 12, 50, 5}, opts, plant)
			c.InitializeState(zero)
			for i := 0; i < 10; i++ {
				if out := c.Compute(zero, float64(i)*opts.Dt); out.U != 0 {
					t.Fatalf("equivalent=%v method=%s: expected zero control, got %g", useEq, m, out.U)
				}
			}
		}
	}
}

func TestClassicalOpposesSurface(t *testing.T) {
	opts := DefaultOptions()
	c := build(t, VariantClassical, []float64{10, 8, 15, 12, 50, 0}, opts, nil)
	x := dynamo.State{0, 0.05, 0, 0, 0, 0}
	c.InitializeState(x)
	out := c.Compute(x, 0)
	if out.Surface <= 0 {
		t.Fatalf("expected positive surface, got %g", out.Surface)
	}
	if out.U >= 0 {
		t.Errorf("expected negative control for positive surface, got %g", out.U)
	}
	if math.Abs(out.U) > opts.MaxForce {
		t.Errorf("control %g exceeds limit", out.U)
	}
}

func TestClassicalSaturates(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxForce = 5
	c := build(t, VariantClassical, []float64{10, 8, 15, 12, 50, 0}, opts, nil)
	x := dynamo.State{0, 0.3, 0, 0, 0, 0}
	c.InitializeState(x)
	out := c.Compute(x, 0)
	if out.U != -5 {
		t.Errorf("expected -5, got %g", out.U)
	}
	if !out.Saturated() {
		t.Error("expected saturated output")
	}
}

func TestEquivalentDegenerateWithoutLinearizer(t *testing.T) {
	opts := DefaultOptions()
	opts.UseEquivalent = true
	c := build(t, VariantClassical, []float64{10, 8, 15, 12, 50, 5}, opts, nil)
	x := dynamo.State{0, 0.1, 0, 0, 0, 0}
	c.InitializeState(x)
	out := c.Compute(x, 0)
	if !out.Degenerate || out.Equivalent != 0 {
		t.Errorf("expected degenerate zero feed-forward, got %+v", out)
	}
}

func TestEquivalentIllConditioned(t *testing.T) {
	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	opts := DefaultOptions()
	opts.UseEquivalent = true
	opts.MaxCondition = 1.0000001
	c := build(t, VariantClassical, []float64{10, 8, 15, 12, 50, 5}, opts, plant)
	x := dynamo.State{0, 0.1, 0.05, 0, 0, 0}
	c.InitializeState(x)
	if out := c.Compute(x, 0); !out.Degenerate || out.Equivalent != 0 {
		t.Errorf("expected ill-conditioned fallback, got %+v", out)
	}
}

func TestEquivalentCancelsDrift(t *testing.T) {
	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	opts := DefaultOptions()
	opts.UseEquivalent = true
	cfg, err := DefaultRegistry().Build(VariantClassical, []float64{10, 8, 15, 12, 50, 5}, opts)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClassical(cfg, plant)
	x := dynamo.State{0, 0.1, -0.05, 0, 0.2, 0.1}
	c.InitializeState(x)
	out := c.Compute(x, 0)
	if out.Degenerate {
		t.Fatal("expected a usable linear model")
	}
	dx := plant.Derive(x, dynamo.Control{out.Equivalent}, 0)
	if sdot := cfg.Surface().ComputeDerivative(x, dx); math.Abs(sdot) > 1e-4 {
		t.Errorf("expected ṡ ≈ 0 under u_eq, got %g", sdot)
	}
}

func TestEquivalentUsesInputColumn(t *testing.T) {
	opts := DefaultOptions()
	opts.UseEquivalent = true
	gains := []float64{10, 8, 15, 12, 50, 5}
	x := dynamo.State{0, 0.1, -0.05, 0, 0.2, 0.1}

	counted := &columnCounter{DoubleInvertedPendulum: physics.NewDoubleInvertedPendulum(physics.DefaultParams())}
	c := build(t, VariantClassical, gains, opts, counted)
	c.InitializeState(x)
	before := counted.columns
	out := c.Compute(x, 0)
	if out.Degenerate {
		t.Fatal("expected a usable input column")
	}
	if counted.linearizations != 0 {
		t.Errorf("expected no full linearization, got %d", counted.linearizations)
	}
	if counted.columns != before+1 {
		t.Errorf("expected one input column per step, got %d", counted.columns-before)
	}

	fallback := build(t, VariantClassical, gains, opts, linearOnly{plant: counted.DoubleInvertedPendulum})
	fallback.InitializeState(x)
	ref := fallback.Compute(x, 0)
	if ref.Degenerate || math.Abs(ref.Equivalent-out.Equivalent) > 1e-9 {
		t.Errorf("linearized fallback gave %g (degenerate=%v), input column gave %g",
			ref.Equivalent, ref.Degenerate, out.Equivalent)
	}
}

func TestControlDrivesSurfaceTowardZero(t *testing.T) {
	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	x := dynamo.State{0, 0.05, 0.02, 0, 0, 0}

	tests := []struct {
		name    string
		gains   []float64
		flipped bool
	}{
		{"lower link weighted", []float64{10, 8, 15, 12, 50, 0}, false},
		{"upper link weighted", []float64{1, 8, 5, 20, 50, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DefaultRegistry().Build(VariantClassical, tt.gains, DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			c := NewClassical(cfg, plant)
			c.InitializeState(x)
			out := c.Compute(x, 0)

			s := cfg.Surface()
			raw := s.Compute(x)
			if raw <= 0 {
				t.Fatalf("expected positive surface, got %g", raw)
			}
			want := raw
			if tt.flipped {
				want = -raw
			}
			if out.Surface != want {
				t.Errorf("reported surface %g, want %g", out.Surface, want)
			}

			free := s.ComputeDerivative(x, plant.Derive(x, dynamo.Control{0}, 0))
			forced := s.ComputeDerivative(x, plant.Derive(x, dynamo.Control{out.U}, 0))
			if forced >= free {
				t.Errorf("control %g does not lower ṡ: %g -> %g", out.U, free, forced)
			}
		})
	}
}

func TestSuperTwistingIntegralBounded(t *testing.T) {
	opts := DefaultOptions()
	c := build(t, VariantSuperTwisting, []float64{25, 15, 20, 12, 8, 6}, opts, nil)
	sta := c.(*SuperTwisting)
	x := dynamo.State{0, 0.001, 0, 0, 0, 0}
	c.InitializeState(x)
	for i := 0; i < 10000; i++ {
		out := c.Compute(x, float64(i)*opts.Dt)
		if math.Abs(out.U) > opts.MaxForce {
			t.Fatalf("step %d: control %g exceeds limit", i, out.U)
		}
		if math.Abs(sta.IntegralState()) > opts.MaxForce {
			t.Fatalf("step %d: z = %g exceeds limit", i, sta.IntegralState())
		}
	}
	if sta.IntegralState() >= 0 {
		t.Errorf("expected z driven negative by positive surface, got %g", sta.IntegralState())
	}

	// deep saturation: anti-windup keeps z inside the actuator range
	far := dynamo.State{0, 0.5, 0.5, 0, 1, 1}
	c.InitializeState(far)
	for i := 0; i < 5000; i++ {
		c.Compute(far, float64(i)*opts.Dt)
		if math.Abs(sta.IntegralState()) > opts.MaxForce {
			t.Fatalf("step %d: z = %g exceeds limit", i, sta.IntegralState())
		}
	}

	c.Reset()
	if sta.IntegralState() != 0 {
		t.Errorf("expected reset z, got %g", sta.IntegralState())
	}
}

func TestAdaptiveGainMonotoneThenClamped(t *testing.T) {
	opts := DefaultOptions()
	c := build(t, VariantAdaptive, []float64{10, 8, 15, 12, 50}, opts, nil)
	x := dynamo.State{0, 0, 0, 0, 1, 0}
	c.InitializeState(x)

	prev := opts.Adaptive.KInit
	reached := -1
	for i := 0; i < 3000; i++ {
		k := c.Compute(x, float64(i)*opts.Dt).Gain
		if k < prev {
			t.Fatalf("step %d: gain decreased %g -> %g", i, prev, k)
		}
		if k > opts.Adaptive.KMax {
			t.Fatalf("step %d: gain %g above ceiling", i, k)
		}
		if reached >= 0 && k != opts.Adaptive.KMax {
			t.Fatalf("step %d: gain left ceiling: %g", i, k)
		}
		if k == opts.Adaptive.KMax && reached < 0 {
			reached = i
		}
		prev = k
	}
	if reached < 0 {
		t.Fatal("gain never reached KMax")
	}
	if !c.(*Adaptive).GainSaturated() {
		t.Error("expected GainSaturated")
	}
}

func TestAdaptiveLeaksInsideDeadZone(t *testing.T) {
	opts := DefaultOptions()
	opts.Adaptive.LeakRate = 5
	c := build(t, VariantAdaptive, []float64{10, 8, 15, 12, 50}, opts, nil).(*Adaptive)
	far := dynamo.State{0, 0, 0, 0, 1, 0}
	c.InitializeState(far)
	for i := 0; i < 200; i++ {
		c.Compute(far, 0)
	}
	grown := c.Gain()
	if grown <= opts.Adaptive.KInit {
		t.Fatalf("expected gain growth, got %g", grown)
	}

	zero := make(dynamo.State, 6)
	for i := 0; i < 200; i++ {
		c.Compute(zero, 0)
	}
	if k := c.Gain(); k >= grown || k < opts.Adaptive.KInit {
		t.Errorf("expected leak toward KInit, got %g (was %g)", k, grown)
	}
}
