package control

import (
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/physics"
)

var _ = Describe("ModeSwitch", func() {
	var (
		opts HybridOptions
		dt   float64
	)

	BeforeEach(func() {
		opts = DefaultOptions().Hybrid
		opts.EnterThreshold = 1.0
		opts.ExitThreshold = 0.5
		opts.EnterDwell = 0.05
		opts.ExitDwell = 0.05
		dt = 0.001
	})

	It("starts in classical mode", func() {
		Expect(NewModeSwitch(opts, dt).Mode()).To(Equal(ModeClassical))
	})

	It("does not fire on a signal pinned to the threshold band edges", func() {
		m := NewModeSwitch(opts, dt)
		for i := 0; i < 10000; i++ {
			mag := opts.EnterThreshold
			if i%2 == 1 {
				mag = opts.ExitThreshold
			}
			_, fired := m.Step(Signal{Surface: mag})
			Expect(fired).To(BeFalse())
		}
		Expect(m.Transitions()).To(Equal(0))
	})

	It("requires the entry condition to be sustained for the dwell time", func() {
		m := NewModeSwitch(opts, dt)
		steps := int(math.Round(opts.EnterDwell / dt))
		for i := 0; i < steps-1; i++ {
			_, fired := m.Step(Signal{Surface: 2})
			Expect(fired).To(BeFalse())
		}
		mode, fired := m.Step(Signal{Surface: 2})
		Expect(fired).To(BeTrue())
		Expect(mode).To(Equal(ModeAdaptive))
	})

	It("counts control saturation as degraded performance", func() {
		m := NewModeSwitch(opts, dt)
		steps := int(math.Round(opts.EnterDwell / dt))
		for i := 0; i < steps-1; i++ {
			_, fired := m.Step(Signal{Surface: 0, ControlSaturated: true})
			Expect(fired).To(BeFalse())
		}
		mode, fired := m.Step(Signal{Surface: 0, ControlSaturated: true})
		Expect(fired).To(BeTrue())
		Expect(mode).To(Equal(ModeAdaptive))
	})

	It("stays adaptive while the gain is saturated", func() {
		m := NewModeSwitch(opts, dt)
		for i := 0; i < 100; i++ {
			m.Step(Signal{Surface: 2})
		}
		Expect(m.Mode()).To(Equal(ModeAdaptive))
		for i := 0; i < 1000; i++ {
			m.Step(Signal{Surface: 0, GainSaturated: true})
		}
		Expect(m.Mode()).To(Equal(ModeAdaptive))
		for i := 0; i < 100; i++ {
			m.Step(Signal{Surface: 0})
		}
		Expect(m.Mode()).To(Equal(ModeClassical))
	})

	DescribeTable("fires at most once per dwell window on oscillating signals",
		func(halfPeriod int, high, low float64) {
			m := NewModeSwitch(opts, dt)
			window := int(math.Round(math.Min(opts.EnterDwell, opts.ExitDwell) / dt))
			var fires []int
			for i := 0; i < 20000; i++ {
				mag := high
				if (i/halfPeriod)%2 == 1 {
					mag = low
				}
				if _, fired := m.Step(Signal{Surface: mag}); fired {
					fires = append(fires, i)
				}
			}
			for k := 1; k < len(fires); k++ {
				Expect(fires[k] - fires[k-1]).To(BeNumerically(">=", window))
			}
		},
		Entry("fast oscillation across the band", 7, 1.2, 0.3),
		Entry("oscillation near the dwell", 49, 1.2, 0.3),
		Entry("slow oscillation", 120, 1.2, 0.3),
		Entry("pinned to the band edges", 1, 1.0, 0.5),
	)
})

var _ = Describe("Hybrid", func() {
	var (
		reg   *Registry
		plant *physics.DoubleInvertedPendulum
	)

	BeforeEach(func() {
		reg = DefaultRegistry()
		plant = physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	})

	It("returns zero control at the upright equilibrium", func() {
		c, err := reg.BuildAndInstantiate(VariantHybrid, []float64{10, 8, 15, 12}, DefaultOptions(), plant)
		Expect(err).NotTo(HaveOccurred())
		zero := make(dynamo.State, physics.StateDim)
		c.InitializeState(zero)
		out := c.Compute(zero, 0)
		Expect(out.U).To(BeZero())
		Expect(out.Mode).To(Equal(ModeClassical))
	})

	It("hands over to the adaptive law under a large sustained surface", func() {
		c, err := reg.BuildAndInstantiate(VariantHybrid, []float64{10, 8, 15, 12}, DefaultOptions(), nil)
		Expect(err).NotTo(HaveOccurred())
		h := c.(*Hybrid)
		x := dynamo.State{0, 0.2, 0.1, 0, 0, 0}
		h.InitializeState(x)

		transitioned := false
		for i := 0; i < 200; i++ {
			out := h.Compute(x, float64(i)*0.001)
			if out.Transitioned {
				transitioned = true
				Expect(out.Mode).To(Equal(ModeClassical))
			}
		}
		Expect(transitioned).To(BeTrue())
		Expect(h.Mode()).To(Equal(ModeAdaptive))
		Expect(h.Compute(x, 0.2).Mode).To(Equal(ModeAdaptive))
		Expect(h.Compute(x, 0.201).Gain).To(BeNumerically(">", 0))
	})

	DescribeTable("treats classical control above the saturation ratio as degraded",
		func(ratio float64, expectHandover bool) {
			opts := DefaultOptions()
			opts.Hybrid.SaturationRatio = ratio
			opts.Hybrid.ClassicalGains = []float64{1, 8, 5, 20, 0.8 * opts.MaxForce, 0}
			c, err := reg.BuildAndInstantiate(VariantHybrid, []float64{1, 8, 5, 20}, opts, nil)
			Expect(err).NotTo(HaveOccurred())
			h := c.(*Hybrid)

			// |s| = 1 sits outside the boundary layer and well below the
			// entry threshold, so only the control magnitude can trigger.
			x := dynamo.State{0, 0.2, 0, 0, 0, 0}
			h.InitializeState(x)
			first := h.Compute(x, 0)
			Expect(first.Surface).To(BeNumerically("~", 1, 1e-12))
			Expect(first.Raw).To(BeNumerically("~", -0.8*opts.MaxForce, 1e-9))
			Expect(first.Saturated()).To(BeFalse())

			firstFire := -1
			for i := 1; i < 200 && firstFire < 0; i++ {
				if h.Compute(x, float64(i)*opts.Dt).Transitioned {
					firstFire = i
				}
			}
			if expectHandover {
				Expect(firstFire).To(Equal(int(math.Round(opts.Hybrid.EnterDwell/opts.Dt)) - 1))
				Expect(h.Mode()).To(Equal(ModeAdaptive))
			} else {
				Expect(firstFire).To(Equal(-1))
				Expect(h.Transitions()).To(BeZero())
			}
		},
		Entry("ratio below the control magnitude", 0.5, true),
		Entry("ratio above the control magnitude", 0.95, false),
	)

	It("falls back to the last safe control when a sub-law fails", func() {
		c, err := reg.BuildAndInstantiate(VariantHybrid, []float64{10, 8, 15, 12}, DefaultOptions(), nil)
		Expect(err).NotTo(HaveOccurred())
		h := c.(*Hybrid)
		x := dynamo.State{0, 0.001, 0, 0, 0, 0}
		h.InitializeState(x)

		safe := h.Compute(x, 0)
		Expect(safe.Emergency).To(BeFalse())

		h.classicalLaw().k = math.NaN()
		out := h.Compute(x, 0.001)
		Expect(out.Emergency).To(BeTrue())
		Expect(out.U).To(Equal(safe.U))
		Expect(h.Emergencies()).To(Equal(1))
	})

	It("never returns a non-finite control over randomized samples", func() {
		rng := rand.New(rand.NewSource(7))
		uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }
		special := []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e300, -1e300, 0}

		var c Controller
		for i := 0; i < 10000; i++ {
			if i%100 == 0 {
				opts := DefaultOptions()
				opts.UseEquivalent = rng.Intn(2) == 0
				opts.Method = []Method{MethodSign, MethodLinear, MethodTanh}[rng.Intn(3)]
				opts.BoundarySlope = uniform(0, 1)
				opts.Hybrid.ClassicalGains = []float64{1, 1, 1, 1, uniform(1, 200), uniform(0, 50)}
				opts.Hybrid.AdaptiveGains = []float64{1, 1, 1, 1, uniform(0.01, 100)}
				opts.Hybrid.ExitThreshold = uniform(0.01, 1)
				opts.Hybrid.EnterThreshold = opts.Hybrid.ExitThreshold + uniform(0.01, 2)
				opts.Hybrid.EnterDwell = uniform(0.001, 0.02)
				opts.Hybrid.ExitDwell = uniform(0.001, 0.02)
				gains := []float64{uniform(0.1, 50), uniform(0.1, 50), uniform(0.1, 50), uniform(0.1, 50)}

				var err error
				c, err = reg.BuildAndInstantiate(VariantHybrid, gains, opts, plant)
				Expect(err).NotTo(HaveOccurred())
				c.InitializeState(make(dynamo.State, physics.StateDim))
			}

			x := make(dynamo.State, physics.StateDim)
			for j := range x {
				x[j] = uniform(-math.Pi, math.Pi) * math.Pow(10, float64(rng.Intn(4)))
				if rng.Intn(50) == 0 {
					x[j] = special[rng.Intn(len(special))]
				}
			}
			out := c.Compute(x, float64(i)*0.001)
			Expect(math.IsNaN(out.U) || math.IsInf(out.U, 0)).To(BeFalse(), "sample %d: x=%v", i, x)
			Expect(math.Abs(out.U)).To(BeNumerically("<=", c.Config().Options().MaxForce))
		}
	})
})
