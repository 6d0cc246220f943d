package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/smctune/internal/config"
	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/optim"
	"github.com/san-kum/smctune/internal/physics"
	"github.com/san-kum/smctune/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// testConfig is a short, bounds-free run so that every candidate survives
// to the final step.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulation.Duration = 0.2
	cfg.Simulation.Bounds.MaxAngle = 0
	cfg.Simulation.Bounds.MaxPosition = 0
	cfg.Simulation.Bounds.MaxEnergy = 0
	cfg.Tuning.InitialStates = [][]float64{{0, 0.01, 0, 0, 0, 0}}
	cfg.Tuning.Calibrate = false
	cfg.PSO.Population = 6
	cfg.PSO.MaxIterations = 3
	return cfg
}

func newTestEvaluator(t *testing.T, cfg *config.Config, logger *zap.Logger) *Evaluator {
	t.Helper()
	ev, err := New(cfg, logger).NewEvaluator()
	require.NoError(t, err)
	return ev
}

func presetGains(t *testing.T, v control.Variant) []float64 {
	t.Helper()
	p, ok := config.GetPreset(v)
	require.True(t, ok)
	return p.Gains
}

func TestEvaluatorPenalizesInvalidCandidates(t *testing.T) {
	cfg := testConfig()
	ev := newTestEvaluator(t, cfg, nil)

	good := presetGains(t, control.VariantClassical)
	negative := []float64{-1, 8, 15, 12, 50, 5}
	nan := []float64{10, math.NaN(), 15, 12, 50, 5}

	out := ev.Evaluate([][]float64{good, negative, nan})
	require.Len(t, out, 3)
	assert.Equal(t, cfg.Tuning.InvalidPenalty, out[1])
	assert.Equal(t, cfg.Tuning.InvalidPenalty, out[2])
	assert.False(t, math.IsNaN(out[0]) || math.IsInf(out[0], 0))
	assert.Less(t, out[0], cfg.Tuning.InvalidPenalty)

	st := ev.Stats()
	assert.Equal(t, 1, st.Batches)
	assert.Equal(t, 3, st.Candidates)
	assert.Equal(t, 2, st.Invalid)
	assert.Equal(t, 1, st.Sim.Particles)
	assert.Zero(t, st.Sim.Diverged)
}

func TestEvaluatorSuperTwistingStructuralRejection(t *testing.T) {
	cfg := testConfig()
	cfg.Controller.Variant = "sta"
	ev := newTestEvaluator(t, cfg, nil)

	out := ev.Evaluate([][]float64{{5, 10, 20, 12, 8, 6}, {25, 15, 20, 12, 8, 6}})
	assert.Equal(t, cfg.Tuning.InvalidPenalty, out[0])
	assert.Less(t, out[1], cfg.Tuning.InvalidPenalty)
}

func TestEvaluatorPermutationInvariant(t *testing.T) {
	ev := newTestEvaluator(t, testConfig(), nil)

	a := []float64{10, 8, 15, 12, 50, 5}
	b := []float64{20, 4, 10, 6, 80, 2}
	forward := ev.Evaluate([][]float64{a, b})
	reverse := ev.Evaluate([][]float64{b, a})

	assert.InDelta(t, forward[0], reverse[1], 1e-12)
	assert.InDelta(t, forward[1], reverse[0], 1e-12)
}

func TestEvaluatorAveragesInitialStates(t *testing.T) {
	cfg := testConfig()
	cfg.Tuning.InitialStates = [][]float64{
		{0, 0.01, 0, 0, 0, 0},
		{0, -0.02, 0.01, 0, 0, 0},
	}
	cfg.Controller.Variant = "adaptive"
	ev := newTestEvaluator(t, cfg, nil)

	gains := presetGains(t, control.VariantAdaptive)
	out := ev.Evaluate([][]float64{gains})
	require.Equal(t, 0, ev.Stats().Invalid)
	bd, tr, err := ev.Breakdowns(gains)
	require.NoError(t, err)
	require.Len(t, bd, 2)
	assert.Equal(t, 2, tr.Particles)
	assert.InDelta(t, ev.rank((bd[0].Total+bd[1].Total)/2), out[0], 1e-9)
}

func TestEvaluatorRanksValidBelowPenalty(t *testing.T) {
	cfg := testConfig()
	cfg.Tuning.InvalidPenalty = 1e-12
	ev := newTestEvaluator(t, cfg, nil)

	soft := presetGains(t, control.VariantClassical)
	stiff := []float64{50, 50, 50, 50, 200, 50}
	invalid := []float64{-1, 8, 15, 12, 50, 5}
	out := ev.Evaluate([][]float64{soft, stiff, invalid})

	assert.Equal(t, cfg.Tuning.InvalidPenalty, out[2])
	assert.Less(t, out[0], out[2])
	assert.Less(t, out[1], out[2])

	softBd, _, err := ev.Breakdowns(soft)
	require.NoError(t, err)
	stiffBd, _, err := ev.Breakdowns(stiff)
	require.NoError(t, err)
	require.Greater(t, softBd[0].Total, cfg.Tuning.InvalidPenalty)
	require.Greater(t, stiffBd[0].Total, cfg.Tuning.InvalidPenalty)
	switch {
	case softBd[0].Total < stiffBd[0].Total:
		assert.Less(t, out[0], out[1])
	case softBd[0].Total > stiffBd[0].Total:
		assert.Greater(t, out[0], out[1])
	}
}

func TestRankIsMonotoneBelowPenalty(t *testing.T) {
	ev := newTestEvaluator(t, testConfig(), nil)
	p := ev.cfg.InvalidPenalty

	prev := -1.0
	for _, v := range []float64{0, 1, p / 4, p / 2, p, 10 * p, 4.4e8, 1e12, 1e300} {
		r := ev.rank(v)
		assert.Less(t, r, p, "cost %g", v)
		assert.Greater(t, r, prev, "cost %g", v)
		prev = r
	}
	assert.Equal(t, 1.0, ev.rank(1))
	assert.Equal(t, p/4, ev.rank(p/4))
}

func TestClassicalPresetSurvivesDefaultScenario(t *testing.T) {
	cfg := config.DefaultConfig()
	exp := New(cfg, nil)
	plant, err := exp.Plant()
	require.NoError(t, err)
	batch, err := sim.NewBatch(plant, cfg.Simulation)
	require.NoError(t, err)

	c, err := exp.Controls().Build(control.VariantClassical, presetGains(t, control.VariantClassical), cfg.ControllerOptions())
	require.NoError(t, err)
	x0 := cfg.InitialStates()
	cfgs := make([]control.Config, len(x0))
	for i := range cfgs {
		cfgs[i] = c
	}
	tr, err := batch.RunConfigs(exp.Controls(), cfgs, x0)
	require.NoError(t, err)
	for p := 0; p < tr.Particles; p++ {
		assert.Equal(t, tr.Steps, tr.ValidUntil[p], "initial state %v froze: %s", x0[p], tr.Reasons[p])
	}

	ev, err := exp.NewEvaluator()
	require.NoError(t, err)
	_, err = ev.Calibrate(presetGains(t, control.VariantClassical))
	assert.NoError(t, err)
}

func TestEvaluatorCalibrate(t *testing.T) {
	ev := newTestEvaluator(t, testConfig(), nil)
	gains := presetGains(t, control.VariantClassical)

	b, err := ev.Calibrate(gains)
	require.NoError(t, err)
	assert.Greater(t, b.ISE, 0.0)
	assert.Greater(t, b.Control, 0.0)
	assert.False(t, ev.Degenerate())
	assert.Equal(t, b, ev.Baseline())

	// Normalized by its own integrals the calibration candidate scores
	// each weight at most once.
	w := testConfig().Cost.Weights
	out := ev.Evaluate([][]float64{gains})
	assert.LessOrEqual(t, out[0], w.State+w.Control+w.Rate+w.Surface+1e-9)
	assert.GreaterOrEqual(t, out[0], w.State+w.Control-1e-9)
}

func TestEvaluatorDegenerateBaselineWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig()
	cfg.Tuning.InitialStates = [][]float64{make([]float64, physics.StateDim)}
	ev := newTestEvaluator(t, cfg, zap.New(core))

	_, err := ev.Calibrate(presetGains(t, control.VariantClassical))
	require.NoError(t, err)
	assert.True(t, ev.Degenerate())
	assert.Equal(t, 1, logs.Len())
}

func TestEvaluatorRejectsBadConfig(t *testing.T) {
	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
	cfg := testConfig()
	base := EvaluatorConfig{
		Variant:        control.VariantClassical,
		Options:        cfg.ControllerOptions(),
		Simulation:     cfg.Simulation,
		Cost:           cfg.Cost,
		InitialStates:  cfg.InitialStates(),
		InvalidPenalty: 1e6,
	}

	_, err := NewEvaluator(control.DefaultRegistry(), plant, base, nil)
	require.NoError(t, err)

	unknown := base
	unknown.Variant = "pid"
	_, err = NewEvaluator(control.DefaultRegistry(), plant, unknown, nil)
	assert.ErrorIs(t, err, control.ErrUnknownVariant)

	empty := base
	empty.InitialStates = nil
	_, err = NewEvaluator(control.DefaultRegistry(), plant, empty, nil)
	assert.Error(t, err)

	penalty := base
	penalty.InvalidPenalty = math.Inf(1)
	_, err = NewEvaluator(control.DefaultRegistry(), plant, penalty, nil)
	assert.Error(t, err)
}

func TestTuneSwarm(t *testing.T) {
	cfg := testConfig()
	var records []optim.IterationRecord
	rec := optim.ObserverFunc(func(r optim.IterationRecord) { records = append(records, r) })

	report, err := New(cfg, nil).Tune(context.Background(), rec)
	require.NoError(t, err)

	bounds, _ := cfg.Bounds()
	assert.Equal(t, control.VariantClassical, report.Variant)
	assert.Len(t, report.Gains, 6)
	assert.True(t, bounds.Contains(report.Gains))
	assert.Equal(t, 3, report.Result.Iterations)
	assert.Len(t, records, 3)
	assert.Equal(t, 18, report.Stats.Candidates)
	assert.False(t, math.IsInf(report.Cost, 0))
	assert.Equal(t, control.VariantClassical, report.Controller.Variant())
	assert.Len(t, report.Breakdowns, 1)
	assert.InDelta(t, report.Cost, report.Breakdowns[0].Total, 1e-9)
	assert.Less(t, report.Fitness, cfg.Tuning.InvalidPenalty)
}

func TestTuneCalibrates(t *testing.T) {
	cfg := testConfig()
	cfg.Tuning.Calibrate = true
	cfg.PSO.MaxIterations = 1

	report, err := New(cfg, nil).Tune(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Cost.Baseline, report.Baseline)
}

func TestTuneGrid(t *testing.T) {
	cfg := testConfig()
	cfg.Controller.Variant = "hybrid"
	cfg.Tuning.Method = config.MethodGrid
	cfg.Tuning.GridLevels = 2
	cfg.PSO.Population = 8

	report, err := New(cfg, nil).Tune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, report.Result.Evaluations)
	assert.Equal(t, 2, report.Result.Iterations)
	assert.Len(t, report.Gains, 4)
}

func TestTuneCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(testConfig(), nil).Tune(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	if report != nil {
		assert.Equal(t, optim.StopCanceled, report.Result.Stop)
	}
}

func TestSimulate(t *testing.T) {
	cfg := testConfig()
	x0 := dynamo.State{0, 0.01, 0, 0, 0, 0}

	report, err := New(cfg, nil).Simulate(context.Background(), nil, x0)
	require.NoError(t, err)

	assert.Equal(t, presetGains(t, control.VariantClassical), report.Gains)
	assert.Equal(t, cfg.Simulation.Steps(), report.Result.Steps)
	assert.Equal(t, report.Result.Steps, report.Result.ValidUntil)
	for _, name := range []string{"stability", "settling_time", "control_effort", "peak_control", "energy_drift"} {
		assert.Contains(t, report.Result.Metrics, name)
	}
	assert.InDelta(t, report.Result.Metrics["control_effort"], report.Breakdown.Raw.Control, 1e-9)
	assert.GreaterOrEqual(t, report.Chattering.HighFreqRatio, 0.0)
	assert.LessOrEqual(t, report.Chattering.HighFreqRatio, 1.0)
}

func TestSimulateRejectsInvalidGains(t *testing.T) {
	_, err := New(testConfig(), nil).Simulate(context.Background(), []float64{1, 2}, dynamo.State{0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"dip", "double_inverted_pendulum"}, r.ListPlants())

	plant, err := r.GetPlant("dip", physics.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, physics.StateDim, plant.StateDim())

	_, err = r.GetPlant("pendulum", physics.DefaultParams())
	assert.Error(t, err)

	bad := physics.DefaultParams()
	bad.Mass2 = 0
	_, err = r.GetPlant("dip", bad)
	assert.ErrorIs(t, err, physics.ErrInvalidParams)
}
