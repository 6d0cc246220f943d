package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/smctune/internal/analysis"
	"github.com/san-kum/smctune/internal/config"
	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/metrics"
	"github.com/san-kum/smctune/internal/optim"
	"github.com/san-kum/smctune/internal/sim"
	"go.uber.org/zap"
)

// ChatterCutoff is the frequency, in Hz, above which control power counts
// as chattering.
const ChatterCutoff = 20.0

// DefaultPlant is the plant every command drives unless told otherwise.
const DefaultPlant = "dip"

// Experiment wires one configuration to the plant, the controller
// registry, and the optimizers.
type Experiment struct {
	cfg      *config.Config
	plants   *Registry
	controls *control.Registry
	logger   *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Experiment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{
		cfg:      cfg,
		plants:   NewRegistry(),
		controls: control.DefaultRegistry(),
		logger:   logger,
	}
}

func (e *Experiment) Config() *config.Config {
	return e.cfg
}

func (e *Experiment) Controls() *control.Registry {
	return e.controls
}

func (e *Experiment) Plant() (dynamo.System, error) {
	return e.plants.GetPlant(DefaultPlant, e.cfg.Plant)
}

// NewEvaluator builds the fitness for the configured variant.
func (e *Experiment) NewEvaluator() (*Evaluator, error) {
	variant, err := e.cfg.Variant()
	if err != nil {
		return nil, err
	}
	plant, err := e.Plant()
	if err != nil {
		return nil, err
	}
	return NewEvaluator(e.controls, plant, EvaluatorConfig{
		Variant:        variant,
		Options:        e.cfg.ControllerOptions(),
		Simulation:     e.cfg.Simulation,
		Cost:           e.cfg.Cost,
		InitialStates:  e.cfg.InitialStates(),
		InvalidPenalty: e.cfg.Tuning.InvalidPenalty,
	}, e.logger)
}

// TuneReport is the outcome of one tuning run.
type TuneReport struct {
	Variant control.Variant
	Method  string
	Gains   []float64

	// Cost is the mean total over the initial states; Fitness is the value
	// the optimizer ranked, which differs only for costs compressed below
	// the invalid penalty.
	Cost       float64
	Fitness    float64
	Result     *optim.Result
	Baseline   metrics.Baseline
	Degenerate bool
	Breakdowns []metrics.Breakdown
	Stats      Stats
	Controller control.Config
}

// Tune searches the configured variant's gain space. On cancellation the
// best gains found so far are reported together with the context error.
func (e *Experiment) Tune(ctx context.Context, observers ...optim.Observer) (*TuneReport, error) {
	variant, err := e.cfg.Variant()
	if err != nil {
		return nil, err
	}
	bounds, err := e.cfg.Bounds()
	if err != nil {
		return nil, err
	}
	ev, err := e.NewEvaluator()
	if err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("variant", string(variant)), zap.String("method", e.cfg.Tuning.Method))

	if e.cfg.Tuning.Calibrate {
		gains, err := e.cfg.Gains()
		if err != nil {
			return nil, err
		}
		if _, err := ev.Calibrate(gains); err != nil {
			log.Warn("calibration failed, keeping configured baseline", zap.Error(err))
		}
	}

	progress := optim.ObserverFunc(func(rec optim.IterationRecord) {
		log.Debug("iteration",
			zap.Int("iteration", rec.Iteration),
			zap.Float64("best", rec.Best),
			zap.Float64("mean", rec.Mean),
			zap.Float64("diversity", rec.Diversity))
	})

	var result *optim.Result
	var runErr error
	switch e.cfg.Tuning.Method {
	case config.MethodGrid:
		levels := make([]int, bounds.Dim())
		for i := range levels {
			levels[i] = e.cfg.Tuning.GridLevels
		}
		grid, err := optim.NewGridSearch(bounds, levels, e.cfg.PSO.Population)
		if err != nil {
			return nil, err
		}
		log.Info("starting grid search", zap.Int("points", grid.Size()))
		result, runErr = grid.Search(ctx, ev, append([]optim.Observer{progress}, observers...)...)
	default:
		pso, err := optim.NewPSO(e.cfg.PSO, bounds)
		if err != nil {
			return nil, err
		}
		pso.AddObserver(progress)
		for _, o := range observers {
			pso.AddObserver(o)
		}
		log.Info("starting swarm",
			zap.Int("population", e.cfg.PSO.Population),
			zap.Int("max_iterations", e.cfg.PSO.MaxIterations))
		result, runErr = pso.Optimize(ctx, ev)
	}
	if result == nil {
		return nil, runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return nil, runErr
	}

	report := &TuneReport{
		Variant:    variant,
		Method:     e.cfg.Tuning.Method,
		Result:     result,
		Cost:       result.BestFitness,
		Fitness:    result.BestFitness,
		Baseline:   ev.Baseline(),
		Degenerate: ev.Degenerate(),
		Stats:      ev.Stats(),
	}
	if len(result.BestPosition) == 0 {
		return report, errors.Join(runErr, errors.New("experiment: no candidate was evaluated"))
	}
	report.Gains = append([]float64(nil), result.BestPosition...)

	if c, err := e.controls.Build(variant, report.Gains, e.cfg.ControllerOptions()); err == nil {
		report.Controller = c
		if bd, _, err := ev.Breakdowns(report.Gains); err == nil {
			report.Breakdowns = bd
			report.Cost = meanTotal(bd)
		}
	} else {
		log.Warn("best candidate does not validate", zap.Error(err))
	}

	log.Info("tuning finished",
		zap.Float64("cost", report.Cost),
		zap.Float64s("gains", report.Gains),
		zap.Int("iterations", result.Iterations),
		zap.String("stop", string(result.Stop)),
		zap.Int("invalid", report.Stats.Invalid),
		zap.Int("diverged", report.Stats.Sim.Diverged))
	return report, runErr
}

// SimulationReport is one reference trajectory with its scores.
type SimulationReport struct {
	Variant    control.Variant
	Gains      []float64
	Result     *sim.Result
	Breakdown  metrics.Breakdown
	Chattering analysis.Chattering
}

// Simulate runs the reference simulator once from x0 with the given gains,
// or the configured gains when gains is empty.
func (e *Experiment) Simulate(ctx context.Context, gains []float64, x0 dynamo.State) (*SimulationReport, error) {
	variant, err := e.cfg.Variant()
	if err != nil {
		return nil, err
	}
	if len(gains) == 0 {
		if gains, err = e.cfg.Gains(); err != nil {
			return nil, err
		}
	}
	plant, err := e.Plant()
	if err != nil {
		return nil, err
	}
	ctrl, err := e.controls.BuildAndInstantiate(variant, gains, e.cfg.ControllerOptions(), plant)
	if err != nil {
		return nil, err
	}
	s, err := sim.NewFromConfig(plant, ctrl, e.cfg.Simulation)
	if err != nil {
		return nil, err
	}
	for _, m := range DefaultMetrics(plant, e.cfg.Simulation.Dt) {
		s.AddMetric(m)
	}

	res, err := s.Run(ctx, x0, e.cfg.Simulation)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", variant, err)
	}
	cost, err := metrics.NewCost(e.cfg.Cost)
	if err != nil {
		return nil, err
	}

	return &SimulationReport{
		Variant:    variant,
		Gains:      append([]float64(nil), gains...),
		Result:     res,
		Breakdown:  cost.Evaluate(res.Trajectory(e.cfg.Simulation.Dt), 0),
		Chattering: analysis.ChatteringIndex(res.Controls, e.cfg.Simulation.Dt, ChatterCutoff),
	}, nil
}
