package optim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

// Fitness scores a whole population. It is called once per iteration with
// fresh copies of the positions and must return one value per position;
// lower is better.
type Fitness interface {
	Evaluate(positions [][]float64) []float64
}

type FitnessFunc func(positions [][]float64) []float64

func (f FitnessFunc) Evaluate(positions [][]float64) []float64 {
	return f(positions)
}

// Observer is notified after every iteration.
type Observer interface {
	OnIteration(rec IterationRecord)
}

type ObserverFunc func(rec IterationRecord)

func (f ObserverFunc) OnIteration(rec IterationRecord) {
	f(rec)
}

type StopReason string

const (
	StopMaxIterations StopReason = "max_iterations"
	StopStagnation    StopReason = "stagnation"
	StopCanceled      StopReason = "canceled"
)

type PSOConfig struct {
	Population    int `yaml:"population" mapstructure:"population"`
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	Inertia   Schedule `yaml:"inertia" mapstructure:"inertia"`
	Cognitive Schedule `yaml:"cognitive" mapstructure:"cognitive"`
	Social    Schedule `yaml:"social" mapstructure:"social"`

	// VelocityClamp limits |v| per dimension to this fraction of the span;
	// 0 disables clamping.
	VelocityClamp float64 `yaml:"velocity_clamp" mapstructure:"velocity_clamp"`

	StagnationWindow    int     `yaml:"stagnation_window" mapstructure:"stagnation_window"`
	StagnationTolerance float64 `yaml:"stagnation_tolerance" mapstructure:"stagnation_tolerance"`
	EarlyStop           bool    `yaml:"early_stop" mapstructure:"early_stop"`

	HistorySize int   `yaml:"history_size" mapstructure:"history_size"`
	Seed        int64 `yaml:"seed" mapstructure:"seed"`
}

func DefaultPSOConfig() PSOConfig {
	return PSOConfig{
		Population:          30,
		MaxIterations:       100,
		Inertia:             Constant(0.7298),
		Cognitive:           Constant(1.49618),
		Social:              Constant(1.49618),
		VelocityClamp:       0.2,
		StagnationWindow:    20,
		StagnationTolerance: 1e-6,
		HistorySize:         1000,
		Seed:                42,
	}
}

func (c PSOConfig) Validate() error {
	switch {
	case c.Population < 1:
		return fmt.Errorf("pso: population must be positive, got %d", c.Population)
	case c.MaxIterations < 1:
		return fmt.Errorf("pso: max_iterations must be positive, got %d", c.MaxIterations)
	case c.VelocityClamp < 0:
		return fmt.Errorf("pso: velocity_clamp must be non-negative, got %g", c.VelocityClamp)
	case c.StagnationWindow < 0 || c.StagnationTolerance < 0:
		return errors.New("pso: stagnation window and tolerance must be non-negative")
	case c.HistorySize < 1:
		return fmt.Errorf("pso: history_size must be positive, got %d", c.HistorySize)
	case c.StagnationWindow >= c.HistorySize:
		return fmt.Errorf("pso: stagnation_window %d does not fit history_size %d", c.StagnationWindow, c.HistorySize)
	}
	return nil
}

// Result is the outcome of one optimization run.
type Result struct {
	BestPosition []float64
	BestFitness  float64
	Iterations   int
	Evaluations  int
	Stop         StopReason
	Stagnated    bool
	History      []IterationRecord
}

type PSO struct {
	cfg       PSOConfig
	bounds    Bounds
	observers []Observer
}

func NewPSO(cfg PSOConfig, bounds Bounds) (*PSO, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &PSO{cfg: cfg, bounds: bounds}, nil
}

func (p *PSO) AddObserver(o Observer) { p.observers = append(p.observers, o) }

// Optimize runs the swarm until the iteration budget, a stagnation stop,
// or cancellation. Cancellation is honoured between iterations only; the
// result so far is returned together with ctx.Err().
func (p *PSO) Optimize(ctx context.Context, f Fitness) (*Result, error) {
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	swarm := newSwarm(p.cfg.Population, p.bounds, p.cfg.VelocityClamp, rng)
	history := NewHistory(p.cfg.HistorySize)
	result := &Result{Stop: StopMaxIterations}

	finish := func() *Result {
		result.BestPosition = append([]float64(nil), swarm.GlobalBest...)
		result.BestFitness = swarm.GlobalBestFitness
		result.History = history.Records()
		return result
	}

	total := p.cfg.MaxIterations
	for it := 0; it < total; it++ {
		if err := ctx.Err(); err != nil {
			result.Stop = StopCanceled
			return finish(), err
		}

		fitness := f.Evaluate(swarm.Positions())
		if len(fitness) != len(swarm.Particles) {
			return finish(), fmt.Errorf("pso: fitness returned %d values for %d particles", len(fitness), len(swarm.Particles))
		}
		result.Evaluations += len(fitness)
		swarm.update(fitness)
		result.Iterations = it + 1

		rec := IterationRecord{
			Iteration: it,
			Best:      swarm.GlobalBestFitness,
			Mean:      swarm.MeanFitness(),
			Diversity: swarm.Diversity(),
		}
		history.Add(rec)
		for _, o := range p.observers {
			o.OnIteration(rec)
		}

		if history.Stagnant(p.cfg.StagnationWindow, p.cfg.StagnationTolerance) {
			result.Stagnated = true
			if p.cfg.EarlyStop {
				result.Stop = StopStagnation
				break
			}
		}

		swarm.move(
			p.cfg.Inertia.At(it, total),
			p.cfg.Cognitive.At(it, total),
			p.cfg.Social.At(it, total),
			rng,
		)
	}
	return finish(), nil
}
