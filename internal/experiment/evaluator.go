package experiment

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/smctune/internal/control"
	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/metrics"
	"github.com/san-kum/smctune/internal/sim"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// ErrCalibration reports a baseline run in which every particle diverged.
var ErrCalibration = errors.New("experiment: calibration run diverged for every initial state")

type EvaluatorConfig struct {
	Variant       control.Variant
	Options       control.Options
	Simulation    sim.Config
	Cost          metrics.CostConfig
	InitialStates []dynamo.State
	// InvalidPenalty is the fitness of a candidate that fails validation
	// or produces a non-finite cost. Every finite cost ranks strictly
	// below it.
	InvalidPenalty float64
}

// Stats counts what the evaluator has seen since construction.
type Stats struct {
	Batches    int         `json:"batches" yaml:"batches"`
	Candidates int         `json:"candidates" yaml:"candidates"`
	Invalid    int         `json:"invalid" yaml:"invalid"`
	NonFinite  int         `json:"non_finite" yaml:"non_finite"`
	Sim        sim.Summary `json:"simulation" yaml:"simulation"`
}

// Evaluator is the population fitness: each candidate gain vector is
// validated, instantiated, simulated from every initial state in one
// batch, and scored by the mean cost over those states.
type Evaluator struct {
	cfg    EvaluatorConfig
	reg    *control.Registry
	batch  *sim.Batch
	logger *zap.Logger

	mu    sync.Mutex
	cost  *metrics.Cost
	stats Stats
}

func NewEvaluator(reg *control.Registry, plant dynamo.System, cfg EvaluatorConfig, logger *zap.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := reg.Arity(cfg.Variant); !ok {
		return nil, fmt.Errorf("%w: %q", control.ErrUnknownVariant, cfg.Variant)
	}
	if len(cfg.InitialStates) == 0 {
		return nil, errors.New("experiment: evaluator needs at least one initial state")
	}
	if !(cfg.InvalidPenalty > 0) || math.IsInf(cfg.InvalidPenalty, 0) {
		return nil, fmt.Errorf("experiment: invalid penalty must be positive and finite, got %g", cfg.InvalidPenalty)
	}
	batch, err := sim.NewBatch(plant, cfg.Simulation)
	if err != nil {
		return nil, err
	}
	cost, err := metrics.NewCost(cfg.Cost)
	if err != nil {
		return nil, err
	}
	states := make([]dynamo.State, len(cfg.InitialStates))
	for i, x := range cfg.InitialStates {
		states[i] = x.Clone()
	}
	cfg.InitialStates = states

	return &Evaluator{
		cfg:    cfg,
		reg:    reg,
		batch:  batch,
		cost:   cost,
		logger: logger.Named("evaluator").With(zap.String("variant", string(cfg.Variant))),
	}, nil
}

func (e *Evaluator) Variant() control.Variant {
	return e.cfg.Variant
}

// Evaluate implements optim.Fitness.
func (e *Evaluator) Evaluate(positions [][]float64) []float64 {
	out := make([]float64, len(positions))
	valid := make([]int, 0, len(positions))
	cfgs := make([]control.Config, 0, len(positions))
	invalid := 0

	for i, gains := range positions {
		c, err := e.reg.Build(e.cfg.Variant, gains, e.cfg.Options)
		if err != nil {
			out[i] = e.cfg.InvalidPenalty
			invalid++
			continue
		}
		valid = append(valid, i)
		cfgs = append(cfgs, c)
	}

	e.mu.Lock()
	cost := e.cost
	e.mu.Unlock()

	nonFinite := 0
	var summary sim.Summary
	if len(cfgs) > 0 {
		tr, err := e.run(cfgs)
		if err != nil {
			e.logger.Error("batch simulation failed", zap.Error(err), zap.Int("candidates", len(cfgs)))
			for _, i := range valid {
				out[i] = e.cfg.InvalidPenalty
			}
		} else {
			summary = tr.Summary()
			costs := cost.Reduce(tr)
			nx := len(e.cfg.InitialStates)
			per := make([]float64, nx)
			for j, i := range valid {
				copy(per, costs[j*nx:(j+1)*nx])
				v := stat.Mean(per, nil)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					out[i] = e.cfg.InvalidPenalty
					nonFinite++
					continue
				}
				out[i] = e.rank(v)
			}
		}
	}

	e.mu.Lock()
	e.stats.Batches++
	e.stats.Candidates += len(positions)
	e.stats.Invalid += invalid
	e.stats.NonFinite += nonFinite
	e.stats.Sim.Add(summary)
	e.mu.Unlock()

	if invalid > 0 {
		e.logger.Debug("rejected candidates", zap.Int("invalid", invalid), zap.Int("population", len(positions)))
	}
	return out
}

// rank maps a finite mean cost to its fitness. Costs below half the
// invalid penalty pass through unchanged; larger ones are compressed
// monotonically into [P/2, P) so no valid candidate ever scores as badly
// as an invalid one.
func (e *Evaluator) rank(v float64) float64 {
	p := e.cfg.InvalidPenalty
	h := p / 2
	if v < h {
		return v
	}
	r := h + h*(v-h)/v
	if r >= p {
		r = math.Nextafter(p, 0)
	}
	return r
}

// run simulates every config from every initial state. Particle
// j*len(x0)+k is config j started from x0[k].
func (e *Evaluator) run(cfgs []control.Config) (*sim.Trajectory, error) {
	nx := len(e.cfg.InitialStates)
	expanded := make([]control.Config, 0, len(cfgs)*nx)
	x0 := make([]dynamo.State, 0, len(cfgs)*nx)
	for _, c := range cfgs {
		for _, x := range e.cfg.InitialStates {
			expanded = append(expanded, c)
			x0 = append(x0, x)
		}
	}
	return e.batch.RunConfigs(e.reg, expanded, x0)
}

// Calibrate simulates gains from every initial state and installs the
// mean raw cost terms as the normalization baseline.
func (e *Evaluator) Calibrate(gains []float64) (metrics.Baseline, error) {
	c, err := e.reg.Build(e.cfg.Variant, gains, e.cfg.Options)
	if err != nil {
		return metrics.Baseline{}, fmt.Errorf("calibration gains: %w", err)
	}
	tr, err := e.run([]control.Config{c})
	if err != nil {
		return metrics.Baseline{}, err
	}
	b, ok := metrics.BaselineFrom(tr, e.cfg.Cost.StateWeights)
	if !ok {
		return metrics.Baseline{}, ErrCalibration
	}

	e.mu.Lock()
	e.cost = e.cost.WithBaseline(b)
	degenerate := e.cost.Degenerate()
	e.mu.Unlock()

	e.logger.Info("calibrated cost baseline",
		zap.Float64("ise", b.ISE),
		zap.Float64("control", b.Control),
		zap.Float64("rate", b.Rate),
		zap.Float64("surface", b.Surface))
	if degenerate {
		e.logger.Warn("every baseline term is at or below the floor; costs no longer separate candidates",
			zap.Float64("min_denominator", e.cfg.Cost.MinDenominator))
	}
	return b, nil
}

// Degenerate reports whether the active baseline has collapsed to the floor.
func (e *Evaluator) Degenerate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cost.Degenerate()
}

func (e *Evaluator) Baseline() metrics.Baseline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cost.Config().Baseline
}

// Breakdowns scores gains from each initial state and returns the
// per-state cost breakdown together with the trajectories.
func (e *Evaluator) Breakdowns(gains []float64) ([]metrics.Breakdown, *sim.Trajectory, error) {
	c, err := e.reg.Build(e.cfg.Variant, gains, e.cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	tr, err := e.run([]control.Config{c})
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	cost := e.cost
	e.mu.Unlock()

	out := make([]metrics.Breakdown, tr.Particles)
	for p := range out {
		out[p] = cost.Evaluate(tr, p)
	}
	return out, tr, nil
}

func meanTotal(bd []metrics.Breakdown) float64 {
	totals := make([]float64, len(bd))
	for i, b := range bd {
		totals[i] = b.Total
	}
	return stat.Mean(totals, nil)
}

func (e *Evaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if e.stats.Sim.Reasons != nil {
		s.Sim.Reasons = make(map[string]int, len(e.stats.Sim.Reasons))
		for k, v := range e.stats.Sim.Reasons {
			s.Sim.Reasons[k] = v
		}
	}
	return s
}
