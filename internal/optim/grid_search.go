package optim

import (
	"context"
	"fmt"
	"math"
)

// GridSearch scores every point of a regular lattice over Bounds. Points
// are evaluated in batches through the same Fitness a swarm uses.
type GridSearch struct {
	bounds    Bounds
	levels    []int
	batchSize int
}

// NewGridSearch places levels[i] evenly spaced values on dimension i,
// endpoints included. A single level uses the midpoint.
func NewGridSearch(bounds Bounds, levels []int, batchSize int) (*GridSearch, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if len(levels) != bounds.Dim() {
		return nil, fmt.Errorf("grid: %d level counts for %d dimensions", len(levels), bounds.Dim())
	}
	for i, l := range levels {
		if l < 1 {
			return nil, fmt.Errorf("grid: dimension %d needs at least one level", i)
		}
	}
	if batchSize < 1 {
		batchSize = 64
	}
	return &GridSearch{bounds: bounds, levels: append([]int(nil), levels...), batchSize: batchSize}, nil
}

// Size is the number of lattice points.
func (g *GridSearch) Size() int {
	n := 1
	for _, l := range g.levels {
		n *= l
	}
	return n
}

func (g *GridSearch) values(dim int) []float64 {
	l := g.levels[dim]
	lo, hi := g.bounds.Lower[dim], g.bounds.Upper[dim]
	if l == 1 {
		return []float64{(lo + hi) / 2}
	}
	out := make([]float64, l)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(l-1)
	}
	return out
}

// Points enumerates the lattice in lexicographic order.
func (g *GridSearch) Points() [][]float64 {
	axes := make([][]float64, len(g.levels))
	for d := range axes {
		axes[d] = g.values(d)
	}
	points := make([][]float64, 0, g.Size())
	g.searchRecursive(0, make([]float64, len(axes)), axes, &points)
	return points
}

func (g *GridSearch) searchRecursive(depth int, current []float64, axes [][]float64, points *[][]float64) {
	if depth == len(axes) {
		*points = append(*points, append([]float64(nil), current...))
		return
	}
	for _, v := range axes[depth] {
		current[depth] = v
		g.searchRecursive(depth+1, current, axes, points)
	}
}

// Search evaluates every lattice point. Each batch is one Fitness call and
// the context is checked between batches.
func (g *GridSearch) Search(ctx context.Context, f Fitness, observers ...Observer) (*Result, error) {
	points := g.Points()
	result := &Result{Stop: StopMaxIterations, BestFitness: math.Inf(1)}
	var history []IterationRecord

	for start, it := 0, 0; start < len(points); start, it = start+g.batchSize, it+1 {
		if err := ctx.Err(); err != nil {
			result.Stop = StopCanceled
			result.History = history
			return result, err
		}
		end := min(start+g.batchSize, len(points))
		batch := points[start:end]
		fitness := f.Evaluate(batch)
		if len(fitness) != len(batch) {
			return result, fmt.Errorf("grid: fitness returned %d values for %d points", len(fitness), len(batch))
		}

		var sum float64
		finite := 0
		for i, v := range fitness {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sum += v
			finite++
			if v < result.BestFitness {
				result.BestFitness = v
				result.BestPosition = append([]float64(nil), batch[i]...)
			}
		}
		mean := math.Inf(1)
		if finite > 0 {
			mean = sum / float64(finite)
		}
		rec := IterationRecord{Iteration: it, Best: result.BestFitness, Mean: mean}
		history = append(history, rec)
		for _, o := range observers {
			o.OnIteration(rec)
		}
		result.Iterations = it + 1
		result.Evaluations += len(batch)
	}
	result.History = history
	return result, nil
}
