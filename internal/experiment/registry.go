package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/metrics"
	"github.com/san-kum/smctune/internal/physics"
)

// Registry maps plant names to constructors.
type Registry struct {
	plants map[string]func(physics.Params) dynamo.System
}

func NewRegistry() *Registry {
	r := &Registry{
		plants: make(map[string]func(physics.Params) dynamo.System),
	}

	dip := func(p physics.Params) dynamo.System { return physics.NewDoubleInvertedPendulum(p) }
	r.plants["dip"] = dip
	r.plants["double_inverted_pendulum"] = dip

	return r
}

func (r *Registry) Register(name string, fn func(physics.Params) dynamo.System) {
	r.plants[name] = fn
}

func (r *Registry) GetPlant(name string, p physics.Params) (dynamo.System, error) {
	fn, ok := r.plants[name]
	if !ok {
		return nil, fmt.Errorf("unknown plant: %s", name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return fn(p), nil
}

func (r *Registry) ListPlants() []string {
	names := make([]string, 0, len(r.plants))
	for name := range r.plants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// settleThreshold is the link angle, in radians, inside which the
// pendulum counts as settled.
const settleThreshold = 0.01

// DefaultMetrics are the streaming metrics reported by a single run.
func DefaultMetrics(plant dynamo.System, dt float64) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewStability(settleThreshold, physics.IdxTheta1, physics.IdxTheta2),
		metrics.NewSettlingTime(settleThreshold, physics.IdxTheta1, physics.IdxTheta2),
		metrics.NewControlEffort(dt),
		metrics.NewPeakControl(),
		metrics.NewEnergyDrift(plant),
	}
}
