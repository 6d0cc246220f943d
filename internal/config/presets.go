package config

import (
	"sort"

	"github.com/san-kum/smctune/internal/control"
)

// Preset is the starting gain vector and PSO search box of one variant.
// The surface gains weight the upper link above the lower one, which keeps
// the motion on s = 0 stable for the default plant.
type Preset struct {
	Gains []float64 `yaml:"gains"`
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

var Presets = map[control.Variant]Preset{
	control.VariantClassical: {
		Gains: []float64{1, 8, 5, 20, 50, 2},
		Lower: []float64{0.1, 0.1, 0.1, 0.1, 1, 0},
		Upper: []float64{50, 50, 50, 50, 200, 50},
	},
	control.VariantSuperTwisting: {
		Gains: []float64{80, 20, 1, 8, 5, 20},
		Lower: []float64{2, 1, 0.1, 0.1, 0.1, 0.1},
		Upper: []float64{100, 80, 50, 50, 50, 50},
	},
	control.VariantAdaptive: {
		Gains: []float64{1, 8, 5, 20, 4},
		Lower: []float64{0.1, 0.1, 0.1, 0.1, 0.01},
		Upper: []float64{50, 50, 50, 50, 10},
	},
	control.VariantHybrid: {
		Gains: []float64{1, 8, 5, 20},
		Lower: []float64{0.1, 0.1, 0.1, 0.1},
		Upper: []float64{50, 50, 50, 50},
	},
}

// Scenarios are named sets of initial states [x, θ1, θ2, ẋ, θ̇1, θ̇2]
// that a candidate is scored against.
var Scenarios = map[string][][]float64{
	"default": {
		{0, 0.1, 0.05, 0, 0, 0},
		{0, -0.08, 0.12, 0, 0, 0},
	},
	"small": {
		{0, 0.05, 0.05, 0, 0, 0},
	},
	"large": {
		{0, 0.3, -0.2, 0, 0, 0},
		{0, -0.25, 0.3, 0, 0, 0},
	},
	"kick": {
		{0, 0, 0, 0.5, 1.0, -0.5},
		{0, 0.1, 0, -0.5, 0, 1.0},
	},
}

func GetPreset(v control.Variant) (Preset, bool) {
	p, ok := Presets[v]
	if !ok {
		return Preset{}, false
	}
	return Preset{
		Gains: append([]float64(nil), p.Gains...),
		Lower: append([]float64(nil), p.Lower...),
		Upper: append([]float64(nil), p.Upper...),
	}, true
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for v := range Presets {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return names
}

func GetScenario(name string) [][]float64 {
	states, ok := Scenarios[name]
	if !ok {
		return nil
	}
	return cloneStates(states)
}

func ListScenarios() []string {
	names := make([]string, 0, len(Scenarios))
	for name := range Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneStates(states [][]float64) [][]float64 {
	out := make([][]float64, len(states))
	for i, x := range states {
		out[i] = append([]float64(nil), x...)
	}
	return out
}
