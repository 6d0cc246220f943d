package dynamo

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRange(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		minChunk int
		workers  int
	}{
		{"serial", 10, 16, 4},
		{"even split", 64, 4, 4},
		{"uneven split", 67, 4, 3},
		{"default workers", 100, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]int32, tt.n)
			err := ParallelFor(tt.n, tt.minChunk, tt.workers, func(start, end int) error {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, h := range hits {
				if h != 1 {
					t.Errorf("index %d visited %d times", i, h)
				}
			}
		})
	}
}

func TestParallelForPropagatesError(t *testing.T) {
	sentinel := errors.New("boom")
	err := ParallelFor(100, 10, 4, func(start, end int) error {
		if start == 0 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}

func TestConfigSteps(t *testing.T) {
	cfg := Config{Dt: 0.001, Duration: 5}
	if got := cfg.Steps(); got != 5000 {
		t.Errorf("expected 5000 steps, got %d", got)
	}
	cfg.Dt = 0
	if got := cfg.Steps(); got != 0 {
		t.Errorf("expected 0 steps for zero dt, got %d", got)
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
