package analysis

import (
	"math"
	"testing"
)

func sine(n int, dt, hz, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*hz*float64(i)*dt)
	}
	return out
}

func TestPowerSpectrumPeak(t *testing.T) {
	dt := 0.001
	amp, freq := PowerSpectrum(sine(1000, dt, 50, 1), dt)
	if len(amp) != 501 {
		t.Fatalf("expected 501 bins, got %d", len(amp))
	}
	best := 0
	for i := range amp {
		if amp[i] > amp[best] {
			best = i
		}
	}
	if math.Abs(freq[best]-50) > 1e-9 {
		t.Errorf("expected peak at 50 Hz, got %g", freq[best])
	}
}

func TestChatteringIndexSeparatesSignals(t *testing.T) {
	dt := 0.001
	smooth := ChatteringIndex(sine(2000, dt, 1, 10), dt, 10)
	if smooth.HighFreqRatio > 0.05 {
		t.Errorf("expected little high-frequency power, got %g", smooth.HighFreqRatio)
	}

	bang := make([]float64, 2000)
	for i := range bang {
		bang[i] = 10
		if i%2 == 1 {
			bang[i] = -10
		}
	}
	c := ChatteringIndex(bang, dt, 10)
	if c.HighFreqRatio < 0.95 {
		t.Errorf("expected high-frequency dominance, got %g", c.HighFreqRatio)
	}
	if c.SignChanges != 1999 {
		t.Errorf("expected 1999 sign changes, got %d", c.SignChanges)
	}
	if math.Abs(c.DominantFreq-500) > 1e-9 {
		t.Errorf("expected dominant 500 Hz, got %g", c.DominantFreq)
	}
	if c.TotalVariation != 20*1999 {
		t.Errorf("expected total variation %d, got %g", 20*1999, c.TotalVariation)
	}
}

func TestChatteringIndexShortSignal(t *testing.T) {
	c := ChatteringIndex([]float64{1}, 0.01, 5)
	if c.HighFreqRatio != 0 || c.TotalVariation != 0 {
		t.Errorf("expected empty result, got %+v", c)
	}
}
