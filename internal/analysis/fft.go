package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the one-sided amplitude spectrum of the
// mean-removed signal and the matching frequencies in Hz.
func PowerSpectrum(data []float64, dt float64) (amp, freq []float64) {
	n := len(data)
	if n < 2 || !(dt > 0) {
		return nil, nil
	}
	mean := stat.Mean(data, nil)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)
	amp = make([]float64, len(coeff))
	freq = make([]float64, len(coeff))
	for i, c := range coeff {
		amp[i] = cmplx.Abs(c)
		freq[i] = fft.Freq(i) / dt
	}
	return amp, freq
}

// Chattering summarizes how much a control signal switches.
type Chattering struct {
	// HighFreqRatio is the share of spectral power above the cutoff.
	HighFreqRatio  float64 `json:"high_freq_ratio" yaml:"high_freq_ratio"`
	DominantFreq   float64 `json:"dominant_freq" yaml:"dominant_freq"`
	TotalVariation float64 `json:"total_variation" yaml:"total_variation"`
	SignChanges    int     `json:"sign_changes" yaml:"sign_changes"`
}

// ChatteringIndex analyses u sampled every dt seconds. cutoff is in Hz.
func ChatteringIndex(u []float64, dt, cutoff float64) Chattering {
	var c Chattering
	for i := 1; i < len(u); i++ {
		c.TotalVariation += math.Abs(u[i] - u[i-1])
		if u[i]*u[i-1] < 0 {
			c.SignChanges++
		}
	}

	amp, freq := PowerSpectrum(u, dt)
	var total, high, peak float64
	for i := 1; i < len(amp); i++ {
		p := amp[i] * amp[i]
		total += p
		if freq[i] > cutoff {
			high += p
		}
		if p > peak {
			peak = p
			c.DominantFreq = freq[i]
		}
	}
	if total > 0 {
		c.HighFreqRatio = high / total
	}
	return c
}
