// Package analysis provides signal diagnostics for closed-loop runs.
//
//   - [PowerSpectrum]: one-sided amplitude spectrum of a sampled signal
//   - [ChatteringIndex]: high-frequency content and variation of a
//     control signal
//
// # Chattering
//
// A boundary layer that is too thin shows up as control power far above
// the closed-loop bandwidth:
//
//	c := analysis.ChatteringIndex(res.Controls, dt, 10)
//	if c.HighFreqRatio > 0.2 {
//	    // widen the boundary layer
//	}
package analysis
