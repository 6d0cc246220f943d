// Package control provides the sliding-mode controller family used to
// stabilize the double inverted pendulum.
//
// Four laws implement [Controller]:
//
//   - [Classical]: boundary-layer SMC with optional equivalent control
//   - [SuperTwisting]: second-order SMC with anti-windup on z
//   - [Adaptive]: SMC with an online switching-gain estimate
//   - [Hybrid]: classical by default, adaptive under sustained error
//
// # Usage
//
//	reg := control.DefaultRegistry()
//	cfg, err := reg.Build(control.VariantClassical, gains, control.DefaultOptions())
//	if err != nil {
//		// errors.Is(err, control.ErrStructural)
//	}
//	ctrl, _ := reg.Instantiate(cfg, plant)
//	ctrl.InitializeState(x0)
//	out := ctrl.Compute(x, t)
//
// Controllers keep per-run memory and are not safe for concurrent use;
// create one instance per trajectory.
package control
