// Package physics provides the plant model consumed by the controllers
// and simulators.
//
// [DoubleInvertedPendulum] implements [dynamo.System] together with the
// optional [dynamo.BatchSystem], [dynamo.Linearizer],
// [dynamo.InertiaProvider] and [dynamo.Hamiltonian] contracts:
//
//	plant := physics.NewDoubleInvertedPendulum(physics.DefaultParams())
//	dx := plant.Derive(x, dynamo.Control{force}, t)
//	a, b := plant.Linearize(x, dynamo.Control{0})
//
// Angles are measured from the upright vertical, so the balanced
// equilibrium sits at the origin of the state space.
package physics
