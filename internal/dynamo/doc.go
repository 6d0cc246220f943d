// Package dynamo provides core simulation primitives shared by the
// controllers, simulators and the optimizer.
//
// The package defines the fundamental interfaces and types:
//
//   - [State]: vector representing plant state
//   - [System]: the plant contract (dX/dt = f(X, u, t))
//   - [BatchSystem]: optional population-wide derivative evaluation
//   - [Linearizer], [InputMapper], [InertiaProvider]: optional model data
//     for equivalent-control feed-forward terms
//   - [Integrator], [BatchIntegrator]: fixed-step integrators
//
// # Thread Safety
//
// Plants are assumed synchronous and side-effect free, so one plant value
// may be shared by concurrent batch workers. Integrators with scratch
// buffers are NOT thread-safe; create one per worker.
package dynamo
