// Package optim searches gain spaces for the lowest-cost controller.
//
// [PSO] is a synchronous particle swarm: every iteration the whole
// population is scored with one [Fitness] call, personal and global bests
// are updated, then velocities and positions move. [GridSearch] scores a
// regular lattice over the same [Bounds] and serves as a baseline.
//
// Both are deterministic for a fixed seed and check their context only
// between population evaluations.
package optim
