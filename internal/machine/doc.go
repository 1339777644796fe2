// Package machine implements the pure transition function over URL items.
// Transitions are defined only over the reachable, invariant-satisfying
// subset of the product of stage, link state, and intent flag; illegal
// events come back as Rejection values, never errors or panics.
package machine
