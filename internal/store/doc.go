// Package store persists URL items and their append-only processing
// history in SQLite. Updates are versioned compare-and-set operations so
// concurrent transitions on the same item cannot interleave into an
// invariant-violating state.
package store
