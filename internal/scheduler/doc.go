// Package scheduler provides the cooperative execution context the workflow
// core runs on.
//
// All workflow state is mutated from a single loop: posted tasks, timer
// callbacks, and the completions of off-loop network work are serialized so
// that interleaving happens only at well-defined suspension points. Loop is
// the real-time implementation backed by one goroutine; Manual advances a
// virtual clock on demand and makes same-instant ordering deterministic,
// which is what tests and simulations use.
package scheduler
