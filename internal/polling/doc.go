// Package polling runs a check on a fixed interval until it reports done,
// fails, or a deadline passes.
//
// Sessions are driven by a scheduler.Scheduler and deliver exactly one
// Outcome unless cancelled. Checks never overlap: a tick that fires while
// the previous check is unresolved is skipped. Controller keeps at most one
// session alive and numbers them so late results can be recognised.
package polling
