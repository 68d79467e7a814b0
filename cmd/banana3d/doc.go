// Package main hosts the banana3d CLI entrypoint and command graph.
//
// The Cobra-based command tree is the presentation layer over the workflow
// machine: "generate" and "attach" run the view and model pipeline and render
// each snapshot as a status line, "history" reads the run journal, "check"
// runs preflight, "logs" tails the log file, and "config" scaffolds and
// inspects configuration.
//
// Keep this package lean: the run itself lives in internal/runner and every
// state decision in internal/workflow.
package main
