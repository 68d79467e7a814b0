// Package runner executes a single banana3d run end to end.
//
// A run reads and validates the source image, takes the run lock, checks the
// generation service, and then drives a workflow.Machine on a real-time
// scheduler loop: select, generate (or attach to) views, and generate the
// model. Finished runs are exported to the output directory, announced via
// notifications, and appended to the history journal.
package runner
