// Package workflow owns the banana3d state machine: a source image becomes
// three generated views, and those views become a 3D model.
//
// A Machine is driven entirely by a scheduler.Scheduler. Intents such as
// SelectSource or GenerateModel are posted to the scheduler and never block;
// network calls run off-loop and post their completion back. Each completion
// carries the epoch it was issued under, so responses that arrive after a
// reset or a newer request are dropped instead of overwriting fresh state.
//
// After every transition the machine publishes an immutable Snapshot.
// Snapshot can be read from any goroutine, Subscribe callbacks run on the
// scheduler, and Await lets a caller block until a condition holds.
//
// Every failure leaves the machine in a retryable stage with an Error
// attached: view failures fall back to SourceSelected, model failures to
// ViewsReady. Blobs are held through resources scopes and released on every
// exit path.
package workflow
