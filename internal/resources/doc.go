// Package resources tracks the transient, previewable handles the workflow
// allocates for source images, generated views, and the generated model.
//
// Every handle returned by Allocate must be released exactly once before its
// owner is discarded. Release is idempotent so that reset, replacement, and
// process teardown can all run their cleanup without coordinating. Scope
// bundles the handles of one owner behind a single teardown call.
package resources
