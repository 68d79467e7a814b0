// Package history keeps an append-only SQLite journal of finished runs so
// `banana3d history` can list what was generated, when, and how it ended.
//
// The journal is display-only. Nothing reads it back into a workflow.
package history
