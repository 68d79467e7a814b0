// Package notifications pushes workflow milestones to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. The model_ready and errors switches in the
// [notifications] section gate the matching events.
package notifications
