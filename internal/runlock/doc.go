// Package runlock guards a banana3d state directory with an advisory file
// lock so only one run talks to the generation service at a time.
package runlock
