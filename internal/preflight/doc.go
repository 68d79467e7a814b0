// Package preflight provides readiness checks for the generation service
// and the filesystem paths banana3d depends on.
//
// The CLI "banana3d check" command runs RunAll and prints a table; "generate"
// runs the service check before dispatching any intent so an unreachable
// service fails fast instead of burning the polling budget.
package preflight
