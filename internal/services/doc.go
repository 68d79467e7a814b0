// Package services defines shared utilities consumed by the workflow machine
// and the generation service client.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and polling session
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (validation, submission, transport, timeout) without string
//     matching.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform.
package services
