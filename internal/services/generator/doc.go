// Package generator talks to the remote view and model generation service.
//
// The service accepts a source image, produces front/back/left views
// asynchronously, and turns finished views into a downloadable 3D model.
// Client covers the three endpoints plus Resolve, which turns the
// references the service hands back (inline data URLs or http URLs) into
// bytes. Failures are tagged with the services error markers so callers can
// classify them with errors.Is.
package generator
