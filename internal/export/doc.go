// Package export writes a run's generated views and model to disk.
//
// Each run gets its own directory under the configured output dir, named
// after the source image and run ID. Views are written as front, back and
// left; the model as model.glb unless the service reported another format.
package export
