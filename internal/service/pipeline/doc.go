// Package pipeline runs the release stages in order and records the run in the journal.
//
// The stages are: resolve the version, validate the resource manifest, prepare the
// toolchain, build the bundle, assemble resources, archive the output directory,
// create the release and upload the archive. The first failure stops the run.
package pipeline
