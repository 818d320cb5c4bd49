// Package release contains the domain types of the release pipeline.
//
// It defines the version string read from the version file, the product
// identity used to name archives and releases, the versioned resource
// manifest, the release/asset descriptors exchanged with the release host,
// the run record persisted by the journal and the error taxonomy shared by
// every stage.
package release
