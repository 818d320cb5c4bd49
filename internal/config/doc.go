// Package config defines the release pipeline settings and provides helpers
// to load, validate and save them in YAML format.
//
// The Config type names the product (application, platform, architecture),
// the source layout (version file, output directory, resource manifest), the
// toolchain and build commands, and the release host coordinates.
package config
