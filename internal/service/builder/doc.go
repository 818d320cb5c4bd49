// Package builder invokes the packaging tool that turns the source tree into
// a platform-native application bundle inside the output directory.
//
// The tool is opaque: it either exits 0 having populated the output
// directory, or exits non-zero. Failures are never retried.
package builder
