// Package common holds helpers shared by several services.
//
// It runs external tools with their output captured for diagnostics and
// streamed to the log, and detects the current system actor
// (hostname/username) recorded in the run journal.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
