// Package buildinfo exposes build metadata of the gacha-release binary.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// When they are left at their defaults, the VCS settings recorded by the Go
// toolchain are used instead. AttachCobraVersionCommand adds a "version"
// subcommand printing them.
package buildinfo
