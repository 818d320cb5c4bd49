// Package toolchain prepares the environment the packaging tool runs in.
//
// It checks that the interpreter exists with the expected version and
// architecture, then runs the configured installation commands. Preparing
// twice is harmless.
package toolchain
