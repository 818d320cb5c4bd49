package buildinfo

import (
	"fmt"
	"runtime/debug"
	"slices"
)

var (
	// Version is the version of the tool. It can be overridden via ldflags.
	Version = "dev"
	// Commit is the git SHA embedded at build time.
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the version string.
func Short() string {
	return Version
}

// Full returns the version with commit and build time.
func Full() string {
	commit, builtAt := Commit, BuildTime

	if info, ok := debug.ReadBuildInfo(); ok {
		if commit == "none" {
			commit = setting(info, "vcs.revision", commit)
		}

		if builtAt == "unknown" {
			builtAt = setting(info, "vcs.time", builtAt)
		}
	}

	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, commit, builtAt)
}

// setting returns a build setting value or fallback when it is not recorded.
func setting(info *debug.BuildInfo, key, fallback string) string {
	idx := slices.IndexFunc(info.Settings, func(s debug.BuildSetting) bool {
		return s.Key == key
	})
	if idx < 0 || info.Settings[idx].Value == "" {
		return fallback
	}

	return info.Settings[idx].Value
}
