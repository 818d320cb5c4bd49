package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/gacha-release/internal/domain/release"
)

// Option tunes version resolution.
type Option func(*options)

type options struct {
	strictSemver bool
}

// WithStrictSemver rejects versions that do not parse as semantic versions.
func WithStrictSemver(enabled bool) Option {
	return func(o *options) {
		o.strictSemver = enabled
	}
}

// Resolve reads the version file at path and returns its trimmed content.
func Resolve(path string, opts ...Option) (release.Version, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", release.ErrMissingVersionFile, path)
	} else if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", release.ErrMissingVersionFile, path, err)
	}

	version := strings.TrimSpace(string(contents))
	if version == "" {
		return "", fmt.Errorf("%w: %s", release.ErrEmptyVersion, path)
	}

	if o.strictSemver {
		if _, err = semver.StrictNewVersion(strings.TrimPrefix(version, "v")); err != nil {
			return "", fmt.Errorf("%w: %q: %w", release.ErrInvalidVersion, version, err)
		}
	}

	return release.Version(version), nil
}
