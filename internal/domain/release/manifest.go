package release

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// CurrentManifestVersion is the only manifest layout this build understands.
const CurrentManifestVersion = 1

// ResourceRoot is the destination subtree every default entry is copied under.
const ResourceRoot = "resource"

var (
	errManifestVersion     = errors.New("unsupported manifest version")
	errManifestEmpty       = errors.New("manifest has no entries")
	errManifestPath        = errors.New("manifest path must be relative and stay inside its root")
	errManifestDestination = errors.New("manifest destinations overlap")
)

// ManifestEntry is one (source, destination) pair.
// Both paths are slash-separated and relative: the source to the source
// root, the destination to the output directory.
type ManifestEntry struct {
	// Source is the path of a file or directory in the source tree.
	Source string `yaml:"source"`
	// Destination is where the source ends up inside the output directory.
	Destination string `yaml:"destination"`
}

// Manifest is the fixed, ordered list of auxiliary resources copied next to the bundle.
type Manifest struct {
	// Version is the layout version of the manifest.
	Version int `yaml:"version"`
	// Entries are the resources to copy.
	Entries []ManifestEntry `yaml:"entries"`
}

// DefaultManifest returns the resource manifest of the application:
// six preset directories and two icons, all under resource/.
func DefaultManifest() Manifest {
	same := func(p string) ManifestEntry {
		return ManifestEntry{Source: p, Destination: p}
	}

	return Manifest{
		Version: CurrentManifestVersion,
		Entries: []ManifestEntry{
			same("resource/prompt"),
			same("resource/platforms"),
			same("resource/custom_prompt"),
			same("resource/glossary_preset"),
			same("resource/pre_translation_replacement_preset"),
			same("resource/post_translation_replacement_preset"),
			same("resource/icon.png"),
			same("resource/icon_no_bg.png"),
		},
	}
}

// Validate checks the manifest structure without touching the filesystem.
// Destinations may not contain each other, so the copy order never matters.
func (m Manifest) Validate() error {
	if m.Version != CurrentManifestVersion {
		return fmt.Errorf("%w: %d", errManifestVersion, m.Version)
	}

	if len(m.Entries) == 0 {
		return errManifestEmpty
	}

	destinations := make([]string, 0, len(m.Entries))

	for _, entry := range m.Entries {
		if err := checkRelative(entry.Source); err != nil {
			return fmt.Errorf("source %q: %w", entry.Source, err)
		}

		if err := checkRelative(entry.Destination); err != nil {
			return fmt.Errorf("destination %q: %w", entry.Destination, err)
		}

		destination := path.Clean(entry.Destination)
		for _, seen := range destinations {
			if seen == destination ||
				strings.HasPrefix(destination, seen+"/") ||
				strings.HasPrefix(seen, destination+"/") {
				return fmt.Errorf("%w: %q and %q", errManifestDestination, seen, destination)
			}
		}

		destinations = append(destinations, destination)
	}

	return nil
}

// checkRelative rejects empty, absolute and escaping paths.
func checkRelative(p string) error {
	if p == "" || path.IsAbs(p) || filepath.IsAbs(p) {
		return errManifestPath
	}

	cleaned := path.Clean(filepath.ToSlash(p))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return errManifestPath
	}

	return nil
}
