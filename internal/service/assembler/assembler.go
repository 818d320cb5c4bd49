package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

// copyOptions merges directories into existing ones and keeps links and timestamps.
func copyOptions() copy.Options {
	return copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		OnDirExists: func(_, _ string) copy.DirExistsAction {
			return copy.Merge
		},
		Skip:          skipExistingLink,
		PreserveTimes: true,
	}
}

// skipExistingLink makes a symlink copy land on a previously assembled tree.
// An identical link is kept, anything else that is not a directory is replaced.
func skipExistingLink(srcinfo os.FileInfo, src, dest string) (bool, error) {
	if srcinfo.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}

	existing, err := os.Lstat(dest)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if existing.IsDir() {
		return false, fmt.Errorf("%s: a directory is in the way of link %s", dest, src)
	}

	if existing.Mode()&os.ModeSymlink != 0 {
		want, err := os.Readlink(src)
		if err != nil {
			return false, err
		}

		if have, err := os.Readlink(dest); err == nil && have == want {
			return true, nil
		}
	}

	return false, os.Remove(dest)
}

// Validate checks the manifest against the source tree.
// It reports every missing source at once.
func Validate(sourceRoot string, manifest release.Manifest) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", release.ErrManifestDrift, err)
	}

	var missing []string

	for _, entry := range manifest.Entries {
		source := filepath.Join(sourceRoot, filepath.FromSlash(entry.Source))
		if _, err := os.Lstat(source); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: stat %s: %w", release.ErrManifestDrift, entry.Source, err)
			}

			missing = append(missing, entry.Source)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", release.ErrManifestDrift, strings.Join(missing, ", "))
	}

	return nil
}

// Assemble copies every manifest entry from sourceRoot into outputDir.
func Assemble(ctx context.Context, sourceRoot, outputDir string, manifest release.Manifest) error {
	if err := CheckOutput(outputDir); err != nil {
		return err
	}

	options := copyOptions()

	for _, entry := range manifest.Entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", release.ErrAssemblyFailed, err)
		}

		source := filepath.Join(sourceRoot, filepath.FromSlash(entry.Source))
		destination := filepath.Join(outputDir, filepath.FromSlash(entry.Destination))

		logger.DebugKV(ctx, "Copying resource", "source", entry.Source, "destination", entry.Destination)

		if err := copy.Copy(source, destination, options); err != nil {
			return fmt.Errorf("%w: copy %s to %s: %w", release.ErrAssemblyFailed, entry.Source, entry.Destination, err)
		}
	}

	logger.InfoKV(ctx, "Resources assembled", "entries", len(manifest.Entries), "output_dir", outputDir)

	return nil
}

// CheckOutput verifies outputDir exists, is a directory and is not empty.
func CheckOutput(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", release.ErrOutputMissing, outputDir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", release.ErrOutputMissing, outputDir)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", release.ErrOutputMissing, outputDir, err)
	}

	if len(entries) == 0 {
		return fmt.Errorf("%w: %s is empty", release.ErrOutputMissing, outputDir)
	}

	return nil
}
