package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/gacha-release/internal/domain/release"
)

// fixedTime is the modification time of every fixture file.
var fixedTime = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

// writeFile creates a file with parents and a fixed modification time.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, fixedTime, fixedTime))
}

// newSourceTree creates every source of the default manifest.
func newSourceTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	for _, entry := range release.DefaultManifest().Entries {
		path := filepath.Join(root, filepath.FromSlash(entry.Source))
		if filepath.Ext(path) == ".png" {
			writeFile(t, path, "png:"+entry.Source)
			continue
		}

		writeFile(t, filepath.Join(path, "00_default.json"), `{"name":"`+entry.Source+`"}`)
		writeFile(t, filepath.Join(path, "nested", "ja.json"), `{"lang":"ja"}`)
	}

	require.NoError(t, os.Symlink("00_default.json", filepath.Join(root, "resource", "prompt", "current.json")))

	return root
}

// newOutput simulates a freshly built output directory.
func newOutput(t *testing.T) string {
	t.Helper()

	output := filepath.Join(t.TempDir(), "dist")
	writeFile(t, filepath.Join(output, "LinguaGacha.app", "Contents", "MacOS", "LinguaGacha"), "binary")

	return output
}

// treeDigest describes every entry below root: file content, mode and mtime, link targets, directory modes.
func treeDigest(t *testing.T, root string) map[string]string {
	t.Helper()

	digest := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}

			digest[rel] = "link:" + target
		case d.IsDir():
			digest[rel] = "dir:" + info.Mode().String()
		default:
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			sum := sha256.Sum256(content)
			digest[rel] = fmt.Sprintf("file:%s:%s:%d", hex.EncodeToString(sum[:]), info.Mode(), info.ModTime().Unix())
		}

		return nil
	})
	require.NoError(t, err)

	return digest
}

// TestAssemble_LaysOutManifest copies directories, files and links under resource/.
func TestAssemble_LaysOutManifest(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	output := newOutput(t)

	require.NoError(t, Assemble(context.Background(), source, output, release.DefaultManifest()))

	for _, entry := range release.DefaultManifest().Entries {
		_, err := os.Stat(filepath.Join(output, filepath.FromSlash(entry.Destination)))
		require.NoError(t, err, entry.Destination)
	}

	content, err := os.ReadFile(filepath.Join(output, "resource", "glossary_preset", "nested", "ja.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"lang":"ja"}`, string(content))

	target, err := os.Readlink(filepath.Join(output, "resource", "prompt", "current.json"))
	require.NoError(t, err)
	require.Equal(t, "00_default.json", target)

	// The bundle is untouched.
	_, err = os.Stat(filepath.Join(output, "LinguaGacha.app", "Contents", "MacOS", "LinguaGacha"))
	require.NoError(t, err)
}

// TestAssemble_Deterministic produces identical trees on two freshly built outputs.
func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)

	first := newOutput(t)
	require.NoError(t, Assemble(context.Background(), source, first, release.DefaultManifest()))

	second := newOutput(t)
	require.NoError(t, Assemble(context.Background(), source, second, release.DefaultManifest()))

	require.Equal(t, treeDigest(t, first), treeDigest(t, second))

	// Running again over an assembled tree changes nothing either.
	require.NoError(t, Assemble(context.Background(), source, second, release.DefaultManifest()))
	require.Equal(t, treeDigest(t, first), treeDigest(t, second))
}

// TestAssemble_ReplacesStaleLinks updates links and files left by an earlier run.
func TestAssemble_ReplacesStaleLinks(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	output := newOutput(t)

	require.NoError(t, Assemble(context.Background(), source, output, release.DefaultManifest()))

	link := filepath.Join(source, "resource", "prompt", "current.json")
	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(filepath.Join("nested", "ja.json"), link))

	stale := filepath.Join(output, "resource", "prompt", "latest.json")
	writeFile(t, stale, "stale")
	require.NoError(t, os.Symlink("00_default.json", filepath.Join(source, "resource", "prompt", "latest.json")))

	require.NoError(t, Assemble(context.Background(), source, output, release.DefaultManifest()))

	target, err := os.Readlink(filepath.Join(output, "resource", "prompt", "current.json"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join("nested", "ja.json"), target)

	target, err = os.Readlink(stale)
	require.NoError(t, err)
	require.Equal(t, "00_default.json", target)
}

// TestAssemble_OrderInsensitive yields the same tree when entries are reversed.
func TestAssemble_OrderInsensitive(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)

	manifest := release.DefaultManifest()
	reversed := release.Manifest{Version: manifest.Version}

	for i := len(manifest.Entries) - 1; i >= 0; i-- {
		reversed.Entries = append(reversed.Entries, manifest.Entries[i])
	}

	first := newOutput(t)
	require.NoError(t, Assemble(context.Background(), source, first, manifest))

	second := newOutput(t)
	require.NoError(t, Assemble(context.Background(), source, second, reversed))

	require.Equal(t, treeDigest(t, first), treeDigest(t, second))
}

// TestAssemble_Overlay keeps files already present in destination directories.
func TestAssemble_Overlay(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	output := newOutput(t)
	writeFile(t, filepath.Join(output, "resource", "prompt", "user.json"), "{}")

	require.NoError(t, Assemble(context.Background(), source, output, release.DefaultManifest()))

	_, err := os.Stat(filepath.Join(output, "resource", "prompt", "user.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(output, "resource", "prompt", "00_default.json"))
	require.NoError(t, err)
}

// TestAssemble_OutputMissing aborts before copying anything.
func TestAssemble_OutputMissing(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	output := filepath.Join(t.TempDir(), "dist")

	err := Assemble(context.Background(), source, output, release.DefaultManifest())
	require.ErrorIs(t, err, release.ErrOutputMissing)

	_, err = os.Stat(output)
	require.ErrorIs(t, err, os.ErrNotExist)

	// An empty output directory is rejected as well.
	require.NoError(t, os.Mkdir(output, 0o755))

	err = Assemble(context.Background(), source, output, release.DefaultManifest())
	require.ErrorIs(t, err, release.ErrOutputMissing)

	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestAssemble_MissingSource fails the whole assembly.
func TestAssemble_MissingSource(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	require.NoError(t, os.Remove(filepath.Join(source, "resource", "icon_no_bg.png")))

	err := Assemble(context.Background(), source, newOutput(t), release.DefaultManifest())
	require.ErrorIs(t, err, release.ErrAssemblyFailed)
	require.Contains(t, err.Error(), "icon_no_bg.png")
}

// TestValidate reports manifest drift with every missing source.
func TestValidate(t *testing.T) {
	t.Parallel()

	source := newSourceTree(t)
	require.NoError(t, Validate(source, release.DefaultManifest()))

	require.NoError(t, os.RemoveAll(filepath.Join(source, "resource", "platforms")))
	require.NoError(t, os.Remove(filepath.Join(source, "resource", "icon.png")))

	err := Validate(source, release.DefaultManifest())
	require.ErrorIs(t, err, release.ErrManifestDrift)
	require.ErrorIs(t, err, release.ErrAssemblyFailed)
	require.Contains(t, err.Error(), "resource/platforms")
	require.Contains(t, err.Error(), "resource/icon.png")

	err = Validate(source, release.Manifest{Version: 7})
	require.ErrorIs(t, err, release.ErrManifestDrift)
}
