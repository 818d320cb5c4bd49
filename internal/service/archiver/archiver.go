package archiver

import (
	"archive/zip"
	"context"
	"crypto"
	_ "crypto/sha512" // registers crypto.SHA512
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

const (
	// ChecksumFunction hashes the archive before it is put in place.
	ChecksumFunction crypto.Hash = crypto.SHA512
	// FileMode is the permission of the written archive.
	FileMode os.FileMode = 0o644
)

var errHashUnavailable = errors.New("hash function unavailable")

// Option customizes an archiving run.
type Option func(*options)

type options struct {
	nestedBundle string
}

// WithNestedBundle names a stale directory inside the output directory that is removed before archiving.
func WithNestedBundle(name string) Option {
	return func(o *options) {
		o.nestedBundle = name
	}
}

// Archive compresses outputDir into filepath.Dir(outputDir)/name.
// Entries are relative to outputDir, so the archive has no wrapping folder.
func Archive(ctx context.Context, outputDir, name string, opts ...Option) (*release.Archive, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("%w: %w", release.ErrCompressionFailed, errHashUnavailable)
	}

	if err := removeNestedBundle(ctx, outputDir, o.nestedBundle); err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrCompressionFailed, err)
	}

	target := filepath.Join(filepath.Dir(outputDir), name)

	staging, err := os.CreateTemp(filepath.Dir(target), "."+name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: create staging file: %w", release.ErrCompressionFailed, err)
	}

	defer func() {
		_ = staging.Close()
		_ = os.Remove(staging.Name())
	}()

	hasher := ChecksumFunction.New()

	entries, err := writeArchive(ctx, io.MultiWriter(staging, hasher), outputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrCompressionFailed, err)
	}

	checksum := hasher.Sum(nil)

	size, err := place(staging, target, checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: place %s: %w", release.ErrCompressionFailed, target, err)
	}

	archive := &release.Archive{
		Path:     target,
		Name:     name,
		Size:     size,
		Checksum: base64.StdEncoding.EncodeToString(checksum),
		Entries:  entries,
	}

	logger.InfoKV(ctx, "Archive written",
		"path", archive.Path,
		"entries", archive.Entries,
		"size", units.HumanSize(float64(archive.Size)))

	return archive, nil
}

// removeNestedBundle deletes a stale bundle copy left by an interrupted packaging run.
func removeNestedBundle(ctx context.Context, outputDir, name string) error {
	if name == "" {
		return nil
	}

	nested := filepath.Join(outputDir, name)

	info, err := os.Lstat(nested)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat nested bundle: %w", err)
	}

	logger.WarnKV(ctx, "Removing stale nested bundle from output directory",
		"path", nested,
		"is_dir", info.IsDir())

	if err = os.RemoveAll(nested); err != nil {
		return fmt.Errorf("remove nested bundle: %w", err)
	}

	return nil
}

// writeArchive walks root in lexical order and writes every entry to w.
func writeArchive(ctx context.Context, w io.Writer, root string) (int, error) {
	zw := zip.NewWriter(w)
	entries := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if path == root {
			return nil
		}

		if err := addEntry(zw, root, path, d); err != nil {
			return err
		}

		entries++

		return nil
	})
	if err != nil {
		_ = zw.Close()
		return 0, err
	}

	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}

	return entries, nil
}

// addEntry writes one directory, symlink or regular file.
func addEntry(zw *zip.Writer, root, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", rel, err)
	}

	header.Name = filepath.ToSlash(rel)

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}

		header.Method = zip.Store

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		_, err = io.WriteString(entry, filepath.ToSlash(target))

		return err
	case info.IsDir():
		header.Name += "/"
		header.Method = zip.Store

		_, err = zw.CreateHeader(header)

		return err
	case info.Mode().IsRegular():
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}

		defer func() {
			_ = file.Close()
		}()

		_, err = io.Copy(entry, file)

		return err
	default:
		return fmt.Errorf("%s: unsupported file type %s", rel, info.Mode().Type())
	}
}

// place moves the staged archive to target through go-update, verifying the checksum.
func place(staging *os.File, target string, checksum []byte) (int64, error) {
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	if _, err := os.Stat(target); err != nil && os.IsNotExist(err) {
		created, err := os.Create(target)
		if err != nil {
			return 0, err
		}

		if err = created.Close(); err != nil {
			return 0, err
		}
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: FileMode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	}

	if err := goupdate.Apply(staging, options); err != nil {
		return 0, err
	}

	for _, leftover := range []string{
		target + ".old",
		filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old"),
	} {
		if _, err := os.Stat(leftover); err == nil {
			_ = os.Remove(leftover)
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}
