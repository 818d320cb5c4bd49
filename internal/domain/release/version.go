package release

import "fmt"

// ArchiveExtension is the extension of every produced archive.
const ArchiveExtension = ".zip"

// ArchiveContentType is the media type used when uploading the archive.
const ArchiveContentType = "application/zip"

// Version is the trimmed content of the version file.
// It is used verbatim as release tag, in the release title and in the archive filename.
type Version string

// String implements fmt.Stringer.
func (v Version) String() string {
	return string(v)
}

// Tag returns the release tag for the version.
func (v Version) Tag() string {
	return string(v)
}

// Product identifies what is being released and for which platform.
type Product struct {
	// AppName is the application name, e.g. "LinguaGacha".
	AppName string
	// Platform is the platform tag, e.g. "macOS".
	Platform string
	// Arch is the architecture tag, e.g. "arm64".
	Arch string
}

// ArchiveName returns "{AppName}_{Platform}_{Arch}_{Version}.zip".
func (p Product) ArchiveName(v Version) string {
	return fmt.Sprintf("%s_%s_%s_%s%s", p.AppName, p.Platform, p.Arch, v, ArchiveExtension)
}

// ReleaseTitle returns "{AppName}_{Version}".
func (p Product) ReleaseTitle(v Version) string {
	return p.AppName + "_" + string(v)
}

// NestedBundleName is the name of the stale bundle directory a partial
// packaging run can leave inside the output directory.
func (p Product) NestedBundleName() string {
	return p.AppName
}
