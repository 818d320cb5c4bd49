package release

import (
	"errors"
	"fmt"
)

// Stage failures. Every stage wraps its cause with exactly one of these.
var (
	// ErrMissingVersionFile is returned when the version file does not exist or cannot be read.
	ErrMissingVersionFile = errors.New("version file is missing or unreadable")
	// ErrEmptyVersion is returned when the version file is blank after trimming.
	ErrEmptyVersion = errors.New("version is empty")
	// ErrInvalidVersion is returned when strict semantic versioning is required and the version does not parse.
	ErrInvalidVersion = errors.New("version is not a semantic version")
	// ErrToolchainUnavailable is returned when the interpreter cannot be provisioned.
	ErrToolchainUnavailable = errors.New("toolchain is unavailable")
	// ErrDependencyInstallFailed is returned when a package installation exits non-zero.
	ErrDependencyInstallFailed = errors.New("dependency installation failed")
	// ErrBuildFailed is returned when the packaging tool exits non-zero.
	ErrBuildFailed = errors.New("bundle build failed")
	// ErrOutputMissing is returned when the output directory is absent or empty after the build.
	ErrOutputMissing = errors.New("output directory is missing")
	// ErrAssemblyFailed is returned when a manifest entry cannot be copied.
	ErrAssemblyFailed = errors.New("artifact assembly failed")
	// ErrCompressionFailed is returned when the archive cannot be written.
	ErrCompressionFailed = errors.New("compression failed")
	// ErrReleaseCreateFailed is returned when the release host rejects release creation.
	ErrReleaseCreateFailed = errors.New("release creation failed")
	// ErrAssetUploadFailed is returned when the archive cannot be attached to the release.
	ErrAssetUploadFailed = errors.New("asset upload failed")
)

// Refinements of the failures above. They match their parent with errors.Is.
var (
	// ErrManifestDrift is returned when the resource manifest does not match the source tree.
	ErrManifestDrift = fmt.Errorf("resource manifest does not match the source tree: %w", ErrAssemblyFailed)
	// ErrDuplicateVersion is returned when a release with the same tag already exists.
	ErrDuplicateVersion = fmt.Errorf("release for this version already exists: %w", ErrReleaseCreateFailed)
)

// ErrPipelineBusy is returned when another pipeline run holds the workspace marker.
var ErrPipelineBusy = errors.New("another pipeline run is in progress")

// StageError reports which stage of the pipeline failed and why.
type StageError struct {
	// Stage is the pipeline stage that failed.
	Stage Stage
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage extracts the failing stage from an error chain.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}

	return "", false
}
