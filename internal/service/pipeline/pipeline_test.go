package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/repository/journal"
	"github.com/oshokin/gacha-release/internal/service/lock"
	"github.com/oshokin/gacha-release/internal/service/publisher"
	"github.com/oshokin/gacha-release/internal/service/publisher/publishertest"
)

// fakeStage stands in for a subprocess-backed stage.
type fakeStage struct {
	calls int
	fn    func() error
}

func (f *fakeStage) Prepare(context.Context) error {
	return f.call()
}

func (f *fakeStage) Build(context.Context) error {
	return f.call()
}

func (f *fakeStage) call() error {
	f.calls++

	if f.fn == nil {
		return nil
	}

	return f.fn()
}

// fixture is a checkout with a version file, resources and a fake release host.
type fixture struct {
	root     string
	cfg      *config.Config
	host     *publishertest.Host
	preparer *fakeStage
	builder  *fakeStage
}

// writeFile creates a file and its parents.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newFixture lays out a checkout whose build produces dist/LinguaGacha.app.
func newFixture(t *testing.T, version string) *fixture {
	t.Helper()

	root := t.TempDir()
	if version != "" {
		writeFile(t, filepath.Join(root, "version.txt"), version)
	}

	for _, entry := range release.DefaultManifest().Entries {
		path := filepath.Join(root, filepath.FromSlash(entry.Source))
		if filepath.Ext(path) == ".png" {
			writeFile(t, path, "png")
			continue
		}

		writeFile(t, filepath.Join(path, "preset.json"), "{}")
	}

	require.NoError(t, os.Symlink("preset.json", filepath.Join(root, "resource", "prompt", "current.json")))

	cfg := config.Default()
	cfg.SourceRoot = root
	require.NoError(t, config.Validate(cfg))

	f := &fixture{
		root:     root,
		cfg:      cfg,
		host:     publishertest.NewHost(t),
		preparer: &fakeStage{},
	}

	f.builder = &fakeStage{fn: func() error {
		output := filepath.Join(root, "dist")
		writeFile(t, filepath.Join(output, "LinguaGacha.app", "Contents", "MacOS", "LinguaGacha"), "binary")
		writeFile(t, filepath.Join(output, "LinguaGacha", "LinguaGacha"), "stale copy")

		return nil
	}}

	return f
}

// pipeline wires the fixture into a pipeline.
func (f *fixture) pipeline(t *testing.T, opts Options) *pipeline {
	t.Helper()

	p := newPipeline(f.cfg, &opts)
	p.preparer = f.preparer
	p.builder = f.builder

	if !opts.SkipPublish {
		client, err := publisher.New("neavo", "LinguaGacha",
			publisher.WithToken("secret"),
			publisher.WithEndpoints(f.host.APIURL(), f.host.UploadURL()),
			publisher.WithCallTimeout(10*time.Second))
		require.NoError(t, err)

		p.publisher = client
	}

	return p
}

// journal loads the recorded run.
func (f *fixture) journal(t *testing.T) *release.Run {
	t.Helper()

	run, err := journal.NewFileRepository(f.cfg.Path(f.cfg.JournalFile)).Load(context.Background())
	require.NoError(t, err)

	return run
}

// archivePath is where the archive for version is written.
func (f *fixture) archivePath(version release.Version) string {
	return filepath.Join(f.root, f.cfg.Product().ArchiveName(version))
}

// requireStage asserts err failed in stage.
func requireStage(t *testing.T, err error, stage release.Stage) {
	t.Helper()

	failed, ok := release.FailedStage(err)
	require.True(t, ok, "not a stage error: %v", err)
	require.Equal(t, stage, failed)
	require.Contains(t, err.Error(), string(stage))
}

// TestRun_Publishes runs every stage and names everything after the trimmed version.
func TestRun_Publishes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3\n")

	require.NoError(t, f.pipeline(t, Options{}).execute(context.Background()))
	require.Equal(t, 1, f.preparer.calls)
	require.Equal(t, 1, f.builder.calls)

	created, ok := f.host.Release("1.2.3")
	require.True(t, ok)
	require.Equal(t, "LinguaGacha_1.2.3", created.GetName())

	uploads := f.host.Uploads()
	require.Len(t, uploads, 1)
	require.Equal(t, "LinguaGacha_macOS_arm64_1.2.3.zip", uploads[0].Name)
	require.Equal(t, created.GetID(), uploads[0].ReleaseID)

	content, err := os.ReadFile(f.archivePath("1.2.3"))
	require.NoError(t, err)
	require.Equal(t, content, uploads[0].Content)

	_, err = os.Stat(filepath.Join(f.root, "dist", "LinguaGacha"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(f.cfg.Path(f.cfg.MarkerFile))
	require.ErrorIs(t, err, os.ErrNotExist)

	run := f.journal(t)
	require.True(t, run.Succeeded())
	require.NotEmpty(t, run.ID)
	require.Equal(t, release.Version("1.2.3"), run.Version)
	require.Len(t, run.Stages, len(release.Stages()))

	for i, stage := range release.Stages() {
		require.Equal(t, stage, run.Stages[i].Stage)
	}

	require.Equal(t, created.GetID(), run.Release.ID)
	require.Equal(t, "LinguaGacha_macOS_arm64_1.2.3.zip", run.Asset.Name)
	require.False(t, run.Orphaned)
}

// TestRun_MissingVersionFile aborts before any subprocess.
func TestRun_MissingVersionFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrMissingVersionFile)
	requireStage(t, err, release.StageResolve)

	require.Zero(t, f.preparer.calls)
	require.Zero(t, f.builder.calls)
	require.Zero(t, f.host.Created())

	run := f.journal(t)
	require.False(t, run.Succeeded())
	require.Len(t, run.Stages, 1)
	require.Equal(t, release.StageResolve, run.Failed().Stage)
}

// TestRun_EmptyVersion rejects a blank version file.
func TestRun_EmptyVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, " \n\t")

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrEmptyVersion)
	requireStage(t, err, release.StageResolve)
	require.Zero(t, f.builder.calls)
}

// TestRun_ManifestDrift stops before preparing the toolchain.
func TestRun_ManifestDrift(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "resource", "glossary_preset")))

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrManifestDrift)
	require.ErrorIs(t, err, release.ErrAssemblyFailed)
	requireStage(t, err, release.StageValidate)
	require.Zero(t, f.preparer.calls)
	require.Zero(t, f.builder.calls)
}

// TestRun_PrepareFailure stops before the build.
func TestRun_PrepareFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.preparer.fn = func() error {
		return release.ErrDependencyInstallFailed
	}

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrDependencyInstallFailed)
	requireStage(t, err, release.StagePrepare)
	require.Zero(t, f.builder.calls)
}

// TestRun_BuildFailure leaves no archive behind.
func TestRun_BuildFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.builder.fn = func() error {
		return errors.Join(release.ErrBuildFailed, errors.New("pyinstaller exited with status 1"))
	}

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrBuildFailed)
	requireStage(t, err, release.StageBuild)

	_, err = os.Stat(f.archivePath("1.2.3"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_OutputMissing fails assembly when the build produced nothing.
func TestRun_OutputMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.builder.fn = nil

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrOutputMissing)
	requireStage(t, err, release.StageAssemble)

	_, err = os.Stat(filepath.Join(f.root, "dist"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_DuplicateVersion refuses an existing tag without uploading or touching the archive.
func TestRun_DuplicateVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.host.AddRelease("1.2.3")

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrReleaseCreateFailed)
	require.ErrorIs(t, err, release.ErrDuplicateVersion)
	requireStage(t, err, release.StageCreateRelease)

	require.Zero(t, f.host.Created())
	require.Empty(t, f.host.Uploads())

	run := f.journal(t)
	require.NotNil(t, run.Archive)

	info, err := os.Stat(f.archivePath("1.2.3"))
	require.NoError(t, err)
	require.Equal(t, run.Archive.Size, info.Size())
}

// TestRun_Rerun fails at release creation when the version was not bumped.
func TestRun_Rerun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	require.NoError(t, f.pipeline(t, Options{}).execute(context.Background()))

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrDuplicateVersion)
	require.Equal(t, 1, f.host.Created())
	require.Len(t, f.host.Uploads(), 1)
}

// TestRun_RerunOverBuiltTree assembles twice over the same output directory.
func TestRun_RerunOverBuiltTree(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	opts := Options{SkipPrepare: true, SkipPublish: true}

	require.NoError(t, f.pipeline(t, opts).execute(context.Background()))

	writeFile(t, filepath.Join(f.root, "version.txt"), "1.2.4")
	require.NoError(t, f.pipeline(t, opts).execute(context.Background()))

	target, err := os.Readlink(filepath.Join(f.root, "dist", "resource", "prompt", "current.json"))
	require.NoError(t, err)
	require.Equal(t, "preset.json", target)

	_, err = os.Stat(f.archivePath("1.2.4"))
	require.NoError(t, err)
	require.True(t, f.journal(t).Succeeded())
}

// TestRun_UploadFailureOrphaned keeps the release and records it as orphaned.
func TestRun_UploadFailureOrphaned(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.host.FailUpload(http.StatusBadGateway)

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrAssetUploadFailed)
	requireStage(t, err, release.StageUploadAsset)

	_, ok := f.host.Release("1.2.3")
	require.True(t, ok)
	require.Empty(t, f.host.Deleted())

	run := f.journal(t)
	require.True(t, run.Orphaned)
	require.False(t, run.RolledBack)
	require.NotNil(t, run.Release)
	require.Nil(t, run.Asset)
}

// TestRun_UploadFailureRollback deletes the release when configured.
func TestRun_UploadFailureRollback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")
	f.cfg.Release.RollbackOnUploadFailure = true
	f.host.FailUpload(http.StatusInternalServerError)

	err := f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrAssetUploadFailed)

	_, ok := f.host.Release("1.2.3")
	require.False(t, ok)
	require.Len(t, f.host.Deleted(), 1)

	run := f.journal(t)
	require.True(t, run.RolledBack)
	require.False(t, run.Orphaned)
}

// TestRun_SkipOptions stops after the archive and skips subprocess stages.
func TestRun_SkipOptions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "2.0.0-rc.1")
	writeFile(t, filepath.Join(f.root, "dist", "LinguaGacha.app", "Contents", "MacOS", "LinguaGacha"), "prebuilt")

	err := f.pipeline(t, Options{SkipPrepare: true, SkipBuild: true, SkipPublish: true}).execute(context.Background())
	require.NoError(t, err)
	require.Zero(t, f.preparer.calls)
	require.Zero(t, f.builder.calls)
	require.Zero(t, f.host.Created())

	_, err = os.Stat(f.archivePath("2.0.0-rc.1"))
	require.NoError(t, err)

	run := f.journal(t)
	require.True(t, run.Succeeded())
	require.Equal(t, []release.Stage{
		release.StageResolve,
		release.StageValidate,
		release.StageAssemble,
		release.StageArchive,
	}, stageNames(run))
}

// TestRun_Busy refuses to start while another run holds the marker.
func TestRun_Busy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.2.3")

	marker, err := lock.Acquire(context.Background(), f.cfg.Path(f.cfg.MarkerFile))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = marker.Release()
	})

	err = f.pipeline(t, Options{}).execute(context.Background())
	require.ErrorIs(t, err, release.ErrPipelineBusy)
	require.Zero(t, f.builder.calls)

	_, err = journal.NewFileRepository(f.cfg.Path(f.cfg.JournalFile)).Load(context.Background())
	require.ErrorIs(t, err, journal.ErrNotFound)
}

// TestRun_NilOptions falls back to the default configuration instead of panicking.
func TestRun_NilOptions(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.RepositoryEnv, "")
	t.Setenv(config.DefaultTokenEnv, "")

	_, err := Check(context.Background(), nil)
	require.ErrorIs(t, err, release.ErrMissingVersionFile)
	requireStage(t, err, release.StageResolve)

	err = Run(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "configure release host")

	entries, err := os.ReadDir(".")
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestCheck_SkipPublish reports the names a run would use.
func TestCheck_SkipPublish(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "  1.2.3\n")

	plan, err := check(context.Background(), f.cfg, &Options{SkipPublish: true})
	require.NoError(t, err)
	require.Equal(t, release.Version("1.2.3"), plan.Version)
	require.Equal(t, "1.2.3", plan.Tag)
	require.Equal(t, "LinguaGacha_1.2.3", plan.Title)
	require.Equal(t, "LinguaGacha_macOS_arm64_1.2.3.zip", plan.ArchiveName)
	require.Equal(t, f.archivePath("1.2.3"), plan.ArchivePath)
	require.Empty(t, plan.Repository)
	require.Equal(t, 8, plan.Entries)
	require.Zero(t, f.builder.calls)
}

// TestCheck_ReleaseHost requires a repository and a token unless publishing is skipped.
func TestCheck_ReleaseHost(t *testing.T) {
	t.Setenv("GACHA_CHECK_TOKEN", "")
	t.Setenv(config.RepositoryEnv, "")

	f := newFixture(t, "1.2.3")
	f.cfg.Release.TokenEnv = "GACHA_CHECK_TOKEN"

	_, err := check(context.Background(), f.cfg, &Options{})
	require.Error(t, err)

	f.cfg.Release.Repository = "neavo/LinguaGacha"

	_, err = check(context.Background(), f.cfg, &Options{})
	require.Error(t, err)

	t.Setenv("GACHA_CHECK_TOKEN", "secret")

	plan, err := check(context.Background(), f.cfg, &Options{})
	require.NoError(t, err)
	require.Equal(t, "neavo/LinguaGacha", plan.Repository)
}

// TestCheck_StrictSemver rejects non-semantic versions when enabled.
func TestCheck_StrictSemver(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "nightly")

	_, err := check(context.Background(), f.cfg, &Options{SkipPublish: true})
	require.NoError(t, err)

	f.cfg.StrictSemver = true

	_, err = check(context.Background(), f.cfg, &Options{SkipPublish: true})
	require.ErrorIs(t, err, release.ErrInvalidVersion)
	requireStage(t, err, release.StageResolve)
}

func stageNames(run *release.Run) []release.Stage {
	names := make([]release.Stage, 0, len(run.Stages))
	for _, record := range run.Stages {
		names = append(names, record.Stage)
	}

	return names
}
