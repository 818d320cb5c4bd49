package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

// Config holds every setting of a pipeline run.
type Config struct {
	// AppName is the application name used in archive and release names.
	AppName string `yaml:"app_name"`
	// Platform is the platform tag of the archive, e.g. "macOS".
	Platform string `yaml:"platform"`
	// Arch is the architecture tag of the archive, e.g. "arm64".
	Arch string `yaml:"arch"`
	// SourceRoot is the checked-out source tree; relative paths below resolve against it.
	SourceRoot string `yaml:"source_root"`
	// VersionFile is the file holding the version string.
	VersionFile string `yaml:"version_file"`
	// StrictSemver rejects versions that are not semantic versions.
	StrictSemver bool `yaml:"strict_semver"`
	// OutputDir is the staging directory filled by the packaging tool.
	OutputDir string `yaml:"output_dir"`
	// Toolchain describes the interpreter and dependency installation.
	Toolchain Toolchain `yaml:"toolchain"`
	// Build describes the packaging tool invocation.
	Build Build `yaml:"build"`
	// Manifest lists the resources copied next to the bundle.
	Manifest release.Manifest `yaml:"manifest"`
	// Release describes the release host.
	Release Release `yaml:"release"`
	// JournalFile is where the last run is recorded.
	JournalFile string `yaml:"journal_file"`
	// MarkerFile marks a pipeline run in progress in this checkout.
	MarkerFile string `yaml:"marker_file"`
	// ToolLogLevel is the level tool output lines are emitted at. The global level still filters them.
	ToolLogLevel string `yaml:"tool_log_level"`
}

// Toolchain describes the interpreter the packaging tool runs on.
type Toolchain struct {
	// Interpreter is the interpreter executable.
	Interpreter string `yaml:"interpreter"`
	// VersionArgs make the interpreter print its version.
	VersionArgs []string `yaml:"version_args"`
	// VersionConstraint is a semver constraint the interpreter version must satisfy.
	VersionConstraint string `yaml:"version_constraint"`
	// ArchArgs make the interpreter print its machine architecture.
	ArchArgs []string `yaml:"arch_args"`
	// Arch is the expected interpreter architecture; defaults to Config.Arch.
	Arch string `yaml:"arch"`
	// Install are the commands installing the packaging tool and application dependencies.
	Install [][]string `yaml:"install"`
}

// Build describes the packaging tool invocation.
type Build struct {
	// Command is the packaging tool command line.
	Command []string `yaml:"command"`
	// Env are extra KEY=VALUE variables for the packaging tool.
	Env []string `yaml:"env"`
}

// Release describes where and how the release is published.
type Release struct {
	// Repository is "owner/name"; GITHUB_REPOSITORY is used when empty.
	Repository string `yaml:"repository"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`
	// APIURL overrides the REST API base URL (GitHub Enterprise).
	APIURL string `yaml:"api_url"`
	// UploadURL overrides the asset upload base URL (GitHub Enterprise).
	UploadURL string `yaml:"upload_url"`
	// NotesTemplate is the text/template of the release body.
	NotesTemplate string `yaml:"notes_template"`
	// Timeout bounds each call to the release host.
	Timeout time.Duration `yaml:"timeout"`
	// RollbackOnUploadFailure deletes the created release when the asset upload fails.
	RollbackOnUploadFailure bool `yaml:"rollback_on_upload_failure"`
}

const (
	// DefaultConfigFilename is the configuration file looked up when none is given.
	DefaultConfigFilename = "gacha-release.yaml"
	// DefaultVersionFile is the repository-relative version file.
	DefaultVersionFile = "version.txt"
	// DefaultOutputDir is the packaging tool output directory.
	DefaultOutputDir = "dist"
	// DefaultJournalFile records the last run.
	DefaultJournalFile = "gacha-release-journal.json"
	// DefaultMarkerFile marks a run in progress.
	DefaultMarkerFile = "gacha-release.marker"
	// DefaultTokenEnv holds the release host token.
	DefaultTokenEnv = "GITHUB_TOKEN"
	// RepositoryEnv is consulted when no repository is configured.
	RepositoryEnv = "GITHUB_REPOSITORY"
	// DefaultToolLogLevel keeps tool output out of the log unless --log-level=debug.
	DefaultToolLogLevel = "debug"
	// DefaultTimeout bounds each call to the release host; uploads can be large.
	DefaultTimeout = 5 * time.Minute
	// DefaultFilePermissions is used for files written by the pipeline.
	DefaultFilePermissions = 0o644
)

var (
	errConfigIsNotSet      = errors.New("configuration is not set")
	errAppNameRequired     = errors.New("app_name must be provided")
	errPlatformRequired    = errors.New("platform and arch must be provided")
	errBuildCommand        = errors.New("build.command must be provided")
	errInvalidRepository   = errors.New("release.repository must look like owner/name")
	errRepositoryRequired  = errors.New("release repository is not configured")
	errTokenRequired       = errors.New("release token is not set")
	errInvalidInstallEntry = errors.New("toolchain.install entries must not be empty")
	errInvalidToolLogLevel = errors.New("tool_log_level must be debug, info, warn or error")
)

// Default returns the settings for packaging LinguaGacha on Apple silicon.
func Default() *Config {
	return &Config{
		AppName:     "LinguaGacha",
		Platform:    "macOS",
		Arch:        "arm64",
		SourceRoot:  ".",
		VersionFile: DefaultVersionFile,
		OutputDir:   DefaultOutputDir,
		Toolchain: Toolchain{
			Interpreter:       "python3",
			VersionArgs:       []string{"--version"},
			VersionConstraint: "~3.12",
			ArchArgs:          []string{"-c", "import platform; print(platform.machine())"},
			Install: [][]string{
				{"python3", "-m", "pip", "install", "--upgrade", "pip"},
				{"python3", "-m", "pip", "install", "pyinstaller"},
				{"python3", "-m", "pip", "install", "-r", "requirements.txt"},
			},
		},
		Build: Build{
			Command: []string{"pyinstaller", "LinguaGacha.spec"},
		},
		Manifest: release.DefaultManifest(),
		Release: Release{
			TokenEnv:      DefaultTokenEnv,
			NotesTemplate: release.DefaultNotesTemplate,
			Timeout:       DefaultTimeout,
		},
		JournalFile:  DefaultJournalFile,
		MarkerFile:   DefaultMarkerFile,
		ToolLogLevel: DefaultToolLogLevel,
	}
}

// Load reads configuration from path on top of the defaults.
// An empty path means DefaultConfigFilename, which may be absent.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
		// Built-in defaults.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the settings to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults for optional ones.
//
//nolint:cyclop // A flat list of field checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if strings.TrimSpace(cfg.AppName) == "" {
		return errAppNameRequired
	}

	if cfg.Platform == "" || cfg.Arch == "" {
		return errPlatformRequired
	}

	if len(cfg.Build.Command) == 0 || cfg.Build.Command[0] == "" {
		return errBuildCommand
	}

	if cfg.SourceRoot == "" {
		cfg.SourceRoot = "."
	}

	if cfg.VersionFile == "" {
		cfg.VersionFile = DefaultVersionFile
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	if cfg.JournalFile == "" {
		cfg.JournalFile = DefaultJournalFile
	}

	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFile
	}

	if cfg.Toolchain.Arch == "" {
		cfg.Toolchain.Arch = cfg.Arch
	}

	if cfg.Release.TokenEnv == "" {
		cfg.Release.TokenEnv = DefaultTokenEnv
	}

	if cfg.Release.Timeout <= 0 {
		cfg.Release.Timeout = DefaultTimeout
	}

	if cfg.Release.NotesTemplate == "" {
		cfg.Release.NotesTemplate = release.DefaultNotesTemplate
	}

	if cfg.ToolLogLevel == "" {
		cfg.ToolLogLevel = DefaultToolLogLevel
	}

	if _, ok := logger.ParseLogLevel(cfg.ToolLogLevel); !ok {
		return errInvalidToolLogLevel
	}

	for _, install := range cfg.Toolchain.Install {
		if len(install) == 0 || install[0] == "" {
			return errInvalidInstallEntry
		}
	}

	if cfg.Toolchain.VersionConstraint != "" {
		if _, err := semver.NewConstraint(cfg.Toolchain.VersionConstraint); err != nil {
			return fmt.Errorf("invalid toolchain.version_constraint: %w", err)
		}
	}

	if cfg.Release.Repository != "" {
		if _, _, err := splitRepository(cfg.Release.Repository); err != nil {
			return err
		}
	}

	if _, err := release.ParseNotesTemplate(cfg.Release.NotesTemplate); err != nil {
		return err
	}

	if err := cfg.Manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	return nil
}

// Product returns the product identity used for names.
func (c *Config) Product() release.Product {
	return release.Product{
		AppName:  c.AppName,
		Platform: c.Platform,
		Arch:     c.Arch,
	}
}

// Path resolves a path relative to the source root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	return filepath.Join(c.SourceRoot, filepath.FromSlash(p))
}

// Repository returns the owner and name of the release repository,
// falling back to GITHUB_REPOSITORY.
func (c *Config) Repository() (owner, name string, err error) {
	repository := c.Release.Repository
	if repository == "" {
		repository = os.Getenv(RepositoryEnv)
	}

	if repository == "" {
		return "", "", errRepositoryRequired
	}

	return splitRepository(repository)
}

// Token returns the release host token from the configured environment variable.
func (c *Config) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(c.Release.TokenEnv))
	if token == "" {
		return "", fmt.Errorf("%w: %s", errTokenRequired, c.Release.TokenEnv)
	}

	return token, nil
}

// splitRepository parses "owner/name".
func splitRepository(repository string) (owner, name string, err error) {
	owner, name, found := strings.Cut(strings.TrimSpace(repository), "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", errInvalidRepository, repository)
	}

	return owner, name, nil
}
