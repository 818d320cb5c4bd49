package toolchain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
	"github.com/oshokin/gacha-release/internal/service/common"
)

// versionPattern finds the first dotted version number in tool output, e.g. "Python 3.12.4".
var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// archAliases folds the spellings tools use for the same machine architecture.
//
//nolint:gochecknoglobals // Read-only lookup table.
var archAliases = map[string]string{
	"x86_64":  "amd64",
	"x64":     "amd64",
	"amd64":   "amd64",
	"aarch64": "arm64",
	"arm64":   "arm64",
	"i386":    "386",
	"i686":    "386",
	"x86":     "386",
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, argv ...string) ([]byte, error)
}

// Preparer provisions the build toolchain.
type Preparer struct {
	// cfg describes the interpreter and installation commands.
	cfg config.Toolchain
	// runner executes the commands.
	runner Runner
}

// New creates a Preparer.
func New(cfg config.Toolchain, runner Runner) *Preparer {
	return &Preparer{
		cfg:    cfg,
		runner: runner,
	}
}

// Prepare checks the interpreter and installs dependencies.
func (p *Preparer) Prepare(ctx context.Context) error {
	if p.cfg.Interpreter != "" {
		if err := p.checkInterpreter(ctx); err != nil {
			return err
		}
	}

	for _, install := range p.cfg.Install {
		logger.InfoKV(ctx, "Installing dependencies", "command", strings.Join(install, " "))

		if _, err := p.runner.Run(ctx, install...); err != nil {
			if errors.Is(err, common.ErrCommandNotFound) {
				return fmt.Errorf("%w: %w", release.ErrToolchainUnavailable, err)
			}

			return fmt.Errorf("%w: %w", release.ErrDependencyInstallFailed, err)
		}
	}

	return nil
}

// checkInterpreter verifies the interpreter is runnable with the pinned version and architecture.
func (p *Preparer) checkInterpreter(ctx context.Context) error {
	if len(p.cfg.VersionArgs) > 0 {
		version, err := p.interpreterVersion(ctx)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Interpreter detected", "interpreter", p.cfg.Interpreter, "version", version.String())

		if p.cfg.VersionConstraint != "" {
			constraint, err := semver.NewConstraint(p.cfg.VersionConstraint)
			if err != nil {
				return fmt.Errorf("%w: constraint %q: %w", release.ErrToolchainUnavailable, p.cfg.VersionConstraint, err)
			}

			if !constraint.Check(version) {
				return fmt.Errorf("%w: %s %s does not satisfy %s",
					release.ErrToolchainUnavailable, p.cfg.Interpreter, version, p.cfg.VersionConstraint)
			}
		}
	}

	if len(p.cfg.ArchArgs) > 0 && p.cfg.Arch != "" {
		output, err := p.query(ctx, p.cfg.ArchArgs)
		if err != nil {
			return err
		}

		actual := strings.TrimSpace(output)
		if NormalizeArch(actual) != NormalizeArch(p.cfg.Arch) {
			return fmt.Errorf("%w: %s runs on %s, %s required",
				release.ErrToolchainUnavailable, p.cfg.Interpreter, actual, p.cfg.Arch)
		}
	}

	return nil
}

// interpreterVersion runs the interpreter version query and parses its output.
func (p *Preparer) interpreterVersion(ctx context.Context) (*semver.Version, error) {
	output, err := p.query(ctx, p.cfg.VersionArgs)
	if err != nil {
		return nil, err
	}

	found := versionPattern.FindString(output)
	if found == "" {
		return nil, fmt.Errorf("%w: no version in %q", release.ErrToolchainUnavailable, strings.TrimSpace(output))
	}

	version, err := semver.NewVersion(found)
	if err != nil {
		return nil, fmt.Errorf("%w: parse version %q: %w", release.ErrToolchainUnavailable, found, err)
	}

	return version, nil
}

// query runs the interpreter with args; any failure means the toolchain is unusable.
func (p *Preparer) query(ctx context.Context, args []string) (string, error) {
	argv := append([]string{p.cfg.Interpreter}, args...)

	output, err := p.runner.Run(ctx, argv...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", release.ErrToolchainUnavailable, err)
	}

	return string(output), nil
}

// NormalizeArch maps architecture spellings to Go's names.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if normalized, ok := archAliases[arch]; ok {
		return normalized
	}

	return arch
}
