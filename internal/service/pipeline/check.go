package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
	"github.com/oshokin/gacha-release/internal/service/assembler"
	"github.com/oshokin/gacha-release/internal/service/resolver"
)

// Plan is what a run with the current checkout would publish.
type Plan struct {
	// Version is the resolved version.
	Version release.Version
	// Tag is the release tag.
	Tag string
	// Title is the release title.
	Title string
	// ArchiveName is the asset filename.
	ArchiveName string
	// ArchivePath is where the archive will be written.
	ArchivePath string
	// Repository is "owner/name", empty when publishing is skipped.
	Repository string
	// Entries is the number of manifest entries.
	Entries int
}

// Check validates configuration, version file, manifest and release host settings without side effects.
// A nil opts checks the default configuration file with publishing enabled.
func Check(ctx context.Context, opts *Options) (*Plan, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx = logger.WithName(ctx, "gacha-release")

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	return check(ctx, cfg, opts)
}

func check(ctx context.Context, cfg *config.Config, opts *Options) (*Plan, error) {
	version, err := resolver.Resolve(cfg.Path(cfg.VersionFile), resolver.WithStrictSemver(cfg.StrictSemver))
	if err != nil {
		return nil, &release.StageError{Stage: release.StageResolve, Err: err}
	}

	if err = assembler.Validate(cfg.SourceRoot, cfg.Manifest); err != nil {
		return nil, &release.StageError{Stage: release.StageValidate, Err: err}
	}

	product := cfg.Product()
	plan := &Plan{
		Version:     version,
		Tag:         version.Tag(),
		Title:       product.ReleaseTitle(version),
		ArchiveName: product.ArchiveName(version),
		ArchivePath: filepath.Join(filepath.Dir(cfg.Path(cfg.OutputDir)), product.ArchiveName(version)),
		Entries:     len(cfg.Manifest.Entries),
	}

	if _, err = release.NewDraft(product, version, cfg.Release.NotesTemplate); err != nil {
		return nil, &release.StageError{Stage: release.StageCreateRelease, Err: err}
	}

	if opts == nil || !opts.SkipPublish {
		owner, name, err := cfg.Repository()
		if err != nil {
			return nil, fmt.Errorf("configure release host: %w", err)
		}

		if _, err = cfg.Token(); err != nil {
			return nil, fmt.Errorf("configure release host: %w", err)
		}

		plan.Repository = owner + "/" + name
	}

	logger.InfoKV(ctx, "Configuration is valid",
		"version", plan.Version.String(),
		"archive", plan.ArchiveName,
		"title", plan.Title)

	return plan, nil
}
