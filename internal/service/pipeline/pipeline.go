package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
	"github.com/oshokin/gacha-release/internal/repository/journal"
	"github.com/oshokin/gacha-release/internal/service/archiver"
	"github.com/oshokin/gacha-release/internal/service/assembler"
	"github.com/oshokin/gacha-release/internal/service/builder"
	"github.com/oshokin/gacha-release/internal/service/common"
	"github.com/oshokin/gacha-release/internal/service/lock"
	"github.com/oshokin/gacha-release/internal/service/publisher"
	"github.com/oshokin/gacha-release/internal/service/resolver"
	"github.com/oshokin/gacha-release/internal/service/toolchain"
)

// Options are inputs accepted by the pipeline entry point.
type Options struct {
	// ConfigPath is the optional path to the YAML configuration.
	ConfigPath string
	// SkipPrepare skips toolchain checks and dependency installation.
	SkipPrepare bool
	// SkipBuild skips the packaging tool; the output directory must already exist.
	SkipBuild bool
	// SkipPublish stops after the archive is written.
	SkipPublish bool
}

// Preparer provisions the toolchain.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Builder produces the output directory.
type Builder interface {
	Build(ctx context.Context) error
}

// Publisher creates releases and attaches assets.
type Publisher interface {
	CreateRelease(ctx context.Context, draft *release.Draft) (*release.Target, error)
	UploadAsset(ctx context.Context, target *release.Target, archive *release.Archive) (*release.Asset, error)
	DeleteRelease(ctx context.Context, target *release.Target) error
}

// pipeline holds the collaborators and the record of a single run.
type pipeline struct {
	cfg  *config.Config
	opts Options

	preparer  Preparer
	builder   Builder
	publisher Publisher
	journal   journal.Repository

	now func() time.Time
	run *release.Run
}

// Run loads the configuration and executes the pipeline.
// A nil opts runs every stage with the default configuration file.
func Run(ctx context.Context, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}

	ctx = logger.WithName(ctx, "gacha-release")

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	p := newPipeline(cfg, opts)

	// Release host settings are checked before anything touches the workspace.
	if !opts.SkipPublish {
		if p.publisher, err = publisher.NewFromConfig(cfg); err != nil {
			return fmt.Errorf("configure release host: %w", err)
		}
	}

	if err = p.execute(ctx); err != nil {
		logger.ErrorKV(ctx, "Pipeline failed", "error", err)
		return err
	}

	return nil
}

// loadConfig reads the configuration; config.Load validates it and fills defaults.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, nil
}

// newPipeline wires the local stages. The publisher is set by the caller.
func newPipeline(cfg *config.Config, opts *Options) *pipeline {
	toolLevel, _ := logger.ParseLogLevel(cfg.ToolLogLevel)
	runner := common.NewRunner(cfg.SourceRoot, toolLevel)

	var options Options
	if opts != nil {
		options = *opts
	}

	return &pipeline{
		cfg:      cfg,
		opts:     options,
		preparer: toolchain.New(cfg.Toolchain, runner),
		builder:  builder.New(cfg.Build.Command, runner.WithEnv(cfg.Build.Env...)),
		journal:  journal.NewFileRepository(cfg.Path(cfg.JournalFile)),
		now:      time.Now,
	}
}

// execute holds the run marker for the duration of the stages and journals the outcome.
func (p *pipeline) execute(ctx context.Context) error {
	marker, err := lock.Acquire(ctx, p.cfg.Path(p.cfg.MarkerFile))
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := marker.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to remove run marker", "path", marker.Path(), "error", releaseErr)
		}
	}()

	p.run = &release.Run{
		ID:        uuid.NewString(),
		StartedAt: p.now(),
	}

	if actor, actorErr := common.DetectActor(); actorErr != nil {
		logger.WarnKV(ctx, "Unable to detect actor", "error", actorErr)
	} else {
		p.run.Actor = actor
	}

	ctx = logger.WithKV(ctx, "run_id", p.run.ID)
	logger.InfoKV(ctx, "Pipeline started", "product", p.cfg.AppName, "platform", p.cfg.Platform, "arch", p.cfg.Arch)

	err = p.stages(ctx)

	p.run.FinishedAt = p.now()
	p.record(ctx)

	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Pipeline completed", "duration", p.run.FinishedAt.Sub(p.run.StartedAt).Round(time.Millisecond))

	return nil
}

// stages runs every stage in order and stops at the first failure.
func (p *pipeline) stages(ctx context.Context) error {
	var (
		version release.Version
		archive *release.Archive
		target  *release.Target
	)

	err := p.stage(ctx, release.StageResolve, func(context.Context) error {
		resolved, err := resolver.Resolve(p.cfg.Path(p.cfg.VersionFile), resolver.WithStrictSemver(p.cfg.StrictSemver))
		if err != nil {
			return err
		}

		version = resolved
		p.run.Version = resolved

		return nil
	})
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "version", version.String())

	err = p.stage(ctx, release.StageValidate, func(context.Context) error {
		return assembler.Validate(p.cfg.SourceRoot, p.cfg.Manifest)
	})
	if err != nil {
		return err
	}

	if p.opts.SkipPrepare {
		logger.InfoKV(ctx, "Stage skipped", "stage", release.StagePrepare)
	} else if err = p.stage(ctx, release.StagePrepare, p.preparer.Prepare); err != nil {
		return err
	}

	if p.opts.SkipBuild {
		logger.InfoKV(ctx, "Stage skipped", "stage", release.StageBuild)
	} else if err = p.stage(ctx, release.StageBuild, p.builder.Build); err != nil {
		return err
	}

	outputDir := p.cfg.Path(p.cfg.OutputDir)

	err = p.stage(ctx, release.StageAssemble, func(ctx context.Context) error {
		return assembler.Assemble(ctx, p.cfg.SourceRoot, outputDir, p.cfg.Manifest)
	})
	if err != nil {
		return err
	}

	product := p.cfg.Product()

	err = p.stage(ctx, release.StageArchive, func(ctx context.Context) error {
		written, err := archiver.Archive(ctx, outputDir, product.ArchiveName(version),
			archiver.WithNestedBundle(product.NestedBundleName()))
		if err != nil {
			return err
		}

		archive = written
		p.run.Archive = written

		return nil
	})
	if err != nil {
		return err
	}

	if p.opts.SkipPublish || p.publisher == nil {
		logger.InfoKV(ctx, "Publishing skipped", "archive", archive.Path)
		return nil
	}

	err = p.stage(ctx, release.StageCreateRelease, func(ctx context.Context) error {
		draft, err := release.NewDraft(product, version, p.cfg.Release.NotesTemplate)
		if err != nil {
			return fmt.Errorf("%w: %w", release.ErrReleaseCreateFailed, err)
		}

		created, err := p.publisher.CreateRelease(ctx, draft)
		if err != nil {
			return err
		}

		target = created
		p.run.Release = created

		return nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, release.StageUploadAsset, func(ctx context.Context) error {
		asset, err := p.publisher.UploadAsset(ctx, target, archive)
		if err != nil {
			p.compensate(ctx, target, err)
			return err
		}

		p.run.Asset = asset

		return nil
	})
}

// stage runs fn as the named stage, journals it and wraps its failure.
func (p *pipeline) stage(ctx context.Context, stage release.Stage, fn func(context.Context) error) error {
	ctx = logger.WithKV(ctx, "stage", string(stage))
	logger.Info(ctx, "Stage started")

	record := p.run.Begin(stage, p.now())
	p.record(ctx)

	err := fn(ctx)

	record.Finish(p.now(), err)
	p.record(ctx)

	if err != nil {
		return &release.StageError{Stage: stage, Err: err}
	}

	logger.InfoKV(ctx, "Stage completed", "duration", record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond))

	return nil
}

// compensate handles a release left without its asset.
func (p *pipeline) compensate(ctx context.Context, target *release.Target, cause error) {
	if p.cfg.Release.RollbackOnUploadFailure {
		err := p.publisher.DeleteRelease(ctx, target)
		if err == nil {
			p.run.RolledBack = true

			logger.WarnKV(ctx, "Release rolled back after failed upload", "tag", target.Tag, "release_id", target.ID)

			return
		}

		logger.ErrorKV(ctx, "Unable to roll back release", "release_id", target.ID, "error", err)
	}

	p.run.Orphaned = true

	logger.WarnKV(ctx, "Orphaned release: created without its asset, delete it or attach the archive manually",
		"tag", target.Tag,
		"release_id", target.ID,
		"url", target.HTMLURL,
		"error", cause)
}

// record saves the run; journal failures never fail the pipeline.
func (p *pipeline) record(ctx context.Context) {
	if err := p.journal.Save(ctx, p.run); err != nil {
		logger.WarnKV(ctx, "Unable to write run journal", "error", err)
	}
}
