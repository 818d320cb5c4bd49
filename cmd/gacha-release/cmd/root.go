package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/gacha-release/internal/buildinfo"
	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/logger"
	"github.com/oshokin/gacha-release/internal/service/pipeline"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level of log messages.
	logLevel string
	// skipPrepare skips toolchain checks and dependency installation.
	skipPrepare bool
	// skipBuild reuses an output directory produced elsewhere.
	skipBuild bool
	// skipPublish stops after the archive is written.
	skipPublish bool

	errUnknownLogLevel = errors.New("unknown log level")

	// rootCmd builds, archives and publishes a release.
	rootCmd = &cobra.Command{
		Use:   "gacha-release",
		Short: "Build, archive and publish a LinguaGacha release",
		Long: "Resolve the version, build the application bundle, copy resources next to it, " +
			"compress the output directory and publish it as a GitHub release.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %s", errUnknownLogLevel, logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return pipeline.Run(ctx, pipelineOptions())
		},
	}
)

// pipelineOptions collects the flags shared by the commands.
func pipelineOptions() *pipeline.Options {
	return &pipeline.Options{
		ConfigPath:  configPath,
		SkipPrepare: skipPrepare,
		SkipBuild:   skipBuild,
		SkipPublish: skipPublish,
	}
}

// Execute runs the gacha-release CLI and exits with non-zero status on error.
func Execute() {
	buildinfo.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&skipPublish, "skip-publish", false, "stop after writing the archive")

	rootCmd.Flags().BoolVar(&skipPrepare, "skip-prepare", false, "skip toolchain checks and dependency installation")
	rootCmd.Flags().BoolVar(&skipBuild, "skip-build", false, "reuse an existing output directory")

	rootCmd.AddCommand(checkCmd, statusCmd)
}
