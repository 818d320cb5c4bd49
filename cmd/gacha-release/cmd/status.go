package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/repository/journal"
)

// statusCmd prints the journal of the last run.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last pipeline run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		run, err := journal.NewFileRepository(cfg.Path(cfg.JournalFile)).Load(cmd.Context())
		if errors.Is(err, journal.ErrNotFound) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No pipeline run recorded yet.")
			return nil
		} else if err != nil {
			return err
		}

		printRun(cmd.OutOrStdout(), run)

		return nil
	},
}

// printRun writes a human-readable summary of run.
func printRun(w io.Writer, run *release.Run) {
	outcome := "failed"

	switch {
	case run.FinishedAt.IsZero():
		outcome = "in progress or interrupted"
	case run.Succeeded():
		outcome = "succeeded"
	}

	_, _ = fmt.Fprintf(w, "run:      %s (%s)\n", run.ID, outcome)
	_, _ = fmt.Fprintf(w, "version:  %s\n", run.Version)
	_, _ = fmt.Fprintf(w, "started:  %s\n", run.StartedAt.Local().Format(time.DateTime))

	if run.Actor != nil {
		where := "local"
		if run.Actor.CI != "" {
			where = run.Actor.CI
		}

		_, _ = fmt.Fprintf(w, "actor:    %s@%s (pid %d, %s)\n", run.Actor.Username, run.Actor.Hostname, run.Actor.PID, where)
	}

	for _, record := range run.Stages {
		state := "ok"

		switch {
		case record.FinishedAt.IsZero():
			state = "running"
		case record.Error != "":
			state = "FAILED: " + record.Error
		}

		_, _ = fmt.Fprintf(w, "  %-20s %s\n", record.Stage, state)
	}

	if run.Archive != nil {
		_, _ = fmt.Fprintf(w, "archive:  %s (%s)\n", run.Archive.Path, units.HumanSize(float64(run.Archive.Size)))
	}

	if run.Release != nil {
		_, _ = fmt.Fprintf(w, "release:  %s\n", run.Release.HTMLURL)
	}

	if run.Asset != nil {
		_, _ = fmt.Fprintf(w, "asset:    %s\n", run.Asset.DownloadURL)
	}

	switch {
	case run.RolledBack:
		_, _ = fmt.Fprintln(w, "the release was deleted after its asset failed to upload")
	case run.Orphaned:
		_, _ = fmt.Fprintln(w, "WARNING: the release has no asset and needs manual cleanup")
	}
}
