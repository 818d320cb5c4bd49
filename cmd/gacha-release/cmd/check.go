package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/gacha-release/internal/service/pipeline"
)

// checkCmd validates the checkout without building or publishing anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration, version file and resource manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		plan, err := pipeline.Check(cmd.Context(), pipelineOptions())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "version:    %s\n", plan.Version)
		_, _ = fmt.Fprintf(out, "tag:        %s\n", plan.Tag)
		_, _ = fmt.Fprintf(out, "title:      %s\n", plan.Title)
		_, _ = fmt.Fprintf(out, "archive:    %s\n", plan.ArchivePath)
		_, _ = fmt.Fprintf(out, "resources:  %d\n", plan.Entries)

		if plan.Repository != "" {
			_, _ = fmt.Fprintf(out, "repository: %s\n", plan.Repository)
		}

		return nil
	},
}
