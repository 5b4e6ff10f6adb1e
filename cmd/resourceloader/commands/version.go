package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/resourceloader/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "resourceloader %s (commit: %s, built: %s, repository: %s)\n",
				info.Version, info.Commit, info.Date, info.Repository)
			return err
		},
	}
}
