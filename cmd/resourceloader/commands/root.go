// Package commands implements the resourceloader CLI.
package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. Each call returns fresh commands
// so flag state never leaks between runs.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "resourceloader",
		Short: "Fetch, localize and parse sets of resources",
		Long: `resourceloader fetches a named set of resources from urls, files, inline
text or a blob bucket, falls back across locale variants of localized
resources and parses the results.

Settings are read from the environment, for example:
  LOG_LEVEL=debug
  RESOURCE_DEFAULT_LOCALE=en
  RESOURCE_HTTP_TIMEOUT=10s
  RESOURCE_BLOB_BUCKET_URL=file:///srv/resources

Use "resourceloader [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newFetchCommand())
	root.AddCommand(newTranslateCommand())
	root.AddCommand(newExplodeCommand())
	root.AddCommand(newVersionCommand())
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
