package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/resourceloader/locale"
)

func newExplodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "explode <name> <locale> [default-locale]",
		Short: "List the localized variants probed for a resource name",
		Long: `Print the variants of a resource name in the order they are probed,
least specific first. Locales may use hyphens or underscores.

Examples:
  resourceloader explode messages.json fr-ch en`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := locale.Normalize(args[1])
			if err != nil {
				return err
			}

			defaultTag := ""
			if len(args) == 3 {
				if defaultTag, err = locale.Normalize(args[2]); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, v := range locale.Variants(args[0], tag, defaultTag) {
				label := v.Locale
				if label == "" {
					label = "-"
				}
				if _, err = fmt.Fprintf(out, "%-8s %s\n", label, v.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
