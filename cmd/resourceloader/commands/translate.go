package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/resourceloader/localization"
)

type translateFlags struct {
	fetchFlags

	languages []string
	vars      map[string]string
	count     int
}

func newTranslateCommand() *cobra.Command {
	flags := &translateFlags{}

	cmd := &cobra.Command{
		Use:   "translate <manifest.yaml> <message-id>",
		Short: "Translate a message using the message files of a manifest",
		Long: `Fetch the resources of a manifest, add every resource parsed with the
"messages" data type to a translation bundle and print one message.

Examples:
  resourceloader translate i18n.yaml Greeting --lang sw --var Name=Amani`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args[0], args[1], flags)
		},
	}

	cmd.Flags().DurationVar(&flags.timeout, "timeout", defaultTimeout, "How long to wait for the session")
	cmd.Flags().StringVar(&flags.locale, "locale", "", "Locale of localized resources")
	cmd.Flags().StringVar(&flags.defaultLocale, "default-locale", "", "Default locale of localized resources")
	cmd.Flags().StringToStringVar(&flags.terms, "term", nil, "Url placeholder value, as name=value")
	cmd.Flags().StringSliceVar(&flags.languages, "lang", nil, "Preferred languages, most preferred first")
	cmd.Flags().StringToStringVar(&flags.vars, "var", nil, "Template variable, as name=value")
	cmd.Flags().IntVar(&flags.count, "count", 1, "Plural count")

	return cmd
}

func runTranslate(cmd *cobra.Command, path, messageID string, flags *translateFlags) (err error) {
	ctx, rt, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close(context.WithoutCancel(ctx))) }()

	rl, err := loadManifest(ctx, rt, path, &flags.fetchFlags)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	resources, err := rl.Load(ctx).Await(waitCtx)
	if err != nil {
		return err
	}

	fallback := rl.Fetcher().DefaultLocale()
	lm, err := localization.FromResources(ctx, resources, fallback)
	if err != nil {
		return err
	}

	languages := flags.languages
	if len(languages) == 0 && rt.cfg.Locale() != "" {
		languages = []string{rt.cfg.Locale()}
	}

	vars := make(map[string]any, len(flags.vars))
	for k, v := range flags.vars {
		vars[k] = v
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(),
		lm.TranslateWithMapAndCount(ctx, languages, messageID, vars, flags.count))
	return err
}
