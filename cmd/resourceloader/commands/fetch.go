package commands

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/pitabwire/util"
	"github.com/spf13/cobra"

	"github.com/pitabwire/resourceloader/fetch"
)

const defaultTimeout = time.Minute

type fetchFlags struct {
	output        string
	timeout       time.Duration
	locale        string
	defaultLocale string
	terms         map[string]string
	parsed        bool
}

func newFetchCommand() *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch <manifest.yaml>",
		Short: "Fetch every resource listed in a manifest",
		Long: `Fetch every resource of a YAML manifest as one session and print what
was loaded. The command fails with the first resource error.

Examples:
  # Summarise the resources
  resourceloader fetch resources.yaml

  # Dump the parsed values for French speakers in Switzerland
  resourceloader fetch resources.yaml --locale fr_CH --parsed -o json

  # Substitute %env in resource urls
  resourceloader fetch resources.yaml --term env=staging`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", defaultTimeout, "How long to wait for the session")
	cmd.Flags().StringVar(&flags.locale, "locale", "", "Locale of localized resources")
	cmd.Flags().StringVar(&flags.defaultLocale, "default-locale", "", "Default locale of localized resources")
	cmd.Flags().StringToStringVar(&flags.terms, "term", nil, "Url placeholder value, as name=value")
	cmd.Flags().BoolVar(&flags.parsed, "parsed", false, "Include parsed values in json and yaml output")

	return cmd
}

func runFetch(cmd *cobra.Command, path string, flags *fetchFlags) (err error) {
	outFormat, err := parseFormat(flags.output)
	if err != nil {
		return err
	}

	ctx, rt, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close(context.WithoutCancel(ctx))) }()

	rl, err := loadManifest(ctx, rt, path, flags)
	if err != nil {
		return err
	}

	log := util.Log(ctx).WithField("manifest", path).WithField("session", rl.Fetcher().ID())
	rl.OnResourcesLoaded(func(resources map[string]*fetch.Descriptor) {
		log.WithField("resources", len(resources)).Info("resources loaded")
	})

	waitCtx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	_, fetchErr := rl.Load(ctx).Await(waitCtx)

	if renderErr := render(cmd.OutOrStdout(), outFormat, summarize(rl.Fetcher().Descriptors(), flags.parsed)); renderErr != nil {
		return errors.Join(fetchErr, renderErr)
	}
	return fetchErr
}

// loadManifest reads the manifest at path and registers its resources in a
// new resource loader, flags taking precedence over manifest settings.
func loadManifest(ctx context.Context, rt *runtime, path string, flags *fetchFlags) (*fetch.ResourceLoader, error) {
	m, err := readManifest(path)
	if err != nil {
		return nil, err
	}

	records, err := m.records(rt)
	if err != nil {
		return nil, err
	}

	resolve := m.resolveOptions(rt)
	if flags.locale != "" {
		resolve.Locale = flags.locale
	}
	if flags.defaultLocale != "" {
		resolve.DefaultLocale = flags.defaultLocale
	}
	if len(flags.terms) > 0 {
		terms := maps.Clone(resolve.Terms)
		if terms == nil {
			terms = map[string]string{}
		}
		maps.Copy(terms, flags.terms)
		resolve.Terms = terms
	}

	return fetch.NewResourceLoader(ctx, records, resolve, rt.sessionOptions()...)
}

type resourceResult struct {
	Key      string `json:"key"                yaml:"key"`
	Kind     string `json:"kind"               yaml:"kind"`
	State    string `json:"state"              yaml:"state"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Locale   string `json:"locale,omitempty"   yaml:"locale,omitempty"`
	Bytes    int    `json:"bytes"              yaml:"bytes"`
	Error    string `json:"error,omitempty"    yaml:"error,omitempty"`
	Parsed   any    `json:"parsed,omitempty"   yaml:"parsed,omitempty"`
}

type summary []resourceResult

func summarize(descriptors map[string]*fetch.Descriptor, withParsed bool) summary {
	out := make(summary, 0, len(descriptors))
	for _, key := range slices.Sorted(maps.Keys(descriptors)) {
		d := descriptors[key]
		r := resourceResult{
			Key:      key,
			Kind:     string(d.Kind()),
			State:    d.State().String(),
			Location: d.ResolvedLocation(),
			Locale:   d.ResolvedLocale(),
			Bytes:    len(d.ResourceText()),
		}
		if err := d.Err(); err != nil {
			r.Error = err.Error()
		}
		if withParsed {
			r.Parsed = d.Parsed()
		}
		out = append(out, r)
	}
	return out
}

func (s summary) Headers() []string {
	return []string{"Key", "Kind", "State", "Location", "Locale", "Bytes", "Error"}
}

func (s summary) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, r := range s {
		locale := r.Locale
		if locale == "" {
			locale = "-"
		}
		rows = append(rows, []string{r.Key, r.Kind, r.State, r.Location, locale, strconv.Itoa(r.Bytes), r.Error})
	}
	return rows
}
