package fetch

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"dario.cat/mergo"
)

// ErrInvalidRecord is returned for a resource record that is neither a
// location string nor a Spec.
var ErrInvalidRecord = errors.New("resource record must be a string or a Spec")

// ResolveOptions are the settings a resource loader applies to every record
// before fetching.
type ResolveOptions struct {
	Locale        string
	DefaultLocale string
	// Defaults is the base every record is laid over.
	Defaults Spec
	// Terms substitutes %name placeholders in resource URLs.
	Terms map[string]string
}

// ResolveResources turns loosely typed records into specs. A string record
// is a URL. Record fields win over Locale and DefaultLocale, which win over
// Defaults; option maps are deep merged in the same order.
func ResolveResources(records map[string]any, opts ResolveOptions) (map[string]Spec, error) {
	specs := make(map[string]Spec, len(records))
	for key, record := range records {
		var user Spec
		switch r := record.(type) {
		case string:
			user = URL(r)
		case Spec:
			user = r
		case *Spec:
			if r == nil {
				return nil, fmt.Errorf("%w: %q is nil", ErrInvalidRecord, key)
			}
			user = *r
		default:
			return nil, fmt.Errorf("%w: %q is %T", ErrInvalidRecord, key, record)
		}

		spec, err := overlay(opts, user)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", key, err)
		}
		spec.URL = ExpandTerms(spec.URL, opts.Terms)
		specs[key] = spec
	}
	return specs, nil
}

func overlay(opts ResolveOptions, user Spec) (Spec, error) {
	spec := opts.Defaults
	spec.Options = nil
	overlayString(&spec.Locale, opts.Locale)
	overlayString(&spec.DefaultLocale, opts.DefaultLocale)

	overlayString(&spec.URL, user.URL)
	overlayString(&spec.Path, user.Path)
	overlayString(&spec.Text, user.Text)
	overlayString(&spec.Locale, user.Locale)
	overlayString(&spec.DefaultLocale, user.DefaultLocale)
	overlayString(&spec.DataType, user.DataType)
	if user.Promise != nil {
		spec.Promise = user.Promise
	}
	if user.DataSource != nil {
		spec.DataSource = user.DataSource
	}
	if user.DirectModel != nil {
		spec.DirectModel = user.DirectModel
	}

	options := cloneOptions(opts.Defaults.Options)
	if err := mergo.Merge(&options, cloneOptions(user.Options), mergo.WithOverride); err != nil {
		return Spec{}, err
	}
	if len(options) > 0 {
		spec.Options = options
	}
	return spec, nil
}

func overlayString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// ExpandTerms replaces every %name in s with terms[name]. Longer names are
// replaced first so that %lang is not clobbered by a %l term.
func ExpandTerms(s string, terms map[string]string) string {
	if s == "" || len(terms) == 0 || !strings.Contains(s, "%") {
		return s
	}

	names := slices.SortedFunc(maps.Keys(terms), func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "%"+name, terms[name])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
