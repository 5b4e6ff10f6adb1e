package fetch

import (
	"context"
	"strings"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/locale"
)

// LocalizationError reports that no variant of a localized resource loaded.
type LocalizationError struct {
	// Locations lists every probed location, least specific first.
	Locations []string
	// Errors holds the failure of each probe, aligned with Locations.
	Errors []error
}

func (e *LocalizationError) Error() string {
	return "no localised variants of the resource could be found at any of the paths " +
		strings.Join(e.Locations, ", ")
}

// attempt is the settled result of loading one variant.
type attempt struct {
	text string
	err  error
}

// localize computes the variants of a localizable source. It returns nil
// when the descriptor carries no locale or its source has no location to
// substitute.
func localize(src loader.Source, tag, defaultLocale string) ([]locale.Variant, []loader.Source) {
	if tag == "" {
		return nil, nil
	}
	localizable, ok := src.(loader.Localizable)
	if !ok {
		return nil, nil
	}

	variants := locale.Variants(src.Location(), tag, defaultLocale)
	sources := make([]loader.Source, len(variants))
	for i, v := range variants {
		sources[i] = localizable.WithLocation(v.Name)
	}
	return variants, sources
}

// loadVariants loads every variant concurrently, waits for all of them and
// condenses the results to the most specific success.
func (f *Fetcher) loadVariants(ctx context.Context, d *Descriptor) (any, error) {
	base := d.Options()
	optionKey := string(d.resolved.Kind)

	attempts := make([]attempt, len(d.sources))
	var wg sync.WaitGroup
	for i, src := range d.sources {
		options := cloneOptions(base)
		options[optionKey] = src.Value()

		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts[i].text, attempts[i].err = invoke(ctx, d.resolved.Loader, src, options)
		}()
	}
	wg.Wait()

	winner := condense(attempts)
	if winner < 0 {
		locErr := &LocalizationError{
			Locations: make([]string, len(d.variants)),
			Errors:    make([]error, len(attempts)),
		}
		for i, v := range d.variants {
			locErr.Locations[i] = v.Name
			locErr.Errors[i] = attempts[i].err
		}
		return nil, locErr
	}

	chosen := d.variants[winner]
	util.Log(ctx).
		WithField("resource", d.key).
		WithField("location", chosen.Name).
		WithField("probed", len(attempts)).
		Debug("localized variant chosen")

	d.setResolved(chosen.Name, chosen.Locale)
	return attempts[winner].text, nil
}

// condense walks the attempts from the most specific to the least specific
// and returns the index of the first success, or -1 when all failed.
func condense(attempts []attempt) int {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].err == nil {
			return i
		}
	}
	return -1
}
