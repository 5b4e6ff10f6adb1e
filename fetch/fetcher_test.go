package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gocloud.dev/blob/memblob"

	"github.com/pitabwire/resourceloader/datasource"
	"github.com/pitabwire/resourceloader/fetch"
	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/outcome"
	"github.com/pitabwire/resourceloader/parser"
	"github.com/pitabwire/resourceloader/workerpool"
)

const awaitTimeout = 5 * time.Second

var errNotHosted = errors.New("not hosted")

// site serves url resources out of a map and counts every request.
type site struct {
	mu      sync.Mutex
	pages   map[string]string
	hits    map[string]int
	options map[string]map[string]any
	gate    chan struct{}
}

func newSite(pages map[string]string) *site {
	return &site{
		pages:   pages,
		hits:    map[string]int{},
		options: map[string]map[string]any{},
	}
}

func (w *site) load(_ context.Context, src loader.Source, options map[string]any) (string, error) {
	if w.gate != nil {
		<-w.gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	location := src.Location()
	w.hits[location]++
	w.options[location] = options

	page, ok := w.pages[location]
	if !ok {
		return "", fmt.Errorf("%w: %s", errNotHosted, location)
	}
	return page, nil
}

func (w *site) hitsFor(location string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hits[location]
}

func (w *site) optionsFor(location string) map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.options[location]
}

func (w *site) registry() *loader.Registry {
	return loader.Defaults(nil).MustRegister(loader.KindURL, w.load)
}

type FetcherTestSuite struct {
	suite.Suite
}

func TestFetcherSuite(t *testing.T) {
	suite.Run(t, &FetcherTestSuite{})
}

func (s *FetcherTestSuite) await(o *outcome.Outcome[any]) (any, error) {
	ctx, cancel := context.WithTimeout(s.T().Context(), awaitTimeout)
	defer cancel()
	return o.Await(ctx)
}

func (s *FetcherTestSuite) awaitAll(f *fetch.Fetcher) (map[string]*fetch.Descriptor, error) {
	return s.awaitCompletion(f.Completion())
}

func (s *FetcherTestSuite) TestFetchOneIsIdempotent() {
	ctx := s.T().Context()
	web := newSite(map[string]string{"https://example.com/a.json": `{"value":"test"}`})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": fetch.URL("https://example.com/a.json"),
	}, fetch.WithLoaders(web.registry()))
	s.Require().NoError(err)

	first, err := f.FetchOne(ctx, "a")
	s.Require().NoError(err)
	second, err := f.FetchOne(ctx, "a")
	s.Require().NoError(err)
	s.Same(first, second)

	_, err = s.await(first)
	s.Require().NoError(err)

	third, err := f.FetchOne(ctx, "a")
	s.Require().NoError(err)
	s.Same(first, third)
	s.Equal(1, web.hitsFor("https://example.com/a.json"))

	_, err = f.FetchOne(ctx, "missing")
	s.Require().ErrorIs(err, fetch.ErrUnknownResource)
}

func (s *FetcherTestSuite) TestFetchAllResolvesWithParsedValues() {
	ctx := s.T().Context()
	web := newSite(map[string]string{
		"https://example.com/a.json": `{"value":"test"}`,
		"https://example.com/b.yaml": "value: other\n",
		"https://example.com/c.txt":  "plain text",
	})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": {Fields: loader.Fields{URL: "https://example.com/a.json"}, DataType: "json"},
		"b": {Fields: loader.Fields{URL: "https://example.com/b.yaml"}, DataType: "yaml"},
		"c": fetch.URL("https://example.com/c.txt"),
	}, fetch.WithLoaders(web.registry()))
	s.Require().NoError(err)

	completion := f.FetchAll(ctx)
	s.Same(completion, f.FetchAll(ctx))

	resources, err := s.awaitAll(f)
	s.Require().NoError(err)
	s.Len(resources, 3)

	s.Equal(map[string]any{"value": "test"}, resources["a"].Parsed())
	s.Equal(map[string]any{"value": "other"}, resources["b"].Parsed())
	s.Equal("plain text", resources["c"].Parsed())

	for key, d := range resources {
		value, outcomeErr := d.Outcome().Result()
		s.Require().NoError(outcomeErr, key)
		s.Equal(d.Parsed(), value, key)
		s.Equal(fetch.StateSettled, d.State(), key)
		s.Equal(1, web.hitsFor(d.Source().Location()), key)
	}
}

func (s *FetcherTestSuite) TestFirstFailureRejectsCompletionVerbatim() {
	ctx := s.T().Context()
	web := newSite(map[string]string{
		"https://example.com/ok-1": "one",
		"https://example.com/ok-2": "two",
	})

	boom := errors.New("transport exploded")
	registry := web.registry().MustRegister(loader.KindPath, func(context.Context, loader.Source, map[string]any) (string, error) {
		return "", boom
	})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"ok1": fetch.URL("https://example.com/ok-1"),
		"ok2": fetch.URL("https://example.com/ok-2"),
		"bad": {Fields: loader.Fields{Path: "/nowhere"}},
	}, fetch.WithLoaders(registry))
	s.Require().NoError(err)

	f.FetchAll(ctx)
	_, err = s.awaitAll(f)
	s.Require().Error(err)
	s.Same(boom, err)

	for _, key := range []string{"ok1", "ok2"} {
		d, ok := f.Descriptor(key)
		s.Require().True(ok)
		value, outcomeErr := s.await(d.Outcome())
		s.Require().NoError(outcomeErr)
		s.Equal(d.ResourceText(), value)
	}

	bad, _ := f.Descriptor("bad")
	s.Same(boom, bad.Err())
	s.Equal(fetch.StateSettled, bad.State())
}

func (s *FetcherTestSuite) TestParseFailureSettlesWithSyntaxError() {
	ctx := s.T().Context()
	web := newSite(map[string]string{"https://example.com/broken.json": `{"value":`})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"broken": {Fields: loader.Fields{URL: "https://example.com/broken.json"}, DataType: "JSON"},
	}, fetch.WithLoaders(web.registry()))
	s.Require().NoError(err)

	o, err := f.FetchOne(ctx, "broken")
	s.Require().NoError(err)
	_, err = s.await(o)

	var syntaxErr *parser.SyntaxError
	s.Require().ErrorAs(err, &syntaxErr)
	s.Contains(err.Error(), "could not parse JSON")

	d, _ := f.Descriptor("broken")
	s.Equal(`{"value":`, d.ResourceText())
	s.Nil(d.Parsed())
}

func (s *FetcherTestSuite) TestUnregisteredDataTypeRoundTrips() {
	ctx := s.T().Context()
	text := "<p>some markup</p>"

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"html": {Fields: loader.Fields{Text: text}, DataType: "html"},
	})
	s.Require().NoError(err)

	o, err := f.FetchOne(ctx, "html")
	s.Require().NoError(err)
	value, err := s.await(o)
	s.Require().NoError(err)

	d, _ := f.Descriptor("html")
	s.Equal(text, d.ResourceText())
	s.Equal(d.ResourceText(), d.Parsed())
	s.Equal(text, value)
	s.Equal([]string{
		fetch.StageLoader, fetch.StageResourceText, fetch.StageParser, fetch.StageParsed,
	}, d.Stages())
}

func (s *FetcherTestSuite) TestLocaleFallbackPicksMostSpecificSuccess() {
	ctx := s.T().Context()

	testCases := []struct {
		name         string
		pages        map[string]string
		wantText     string
		wantLocation string
		wantLocale   string
	}{
		{
			name: "only the most specific variant exists",
			pages: map[string]string{
				"https://example.com/messages_fr_CH.json": "A",
			},
			wantText:     "A",
			wantLocation: "https://example.com/messages_fr_CH.json",
			wantLocale:   "fr_CH",
		},
		{
			name: "every variant exists",
			pages: map[string]string{
				"https://example.com/messages.json":       "base",
				"https://example.com/messages_en.json":    "en",
				"https://example.com/messages_fr.json":    "fr",
				"https://example.com/messages_fr_CH.json": "fr_CH",
			},
			wantText:     "fr_CH",
			wantLocation: "https://example.com/messages_fr_CH.json",
			wantLocale:   "fr_CH",
		},
		{
			name: "degrades to the language",
			pages: map[string]string{
				"https://example.com/messages.json":    "base",
				"https://example.com/messages_fr.json": "fr",
			},
			wantText:     "fr",
			wantLocation: "https://example.com/messages_fr.json",
			wantLocale:   "fr",
		},
		{
			name: "degrades to the unlocalized name",
			pages: map[string]string{
				"https://example.com/messages.json": "base",
			},
			wantText:     "base",
			wantLocation: "https://example.com/messages.json",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			web := newSite(tc.pages)
			f, err := fetch.New(ctx, map[string]fetch.Spec{
				"messages": {
					Fields: loader.Fields{URL: "https://example.com/messages.json"},
					Locale: "fr_CH",
				},
			}, fetch.WithLoaders(web.registry()), fetch.WithDefaultLocale("en"))
			s.Require().NoError(err)

			o, err := f.FetchOne(ctx, "messages")
			s.Require().NoError(err)
			value, err := s.await(o)
			s.Require().NoError(err)
			s.Equal(tc.wantText, value)

			d, _ := f.Descriptor("messages")
			s.True(d.Localized())
			s.Equal(tc.wantLocation, d.ResolvedLocation())
			s.Equal(tc.wantLocale, d.ResolvedLocale())

			for _, v := range d.Variants() {
				s.Equal(1, web.hitsFor(v.Name), v.Name)
				s.Equal(v.Name, web.optionsFor(v.Name)["url"])
			}
		})
	}
}

func (s *FetcherTestSuite) TestLocaleFallbackExhausted() {
	ctx := s.T().Context()
	web := newSite(nil)

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"messages": {Fields: loader.Fields{URL: "https://example.com/messages.json"}, Locale: "fr_CH"},
	}, fetch.WithLoaders(web.registry()), fetch.WithDefaultLocale("en"))
	s.Require().NoError(err)

	s.False(f.Completion().Settled(), "nothing launched yet")

	f.FetchAll(ctx)
	_, err = s.awaitAll(f)

	var locErr *fetch.LocalizationError
	s.Require().ErrorAs(err, &locErr)
	s.Equal([]string{
		"https://example.com/messages.json",
		"https://example.com/messages_en.json",
		"https://example.com/messages_fr.json",
		"https://example.com/messages_fr_CH.json",
	}, locErr.Locations)
	for _, location := range locErr.Locations {
		s.Contains(err.Error(), location)
	}
	s.Len(locErr.Errors, 4)
	s.ErrorIs(locErr.Errors[0], errNotHosted)
}

func (s *FetcherTestSuite) TestLocaleDefaults() {
	ctx := s.T().Context()

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"inherits":   fetch.URL("https://example.com/a.json"),
		"own":        {Fields: loader.Fields{URL: "https://example.com/b.json"}, DefaultLocale: "de"},
		"text":       {Fields: loader.Fields{Text: "not localizable"}},
		"explicitly": {Fields: loader.Fields{URL: "https://example.com/c.json"}, Locale: "pt_BR"},
	}, fetch.WithLoaders(newSite(nil).registry()), fetch.WithDefaultLocale("en"))
	s.Require().NoError(err)

	inherits, _ := f.Descriptor("inherits")
	s.Equal("en", inherits.Spec().DefaultLocale)
	s.Equal("en", inherits.Locale())
	s.Equal([]string{"https://example.com/a.json", "https://example.com/a_en.json", "https://example.com/a_en.json"},
		names(inherits))

	own, _ := f.Descriptor("own")
	s.Equal("de", own.Locale())

	text, _ := f.Descriptor("text")
	s.Equal("en", text.Locale())
	s.False(text.Localized())

	explicitly, _ := f.Descriptor("explicitly")
	s.Equal([]string{
		"https://example.com/c.json",
		"https://example.com/c_en.json",
		"https://example.com/c_pt.json",
		"https://example.com/c_pt_BR.json",
	}, names(explicitly))
}

func names(d *fetch.Descriptor) []string {
	var out []string
	for _, v := range d.Variants() {
		out = append(out, v.Name)
	}
	return out
}

func (s *FetcherTestSuite) TestOptionsBag() {
	ctx := s.T().Context()
	web := newSite(map[string]string{"https://example.com/a.json": "{}"})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": {
			Fields: loader.Fields{URL: "https://example.com/a.json"},
			Options: map[string]any{
				"headers": map[string]any{"Accept": "application/json"},
				"timeout": "5s",
			},
		},
	},
		fetch.WithLoaders(web.registry()),
		fetch.WithOptions(map[string]any{
			"headers": map[string]any{"User-Agent": "tests", "Accept": "*/*"},
			"timeout": "1s",
		}),
	)
	s.Require().NoError(err)

	d, _ := f.Descriptor("a")
	expected := map[string]any{
		"headers": map[string]any{"User-Agent": "tests", "Accept": "application/json"},
		"timeout": "5s",
		"url":     "https://example.com/a.json",
	}
	s.Equal(expected, d.Options())

	o, _ := f.FetchOne(ctx, "a")
	_, err = s.await(o)
	s.Require().NoError(err)
	s.Equal(expected, web.optionsFor("https://example.com/a.json"))
}

func (s *FetcherTestSuite) TestConfigurationErrorBeforeIO() {
	ctx := s.T().Context()
	web := newSite(nil)

	_, err := fetch.New(ctx, map[string]fetch.Spec{
		"good":  fetch.URL("https://example.com/a"),
		"empty": {DataType: "json"},
	}, fetch.WithLoaders(web.registry()))

	var cfgErr *loader.ConfigError
	s.Require().ErrorAs(err, &cfgErr)
	s.Require().ErrorIs(err, loader.ErrNoLoader)
	s.Contains(err.Error(), `"empty"`)
	s.Equal(0, web.hitsFor("https://example.com/a"))
}

func (s *FetcherTestSuite) TestLateRegistration() {
	ctx := s.T().Context()
	web := newSite(map[string]string{
		"https://example.com/a": "a",
		"https://example.com/b": "b",
	})

	f, err := fetch.New(ctx, map[string]fetch.Spec{"a": fetch.URL("https://example.com/a")},
		fetch.WithLoaders(web.registry()))
	s.Require().NoError(err)

	d, err := f.Register(ctx, "b", fetch.URL("https://example.com/b"))
	s.Require().NoError(err)
	s.Equal(fetch.StateRegistered, d.State())
	s.False(d.Launched())

	_, err = f.Register(ctx, "b", fetch.URL("https://example.com/b"))
	s.Require().ErrorIs(err, fetch.ErrDuplicateResource)

	resources, err := s.awaitCompletion(f.FetchAll(ctx))
	s.Require().NoError(err)
	s.Len(resources, 2)
	s.Equal("b", resources["b"].Parsed())

	_, err = f.Register(ctx, "c", fetch.URL("https://example.com/c"))
	s.Require().ErrorIs(err, fetch.ErrSessionSettled)
}

func (s *FetcherTestSuite) awaitCompletion(
	o *outcome.Outcome[map[string]*fetch.Descriptor],
) (map[string]*fetch.Descriptor, error) {
	ctx, cancel := context.WithTimeout(s.T().Context(), awaitTimeout)
	defer cancel()
	return o.Await(ctx)
}

func (s *FetcherTestSuite) TestCompletionWaitsForEveryResource() {
	ctx := s.T().Context()
	web := newSite(map[string]string{
		"https://example.com/a": "a",
		"https://example.com/b": "b",
	})

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": fetch.URL("https://example.com/a"),
		"b": fetch.URL("https://example.com/b"),
	}, fetch.WithLoaders(web.registry()))
	s.Require().NoError(err)

	o, err := f.FetchOne(ctx, "a")
	s.Require().NoError(err)
	_, err = s.await(o)
	s.Require().NoError(err)

	time.Sleep(50 * time.Millisecond)
	s.False(f.Completion().Settled(), "b was never launched")

	resources, err := s.awaitCompletion(f.FetchAll(ctx))
	s.Require().NoError(err)
	s.Len(resources, 2)
	s.Equal(1, web.hitsFor("https://example.com/a"))
}

func (s *FetcherTestSuite) TestCompletionIsDeferred() {
	ctx := s.T().Context()

	var sawSettledCompletion atomic.Bool
	var f *fetch.Fetcher
	var err error
	f, err = fetch.New(ctx, map[string]fetch.Spec{
		"a": {Fields: loader.Fields{Text: "a"}},
	}, fetch.WithSettledHook(func(*fetch.Descriptor) {
		sawSettledCompletion.Store(f.Completion().Settled())
	}))
	s.Require().NoError(err)

	_, err = s.awaitCompletion(f.FetchAll(ctx))
	s.Require().NoError(err)
	s.False(sawSettledCompletion.Load())
}

func (s *FetcherTestSuite) TestEmptySessionCompletes() {
	ctx := s.T().Context()

	f, err := fetch.New(ctx, nil)
	s.Require().NoError(err)

	resources, err := s.awaitCompletion(f.FetchAll(ctx))
	s.Require().NoError(err)
	s.Empty(resources)
}

func (s *FetcherTestSuite) TestFetchWithCallback() {
	ctx := s.T().Context()

	done := make(chan error, 1)
	var got map[string]*fetch.Descriptor
	_, err := fetch.Fetch(ctx, map[string]fetch.Spec{
		"a": {Fields: loader.Fields{Text: `{"a":1}`}, DataType: "json"},
	}, func(resources map[string]*fetch.Descriptor, err error) {
		got = resources
		done <- err
	})
	s.Require().NoError(err)

	select {
	case err = <-done:
		s.Require().NoError(err)
	case <-time.After(awaitTimeout):
		s.FailNow("callback never ran")
	}
	s.InDelta(1.0, got["a"].Parsed().(map[string]any)["a"], 0.0001)
}

func (s *FetcherTestSuite) TestLoaderPanicBecomesError() {
	ctx := s.T().Context()
	registry := loader.NewRegistry().MustRegister(loader.KindURL,
		func(context.Context, loader.Source, map[string]any) (string, error) {
			panic("kaboom")
		})

	f, err := fetch.New(ctx, map[string]fetch.Spec{"a": fetch.URL("https://example.com/a")},
		fetch.WithLoaders(registry))
	s.Require().NoError(err)

	o, _ := f.FetchOne(ctx, "a")
	_, err = s.await(o)
	s.Require().ErrorIs(err, fetch.ErrLoaderPanic)
	s.Contains(err.Error(), "kaboom")
}

func (s *FetcherTestSuite) TestSourceKinds() {
	ctx := s.T().Context()

	bucket := memblob.OpenBucket(nil)
	defer func() { s.NoError(bucket.Close()) }()
	s.Require().NoError(bucket.WriteAll(ctx, "labels.json", []byte(`{"from":"blob"}`), nil))

	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "strings_fr.toml"), []byte(`from = "file"`), 0o600))

	promise := outcome.New[string]()

	pool, err := workerpool.New(ctx, nil)
	s.Require().NoError(err)
	defer pool.Shutdown()

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"blob": {
			Fields:   loader.Fields{DataSource: datasource.NewBlob(bucket), DirectModel: "labels.json"},
			DataType: parser.TypeJSON,
		},
		"file": {
			Fields:   loader.Fields{Path: filepath.Join(dir, "strings.toml")},
			Locale:   "fr",
			DataType: parser.TypeTOML,
		},
		"promise": {Fields: loader.Fields{Promise: promise}},
	}, fetch.WithLoaders(loader.Defaults(nil)), fetch.WithScheduler(pool))
	s.Require().NoError(err)

	completion := f.FetchAll(ctx)
	promise.Resolve("from promise")

	resources, err := s.awaitCompletion(completion)
	s.Require().NoError(err)

	s.Equal(loader.KindDataSource, resources["blob"].Kind())
	s.Equal(map[string]any{"from": "blob"}, resources["blob"].Parsed())
	s.Equal(map[string]any{"from": "file"}, resources["file"].Parsed())
	s.Equal("fr", resources["file"].ResolvedLocale())
	s.Equal("from promise", resources["promise"].Parsed())
	s.Equal(loader.KindPromise, resources["promise"].Kind())
}

func (s *FetcherTestSuite) TestSiblingsKeepRunningAfterFailure() {
	ctx := s.T().Context()
	web := newSite(map[string]string{"https://example.com/slow": "slow"})
	web.gate = make(chan struct{})

	boom := errors.New("fails fast")
	registry := web.registry().MustRegister(loader.KindText,
		func(context.Context, loader.Source, map[string]any) (string, error) { return "", boom })

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"slow": fetch.URL("https://example.com/slow"),
		"fast": {Fields: loader.Fields{Text: "x"}},
	}, fetch.WithLoaders(registry))
	s.Require().NoError(err)

	_, err = s.awaitCompletion(f.FetchAll(ctx))
	s.Require().ErrorIs(err, boom)

	slow, _ := f.Descriptor("slow")
	s.True(slow.Pending())
	close(web.gate)

	value, err := s.await(slow.Outcome())
	s.Require().NoError(err)
	s.Equal("slow", value)
}

// inlinePool runs every task on the submitting goroutine.
type inlinePool struct{}

func (inlinePool) Submit(_ context.Context, task func()) error {
	task()
	return nil
}

func (inlinePool) Shutdown() {}

func (s *FetcherTestSuite) TestFailureIsRejectedBeforeItsOutcomeSettles() {
	ctx := s.T().Context()
	boom := errors.New("bad resource")
	bad := outcome.New[string]()
	bad.Reject(boom)

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"bad":  {Fields: loader.Fields{Promise: bad}},
		"good": {Fields: loader.Fields{Text: "fine"}},
	}, fetch.WithScheduler(inlinePool{}))
	s.Require().NoError(err)

	badOutcome, err := f.FetchOne(ctx, "bad")
	s.Require().NoError(err)

	observed := make(chan error, 1)
	badOutcome.Then(func(any, error) {
		_, completionErr := f.Completion().Result()
		// The sibling runs to completion, and checks the session, right here.
		_, _ = f.FetchOne(context.WithoutCancel(ctx), "good")
		observed <- completionErr
	})

	select {
	case completionErr := <-observed:
		s.Same(boom, completionErr)
	case <-time.After(awaitTimeout):
		s.FailNow("failed resource never settled")
	}

	_, err = s.awaitAll(f)
	s.Same(boom, err)

	good, _ := f.Descriptor("good")
	value, err := s.await(good.Outcome())
	s.Require().NoError(err)
	s.Equal("fine", value)
}

func (s *FetcherTestSuite) TestSiblingCompletingDuringFailureCannotResolveSession() {
	ctx := s.T().Context()
	boom := errors.New("bad resource")
	bad := outcome.New[string]()
	bad.Reject(boom)

	var f *fetch.Fetcher
	var err error
	f, err = fetch.New(ctx, map[string]fetch.Spec{
		"bad":  {Fields: loader.Fields{Promise: bad}},
		"good": {Fields: loader.Fields{Text: "fine"}},
	}, fetch.WithScheduler(inlinePool{}), fetch.WithSettledHook(func(d *fetch.Descriptor) {
		if d.Key() != "bad" {
			return
		}
		good, launchErr := f.FetchOne(context.WithoutCancel(ctx), "good")
		s.NoError(launchErr)
		s.True(good.Settled())
	}))
	s.Require().NoError(err)

	_, err = f.FetchOne(ctx, "bad")
	s.Require().NoError(err)

	_, err = s.awaitAll(f)
	s.Same(boom, err)
}

func (s *FetcherTestSuite) TestPanickingSettledHookStillSettles() {
	ctx := s.T().Context()

	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": {Fields: loader.Fields{Text: "a"}},
		"b": {Fields: loader.Fields{Text: "b"}},
	}, fetch.WithSettledHook(func(*fetch.Descriptor) {
		panic("hook exploded")
	}))
	s.Require().NoError(err)

	resources, err := s.awaitCompletion(f.FetchAll(ctx))
	s.Require().NoError(err)
	s.Len(resources, 2)

	value, err := s.await(resources["a"].Outcome())
	s.Require().NoError(err)
	s.Equal("a", value)
}

func (s *FetcherTestSuite) TestCallbackRunsWhenResourcesAreFetchedOneByOne() {
	ctx := s.T().Context()

	done := make(chan error, 1)
	f, err := fetch.New(ctx, map[string]fetch.Spec{
		"a": {Fields: loader.Fields{Text: "a"}},
		"b": {Fields: loader.Fields{Text: "b"}},
	}, fetch.WithCallback(func(_ map[string]*fetch.Descriptor, err error) {
		done <- err
	}))
	s.Require().NoError(err)

	for _, key := range []string{"a", "b"} {
		_, err = f.FetchOne(ctx, key)
		s.Require().NoError(err)
	}

	select {
	case err = <-done:
		s.Require().NoError(err)
	case <-time.After(awaitTimeout):
		s.FailNow("callback never ran")
	}
}
