package fetch

import (
	"maps"
	"slices"
	"sync"

	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/locale"
	"github.com/pitabwire/resourceloader/outcome"
	"github.com/pitabwire/resourceloader/parser"
)

// Spec is the raw description of one resource as supplied by a caller.
type Spec struct {
	loader.Fields `yaml:",inline"`

	// Locale selects localized variants of a url or path resource.
	Locale string `yaml:"locale"`
	// DefaultLocale is tried before Locale and also stands in for it when
	// Locale is empty.
	DefaultLocale string `yaml:"defaultLocale"`
	// DataType selects the parser; empty means the text is kept as is.
	DataType string `yaml:"dataType"`
	// Options are handed to the loader, merged over the session options.
	Options map[string]any `yaml:"options"`
}

// URL is shorthand for a Spec fetched from url.
func URL(url string) Spec {
	return Spec{Fields: loader.Fields{URL: url}}
}

// State is the position of a descriptor in its lifecycle.
type State int

const (
	StateRegistered State = iota
	StateLoading
	StateParsing
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateLoading:
		return "loading"
	case StateParsing:
		return "parsing"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Descriptor is one resource of a fetch session. It is created by the
// session, advanced only by its own pipeline and read by anyone.
type Descriptor struct {
	key  string
	spec Spec

	resolved loader.Resolved
	parse    parser.Parser
	variants []locale.Variant
	sources  []loader.Source

	pipeline *pipeline
	outcome  *outcome.Outcome[any]

	mu               sync.RWMutex
	state            State
	launched         bool
	options          map[string]any
	text             string
	parsed           any
	resolvedLocation string
	resolvedLocale   string
	err              error
}

func newDescriptor(key string, spec Spec, resolved loader.Resolved, parse parser.Parser) *Descriptor {
	return &Descriptor{
		key:      key,
		spec:     spec,
		resolved: resolved,
		parse:    parse,
		state:    StateRegistered,
	}
}

// Key is the name the resource was registered under.
func (d *Descriptor) Key() string { return d.key }

// Spec returns the spec after session defaults were applied.
func (d *Descriptor) Spec() Spec { return d.spec }

// Kind is the kind of the loader chosen for the resource.
func (d *Descriptor) Kind() loader.Kind { return d.resolved.Kind }

// Source is the authoritative location of the resource.
func (d *Descriptor) Source() loader.Source { return d.resolved.Source }

// Locale is the requested locale, empty when the resource is not localized.
func (d *Descriptor) Locale() string { return d.spec.Locale }

// Localized reports whether the resource is fetched through locale fallback.
func (d *Descriptor) Localized() bool { return len(d.sources) > 0 }

// Variants lists the locations probed for a localized resource, least
// specific first.
func (d *Descriptor) Variants() []locale.Variant { return slices.Clone(d.variants) }

// Stages lists the pipeline stages of the resource in execution order.
func (d *Descriptor) Stages() []string { return d.pipeline.names() }

// Outcome settles with the parsed value or the error that stopped the
// pipeline.
func (d *Descriptor) Outcome() *outcome.Outcome[any] { return d.outcome }

func (d *Descriptor) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Descriptor) Launched() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.launched
}

// Options returns a copy of the request options handed to the loader.
func (d *Descriptor) Options() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.options)
}

// ResourceText is the raw text produced by the loader.
func (d *Descriptor) ResourceText() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Parsed is the value produced by the parser.
func (d *Descriptor) Parsed() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parsed
}

// ResolvedLocation is the location the text was actually loaded from. For a
// localized resource this is the most specific variant that loaded.
func (d *Descriptor) ResolvedLocation() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolvedLocation
}

// ResolvedLocale is the locale of the winning variant. It is empty when the
// unlocalized name won or the resource is not localized.
func (d *Descriptor) ResolvedLocale() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolvedLocale
}

// Err is the error the resource failed with, if any.
func (d *Descriptor) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Pending reports whether the resource has not settled yet.
func (d *Descriptor) Pending() bool {
	return !d.outcome.Settled()
}

// markLaunched flips the launched flag and reports whether this call did it.
func (d *Descriptor) markLaunched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.launched {
		return false
	}
	d.launched = true
	return true
}

// advance moves the descriptor forward. Backward moves are ignored.
func (d *Descriptor) advance(to State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if to > d.state {
		d.state = to
	}
}

func (d *Descriptor) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

func (d *Descriptor) setParsed(parsed any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = parsed
}

func (d *Descriptor) setResolved(location, tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolvedLocation = location
	d.resolvedLocale = tag
}

// finish records the final state. The outcome is settled separately so that
// settled hooks observe the descriptor before any waiter does.
func (d *Descriptor) finish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateSettled
	d.err = err
}
