// Package fetch coordinates fetching a named set of resources. Each resource
// runs through its own load, stash, parse and stash pipeline, localized
// resources fall back across locale variants, and one completion outcome
// reports when the whole set is in.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/resourceloader/client"
	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/outcome"
	"github.com/pitabwire/resourceloader/parser"
	"github.com/pitabwire/resourceloader/telemetry"
	"github.com/pitabwire/resourceloader/workerpool"
)

const instrumentationName = "github.com/pitabwire/resourceloader/fetch"

var (
	// ErrUnknownResource is returned when a key names no registered resource.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrDuplicateResource is returned when registering a key twice.
	ErrDuplicateResource = errors.New("resource already registered")
	// ErrSessionSettled is returned when registering into a finished session.
	ErrSessionSettled = errors.New("fetch session already settled")
	// ErrAlreadySubscribed is returned when a pipeline is built twice for
	// the same resource.
	ErrAlreadySubscribed = errors.New("resource already subscribed for I/O")
	// ErrLoaderPanic wraps a panic raised by a loader.
	ErrLoaderPanic = errors.New("loader panicked")
	// ErrStagePanic wraps a panic raised by a pipeline stage.
	ErrStagePanic = errors.New("pipeline stage panicked")
)

//nolint:gochecknoglobals // instruments are shared by every session
var (
	defaultTracer  = sync.OnceValue(func() telemetry.Tracer { return telemetry.NewTracer(instrumentationName) })
	defaultMetrics = sync.OnceValue(func() *telemetry.FetchMetrics { return telemetry.NewFetchMetrics(instrumentationName) })
)

// Fetcher is one fetch session. It owns its descriptors for its whole life
// and settles a single completion outcome.
type Fetcher struct {
	id            xid.ID
	defaultLocale string
	options       map[string]any

	loaders *loader.Registry
	parsers *parser.Registry
	pool    workerpool.WorkerPool
	tracer  telemetry.Tracer
	metrics *telemetry.FetchMetrics

	callbacks    []func(map[string]*Descriptor, error)
	callbackOnce sync.Once
	settled      []func(*Descriptor)

	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	completion  *outcome.Outcome[map[string]*Descriptor]
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCallback registers fn to be called once the session completes, with
// the descriptors on success or the first error on failure. Callbacks are
// attached when the first resource is launched.
func WithCallback(fn func(map[string]*Descriptor, error)) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.callbacks = append(f.callbacks, fn)
		}
	}
}

// WithDefaultLocale sets the default locale of every resource lacking one.
func WithDefaultLocale(tag string) Option {
	return func(f *Fetcher) {
		f.defaultLocale = tag
	}
}

// WithLoaders replaces the default loader registry.
func WithLoaders(r *loader.Registry) Option {
	return func(f *Fetcher) {
		f.loaders = r
	}
}

// WithParsers replaces the default parser registry.
func WithParsers(r *parser.Registry) Option {
	return func(f *Fetcher) {
		f.parsers = r
	}
}

// WithScheduler runs pipelines and completion checks on pool. Without it
// every task gets its own goroutine.
func WithScheduler(pool workerpool.WorkerPool) Option {
	return func(f *Fetcher) {
		f.pool = pool
	}
}

func WithTracer(tracer telemetry.Tracer) Option {
	return func(f *Fetcher) {
		f.tracer = tracer
	}
}

func WithMetrics(metrics *telemetry.FetchMetrics) Option {
	return func(f *Fetcher) {
		f.metrics = metrics
	}
}

// WithOptions sets request options shared by every resource of the session.
func WithOptions(options map[string]any) Option {
	return func(f *Fetcher) {
		f.options = options
	}
}

// WithSettledHook registers fn to run as each resource settles, before its
// outcome is settled and before the completion check it triggers. A panic in
// fn is logged and does not stop the resource from settling.
func WithSettledHook(fn func(*Descriptor)) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.settled = append(f.settled, fn)
		}
	}
}

// New registers specs into a fresh session without starting any I/O. A spec
// whose location fields match no loader fails the whole call.
func New(ctx context.Context, specs map[string]Spec, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		id:          xid.New(),
		descriptors: make(map[string]*Descriptor, len(specs)),
		completion:  outcome.New[map[string]*Descriptor](),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.loaders == nil {
		f.loaders = loader.Defaults(client.NewFetcher())
	}
	if f.parsers == nil {
		f.parsers = parser.Defaults()
	}
	if f.tracer == nil {
		f.tracer = defaultTracer()
	}
	if f.metrics == nil {
		f.metrics = defaultMetrics()
	}

	for _, key := range slices.Sorted(maps.Keys(specs)) {
		d, err := f.subscribe(key, specs[key])
		if err != nil {
			return nil, err
		}
		f.descriptors[key] = d
	}

	util.Log(ctx).
		WithField("session", f.id.String()).
		WithField("resources", len(specs)).
		Debug("fetch session registered")
	return f, nil
}

// Fetch registers specs and starts fetching all of them. onDone may be nil.
func Fetch(
	ctx context.Context,
	specs map[string]Spec,
	onDone func(map[string]*Descriptor, error),
	opts ...Option,
) (*Fetcher, error) {
	f, err := New(ctx, specs, append(opts, WithCallback(onDone))...)
	if err != nil {
		return nil, err
	}
	f.FetchAll(ctx)
	return f, nil
}

// ID identifies the session in logs.
func (f *Fetcher) ID() string { return f.id.String() }

// DefaultLocale is the session default locale.
func (f *Fetcher) DefaultLocale() string { return f.defaultLocale }

// Completion settles once every resource succeeded, or with the first error.
func (f *Fetcher) Completion() *outcome.Outcome[map[string]*Descriptor] { return f.completion }

// Descriptor returns the resource registered under key.
func (f *Fetcher) Descriptor(key string) (*Descriptor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.descriptors[key]
	return d, ok
}

// Descriptors returns a snapshot of every registered resource.
func (f *Fetcher) Descriptors() map[string]*Descriptor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.descriptors)
}

// Register adds a resource to a session that has not completed yet. It is
// not launched until FetchAll or FetchOne asks for it.
func (f *Fetcher) Register(ctx context.Context, key string, spec Spec) (*Descriptor, error) {
	if f.completion.Settled() {
		return nil, fmt.Errorf("%w: cannot add %q", ErrSessionSettled, key)
	}

	d, err := f.subscribe(key, spec)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completion.Settled() {
		return nil, fmt.Errorf("%w: cannot add %q", ErrSessionSettled, key)
	}
	if _, exists := f.descriptors[key]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateResource, key)
	}
	f.descriptors[key] = d

	util.Log(ctx).WithField("session", f.id.String()).WithField("resource", key).Debug("late resource registered")
	return d, nil
}

// FetchAll launches every resource not launched yet and returns the
// completion outcome. Calling it again only returns the same outcome.
func (f *Fetcher) FetchAll(ctx context.Context) *outcome.Outcome[map[string]*Descriptor] {
	f.attachCallbacks()
	descriptors := f.Descriptors()
	for _, key := range slices.Sorted(maps.Keys(descriptors)) {
		f.Launch(ctx, descriptors[key])
	}
	if len(descriptors) == 0 {
		f.scheduleCompletion(ctx)
	}
	return f.completion
}

// FetchOne launches the resource registered under key ahead of the rest of
// the session and returns its outcome. Repeated calls return the same
// outcome and load only once.
func (f *Fetcher) FetchOne(ctx context.Context, key string) (*outcome.Outcome[any], error) {
	d, ok := f.Descriptor(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, key)
	}
	return f.Launch(ctx, d), nil
}

// Launch starts the pipeline of d unless it already started and returns
// its outcome. The pipeline outlives cancellation of ctx.
func (f *Fetcher) Launch(ctx context.Context, d *Descriptor) *outcome.Outcome[any] {
	f.attachCallbacks()
	if !d.markLaunched() {
		return d.outcome
	}

	runCtx := context.WithoutCancel(ctx)
	workerpool.Go(runCtx, f.pool, func() { f.run(runCtx, d) })
	return d.outcome
}

func (f *Fetcher) run(ctx context.Context, d *Descriptor) {
	log := util.Log(ctx).
		WithField("session", f.id.String()).
		WithField("resource", d.key).
		WithField("kind", string(d.resolved.Kind))

	ctx, span := f.tracer.Start(ctx, "fetch", trace.WithAttributes(
		telemetry.AttrResourceKey.String(d.key),
		telemetry.AttrKindKey.String(string(d.resolved.Kind)),
		telemetry.AttrLocationKey.String(d.resolved.Source.Location()),
		telemetry.AttrLocaleKey.String(d.spec.Locale),
	))
	value, err := d.pipeline.execute(ctx, d)
	f.tracer.End(ctx, span, err)
	f.metrics.Settled(ctx, string(d.resolved.Kind), len(d.ResourceText()), err)

	d.finish(err)
	f.runSettledHooks(log, d)

	if err != nil {
		// The session is rejected before the resource stops being pending,
		// so no sibling can complete it over this failure.
		rejected := f.completion.Reject(err)
		d.outcome.Settle(value, err)

		log.WithError(err).Debug("resource failed")
		if rejected {
			log.WithError(err).Warn("fetch session failed")
		}
		return
	}

	d.outcome.Settle(value, nil)
	log.WithField("location", d.ResolvedLocation()).Debug("resource fetched")
	f.checkCompletion(ctx)
}

func (f *Fetcher) runSettledHooks(log *util.LogEntry, d *Descriptor) {
	for _, fn := range f.settled {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", fmt.Sprint(r)).Error("settled hook panicked")
				}
			}()
			fn(d)
		}()
	}
}

func (f *Fetcher) attachCallbacks() {
	f.callbackOnce.Do(func() {
		for _, fn := range f.callbacks {
			f.completion.Then(fn)
		}
	})
}

// checkCompletion resolves the session once nothing is pending. The
// resolution is deferred onto the scheduler, never run on the stack of the
// resource that settled last.
func (f *Fetcher) checkCompletion(ctx context.Context) {
	if f.pending() {
		return
	}
	f.scheduleCompletion(ctx)
}

func (f *Fetcher) scheduleCompletion(ctx context.Context) {
	workerpool.Go(ctx, f.pool, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.pendingLocked() || f.failedLocked() {
			return
		}
		if f.completion.Resolve(maps.Clone(f.descriptors)) {
			util.Log(ctx).WithField("session", f.id.String()).Debug("fetch session complete")
		}
	})
}

func (f *Fetcher) pending() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pendingLocked()
}

// failedLocked reports whether any resource settled with an error. Such a
// session is rejected by the failing resource itself.
func (f *Fetcher) failedLocked() bool {
	for _, d := range f.descriptors {
		if d.Err() != nil {
			return true
		}
	}
	return false
}

func (f *Fetcher) pendingLocked() bool {
	for _, d := range f.descriptors {
		if d.Pending() {
			return true
		}
	}
	return false
}

// subscribe applies locale defaults, resolves the loader and parser,
// explodes locale variants and builds the pipeline of one resource.
func (f *Fetcher) subscribe(key string, spec Spec) (*Descriptor, error) {
	if spec.DefaultLocale == "" {
		spec.DefaultLocale = f.defaultLocale
	}
	if spec.Locale == "" {
		spec.Locale = spec.DefaultLocale
	}

	resolved, err := f.loaders.Resolve(spec.Fields)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", key, err)
	}

	d := newDescriptor(key, spec, resolved, f.parsers.Resolve(spec.DataType))
	d.variants, d.sources = localize(resolved.Source, spec.Locale, spec.DefaultLocale)

	if err = f.buildPipeline(d); err != nil {
		return nil, err
	}
	return d, nil
}
