package fetch

import (
	"context"
	"maps"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/resourceloader/outcome"
)

// ResourceLoader is a long lived owner of one fetch session. It exposes each
// resource as soon as it loads and tells listeners once all of them have.
type ResourceLoader struct {
	fetcher *Fetcher

	mu        sync.RWMutex
	resources map[string]*Descriptor
	listeners []func(map[string]*Descriptor)

	loadOnce sync.Once
}

// NewResourceLoader resolves records with resolve and registers them into a
// new session. Nothing is fetched until Load or Resource is called.
func NewResourceLoader(
	ctx context.Context,
	records map[string]any,
	resolve ResolveOptions,
	opts ...Option,
) (*ResourceLoader, error) {
	specs, err := ResolveResources(records, resolve)
	if err != nil {
		return nil, err
	}

	l := &ResourceLoader{resources: make(map[string]*Descriptor, len(specs))}

	fetcherOpts := make([]Option, 0, len(opts)+2)
	if resolve.DefaultLocale != "" {
		fetcherOpts = append(fetcherOpts, WithDefaultLocale(resolve.DefaultLocale))
	}
	fetcherOpts = append(fetcherOpts, opts...)
	fetcherOpts = append(fetcherOpts, WithSettledHook(l.noteResource))

	l.fetcher, err = New(ctx, specs, fetcherOpts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *ResourceLoader) noteResource(d *Descriptor) {
	if d.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resources[d.key] = d
}

// Fetcher is the session behind the loader.
func (l *ResourceLoader) Fetcher() *Fetcher { return l.fetcher }

// Resources returns the resources loaded so far.
func (l *ResourceLoader) Resources() map[string]*Descriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.resources)
}

// OnResourcesLoaded registers fn to receive the loaded resources once every
// resource of the session has loaded. It is not called if any fails.
func (l *ResourceLoader) OnResourcesLoaded(fn func(map[string]*Descriptor)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Resource demands one resource ahead of the others.
func (l *ResourceLoader) Resource(ctx context.Context, key string) (*outcome.Outcome[any], error) {
	return l.fetcher.FetchOne(ctx, key)
}

// Load fetches every resource not demanded yet. Resources demanded earlier
// through Resource may already be in, in which case listeners fire as soon
// as the rest settle.
func (l *ResourceLoader) Load(ctx context.Context) *outcome.Outcome[map[string]*Descriptor] {
	completion := l.fetcher.FetchAll(ctx)

	l.loadOnce.Do(func() {
		completion.Then(func(_ map[string]*Descriptor, err error) {
			if err != nil {
				util.Log(ctx).
					WithError(err).
					WithField("session", l.fetcher.ID()).
					Error("failure loading resources")
				return
			}

			l.mu.RLock()
			listeners := append([]func(map[string]*Descriptor){}, l.listeners...)
			resources := maps.Clone(l.resources)
			l.mu.RUnlock()

			for _, fn := range listeners {
				fn(resources)
			}
		})
	})
	return completion
}
