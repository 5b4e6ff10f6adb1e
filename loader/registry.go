// Package loader resolves a resource's location fields to the strategy that
// fetches its raw text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrNoLoader marks a resource none of whose fields match a registered loader.
	ErrNoLoader = errors.New("no resource loader matches the resource")
	// ErrUnknownKind is returned when registering a loader for a kind that has
	// no corresponding location field.
	ErrUnknownKind = errors.New("unknown resource loader kind")
)

// Loader fetches the raw text of one resource.
type Loader func(ctx context.Context, src Source, options map[string]any) (string, error)

// Resolved pairs the chosen loader with the kind of field that selected it
// and the source built from that field.
type Resolved struct {
	Kind   Kind
	Loader Loader
	Source Source
}

// ConfigError reports a resource that cannot be loaded by any registered
// loader. It is a configuration mistake, not an I/O failure.
type ConfigError struct {
	Kinds []Kind
}

func (e *ConfigError) Error() string {
	kinds := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		kinds[i] = string(k)
	}
	return fmt.Sprintf("%s; it should have had one of the fields %s filled out",
		ErrNoLoader.Error(), strings.Join(kinds, ", "))
}

func (e *ConfigError) Unwrap() error {
	return ErrNoLoader
}

type entry struct {
	kind   Kind
	loader Loader
}

// Registry holds loaders in a fixed enumeration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a loader for kind, or replaces the loader of an already
// registered kind keeping its position.
func (r *Registry) Register(kind Kind, l Loader) error {
	if !knownKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if l == nil {
		return fmt.Errorf("nil loader for kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].kind == kind {
			r.entries[i].loader = l
			return nil
		}
	}
	r.entries = append(r.entries, entry{kind: kind, loader: l})
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind Kind, l Loader) *Registry {
	if err := r.Register(kind, l); err != nil {
		panic(err)
	}
	return r
}

// Kinds lists the registered kinds in enumeration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.kind
	}
	return kinds
}

// Resolve walks the registry in order and picks the first loader whose field
// is present on f.
func (r *Registry) Resolve(f Fields) (Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if src, ok := f.source(e.kind); ok {
			return Resolved{Kind: e.kind, Loader: e.loader, Source: src}, nil
		}
	}

	kinds := make([]Kind, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.kind
	}
	return Resolved{}, &ConfigError{Kinds: kinds}
}

func knownKind(kind Kind) bool {
	return slices.Contains([]Kind{KindText, KindPromise, KindDataSource, KindURL, KindPath}, kind)
}
