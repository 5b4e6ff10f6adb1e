// Package parser turns fetched resource text into a structured value.
package parser

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// Data type tags understood by the default registry.
const (
	TypeJSON     = "json"
	TypeYAML     = "yaml"
	TypeTOML     = "toml"
	TypeMessages = "messages"
)

// Parser decodes resource text. Failures are reported as errors, never as
// panics, so that a failed parse flows through the pipeline like a failed load.
type Parser func(ctx context.Context, text string) (any, error)

// Identity returns the text unchanged.
func Identity(_ context.Context, text string) (any, error) {
	return text, nil
}

// Registry maps data type tags to parsers. Lookups are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Defaults returns a registry holding the json, yaml, toml and messages parsers.
func Defaults() *Registry {
	return NewRegistry().
		Register(TypeJSON, JSON).
		Register(TypeYAML, YAML).
		Register(TypeTOML, TOML).
		Register(TypeMessages, Messages)
}

// Register adds or replaces the parser for dataType.
func (r *Registry) Register(dataType string, p Parser) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers[strings.ToLower(dataType)] = p
	return r
}

// Resolve returns the parser registered for dataType, or Identity when the
// tag is empty or unknown. The returned parser recovers panics into errors.
func (r *Registry) Resolve(dataType string) Parser {
	if dataType == "" {
		return Identity
	}

	r.mu.RLock()
	p, ok := r.parsers[strings.ToLower(dataType)]
	r.mu.RUnlock()

	if !ok || p == nil {
		return Identity
	}
	return guarded(dataType, p)
}

func guarded(dataType string, p Parser) Parser {
	return func(ctx context.Context, text string) (value any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s parser panicked: %v\n%s", dataType, r, debug.Stack())
			}
		}()
		return p(ctx, text)
	}
}
