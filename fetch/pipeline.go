package fetch

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/pitabwire/resourceloader/loader"
	"github.com/pitabwire/resourceloader/outcome"
)

// Stage names, in execution order.
const (
	StageLoader       = "loader"
	StageResourceText = "resourceText"
	StageParser       = "parser"
	StageParsed       = "parsed"
)

type stageFunc func(ctx context.Context, d *Descriptor, in any) (any, error)

type stage struct {
	name string
	run  stageFunc
}

// pipeline is the transform chain of one descriptor. Each stage consumes the
// output of the previous one; the first error ends the chain.
type pipeline struct {
	stages []stage
}

func (p *pipeline) execute(ctx context.Context, d *Descriptor) (value any, err error) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: resource %q stage %s: %v", ErrStagePanic, d.key, current, r)
		}
	}()

	for _, st := range p.stages {
		current = st.name
		value, err = st.run(ctx, d, value)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

func (p *pipeline) names() []string {
	names := make([]string, 0, len(p.stages))
	for _, st := range p.stages {
		names = append(names, st.name)
	}
	return names
}

// buildPipeline subscribes the four stages of d and arms its outcome. A
// descriptor can be subscribed only once.
func (f *Fetcher) buildPipeline(d *Descriptor) error {
	if d.pipeline != nil {
		return fmt.Errorf("%w: %q", ErrAlreadySubscribed, d.key)
	}

	options, err := f.requestOptions(d)
	if err != nil {
		return fmt.Errorf("resource %q: preparing request options: %w", d.key, err)
	}

	d.pipeline = &pipeline{stages: []stage{
		{name: StageLoader, run: f.loadStage},
		{name: StageResourceText, run: noteResourceText},
		{name: StageParser, run: parseStage},
		{name: StageParsed, run: noteParsed},
	}}
	d.options = options
	d.outcome = outcome.New[any]()
	return nil
}

// requestOptions deep merges the session options, the descriptor's own
// options and the authoritative location keyed by its kind.
func (f *Fetcher) requestOptions(d *Descriptor) (map[string]any, error) {
	bag := map[string]any{}
	for _, layer := range []map[string]any{f.options, d.spec.Options} {
		if err := mergo.Merge(&bag, cloneOptions(layer), mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	bag[string(d.resolved.Kind)] = d.resolved.Source.Value()
	return bag, nil
}

func cloneOptions(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			v = cloneOptions(nested)
		}
		out[k] = v
	}
	return out
}

func (f *Fetcher) loadStage(ctx context.Context, d *Descriptor, _ any) (any, error) {
	d.advance(StateLoading)

	if d.Localized() {
		return f.loadVariants(ctx, d)
	}

	text, err := invoke(ctx, d.resolved.Loader, d.resolved.Source, d.Options())
	if err != nil {
		return nil, err
	}
	d.setResolved(d.resolved.Source.Location(), "")
	return text, nil
}

func noteResourceText(_ context.Context, d *Descriptor, in any) (any, error) {
	text, _ := in.(string)
	d.setText(text)
	return text, nil
}

func parseStage(ctx context.Context, d *Descriptor, in any) (any, error) {
	d.advance(StateParsing)
	text, _ := in.(string)
	return d.parse(ctx, text)
}

func noteParsed(_ context.Context, d *Descriptor, in any) (any, error) {
	d.setParsed(in)
	return in, nil
}

// invoke runs a loader, turning a panic into an error.
func invoke(ctx context.Context, l loader.Loader, src loader.Source, options map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrLoaderPanic, src.Location(), r)
		}
	}()
	return l(ctx, src, options)
}
