package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// OptionCharEncoding names the request option selecting the character
// encoding used to decode a file read by the path loader.
const OptionCharEncoding = "charEncoding"

// ErrSourceMismatch is returned when a loader is handed a source of a kind it
// does not serve.
var ErrSourceMismatch = errors.New("loader received a source it cannot serve")

// URLFetcher is the transport used by the url loader.
type URLFetcher interface {
	Fetch(ctx context.Context, url string, options map[string]any) (string, error)
}

// Defaults returns a registry with the standard loaders in their standard
// order: resourceText, promise, dataSource, url and path. A nil fetcher
// leaves the url kind unregistered.
func Defaults(fetcher URLFetcher) *Registry {
	r := NewRegistry().
		MustRegister(KindText, TextLoader).
		MustRegister(KindPromise, PromiseLoader).
		MustRegister(KindDataSource, DataSourceLoader)

	if fetcher != nil {
		r.MustRegister(KindURL, URLLoader(fetcher))
	}

	return r.MustRegister(KindPath, PathLoader)
}

// TextLoader relays text supplied directly on the resource.
func TextLoader(_ context.Context, src Source, _ map[string]any) (string, error) {
	s, ok := src.(TextSource)
	if !ok {
		return "", mismatch(KindText, src)
	}
	return s.Text, nil
}

// PromiseLoader waits for a pre-supplied asynchronous value.
func PromiseLoader(ctx context.Context, src Source, _ map[string]any) (string, error) {
	s, ok := src.(PromiseSource)
	if !ok {
		return "", mismatch(KindPromise, src)
	}
	return s.Promise.Await(ctx)
}

// DataSourceLoader calls Get on the resource's data source.
func DataSourceLoader(ctx context.Context, src Source, options map[string]any) (string, error) {
	s, ok := src.(DataSourceSource)
	if !ok {
		return "", mismatch(KindDataSource, src)
	}
	return s.Source.Get(ctx, s.DirectModel, options)
}

// URLLoader fetches URL sources through fetcher.
func URLLoader(fetcher URLFetcher) Loader {
	return func(ctx context.Context, src Source, options map[string]any) (string, error) {
		s, ok := src.(URLSource)
		if !ok {
			return "", mismatch(KindURL, src)
		}
		return fetcher.Fetch(ctx, s.URL, options)
	}
}

// PathLoader reads a file, decoding it from the encoding named by the
// charEncoding option. UTF-8 is assumed when the option is absent.
func PathLoader(_ context.Context, src Source, options map[string]any) (string, error) {
	s, ok := src.(PathSource)
	if !ok {
		return "", mismatch(KindPath, src)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", err
	}

	charEncoding, _ := options[OptionCharEncoding].(string)
	return decode(data, charEncoding)
}

func decode(data []byte, charEncoding string) (string, error) {
	switch strings.ToLower(charEncoding) {
	case "", "utf-8", "utf8":
		return string(data), nil
	}

	enc, err := htmlindex.Get(charEncoding)
	if err != nil {
		return "", fmt.Errorf("unsupported character encoding %q: %w", charEncoding, err)
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("could not decode %s content: %w", charEncoding, err)
	}
	return string(decoded), nil
}

func mismatch(want Kind, src Source) error {
	if src == nil {
		return fmt.Errorf("%w: want %s, got none", ErrSourceMismatch, want)
	}
	return fmt.Errorf("%w: want %s, got %s", ErrSourceMismatch, want, src.Kind())
}
