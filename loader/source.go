package loader

import (
	"context"
	"fmt"

	"github.com/pitabwire/resourceloader/outcome"
)

// Kind names a location field of a resource and the loader serving it.
type Kind string

const (
	KindText       Kind = "resourceText"
	KindPromise    Kind = "promise"
	KindDataSource Kind = "dataSource"
	KindURL        Kind = "url"
	KindPath       Kind = "path"
)

// Awaitable is a pre-supplied asynchronous resource text.
type Awaitable = outcome.Awaitable[string]

// DataSource is an external collaborator able to produce resource text.
type DataSource interface {
	Get(ctx context.Context, directModel any, options map[string]any) (string, error)
}

// Source is the authoritative location of one resource. The concrete types
// in this package are the only implementations.
type Source interface {
	Kind() Kind
	// Location is a printable form of the source used in logs and errors.
	Location() string
	// Value is the raw location value, as copied into the request options.
	Value() any
	isSource()
}

// Localizable is a Source whose location can be substituted by a localized
// variant of itself.
type Localizable interface {
	Source
	WithLocation(location string) Source
}

// TextSource relays text that was obtained elsewhere.
type TextSource struct {
	Text string
}

func (TextSource) Kind() Kind { return KindText }
func (TextSource) Location() string { return "<text>" }
func (s TextSource) Value() any { return s.Text }
func (TextSource) isSource() {}

// PromiseSource waits on a value produced by some other asynchronous process.
type PromiseSource struct {
	Promise Awaitable
}

func (PromiseSource) Kind() Kind { return KindPromise }
func (PromiseSource) Location() string { return "<promise>" }
func (s PromiseSource) Value() any { return s.Promise }
func (PromiseSource) isSource() {}

// DataSourceSource queries an external DataSource.
type DataSourceSource struct {
	Source      DataSource
	DirectModel any
}

func (DataSourceSource) Kind() Kind { return KindDataSource }

func (s DataSourceSource) Location() string {
	if s.DirectModel == nil {
		return fmt.Sprintf("<dataSource %T>", s.Source)
	}
	return fmt.Sprintf("<dataSource %T %v>", s.Source, s.DirectModel)
}

func (s DataSourceSource) Value() any { return s.Source }
func (DataSourceSource) isSource() {}

// URLSource is fetched over HTTP(S).
type URLSource struct {
	URL string
}

func (URLSource) Kind() Kind { return KindURL }
func (s URLSource) Location() string { return s.URL }
func (s URLSource) Value() any { return s.URL }
func (URLSource) WithLocation(location string) Source { return URLSource{URL: location} }
func (URLSource) isSource() {}

// PathSource is read from the filesystem.
type PathSource struct {
	Path string
}

func (PathSource) Kind() Kind { return KindPath }
func (s PathSource) Location() string { return s.Path }
func (s PathSource) Value() any { return s.Path }
func (PathSource) WithLocation(location string) Source { return PathSource{Path: location} }
func (PathSource) isSource() {}

// Fields is the raw set of location fields a resource may carry. More than
// one may be filled in; the Registry order decides which one is used.
type Fields struct {
	URL         string     `yaml:"url"`
	Path        string     `yaml:"path"`
	Text        string     `yaml:"resourceText"`
	Promise     Awaitable  `yaml:"-"`
	DataSource  DataSource `yaml:"-"`
	DirectModel any        `yaml:"directModel"`
}

// source returns the Source for kind if the matching field is present.
func (f Fields) source(kind Kind) (Source, bool) {
	switch kind {
	case KindText:
		return TextSource{Text: f.Text}, f.Text != ""
	case KindPromise:
		return PromiseSource{Promise: f.Promise}, f.Promise != nil
	case KindDataSource:
		return DataSourceSource{Source: f.DataSource, DirectModel: f.DirectModel}, f.DataSource != nil
	case KindURL:
		return URLSource{URL: f.URL}, f.URL != ""
	case KindPath:
		return PathSource{Path: f.Path}, f.Path != ""
	default:
		return nil, false
	}
}
