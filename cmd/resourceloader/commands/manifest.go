package commands

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/resourceloader/fetch"
)

var errBlobNotConfigured = errors.New("resource reads from a blob but RESOURCE_BLOB_BUCKET_URL is not set")

// manifest is the YAML document listing the resources of one session.
//
//	locale: fr_CH
//	defaultLocale: en
//	terms: {env: prod}
//	options: {headers: {Accept: application/json}}
//	resources:
//	  labels: https://cdn.example.com/%env/labels.json
//	  messages: {path: ./messages.toml, dataType: messages}
//	  banner: {blob: banner.txt}
type manifest struct {
	Locale        string            `yaml:"locale"`
	DefaultLocale string            `yaml:"defaultLocale"`
	Terms         map[string]string `yaml:"terms"`
	DataType      string            `yaml:"dataType"`
	Options       map[string]any    `yaml:"options"`
	Resources     map[string]entry  `yaml:"resources"`
}

// entry is a resource record: either a bare url or a spec mapping. A blob
// key reads the resource from the configured bucket.
type entry struct {
	spec fetch.Spec
	blob string
}

func (e *entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.spec = fetch.URL(node.Value)
		return nil
	}

	var raw struct {
		fetch.Spec `yaml:",inline"`

		Blob string `yaml:"blob"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.spec = raw.Spec
	e.blob = raw.Blob
	return nil
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m manifest
	if err = yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// records turns the entries into resource records, binding blob entries to
// the runtime bucket.
func (m *manifest) records(rt *runtime) (map[string]any, error) {
	records := make(map[string]any, len(m.Resources))
	for key, e := range m.Resources {
		spec := e.spec
		if e.blob != "" {
			if rt.blob == nil {
				return nil, fmt.Errorf("resource %q: %w", key, errBlobNotConfigured)
			}
			spec.DataSource = rt.blob
			spec.DirectModel = e.blob
		}
		records[key] = spec
	}
	return records, nil
}

// resolveOptions layers the manifest settings over the runtime defaults.
func (m *manifest) resolveOptions(rt *runtime) fetch.ResolveOptions {
	opts := fetch.ResolveOptions{
		Locale:        rt.cfg.Locale(),
		DefaultLocale: rt.cfg.DefaultLocale(),
		Defaults:      fetch.Spec{DataType: m.DataType, Options: m.Options},
		Terms:         m.Terms,
	}
	if m.Locale != "" {
		opts.Locale = m.Locale
	}
	if m.DefaultLocale != "" {
		opts.DefaultLocale = m.DefaultLocale
	}
	return opts
}
