package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"gopkg.in/yaml.v3"
)

// SyntaxError locates a decoding failure within the resource text.
type SyntaxError struct {
	Format string
	Offset int64
	Line   int
	Column int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("could not parse %s at line %d, column %d: %v", e.Format, e.Line, e.Column, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

func newSyntaxError(format, text string, offset int64, err error) *SyntaxError {
	line, column := position(text, offset)
	return &SyntaxError{Format: format, Offset: offset, Line: line, Column: column, Err: err}
}

// position converts a byte offset into a 1-based line and column.
func position(text string, offset int64) (int, int) {
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	if offset < 0 {
		offset = 0
	}

	prefix := text[:offset]
	line := strings.Count(prefix, "\n") + 1
	column := len(prefix) - strings.LastIndex(prefix, "\n")
	return line, column
}

// JSON decodes text as JSON. Malformed input yields a *SyntaxError.
func JSON(_ context.Context, text string) (any, error) {
	var value any
	err := json.Unmarshal([]byte(text), &value)
	if err == nil {
		return value, nil
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return nil, newSyntaxError("JSON", text, syntaxErr.Offset, err)
	}
	return nil, fmt.Errorf("could not parse JSON: %w", err)
}

// YAML decodes text as YAML.
func YAML(_ context.Context, text string) (any, error) {
	var value any
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("could not parse YAML: %w", err)
	}
	return value, nil
}

// TOML decodes text as a TOML document. Malformed input yields a *SyntaxError.
func TOML(_ context.Context, text string) (any, error) {
	value := map[string]any{}
	_, err := toml.Decode(text, &value)
	if err == nil {
		return value, nil
	}

	var parseErr toml.ParseError
	if errors.As(err, &parseErr) {
		return nil, newSyntaxError("TOML", text, int64(parseErr.Position.Start), errors.New(parseErr.Message))
	}
	return nil, fmt.Errorf("could not parse TOML: %w", err)
}

// MessageFile is a set of go-i18n messages. The language is not part of the
// text, it is assigned by whoever adds the messages to a bundle.
type MessageFile struct {
	Format   string
	Messages []*i18n.Message
}

var messageUnmarshalers = map[string]i18n.UnmarshalFunc{
	TypeJSON: json.Unmarshal,
	TypeTOML: toml.Unmarshal,
	TypeYAML: yaml.Unmarshal,
}

// Messages decodes a go-i18n message file written as JSON, TOML or YAML.
func Messages(_ context.Context, text string) (any, error) {
	format := sniffFormat(text)

	// go-i18n reads the format and a language from the file name; the
	// language here is a placeholder dropped below.
	mf, err := i18n.ParseMessageFileBytes([]byte(text), "messages.en."+format, messageUnmarshalers)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s messages: %w", format, err)
	}

	return &MessageFile{Format: format, Messages: mf.Messages}, nil
}

func sniffFormat(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		return TypeJSON
	}

	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			return TypeTOML
		}
		eq := strings.Index(line, "=")
		colon := strings.Index(line, ":")
		if eq >= 0 && (colon < 0 || eq < colon) {
			return TypeTOML
		}
		return TypeYAML
	}
	return TypeJSON
}
