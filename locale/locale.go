// Package locale expands localizable resource names into the ordered set of
// variants probed by the fallback driver.
package locale

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const separator = "_"

// ErrInvalidLocale is returned when a locale tag cannot be parsed.
var ErrInvalidLocale = errors.New("invalid locale tag")

// Variant is one localized form of a resource name together with the locale
// tag it was built for. The unmodified name carries an empty Locale.
type Variant struct {
	Name   string
	Locale string
}

// Variants explodes name into its localized variants in increasing order of
// specificity: the original name, the default locale variant (if any) and one
// variant per prefix of the underscore separated locale.
//
// For "messages.json", "fr_CH" and "en" this yields messages.json,
// messages_en.json, messages_fr.json and messages_fr_CH.json.
func Variants(name, locale, defaultLocale string) []Variant {
	base, ext := splitExtension(name)

	segs := strings.Split(locale, separator)
	variants := make([]Variant, 0, len(segs)+2)

	variants = append(variants, Variant{Name: name})
	if defaultLocale != "" {
		variants = append(variants, Variant{
			Name:   base + separator + defaultLocale + ext,
			Locale: defaultLocale,
		})
	}

	for i := range segs {
		tag := strings.Join(segs[:i+1], separator)
		variants = append(variants, Variant{
			Name:   base + separator + tag + ext,
			Locale: tag,
		})
	}

	return variants
}

// Explode returns only the names produced by Variants.
func Explode(name, locale, defaultLocale string) []string {
	variants := Variants(name, locale, defaultLocale)

	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	return names
}

// splitExtension cuts name at its last dot. A name without a dot, or whose
// only dot is the leading character, has no extension.
func splitExtension(name string) (string, string) {
	lastDot := strings.LastIndex(name, ".")
	if lastDot <= 0 {
		return name, ""
	}
	return name[:lastDot], name[lastDot:]
}

// Normalize canonicalises a user supplied locale tag into the underscore form
// used for resource names, e.g. "fr-ch" becomes "fr_CH".
func Normalize(tag string) (string, error) {
	if tag == "" {
		return "", nil
	}

	parsed, err := Parse(tag)
	if err != nil {
		return "", err
	}

	return strings.ReplaceAll(parsed.String(), "-", separator), nil
}

// Parse converts an underscore or hyphen separated locale into a language tag.
func Parse(tag string) (language.Tag, error) {
	parsed, err := language.Parse(strings.ReplaceAll(tag, separator, "-"))
	if err != nil {
		return language.Und, fmt.Errorf("%w %q: %w", ErrInvalidLocale, tag, err)
	}
	return parsed, nil
}
