// Package localization turns fetched go-i18n message resources into a
// translation bundle.
package localization

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"

	"github.com/pitabwire/resourceloader/fetch"
	"github.com/pitabwire/resourceloader/locale"
	"github.com/pitabwire/resourceloader/parser"
)

type contextKey string

func (c contextKey) String() string {
	return "resourceloader/localization/" + string(c)
}

const ctxKeyLanguage = contextKey("languageKey")

// ErrNoLanguage is returned when a message resource carries no locale and no
// fallback language was given.
var ErrNoLanguage = errors.New("message resource has no language")

// ToContext adds language to the current supplied context.
func ToContext(ctx context.Context, lang []string) context.Context {
	return context.WithValue(ctx, ctxKeyLanguage, lang)
}

// FromContext extracts language from the supplied context if any exist.
func FromContext(ctx context.Context) []string {
	languages, ok := ctx.Value(ctxKeyLanguage).([]string)
	if !ok {
		return nil
	}

	return languages
}

type Manager interface {
	Bundle() *i18n.Bundle
	Translate(ctx context.Context, request any, messageID string) string
	TranslateWithMap(
		ctx context.Context,
		request any,
		messageID string,
		variables map[string]any,
	) string
	TranslateWithMapAndCount(
		ctx context.Context,
		request any,
		messageID string,
		variables map[string]any,
		count int,
	) string
}

type managerImpl struct {
	bundle *i18n.Bundle
}

// NewManager creates a manager over an empty bundle whose default language
// is fallback.
func NewManager(fallback language.Tag) Manager {
	return &managerImpl{bundle: i18n.NewBundle(fallback)}
}

// FromResources adds every fetched resource parsed into a *parser.MessageFile
// to a new bundle. A localized resource takes the locale of the variant that
// won; when the unlocalized base file won, its messages are taken to be in
// the default locale. Other resources use their requested locale, then their
// default locale. fallback applies when none of those is set. Resources are
// added in key order, so a later key overrides a message ID defined by an
// earlier one for the same language.
func FromResources(ctx context.Context, resources map[string]*fetch.Descriptor, fallback string) (Manager, error) {
	fallbackTag := language.English
	if fallback != "" {
		tag, err := locale.Parse(fallback)
		if err != nil {
			return nil, err
		}
		fallbackTag = tag
	}

	m := &managerImpl{bundle: i18n.NewBundle(fallbackTag)}
	log := util.Log(ctx)

	for _, key := range slices.Sorted(maps.Keys(resources)) {
		d := resources[key]
		if d == nil {
			continue
		}
		mf, ok := d.Parsed().(*parser.MessageFile)
		if !ok {
			continue
		}

		tag, err := resourceLanguage(d, fallback)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", key, err)
		}
		if err = m.bundle.AddMessages(tag, mf.Messages...); err != nil {
			return nil, fmt.Errorf("resource %q: %w", key, err)
		}

		log.WithField("resource", key).
			WithField("language", tag.String()).
			WithField("messages", len(mf.Messages)).
			Debug("messages added to bundle")
	}

	return m, nil
}

func resourceLanguage(d *fetch.Descriptor, fallback string) (language.Tag, error) {
	candidates := []string{d.Locale(), d.Spec().DefaultLocale, fallback}
	if d.Localized() {
		candidates = []string{d.ResolvedLocale(), d.Spec().DefaultLocale, fallback}
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return locale.Parse(candidate)
		}
	}
	return language.Und, ErrNoLanguage
}

// Bundle Access the translation bundle instatiated in the system.
func (s *managerImpl) Bundle() *i18n.Bundle {
	return s.bundle
}

// Translate performs a quick translation based on the supplied message id.
func (s *managerImpl) Translate(ctx context.Context, request any, messageID string) string {
	return s.TranslateWithMap(ctx, request, messageID, map[string]any{})
}

// TranslateWithMap performs a translation with variables based on the supplied message id.
func (s *managerImpl) TranslateWithMap(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
) string {
	return s.TranslateWithMapAndCount(ctx, request, messageID, variables, 1)
}

// TranslateWithMapAndCount performs a translation with variables based on the
// supplied message id and can pluralize. The request names the wanted
// languages: a string, a []string, an *http.Request or a context carrying
// languages added with ToContext.
func (s *managerImpl) TranslateWithMapAndCount(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
	count int,
) string {
	var languageSlice []string

	switch v := request.(type) {
	case *http.Request:
		languageSlice = ExtractLanguageFromHTTPRequest(v)
	case context.Context:
		languageSlice = FromContext(v)
	case string:
		languageSlice = []string{v}
	case []string:
		languageSlice = v
	default:
		util.Log(ctx).
			WithField("messageID", messageID).
			WithField("variables", variables).
			Warn("no valid request object found, use string, []string, context or http.Request")
		return messageID
	}

	localizer := i18n.NewLocalizer(s.bundle, languageSlice...)

	translated, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      messageID,
		DefaultMessage: &i18n.Message{ID: messageID, Other: messageID},
		TemplateData:   variables,
		PluralCount:    count,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("messageID", messageID).Error("could not perform translation")
	}

	return translated
}

func ExtractLanguageFromHTTPRequest(req *http.Request) []string {
	var languages []string
	if lang := req.URL.Query().Get("lang"); lang != "" {
		languages = append(languages, lang)
	}

	return append(languages, ExtractLanguageFromHTTPHeader(req.Header)...)
}

func ExtractLanguageFromHTTPHeader(req http.Header) []string {
	header := req.Get("Accept-Language")
	if header == "" {
		return nil
	}
	return strings.Split(header, ",")
}
