package locale_test

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/text/language"

	"github.com/pitabwire/resourceloader/locale"
)

type LocaleTestSuite struct {
	suite.Suite
}

func TestLocaleSuite(t *testing.T) {
	suite.Run(t, &LocaleTestSuite{})
}

func (s *LocaleTestSuite) TestExplode() {
	testCases := []struct {
		name          string
		fileName      string
		locale        string
		defaultLocale string
		expected      []string
	}{
		{
			name:          "locale with region and default",
			fileName:      "messages.json",
			locale:        "fr_CH",
			defaultLocale: "en",
			expected:      []string{"messages.json", "messages_en.json", "messages_fr.json", "messages_fr_CH.json"},
		},
		{
			name:     "no default locale",
			fileName: "messages.json",
			locale:   "fr_CH",
			expected: []string{"messages.json", "messages_fr.json", "messages_fr_CH.json"},
		},
		{
			name:     "no extension",
			fileName: "messages",
			locale:   "de",
			expected: []string{"messages", "messages_de"},
		},
		{
			name:     "leading dot is not an extension",
			fileName: ".messages",
			locale:   "de",
			expected: []string{".messages", ".messages_de"},
		},
		{
			name:          "url with directories keeps the last dot",
			fileName:      "http://example.com/v1.2/strings.properties",
			locale:        "es_MX",
			defaultLocale: "es",
			expected: []string{
				"http://example.com/v1.2/strings.properties",
				"http://example.com/v1.2/strings_es.properties",
				"http://example.com/v1.2/strings_es.properties",
				"http://example.com/v1.2/strings_es_MX.properties",
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, locale.Explode(tc.fileName, tc.locale, tc.defaultLocale))
		})
	}
}

func (s *LocaleTestSuite) TestVariantsCarryTheirLocale() {
	variants := locale.Variants("messages.json", "fr_CH", "en")

	s.Require().Len(variants, 4)
	s.Equal(locale.Variant{Name: "messages.json"}, variants[0])
	s.Equal("en", variants[1].Locale)
	s.Equal("fr", variants[2].Locale)
	s.Equal("fr_CH", variants[3].Locale)
}

func (s *LocaleTestSuite) TestExplodeIsDeterministic() {
	first := locale.Explode("a.txt", "pt_BR_x", "en")
	second := locale.Explode("a.txt", "pt_BR_x", "en")
	s.Equal(first, second)
	s.Equal("a_pt_BR_x.txt", first[len(first)-1])
}

func (s *LocaleTestSuite) TestNormalize() {
	testCases := []struct {
		in       string
		expected string
		wantErr  bool
	}{
		{in: "fr-ch", expected: "fr_CH"},
		{in: "fr_CH", expected: "fr_CH"},
		{in: "EN", expected: "en"},
		{in: "", expected: ""},
		{in: "not a tag!", wantErr: true},
	}

	for _, tc := range testCases {
		s.Run(tc.in, func() {
			got, err := locale.Normalize(tc.in)
			if tc.wantErr {
				s.Require().ErrorIs(err, locale.ErrInvalidLocale)
				return
			}
			s.Require().NoError(err)
			s.Equal(tc.expected, got)
		})
	}
}

func (s *LocaleTestSuite) TestParse() {
	tag, err := locale.Parse("sw_KE")
	s.Require().NoError(err)
	s.Equal(language.MustParse("sw-KE"), tag)
}
