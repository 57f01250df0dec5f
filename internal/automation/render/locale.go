package render

import (
	"time"

	"golang.org/x/text/language"
)

var (
	supportedLocales = []language.Tag{
		language.French,
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.Dutch,
		language.Spanish,
		language.Italian,
	}
	dateLayouts = []string{
		"02/01/2006",
		"01/02/2006",
		"02/01/2006",
		"02.01.2006",
		"02-01-2006",
		"02/01/2006",
		"02/01/2006",
	}
	localeMatcher = language.NewMatcher(supportedLocales)
)

const isoDateLayout = "2006-01-02"

// FormatDate renders t as a calendar date in the conventions of locale.
// Unknown or empty locales fall back to ISO 8601.
func FormatDate(t time.Time, locale string) string {
	if locale == "" {
		return t.Format(isoDateLayout)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return t.Format(isoDateLayout)
	}
	_, idx, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return t.Format(isoDateLayout)
	}
	return t.Format(dateLayouts[idx])
}

// regionOf extracts the ISO region used to interpret national phone numbers.
func regionOf(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	region, confidence := tag.Region()
	if confidence == language.No {
		return ""
	}
	return region.String()
}
