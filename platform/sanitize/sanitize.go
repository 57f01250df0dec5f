// Package sanitize provides text sanitization utilities to prevent XSS and
// header injection.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	// lineBreakRegex matches any run of line breaks and surrounding blanks
	lineBreakRegex = regexp.MustCompile(`[ \t]*[\r\n]+[ \t]*`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = strings.ReplaceAll(result, "&amp;", "&")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes a string for safe text storage by stripping HTML.
func Text(s string) string {
	return StripHTML(s)
}

// TextPtr is a helper for optional string pointers
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}

// HeaderLine strips markup and collapses line breaks into single spaces so
// the value can be placed in a mail header such as Subject.
func HeaderLine(s string) string {
	result := StripHTML(s)
	result = lineBreakRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
