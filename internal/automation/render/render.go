// Package render substitutes {{token}} placeholders in automation mail
// templates. It is textual substitution only: there are no conditionals,
// loops or filters.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/sanitize"
)

// MaxTemplateBytes bounds each template part.
const MaxTemplateBytes = 256 << 10

var tokenPattern = regexp.MustCompile(`{{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*}}`)

// Template is the unrendered subject and bodies.
type Template struct {
	Subject string
	HTML    string
	Text    string
}

// FromMailContent adapts an automation's stored template.
func FromMailContent(c domain.MailContent) Template {
	return Template{Subject: c.Subject, HTML: c.HTMLContent, Text: c.TextContent}
}

// Rendered is the substituted output.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
	// Unresolved lists tokens left verbatim, in first-seen order.
	Unresolved []string
}

// Bindings is everything a render may read. Now is supplied by the caller so
// rendering stays deterministic.
type Bindings struct {
	EntityType events.EntityType
	Entity     domain.Snapshot
	Static     map[string]string
	Now        time.Time
	Locale     string
	SystemName string
}

// Error reports a template that cannot be rendered at all. Unknown tokens
// are not errors.
type Error struct {
	Part   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s: %s", e.Part, e.Reason)
}

type part int

const (
	partSubject part = iota
	partHTML
	partText
)

// Render substitutes every token in t. Resolution order: entity-derived
// variables, then the automation's static variables, then system variables.
// Tokens that resolve nowhere are kept as written.
func Render(t Template, b Bindings) (Rendered, error) {
	parts := []struct{ name, content string }{
		{"subject", t.Subject}, {"html", t.HTML}, {"text", t.Text},
	}
	for _, p := range parts {
		if len(p.content) > MaxTemplateBytes {
			return Rendered{}, &Error{Part: p.name, Reason: fmt.Sprintf("exceeds %d bytes", MaxTemplateBytes)}
		}
		if !utf8.ValidString(p.content) {
			return Rendered{}, &Error{Part: p.name, Reason: "invalid UTF-8"}
		}
	}

	r := newResolver(b)
	unresolved := make([]string, 0)
	seen := make(map[string]struct{})
	substitute := func(content string, p part) string {
		return tokenPattern.ReplaceAllStringFunc(content, func(token string) string {
			name := tokenPattern.FindStringSubmatch(token)[1]
			value, ok := r.resolve(name)
			if !ok {
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					unresolved = append(unresolved, name)
				}
				return token
			}
			return escape(value, p)
		})
	}

	out := Rendered{
		Subject: substitute(t.Subject, partSubject),
		HTML:    substitute(t.HTML, partHTML),
		Text:    substitute(t.Text, partText),
	}
	out.Subject = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(out.Subject)
	out.Unresolved = unresolved
	return out, nil
}

func escape(value string, p part) string {
	switch p {
	case partHTML:
		return html.EscapeString(value)
	case partSubject:
		return sanitize.HeaderLine(value)
	default:
		return sanitize.Text(value)
	}
}
