package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
)

var fixedNow = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

func candidateBindings() Bindings {
	return Bindings{
		EntityType: events.EntityCandidate,
		Entity: domain.Snapshot{
			"first_name": "Jean",
			"last_name":  "Dupont",
			"email":      "jean@x.com",
			"phone":      "06 12 34 56 78",
			"score":      87.5,
			"status":     "analyzed",
			"tags":       []any{"go", "sql"},
			"project": domain.Snapshot{
				"name":    "Data Platform",
				"company": domain.Snapshot{"name": "Acme"},
			},
		},
		Static:     map[string]string{"cta": "Open the dashboard", "name": "static name"},
		Now:        fixedNow,
		Locale:     "fr-FR",
		SystemName: "https://app.example.com",
	}
}

func TestRenderEntityAliasesAndSystemVariables(t *testing.T) {
	out, err := Render(Template{
		Subject: "New candidate: {{ name }}",
		HTML:    "<p>{{name}} ({{email}}, {{phone}}) scored {{score}} for {{project_name}} at {{company_name}}</p>",
		Text:    "{{cta}} on {{system_name}} - {{current_date}} - {{tags}} - {{project.company.name}}",
	}, candidateBindings())
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if out.Subject != "New candidate: Jean Dupont" {
		t.Fatalf("unexpected subject %q", out.Subject)
	}
	wantHTML := "<p>Jean Dupont (jean@x.com, +33612345678) scored 87.5 for Data Platform at Acme</p>"
	if out.HTML != wantHTML {
		t.Fatalf("unexpected html %q", out.HTML)
	}
	wantText := "Open the dashboard on https://app.example.com - 15/10/2026 - go, sql - Acme"
	if out.Text != wantText {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if len(out.Unresolved) != 0 {
		t.Fatalf("expected no unresolved tokens, got %v", out.Unresolved)
	}
}

func TestRenderEntityWinsOverStatic(t *testing.T) {
	out, err := Render(Template{Subject: "{{name}}"}, candidateBindings())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject != "Jean Dupont" {
		t.Fatalf("entity-derived value should win, got %q", out.Subject)
	}
}

func TestRenderLeavesUnresolvedTokens(t *testing.T) {
	out, err := Render(Template{
		Subject: "Hello {{unknown}}",
		HTML:    "<p>{{ unknown }} {{other.path}}</p>",
	}, candidateBindings())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject != "Hello {{unknown}}" {
		t.Fatalf("unresolved token should stay verbatim, got %q", out.Subject)
	}
	if out.HTML != "<p>{{ unknown }} {{other.path}}</p>" {
		t.Fatalf("unresolved token should stay verbatim, got %q", out.HTML)
	}
	if strings.Join(out.Unresolved, ",") != "unknown,other.path" {
		t.Fatalf("unexpected unresolved list %v", out.Unresolved)
	}
}

func TestRenderEscapesPerPart(t *testing.T) {
	b := candidateBindings()
	b.Entity["summary"] = "<script>x</script>Great\r\nBcc: evil@example.com"

	out, err := Render(Template{
		Subject: "{{summary}}",
		HTML:    "<div>{{summary}}</div>",
		Text:    "{{summary}}",
	}, b)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.ContainsAny(out.Subject, "\r\n") || strings.Contains(out.Subject, "<script>") {
		t.Fatalf("subject not sanitized: %q", out.Subject)
	}
	if !strings.Contains(out.HTML, "&lt;script&gt;") {
		t.Fatalf("html value not escaped: %q", out.HTML)
	}
	if strings.Contains(out.Text, "<script>") {
		t.Fatalf("text value still has markup: %q", out.Text)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	tpl := Template{
		Subject: "{{name}} {{current_date}}",
		HTML:    "{{tags}} {{missing}} {{score}}",
		Text:    "{{company_name}}",
	}
	first, err := Render(tpl, candidateBindings())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Render(tpl, candidateBindings())
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if again.Subject != first.Subject || again.HTML != first.HTML || again.Text != first.Text {
			t.Fatalf("render output changed between calls")
		}
	}
}

func TestRenderRejectsInvalidTemplates(t *testing.T) {
	_, err := Render(Template{Subject: "bad \xff"}, candidateBindings())
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Part != "subject" {
		t.Fatalf("expected subject render error, got %v", err)
	}

	_, err = Render(Template{HTML: strings.Repeat("a", MaxTemplateBytes+1)}, candidateBindings())
	if !errors.As(err, &rerr) || rerr.Part != "html" {
		t.Fatalf("expected html size error, got %v", err)
	}
}

func TestProjectNameForProjectEntity(t *testing.T) {
	out, err := Render(Template{Subject: "{{project_name}} / {{company_name}}"}, Bindings{
		EntityType: events.EntityProject,
		Entity: domain.Snapshot{
			"name":    "Hiring 2026",
			"company": domain.Snapshot{"name": "Acme"},
		},
		Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject != "Hiring 2026 / Acme" {
		t.Fatalf("unexpected subject %q", out.Subject)
	}
}

func TestFormatDateLocales(t *testing.T) {
	cases := map[string]string{
		"fr-FR": "15/10/2026",
		"en-US": "10/15/2026",
		"de":    "15.10.2026",
		"":      "2026-10-15",
		"zz":    "2026-10-15",
	}
	for locale, want := range cases {
		if got := FormatDate(fixedNow, locale); got != want {
			t.Fatalf("FormatDate(%q) = %q, want %q", locale, got, want)
		}
	}
}
