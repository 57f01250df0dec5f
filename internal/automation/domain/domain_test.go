package domain

import (
	"testing"
	"time"

	"recruitment_backend/internal/events"

	"github.com/google/uuid"
)

func TestSnapshotLookup(t *testing.T) {
	summary := "strong profile"
	var missing *string
	snap := Snapshot{
		"status":  "analyzed",
		"summary": &summary,
		"notes":   missing,
		"tags":    []string{"go", "sql"},
		"project": map[string]any{
			"name":    "Backend",
			"company": Snapshot{"name": "Acme"},
		},
	}

	cases := []struct {
		path string
		want any
		ok   bool
	}{
		{"status", "analyzed", true},
		{"summary", "strong profile", true},
		{"project.company.name", "Acme", true},
		{"tags.1", "sql", true},
		{"tags.5", nil, false},
		{"notes", nil, false},
		{"project.missing", nil, false},
		{"status.length", nil, false},
		{"", nil, false},
	}
	for _, tc := range cases {
		got, ok := snap.Lookup(tc.path)
		if ok != tc.ok {
			t.Fatalf("Lookup(%q) ok = %v, want %v", tc.path, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("Lookup(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestTriggerFor(t *testing.T) {
	got, err := TriggerFor(events.OperationUpdate)
	if err != nil || got != TriggerOnUpdate {
		t.Fatalf("TriggerFor(UPDATE) = %v, %v", got, err)
	}
	if _, err := TriggerFor("TRUNCATE"); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestAutomationAppliesTo(t *testing.T) {
	company := uuid.New()
	other := uuid.New()

	global := Automation{}
	if !global.AppliesTo(nil) || !global.AppliesTo(&company) {
		t.Fatal("global automation should apply everywhere")
	}

	scoped := Automation{CompanyID: &company}
	if !scoped.AppliesTo(&company) {
		t.Fatal("scoped automation should apply to its company")
	}
	if scoped.AppliesTo(&other) || scoped.AppliesTo(nil) {
		t.Fatal("scoped automation must not leak to other companies")
	}
}

func TestConditionFieldsDeduplicatesTopLevel(t *testing.T) {
	a := Automation{Conditions: []ConditionSpec{
		{Field: "status"},
		{Field: "project.company_id"},
		{Field: "project.name"},
		{Field: "status"},
	}}
	got := a.ConditionFields()
	if len(got) != 2 || got[0] != "status" || got[1] != "project" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestDedupeKeyStable(t *testing.T) {
	entity, automation := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	if DedupeKey(entity, automation, at) != DedupeKey(entity, automation, at.UTC()) {
		t.Fatal("dedupe key must not depend on the time zone")
	}
	if DedupeKey(entity, automation, at) == DedupeKey(entity, automation, at.Add(time.Nanosecond)) {
		t.Fatal("distinct event instants must produce distinct keys")
	}
}
