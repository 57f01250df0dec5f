// Package domain holds the automation engine's core types. It has no
// dependencies on storage or transport.
package domain

import (
	"fmt"
	"strings"
	"time"

	"recruitment_backend/internal/events"

	"github.com/google/uuid"
)

// TriggerEvent is the lifecycle transition an automation listens to.
type TriggerEvent string

const (
	TriggerOnCreate TriggerEvent = "ON_CREATE"
	TriggerOnUpdate TriggerEvent = "ON_UPDATE"
	TriggerOnDelete TriggerEvent = "ON_DELETE"
)

// TriggerEvents lists every supported trigger.
var TriggerEvents = []TriggerEvent{TriggerOnCreate, TriggerOnUpdate, TriggerOnDelete}

// Valid reports whether t is a supported trigger.
func (t TriggerEvent) Valid() bool {
	return t == TriggerOnCreate || t == TriggerOnUpdate || t == TriggerOnDelete
}

// TriggerFor maps a committed operation to the trigger it fires.
func TriggerFor(op events.Operation) (TriggerEvent, error) {
	switch op {
	case events.OperationCreate:
		return TriggerOnCreate, nil
	case events.OperationUpdate:
		return TriggerOnUpdate, nil
	case events.OperationDelete:
		return TriggerOnDelete, nil
	default:
		return "", fmt.Errorf("no trigger for operation %q", op)
	}
}

// ParseTriggerEvent accepts any casing of a supported trigger.
func ParseTriggerEvent(raw string) (TriggerEvent, error) {
	t := TriggerEvent(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown trigger event %q", raw)
	}
	return t, nil
}

// MailContent is the message template attached to an automation.
type MailContent struct {
	Subject     string `json:"subject" yaml:"subject"`
	HTMLContent string `json:"html_content" yaml:"html_content"`
	TextContent string `json:"text_content,omitempty" yaml:"text_content,omitempty"`
}

// ConditionSpec is the stored, untyped form of a condition. It is parsed
// into a typed predicate before evaluation.
type ConditionSpec struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Automation maps an entity type and lifecycle trigger, filtered by
// conditions, to an email.
type Automation struct {
	ID                uuid.UUID
	CompanyID         *uuid.UUID
	Title             string
	Description       *string
	EntityType        events.EntityType
	TriggerEvent      TriggerEvent
	IsActive          bool
	Recipients        []string
	MailTemplate      MailContent
	Conditions        []ConditionSpec
	TemplateVariables map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppliesTo reports whether the automation is in scope for an entity owned
// by companyID. Global automations apply to every company.
func (a Automation) AppliesTo(companyID *uuid.UUID) bool {
	if a.CompanyID == nil {
		return true
	}
	return companyID != nil && *a.CompanyID == *companyID
}

// ConditionFields returns the distinct top-level snapshot fields referenced
// by the automation's conditions, in first-seen order.
func (a Automation) ConditionFields() []string {
	seen := make(map[string]struct{}, len(a.Conditions))
	fields := make([]string, 0, len(a.Conditions))
	for _, c := range a.Conditions {
		top := strings.SplitN(strings.TrimSpace(c.Field), ".", 2)[0]
		if top == "" {
			continue
		}
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		fields = append(fields, top)
	}
	return fields
}
