// Package domain defines reusable mail templates.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies what a template is used for.
type Type string

const (
	TypeInvitation    Type = "invitation"
	TypeVerification  Type = "verification"
	TypePasswordReset Type = "password_reset"
	TypeWelcome       Type = "welcome"
	TypeNotification  Type = "notification"
	TypeCustom        Type = "custom"
)

// Types lists every template type.
var Types = []Type{TypeInvitation, TypeVerification, TypePasswordReset, TypeWelcome, TypeNotification, TypeCustom}

// Status is the publication state of a template.
type Status string

const (
	StatusActive   Status = "active"
	StatusDraft    Status = "draft"
	StatusArchived Status = "archived"
)

// Statuses lists every template status.
var Statuses = []Status{StatusActive, StatusDraft, StatusArchived}

// Template is a company-owned or global mail template. Variables documents
// the tokens the template expects; it is not used when rendering.
type Template struct {
	ID          uuid.UUID
	CompanyID   *uuid.UUID
	Type        Type
	Name        string
	Subject     string
	HTMLContent string
	TextContent string
	Variables   map[string]string
	Status      Status
	IsDefault   bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContentChanged reports whether the rendered parts differ from other.
func (t Template) ContentChanged(other Template) bool {
	return t.Subject != other.Subject || t.HTMLContent != other.HTMLContent || t.TextContent != other.TextContent
}
