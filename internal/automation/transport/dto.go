package transport

import (
	"time"

	"github.com/google/uuid"
)

// MailTemplate is the message an automation sends.
type MailTemplate struct {
	Subject     string `json:"subject" validate:"required,max=998"`
	HTMLContent string `json:"html_content" validate:"required"`
	TextContent string `json:"text_content,omitempty"`
}

// Condition is one predicate over an entity field.
type Condition struct {
	Field    string `json:"field" validate:"required,max=255"`
	Operator string `json:"operator" validate:"required,condition_operator"`
	Value    any    `json:"value,omitempty"`
}

// UpsertAutomationRequest creates or replaces an automation. CompanyID is
// only honoured for callers without a tenant; tenant users always write
// automations scoped to their own company.
type UpsertAutomationRequest struct {
	Title             string            `json:"title" validate:"required,min=1,max=200"`
	Description       *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	CompanyID         *uuid.UUID        `json:"company_id,omitempty"`
	EntityType        string            `json:"entity_type" validate:"required,entity_type"`
	TriggerEvent      string            `json:"trigger_event" validate:"required,trigger_event"`
	IsActive          *bool             `json:"is_active,omitempty"`
	Recipients        []string          `json:"recipients" validate:"required,min=1,max=50,dive,required,email"`
	MailTemplate      MailTemplate      `json:"mail_template" validate:"required"`
	Conditions        []Condition       `json:"conditions" validate:"omitempty,max=50,dive"`
	TemplateVariables map[string]string `json:"template_variables,omitempty" validate:"omitempty,max=100,dive,keys,required,max=100,endkeys,max=4000"`
}

// AutomationResponse is the API view of an automation.
type AutomationResponse struct {
	ID                uuid.UUID         `json:"id"`
	CompanyID         *uuid.UUID        `json:"company_id,omitempty"`
	Title             string            `json:"title"`
	Description       *string           `json:"description,omitempty"`
	EntityType        string            `json:"entity_type"`
	TriggerEvent      string            `json:"trigger_event"`
	IsActive          bool              `json:"is_active"`
	Recipients        []string          `json:"recipients"`
	MailTemplate      MailTemplate      `json:"mail_template"`
	Conditions        []Condition       `json:"conditions"`
	TemplateVariables map[string]string `json:"template_variables"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ListAutomationsRequest filters the automation listing.
type ListAutomationsRequest struct {
	EntityType   string `form:"entity_type" validate:"omitempty,entity_type"`
	TriggerEvent string `form:"trigger_event" validate:"omitempty,trigger_event"`
	ActiveOnly   bool   `form:"active_only"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	PageSize     int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// AutomationListResponse is one page of automations.
type AutomationListResponse struct {
	Items      []AutomationResponse `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// PreviewRequest names the stored entity to render an automation against.
type PreviewRequest struct {
	EntityID uuid.UUID `json:"entity_id" validate:"required"`
}

// PreviewResponse shows what an automation would send for an entity,
// without sending it.
type PreviewResponse struct {
	ConditionsMatched bool     `json:"conditions_matched"`
	ConditionErrors   []string `json:"condition_errors,omitempty"`
	Recipients        []string `json:"recipients"`
	Subject           string   `json:"subject"`
	HTMLContent       string   `json:"html_content"`
	TextContent       string   `json:"text_content,omitempty"`
	UnresolvedTokens  []string `json:"unresolved_tokens"`
}

// EntityEventRequest reports a committed change made outside the change
// tracker, typically by a bulk writer.
type EntityEventRequest struct {
	EntityType string     `json:"entity_type" validate:"required,entity_type"`
	Operation  string     `json:"operation" validate:"required,oneof=CREATE UPDATE DELETE"`
	EntityID   uuid.UUID  `json:"entity_id" validate:"required"`
	CompanyID  *uuid.UUID `json:"company_id,omitempty"`
}

// ListDeliveriesRequest filters delivery records.
type ListDeliveriesRequest struct {
	AutomationID string `form:"automation_id" validate:"omitempty,uuid"`
	Status       string `form:"status" validate:"omitempty,oneof=dispatched delivered failed skipped"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	PageSize     int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// DeliveryResponse is the API view of a delivery record.
type DeliveryResponse struct {
	ID           uuid.UUID  `json:"id"`
	AutomationID uuid.UUID  `json:"automation_id"`
	EntityType   string     `json:"entity_type"`
	EntityID     uuid.UUID  `json:"entity_id"`
	CompanyID    *uuid.UUID `json:"company_id,omitempty"`
	DedupeKey    string     `json:"dedupe_key"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	Error        *string    `json:"error,omitempty"`
	Provider     *string    `json:"provider,omitempty"`
	MessageID    *string    `json:"message_id,omitempty"`
	Recipients   []string   `json:"recipients"`
	Subject      string     `json:"subject"`
	ArchiveKey   *string    `json:"archive_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DeliveryListResponse is one page of delivery records.
type DeliveryListResponse struct {
	Items      []DeliveryResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// ArchiveLinkResponse points at an archived message.
type ArchiveLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
