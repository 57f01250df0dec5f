package transport

import (
	"time"

	"github.com/google/uuid"
)

// UpsertTemplateRequest creates or replaces a mail template. CompanyID is
// only honoured for callers without a tenant.
type UpsertTemplateRequest struct {
	CompanyID   *uuid.UUID        `json:"company_id,omitempty"`
	Type        string            `json:"type" validate:"required,mail_template_type"`
	Name        string            `json:"name" validate:"required,min=1,max=200"`
	Subject     string            `json:"subject" validate:"required,max=998"`
	HTMLContent string            `json:"html_content" validate:"required"`
	TextContent string            `json:"text_content,omitempty"`
	Variables   map[string]string `json:"variables,omitempty" validate:"omitempty,max=100,dive,keys,required,max=100,endkeys,max=500"`
	Status      string            `json:"status,omitempty" validate:"omitempty,mail_template_status"`
	IsDefault   bool              `json:"is_default"`
}

// TemplateResponse is the API view of a mail template.
type TemplateResponse struct {
	ID          uuid.UUID         `json:"id"`
	CompanyID   *uuid.UUID        `json:"company_id,omitempty"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Variables   map[string]string `json:"variables"`
	Status      string            `json:"status"`
	IsDefault   bool              `json:"is_default"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListTemplatesRequest filters the template listing.
type ListTemplatesRequest struct {
	Type   string `form:"type" validate:"omitempty,mail_template_type"`
	Status string `form:"status" validate:"omitempty,mail_template_status"`
}

// TemplateListResponse wraps the template listing.
type TemplateListResponse struct {
	Items []TemplateResponse `json:"items"`
}
