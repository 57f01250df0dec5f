package transport

import (
	"time"

	"github.com/google/uuid"
)

// UpsertConfigurationRequest creates or replaces a mail configuration.
// Secrets are write-only: omit them on update to keep the stored values.
type UpsertConfigurationRequest struct {
	ProviderType   string      `json:"provider_type" validate:"required,provider_type"`
	CompanyID      *uuid.UUID  `json:"company_id,omitempty"`
	CompanyIDs     []uuid.UUID `json:"company_ids,omitempty" validate:"omitempty,dive,required"`
	SMTPHost       *string     `json:"smtp_host,omitempty" validate:"omitempty,hostname|ip"`
	SMTPPort       *int        `json:"smtp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	SMTPUser       *string     `json:"smtp_user,omitempty" validate:"omitempty,max=255"`
	SMTPPassword   *string     `json:"smtp_password,omitempty" validate:"omitempty,max=1024"`
	SMTPSecure     bool        `json:"smtp_secure"`
	SMTPRequireTLS *bool       `json:"smtp_require_tls,omitempty"`
	APIKey         *string     `json:"api_key,omitempty" validate:"omitempty,max=1024"`
	APISecret      *string     `json:"api_secret,omitempty" validate:"omitempty,max=1024"`
	Region         *string     `json:"region,omitempty" validate:"omitempty,max=64"`
	Domain         *string     `json:"domain,omitempty" validate:"omitempty,max=255"`
	FromEmail      string      `json:"from_email" validate:"required,email,max=255"`
	FromName       *string     `json:"from_name,omitempty" validate:"omitempty,max=255"`
	IsActive       *bool       `json:"is_active,omitempty"`
	IsDefault      bool        `json:"is_default"`
}

// ConfigurationResponse never carries secrets, only whether they are set.
type ConfigurationResponse struct {
	ID              uuid.UUID   `json:"id"`
	ProviderType    string      `json:"provider_type"`
	CompanyIDs      []uuid.UUID `json:"company_ids"`
	SMTPHost        *string     `json:"smtp_host,omitempty"`
	SMTPPort        *int        `json:"smtp_port,omitempty"`
	SMTPUser        *string     `json:"smtp_user,omitempty"`
	SMTPSecure      bool        `json:"smtp_secure"`
	SMTPRequireTLS  bool        `json:"smtp_require_tls"`
	HasSMTPPassword bool        `json:"has_smtp_password"`
	HasAPIKey       bool        `json:"has_api_key"`
	HasAPISecret    bool        `json:"has_api_secret"`
	Region          *string     `json:"region,omitempty"`
	Domain          *string     `json:"domain,omitempty"`
	FromEmail       string      `json:"from_email"`
	FromName        *string     `json:"from_name,omitempty"`
	IsActive        bool        `json:"is_active"`
	IsDefault       bool        `json:"is_default"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ConfigurationListResponse wraps the configuration listing.
type ConfigurationListResponse struct {
	Items []ConfigurationResponse `json:"items"`
}
