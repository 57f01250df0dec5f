// Package domain holds mail provider configuration and delivery types shared
// by the gateway, the adapters and the admin API.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderType names a delivery backend.
type ProviderType string

const (
	ProviderSupabase ProviderType = "supabase"
	ProviderSMTP     ProviderType = "smtp"
	ProviderSendGrid ProviderType = "sendgrid"
	ProviderMailgun  ProviderType = "mailgun"
	ProviderSES      ProviderType = "aws_ses"
)

// ProviderTypes lists every supported provider.
var ProviderTypes = []ProviderType{ProviderSupabase, ProviderSMTP, ProviderSendGrid, ProviderMailgun, ProviderSES}

// Valid reports whether p is a supported provider.
func (p ProviderType) Valid() bool {
	for _, known := range ProviderTypes {
		if p == known {
			return true
		}
	}
	return false
}

// ErrNoProviderConfigured means neither a company-linked nor a default active
// configuration exists. It is never retried.
var ErrNoProviderConfigured = errors.New("no mail provider configured")

// Configuration is a stored provider configuration. Secret fields hold
// ciphertext; use Credentials for the decrypted values.
type Configuration struct {
	ID              uuid.UUID
	ProviderType    ProviderType
	SMTPHost        *string
	SMTPPort        *int
	SMTPUser        *string
	SMTPPasswordEnc *string
	SMTPSecure      bool
	SMTPRequireTLS  bool
	APIKeyEnc       *string
	APISecretEnc    *string
	Region          *string
	Domain          *string
	FromEmail       string
	FromName        *string
	IsActive        bool
	IsDefault       bool
	CompanyIDs      []uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Credentials are the decrypted secrets of a configuration.
type Credentials struct {
	SMTPPassword string
	APIKey       string
	APISecret    string
}

// Message is one logical email. DedupeKey identifies the send across
// retries and, where the provider allows it, becomes the Message-ID.
type Message struct {
	To        []string
	Subject   string
	HTML      string
	Text      string
	DedupeKey string
}

// Result is what a provider reports for an accepted message.
type Result struct {
	Provider  ProviderType
	MessageID string
}

// TransportError is a provider failure classified for retry.
type TransportError struct {
	Provider  ProviderType
	Transient bool
	Err       error
}

func (e *TransportError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s failure: %v", e.Provider, kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(provider ProviderType, err error) error {
	return &TransportError{Provider: provider, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(provider ProviderType, err error) error {
	return &TransportError{Provider: provider, Transient: false, Err: err}
}

// IsTransient reports whether err is a TransportError marked transient.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Transient
}
