// Package provider adapts mail configurations to concrete delivery backends.
// Every adapter classifies its failures as transient or permanent so the
// gateway can decide whether to retry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"recruitment_backend/internal/mail/domain"
)

// Sender delivers one message through one configured backend.
type Sender interface {
	Provider() domain.ProviderType
	Send(ctx context.Context, msg domain.Message) (domain.Result, error)
}

// From is the envelope sender of a configuration.
type From struct {
	Email string
	Name  string
}

func (f From) header() string {
	if f.Name == "" {
		return f.Email
	}
	return fmt.Sprintf("%s <%s>", f.Name, f.Email)
}

// New builds the adapter for cfg. client is shared by the HTTP-based
// adapters; nil selects a client with a 30s timeout.
func New(ctx context.Context, cfg domain.Configuration, creds domain.Credentials, client *http.Client) (Sender, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	from := From{Email: cfg.FromEmail, Name: deref(cfg.FromName)}

	switch cfg.ProviderType {
	case domain.ProviderSMTP:
		if deref(cfg.SMTPHost) == "" {
			return nil, errors.New("smtp host is required")
		}
		port := 587
		if cfg.SMTPPort != nil {
			port = *cfg.SMTPPort
		}
		return NewSMTP(SMTPSettings{
			Host:       deref(cfg.SMTPHost),
			Port:       port,
			Username:   deref(cfg.SMTPUser),
			Password:   creds.SMTPPassword,
			Secure:     cfg.SMTPSecure,
			RequireTLS: cfg.SMTPRequireTLS,
		}, from), nil
	case domain.ProviderSendGrid:
		if creds.APIKey == "" {
			return nil, errors.New("sendgrid api key is required")
		}
		return NewSendGrid(creds.APIKey, "", from, client), nil
	case domain.ProviderMailgun:
		if creds.APIKey == "" || deref(cfg.Domain) == "" {
			return nil, errors.New("mailgun api key and domain are required")
		}
		return NewMailgun(creds.APIKey, deref(cfg.Domain), MailgunBaseURL(deref(cfg.Region)), from, client), nil
	case domain.ProviderSES:
		if creds.APIKey == "" || creds.APISecret == "" {
			return nil, errors.New("aws_ses access key and secret are required")
		}
		return NewSES(ctx, SESSettings{
			AccessKey: creds.APIKey,
			SecretKey: creds.APISecret,
			Region:    deref(cfg.Region),
		}, from)
	case domain.ProviderSupabase:
		if creds.APIKey == "" || deref(cfg.Domain) == "" {
			return nil, errors.New("supabase project url and service key are required")
		}
		return NewSupabase(deref(cfg.Domain), creds.APIKey, from, client), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.ProviderType)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
