// Package service implements administration of mail provider configurations.
package service

import (
	"context"
	"strings"

	"recruitment_backend/internal/mail/domain"
	"recruitment_backend/internal/mail/repository"
	"recruitment_backend/internal/mail/transport"
	"recruitment_backend/platform/apperr"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
)

// ScopeMailConfigurations is the invalidation scope for resolved senders.
// An empty notice key drops every company's entry.
const ScopeMailConfigurations = "mail_configurations"

// SecretCipher encrypts secrets before they are stored.
type SecretCipher interface {
	EncryptOptional(plaintext *string) (*string, error)
}

// Service manages mail configurations.
type Service struct {
	repo        repository.Repository
	cipher      SecretCipher
	broadcaster invalidation.Broadcaster
	log         *logger.Logger
}

// New creates the mail configuration service.
func New(repo repository.Repository, cipher SecretCipher, broadcaster invalidation.Broadcaster, log *logger.Logger) *Service {
	return &Service{repo: repo, cipher: cipher, broadcaster: broadcaster, log: log}
}

// List returns every configuration.
func (s *Service) List(ctx context.Context) (transport.ConfigurationListResponse, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return transport.ConfigurationListResponse{}, err
	}
	out := make([]transport.ConfigurationResponse, 0, len(items))
	for _, cfg := range items {
		out = append(out, toResponse(cfg))
	}
	return transport.ConfigurationListResponse{Items: out}, nil
}

// Get returns one configuration.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.ConfigurationResponse, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	return toResponse(cfg), nil
}

// Create stores a new configuration with encrypted secrets.
func (s *Service) Create(ctx context.Context, req transport.UpsertConfigurationRequest) (transport.ConfigurationResponse, error) {
	cfg, err := s.fromRequest(uuid.New(), req)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	if err := validateProviderFields(cfg, req, true); err != nil {
		return transport.ConfigurationResponse{}, err
	}

	created, err := s.repo.Create(ctx, cfg)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	s.changed(ctx, created.ID)
	return toResponse(created), nil
}

// Update replaces a configuration. Secrets left empty keep their stored
// ciphertext.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpsertConfigurationRequest) (transport.ConfigurationResponse, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	cfg, err := s.fromRequest(id, req)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	merged := cfg
	if merged.SMTPPasswordEnc == nil {
		merged.SMTPPasswordEnc = existing.SMTPPasswordEnc
	}
	if merged.APIKeyEnc == nil {
		merged.APIKeyEnc = existing.APIKeyEnc
	}
	if merged.APISecretEnc == nil {
		merged.APISecretEnc = existing.APISecretEnc
	}
	if err := validateProviderFields(merged, req, false); err != nil {
		return transport.ConfigurationResponse{}, err
	}

	updated, err := s.repo.Update(ctx, cfg)
	if err != nil {
		return transport.ConfigurationResponse{}, err
	}
	s.changed(ctx, id)
	return toResponse(updated), nil
}

// Delete removes a configuration.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, id)
	return nil
}

// changed drops every cached sender. Resolution falls back to the default
// for unlinked companies, so a narrower invalidation would miss them.
func (s *Service) changed(ctx context.Context, id uuid.UUID) {
	if err := s.broadcaster.Publish(ctx, invalidation.Notice{Scope: ScopeMailConfigurations}); err != nil {
		s.log.Warn("mail configuration invalidation broadcast failed", "configurationId", id, "error", err)
	}
}

func (s *Service) fromRequest(id uuid.UUID, req transport.UpsertConfigurationRequest) (domain.Configuration, error) {
	passwordEnc, err := s.cipher.EncryptOptional(req.SMTPPassword)
	if err != nil {
		return domain.Configuration{}, apperr.Internal("failed to encrypt smtp password")
	}
	apiKeyEnc, err := s.cipher.EncryptOptional(req.APIKey)
	if err != nil {
		return domain.Configuration{}, apperr.Internal("failed to encrypt api key")
	}
	apiSecretEnc, err := s.cipher.EncryptOptional(req.APISecret)
	if err != nil {
		return domain.Configuration{}, apperr.Internal("failed to encrypt api secret")
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	requireTLS := true
	if req.SMTPRequireTLS != nil {
		requireTLS = *req.SMTPRequireTLS
	}

	return domain.Configuration{
		ID:              id,
		ProviderType:    domain.ProviderType(req.ProviderType),
		SMTPHost:        trimmed(req.SMTPHost),
		SMTPPort:        req.SMTPPort,
		SMTPUser:        trimmed(req.SMTPUser),
		SMTPPasswordEnc: passwordEnc,
		SMTPSecure:      req.SMTPSecure,
		SMTPRequireTLS:  requireTLS,
		APIKeyEnc:       apiKeyEnc,
		APISecretEnc:    apiSecretEnc,
		Region:          trimmed(req.Region),
		Domain:          trimmed(req.Domain),
		FromEmail:       strings.TrimSpace(req.FromEmail),
		FromName:        trimmed(req.FromName),
		IsActive:        isActive,
		IsDefault:       req.IsDefault,
		CompanyIDs:      companyIDs(req),
	}, nil
}

// validateProviderFields checks what each adapter needs to send. On create
// the secrets must be in the request; on update they may already be stored.
func validateProviderFields(cfg domain.Configuration, req transport.UpsertConfigurationRequest, creating bool) error {
	hasAPIKey := cfg.APIKeyEnc != nil
	hasAPISecret := cfg.APISecretEnc != nil
	if creating {
		hasAPIKey = req.APIKey != nil && *req.APIKey != ""
		hasAPISecret = req.APISecret != nil && *req.APISecret != ""
	}

	switch cfg.ProviderType {
	case domain.ProviderSMTP:
		if cfg.SMTPHost == nil {
			return apperr.Validation("smtp_host is required for smtp")
		}
	case domain.ProviderSendGrid:
		if !hasAPIKey {
			return apperr.Validation("api_key is required for sendgrid")
		}
	case domain.ProviderMailgun:
		if !hasAPIKey || cfg.Domain == nil {
			return apperr.Validation("api_key and domain are required for mailgun")
		}
	case domain.ProviderSES:
		if !hasAPIKey || !hasAPISecret {
			return apperr.Validation("api_key and api_secret are required for aws_ses")
		}
	case domain.ProviderSupabase:
		if !hasAPIKey || cfg.Domain == nil {
			return apperr.Validation("api_key and domain (project url) are required for supabase")
		}
	default:
		return apperr.Validation("unsupported provider_type")
	}
	if cfg.IsDefault && len(cfg.CompanyIDs) > 0 {
		return apperr.Validation("a default configuration cannot be linked to companies")
	}
	return nil
}

func companyIDs(req transport.UpsertConfigurationRequest) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0, len(req.CompanyIDs)+1)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if req.CompanyID != nil {
		add(*req.CompanyID)
	}
	for _, id := range req.CompanyIDs {
		add(id)
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func toResponse(cfg domain.Configuration) transport.ConfigurationResponse {
	ids := cfg.CompanyIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return transport.ConfigurationResponse{
		ID:              cfg.ID,
		ProviderType:    string(cfg.ProviderType),
		CompanyIDs:      ids,
		SMTPHost:        cfg.SMTPHost,
		SMTPPort:        cfg.SMTPPort,
		SMTPUser:        cfg.SMTPUser,
		SMTPSecure:      cfg.SMTPSecure,
		SMTPRequireTLS:  cfg.SMTPRequireTLS,
		HasSMTPPassword: cfg.SMTPPasswordEnc != nil,
		HasAPIKey:       cfg.APIKeyEnc != nil,
		HasAPISecret:    cfg.APISecretEnc != nil,
		Region:          cfg.Region,
		Domain:          cfg.Domain,
		FromEmail:       cfg.FromEmail,
		FromName:        cfg.FromName,
		IsActive:        cfg.IsActive,
		IsDefault:       cfg.IsDefault,
		CreatedAt:       cfg.CreatedAt,
		UpdatedAt:       cfg.UpdatedAt,
	}
}
