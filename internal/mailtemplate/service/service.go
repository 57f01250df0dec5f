// Package service implements administration of reusable mail templates.
package service

import (
	"context"
	"strings"

	"recruitment_backend/internal/automation/render"
	"recruitment_backend/internal/mailtemplate/domain"
	"recruitment_backend/internal/mailtemplate/repository"
	"recruitment_backend/internal/mailtemplate/transport"
	"recruitment_backend/platform/apperr"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
)

const msgNotOwner = "mail template belongs to another company"

// Service manages mail templates.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates the mail template service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List returns templates visible to tenantID.
func (s *Service) List(ctx context.Context, tenantID *uuid.UUID, req transport.ListTemplatesRequest) (transport.TemplateListResponse, error) {
	params := repository.ListParams{CompanyID: tenantID}
	if req.Type != "" {
		t := domain.Type(req.Type)
		params.Type = &t
	}
	if req.Status != "" {
		st := domain.Status(req.Status)
		params.Status = &st
	}

	items, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.TemplateListResponse{}, err
	}
	out := make([]transport.TemplateResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toResponse(t))
	}
	return transport.TemplateListResponse{Items: out}, nil
}

// Get returns one template.
func (s *Service) Get(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (transport.TemplateResponse, error) {
	t, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toResponse(t), nil
}

// Create stores a new template at version 1.
func (s *Service) Create(ctx context.Context, tenantID *uuid.UUID, req transport.UpsertTemplateRequest) (transport.TemplateResponse, error) {
	t, err := fromRequest(req)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	t.CompanyID = req.CompanyID
	if tenantID != nil {
		t.CompanyID = tenantID
	}
	t.Version = 1

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	s.log.WithContext(ctx).Info("mail template created", "templateId", created.ID, "type", created.Type)
	return toResponse(created), nil
}

// Update replaces a template. The version only moves when the subject or
// a body changes.
func (s *Service) Update(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, req transport.UpsertTemplateRequest) (transport.TemplateResponse, error) {
	existing, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	if tenantID != nil && (existing.CompanyID == nil || *existing.CompanyID != *tenantID) {
		return transport.TemplateResponse{}, apperr.Forbidden(msgNotOwner)
	}

	t, err := fromRequest(req)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	t.ID = existing.ID
	t.CompanyID = existing.CompanyID
	t.Version = existing.Version
	if t.ContentChanged(existing) {
		t.Version++
	}

	updated, err := s.repo.Update(ctx, t)
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	s.log.WithContext(ctx).Info("mail template updated", "templateId", updated.ID, "version", updated.Version)
	return toResponse(updated), nil
}

func fromRequest(req transport.UpsertTemplateRequest) (domain.Template, error) {
	tpl := render.Template{Subject: req.Subject, HTML: req.HTMLContent, Text: req.TextContent}
	if _, err := render.Render(tpl, render.Bindings{}); err != nil {
		return domain.Template{}, apperr.Validation(err.Error())
	}

	status := domain.StatusDraft
	if req.Status != "" {
		status = domain.Status(req.Status)
	}
	if req.IsDefault && status != domain.StatusActive {
		return domain.Template{}, apperr.Validation("only active templates can be the default")
	}
	variables := req.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	return domain.Template{
		Type:        domain.Type(req.Type),
		Name:        strings.TrimSpace(req.Name),
		Subject:     req.Subject,
		HTMLContent: req.HTMLContent,
		TextContent: req.TextContent,
		Variables:   variables,
		Status:      status,
		IsDefault:   req.IsDefault,
	}, nil
}

func toResponse(t domain.Template) transport.TemplateResponse {
	variables := t.Variables
	if variables == nil {
		variables = map[string]string{}
	}
	return transport.TemplateResponse{
		ID:          t.ID,
		CompanyID:   t.CompanyID,
		Type:        string(t.Type),
		Name:        t.Name,
		Subject:     t.Subject,
		HTMLContent: t.HTMLContent,
		TextContent: t.TextContent,
		Variables:   variables,
		Status:      string(t.Status),
		IsDefault:   t.IsDefault,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
