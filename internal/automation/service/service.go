// Package service holds the automation engine's business logic: the trigger
// orchestrator that reacts to entity changes, and the administration of
// automation definitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recruitment_backend/internal/adapters/storage"
	"recruitment_backend/internal/automation/condition"
	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/automation/render"
	"recruitment_backend/internal/automation/repository"
	"recruitment_backend/internal/automation/transport"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/apperr"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
)

// ScopeAutomations is the invalidation scope for the automation registry.
const ScopeAutomations = "automations"

const (
	defaultPageSize = 20
	msgNotOwner     = "automation belongs to another company"
	msgNotArchived  = "delivery has no archived message"
)

// EntityNotifier publishes changes committed outside the change tracker.
type EntityNotifier interface {
	Notify(ctx context.Context, entityType events.EntityType, op events.Operation, entityID uuid.UUID, companyID *uuid.UUID) error
}

// ArchiveLinker presigns links to archived messages.
type ArchiveLinker interface {
	DownloadURL(ctx context.Context, key string) (*storage.PresignedURL, error)
}

// PreviewOptions are the system bindings used when previewing a template.
type PreviewOptions struct {
	PublicBaseURL string
	DefaultLocale string
}

// Service manages automation definitions.
type Service struct {
	repo        repository.AutomationRepository
	deliveries  repository.DeliveryRepository
	loader      repository.EntityLoader
	notifier    EntityNotifier
	broadcaster invalidation.Broadcaster
	opts        PreviewOptions
	archive     ArchiveLinker
	now         func() time.Time
	log         *logger.Logger
}

// New creates the automation service.
func New(
	repo repository.AutomationRepository,
	deliveries repository.DeliveryRepository,
	loader repository.EntityLoader,
	notifier EntityNotifier,
	broadcaster invalidation.Broadcaster,
	opts PreviewOptions,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:        repo,
		deliveries:  deliveries,
		loader:      loader,
		notifier:    notifier,
		broadcaster: broadcaster,
		opts:        opts,
		now:         time.Now,
		log:         log,
	}
}

// List returns automations visible to tenantID. A nil tenant sees all.
func (s *Service) List(ctx context.Context, tenantID *uuid.UUID, req transport.ListAutomationsRequest) (transport.AutomationListResponse, error) {
	page, pageSize := pagination(req.Page, req.PageSize)
	params := repository.ListAutomationsParams{
		CompanyID:  tenantID,
		ActiveOnly: req.ActiveOnly,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}
	if req.EntityType != "" {
		et := events.EntityType(req.EntityType)
		params.EntityType = &et
	}
	if req.TriggerEvent != "" {
		trigger := domain.TriggerEvent(req.TriggerEvent)
		params.TriggerEvent = &trigger
	}

	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.AutomationListResponse{}, err
	}
	out := make([]transport.AutomationResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	return transport.AutomationListResponse{
		Items:      out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Get returns one automation visible to tenantID.
func (s *Service) Get(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (transport.AutomationResponse, error) {
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	return toResponse(a), nil
}

// Create stores a new automation. Tenant callers always create automations
// for their own company; callers without a tenant may pick one or leave it
// global.
func (s *Service) Create(ctx context.Context, tenantID *uuid.UUID, req transport.UpsertAutomationRequest) (transport.AutomationResponse, error) {
	a, err := fromRequest(req)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	a.ID = uuid.New()
	a.CompanyID = req.CompanyID
	if tenantID != nil {
		a.CompanyID = tenantID
	}

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	s.changed(ctx, created)
	s.log.Info("automation created", "automationId", created.ID, "entityType", created.EntityType, "trigger", created.TriggerEvent)
	return toResponse(created), nil
}

// Update replaces an automation. Tenant callers may only change their own
// company's automations; global ones are read-only to them.
func (s *Service) Update(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, req transport.UpsertAutomationRequest) (transport.AutomationResponse, error) {
	existing, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	a, err := fromRequest(req)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	a.ID = existing.ID
	a.CompanyID = existing.CompanyID

	updated, err := s.repo.Update(ctx, a)
	if err != nil {
		return transport.AutomationResponse{}, err
	}
	s.changed(ctx, updated)
	return toResponse(updated), nil
}

// Delete removes an automation. Delivery records are kept.
func (s *Service) Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	existing, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, existing.CompanyID, id); err != nil {
		return err
	}
	s.changed(ctx, existing)
	return nil
}

// Preview evaluates and renders an automation against a stored entity
// without sending anything.
func (s *Service) Preview(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, req transport.PreviewRequest) (transport.PreviewResponse, error) {
	a, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.PreviewResponse{}, err
	}

	entity, err := s.loader.Load(ctx, a.EntityType, req.EntityID)
	if err != nil {
		if errors.Is(err, repository.ErrEntityNotFound) {
			return transport.PreviewResponse{}, apperr.NotFound(strings.ToLower(string(a.EntityType)) + " not found")
		}
		return transport.PreviewResponse{}, err
	}
	if tenantID != nil && (entity.CompanyID == nil || *entity.CompanyID != *tenantID) {
		return transport.PreviewResponse{}, apperr.NotFound(strings.ToLower(string(a.EntityType)) + " not found")
	}

	matched, evalErrs := condition.Evaluate(entity.Snapshot, condition.ParseAll(a.Conditions))
	locale := entity.Locale
	if locale == "" {
		locale = s.opts.DefaultLocale
	}
	rendered, err := render.Render(render.FromMailContent(a.MailTemplate), render.Bindings{
		EntityType: a.EntityType,
		Entity:     entity.Snapshot,
		Static:     a.TemplateVariables,
		Now:        s.now(),
		Locale:     locale,
		SystemName: s.opts.PublicBaseURL,
	})
	if err != nil {
		return transport.PreviewResponse{}, apperr.Unprocessable(err.Error())
	}

	resp := transport.PreviewResponse{
		ConditionsMatched: matched,
		Recipients:        a.Recipients,
		Subject:           rendered.Subject,
		HTMLContent:       rendered.HTML,
		TextContent:       rendered.Text,
		UnresolvedTokens:  rendered.Unresolved,
	}
	for _, e := range evalErrs {
		resp.ConditionErrors = append(resp.ConditionErrors, e.Error())
	}
	return resp, nil
}

// NotifyEntityEvent publishes a change committed by a writer that bypasses
// the change tracker. Tenant callers can only report their own entities.
func (s *Service) NotifyEntityEvent(ctx context.Context, tenantID *uuid.UUID, req transport.EntityEventRequest) error {
	entityType, err := events.ParseEntityType(req.EntityType)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	op, err := events.ParseOperation(req.Operation)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	companyID := req.CompanyID
	if tenantID != nil {
		companyID = tenantID
		if err := s.ensureOwned(ctx, *tenantID, entityType, op, req.EntityID); err != nil {
			return err
		}
	}
	if err := s.notifier.Notify(ctx, entityType, op, req.EntityID, companyID); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

// ensureOwned rejects events about entities of another company. A deleted
// row can no longer be checked and is accepted.
func (s *Service) ensureOwned(ctx context.Context, tenantID uuid.UUID, entityType events.EntityType, op events.Operation, id uuid.UUID) error {
	notFound := apperr.NotFound(strings.ToLower(string(entityType)) + " not found")
	entity, err := s.loader.Load(ctx, entityType, id)
	switch {
	case errors.Is(err, repository.ErrEntityNotFound):
		if op == events.OperationDelete {
			return nil
		}
		return notFound
	case err != nil:
		return fmt.Errorf("load %s %s: %w", entityType, id, err)
	}
	if entity.CompanyID == nil || *entity.CompanyID != tenantID {
		return notFound
	}
	return nil
}

// ListDeliveries returns delivery records visible to tenantID.
func (s *Service) ListDeliveries(ctx context.Context, tenantID *uuid.UUID, req transport.ListDeliveriesRequest) (transport.DeliveryListResponse, error) {
	page, pageSize := pagination(req.Page, req.PageSize)
	params := repository.ListDeliveriesParams{
		CompanyID: tenantID,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	}
	if req.AutomationID != "" {
		id, err := uuid.Parse(req.AutomationID)
		if err != nil {
			return transport.DeliveryListResponse{}, apperr.Validation("invalid automation_id")
		}
		params.AutomationID = &id
	}
	if req.Status != "" {
		status := domain.DeliveryStatus(req.Status)
		params.Status = &status
	}

	items, total, err := s.deliveries.List(ctx, params)
	if err != nil {
		return transport.DeliveryListResponse{}, err
	}
	out := make([]transport.DeliveryResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, toDeliveryResponse(rec))
	}
	return transport.DeliveryListResponse{
		Items:      out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// SetArchive enables archive download links.
func (s *Service) SetArchive(a ArchiveLinker) {
	s.archive = a
}

// DeliveryArchive returns a short-lived link to the message archived for a
// delivery record.
func (s *Service) DeliveryArchive(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (transport.ArchiveLinkResponse, error) {
	rec, err := s.deliveries.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.ArchiveLinkResponse{}, err
	}
	if s.archive == nil || rec.ArchiveKey == nil {
		return transport.ArchiveLinkResponse{}, apperr.NotFound(msgNotArchived)
	}
	link, err := s.archive.DownloadURL(ctx, *rec.ArchiveKey)
	if err != nil {
		s.log.WithContext(ctx).Warn("presign delivery archive failed", "deliveryId", id, "error", err)
		return transport.ArchiveLinkResponse{}, apperr.Unavailable("archive unavailable")
	}
	return transport.ArchiveLinkResponse{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

func (s *Service) owned(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (domain.Automation, error) {
	existing, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.Automation{}, err
	}
	if tenantID != nil && (existing.CompanyID == nil || *existing.CompanyID != *tenantID) {
		return domain.Automation{}, apperr.Forbidden(msgNotOwner)
	}
	return existing, nil
}

// changed invalidates every registry cache, local and remote.
func (s *Service) changed(ctx context.Context, a domain.Automation) {
	if err := s.broadcaster.Publish(ctx, invalidation.Notice{Scope: ScopeAutomations, Key: a.ID.String()}); err != nil {
		s.log.Warn("automation invalidation broadcast failed", "automationId", a.ID, "error", err)
	}
}

func fromRequest(req transport.UpsertAutomationRequest) (domain.Automation, error) {
	entityType, err := events.ParseEntityType(req.EntityType)
	if err != nil {
		return domain.Automation{}, apperr.Validation(err.Error())
	}
	trigger, err := domain.ParseTriggerEvent(req.TriggerEvent)
	if err != nil {
		return domain.Automation{}, apperr.Validation(err.Error())
	}

	recipients := make([]string, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		r = strings.TrimSpace(r)
		if err := checkmail.ValidateFormat(r); err != nil {
			return domain.Automation{}, apperr.Validation(fmt.Sprintf("recipients[%d] is not a valid email address", i))
		}
		recipients = append(recipients, r)
	}
	if len(recipients) == 0 {
		return domain.Automation{}, apperr.Validation("at least one recipient is required")
	}

	conditions := make([]domain.ConditionSpec, 0, len(req.Conditions))
	for _, c := range req.Conditions {
		conditions = append(conditions, domain.ConditionSpec{Field: strings.TrimSpace(c.Field), Operator: c.Operator, Value: c.Value})
	}
	if errs := condition.Validate(conditions); len(errs) > 0 {
		details := make(map[string]string, len(errs))
		for _, e := range errs {
			details[fmt.Sprintf("conditions[%d]", e.Index)] = e.Reason
		}
		return domain.Automation{}, apperr.Validation("invalid conditions").WithDetails(details)
	}

	tpl := render.Template{Subject: req.MailTemplate.Subject, HTML: req.MailTemplate.HTMLContent, Text: req.MailTemplate.TextContent}
	if _, err := render.Render(tpl, render.Bindings{}); err != nil {
		return domain.Automation{}, apperr.Validation(err.Error())
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	variables := req.TemplateVariables
	if variables == nil {
		variables = map[string]string{}
	}

	return domain.Automation{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		EntityType:   entityType,
		TriggerEvent: trigger,
		IsActive:     isActive,
		Recipients:   recipients,
		MailTemplate: domain.MailContent{
			Subject:     req.MailTemplate.Subject,
			HTMLContent: req.MailTemplate.HTMLContent,
			TextContent: req.MailTemplate.TextContent,
		},
		Conditions:        conditions,
		TemplateVariables: variables,
	}, nil
}

func toResponse(a domain.Automation) transport.AutomationResponse {
	conditions := make([]transport.Condition, 0, len(a.Conditions))
	for _, c := range a.Conditions {
		conditions = append(conditions, transport.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	variables := a.TemplateVariables
	if variables == nil {
		variables = map[string]string{}
	}
	return transport.AutomationResponse{
		ID:           a.ID,
		CompanyID:    a.CompanyID,
		Title:        a.Title,
		Description:  a.Description,
		EntityType:   string(a.EntityType),
		TriggerEvent: string(a.TriggerEvent),
		IsActive:     a.IsActive,
		Recipients:   a.Recipients,
		MailTemplate: transport.MailTemplate{
			Subject:     a.MailTemplate.Subject,
			HTMLContent: a.MailTemplate.HTMLContent,
			TextContent: a.MailTemplate.TextContent,
		},
		Conditions:        conditions,
		TemplateVariables: variables,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toDeliveryResponse(rec domain.DeliveryRecord) transport.DeliveryResponse {
	return transport.DeliveryResponse{
		ID:           rec.ID,
		AutomationID: rec.AutomationID,
		EntityType:   string(rec.EntityType),
		EntityID:     rec.EntityID,
		CompanyID:    rec.CompanyID,
		DedupeKey:    rec.DedupeKey,
		Status:       string(rec.Status),
		Attempts:     rec.Attempts,
		Error:        rec.Error,
		Provider:     rec.Provider,
		MessageID:    rec.MessageID,
		Recipients:   rec.Recipients,
		Subject:      rec.Subject,
		ArchiveKey:   rec.ArchiveKey,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func pagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
