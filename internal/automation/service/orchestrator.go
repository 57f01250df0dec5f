package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"recruitment_backend/internal/automation/condition"
	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/automation/render"
	"recruitment_backend/internal/automation/repository"
	"recruitment_backend/internal/events"
	maildomain "recruitment_backend/internal/mail/domain"
	"recruitment_backend/internal/mail/gateway"
	"recruitment_backend/platform/distlock"
	"recruitment_backend/platform/logger"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Matcher returns the active automations for an entity event.
type Matcher interface {
	Match(ctx context.Context, entityType events.EntityType, trigger domain.TriggerEvent, companyID *uuid.UUID) ([]domain.Automation, error)
}

// Mailer delivers one logical message, retrying transient failures.
type Mailer interface {
	Send(ctx context.Context, companyID *uuid.UUID, msg maildomain.Message, onAttempt gateway.AttemptFunc) (gateway.DeliveryResult, error)
}

// Archiver keeps a copy of a rendered message and returns its key.
type Archiver interface {
	Store(ctx context.Context, rec domain.DeliveryRecord, msg render.Rendered) (string, error)
}

// OrchestratorOptions tunes event processing.
type OrchestratorOptions struct {
	// Concurrency bounds how many automations of one event run at once.
	Concurrency   int
	PublicBaseURL string
	DefaultLocale string
}

// Orchestrator turns EntityChanged events into deliveries.
type Orchestrator struct {
	registry   Matcher
	loader     repository.EntityLoader
	deliveries repository.DeliveryRepository
	mailer     Mailer
	locker     distlock.Locker
	archive    Archiver
	opts       OrchestratorOptions
	log        *logger.Logger
}

// NewOrchestrator creates an orchestrator. locker serializes events for the
// same entity; pass a distlock.Chain to combine in-process and Redis locks.
func NewOrchestrator(registry Matcher, loader repository.EntityLoader, deliveries repository.DeliveryRepository, mailer Mailer, locker distlock.Locker, opts OrchestratorOptions, log *logger.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if locker == nil {
		locker = distlock.NewLocalLocker()
	}
	return &Orchestrator{
		registry:   registry,
		loader:     loader,
		deliveries: deliveries,
		mailer:     mailer,
		locker:     locker,
		opts:       opts,
		log:        log,
	}
}

// SetArchive enables archiving of rendered messages.
func (o *Orchestrator) SetArchive(a Archiver) {
	o.archive = a
}

// Handle implements events.Handler.
func (o *Orchestrator) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.EntityChanged)
	if !ok {
		return nil
	}
	_, err := o.HandleEntityChanged(ctx, e)
	return err
}

// HandleEntityChanged processes one committed entity change and returns the
// terminal outcome of every matched automation. Per-automation failures are
// reported as outcomes; the error is reserved for failures that make the
// whole event worth retrying (registry or database unavailable, entity lock
// held elsewhere).
func (o *Orchestrator) HandleEntityChanged(ctx context.Context, ev events.EntityChanged) ([]domain.Outcome, error) {
	if !ev.EntityType.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", ev.EntityType)
	}
	trigger, err := domain.TriggerFor(ev.Operation)
	if err != nil {
		return nil, err
	}

	// The event's company only narrows the search before the lock. The loaded
	// row decides the scope; deletes have nothing left to load.
	var matched []domain.Automation
	prematched := ev.CompanyID != nil || trigger == domain.TriggerOnDelete
	if prematched {
		matched, err = o.registry.Match(ctx, ev.EntityType, trigger, ev.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("match automations: %w", err)
		}
		if len(matched) == 0 {
			return nil, nil
		}
	}

	key := lockKey(ev.EntityType, ev.EntityID)
	release, err := o.locker.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.log.WithContext(ctx).Warn("entity lock release failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}()

	entity, found, loaded, err := o.load(ctx, ev, trigger)
	if err != nil {
		return nil, err
	}

	if !prematched || (loaded && !sameCompany(entity.CompanyID, ev.CompanyID)) {
		if prematched {
			o.log.WithContext(ctx).Warn("event company differs from entity company",
				slog.String("entity_type", string(ev.EntityType)),
				slog.String("entity_id", ev.EntityID.String()))
		}
		matched, err = o.registry.Match(ctx, ev.EntityType, trigger, entity.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("match automations: %w", err)
		}
		if len(matched) == 0 {
			return nil, nil
		}
	}

	outcomes := make([]domain.Outcome, len(matched))
	if !found {
		for i, a := range matched {
			outcomes[i] = domain.Outcome{AutomationID: a.ID, State: domain.StateSkipped, Reason: "entity not found"}
			o.logOutcome(ctx, ev, outcomes[i])
		}
		return outcomes, nil
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, a := range matched {
		g.Go(func() error {
			outcomes[i] = o.run(ctx, ev, trigger, entity, a)
			o.logOutcome(ctx, ev, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// load re-reads the entity. found is false only for a create or update whose
// row no longer exists; deletes fall back to an identifier-only snapshot.
// loaded reports that the snapshot, and so its company, came from the row.
func (o *Orchestrator) load(ctx context.Context, ev events.EntityChanged, trigger domain.TriggerEvent) (entity repository.Entity, found, loaded bool, err error) {
	entity, err = o.loader.Load(ctx, ev.EntityType, ev.EntityID)
	switch {
	case err == nil:
		if entity.Locale == "" {
			entity.Locale = o.opts.DefaultLocale
		}
		return entity, true, true, nil
	case errors.Is(err, repository.ErrEntityNotFound):
		if trigger == domain.TriggerOnDelete {
			return deletedEntity(ev, o.opts.DefaultLocale), true, false, nil
		}
		return repository.Entity{CompanyID: ev.CompanyID}, false, false, nil
	default:
		return repository.Entity{}, false, false, fmt.Errorf("load %s %s: %w", ev.EntityType, ev.EntityID, err)
	}
}

func sameCompany(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deletedEntity(ev events.EntityChanged, locale string) repository.Entity {
	snap := domain.Snapshot{"id": ev.EntityID.String()}
	if ev.CompanyID != nil {
		snap["company_id"] = ev.CompanyID.String()
	}
	return repository.Entity{Snapshot: snap, CompanyID: ev.CompanyID, Locale: locale}
}

func (o *Orchestrator) run(ctx context.Context, ev events.EntityChanged, trigger domain.TriggerEvent, entity repository.Entity, a domain.Automation) domain.Outcome {
	out := domain.Outcome{AutomationID: a.ID}
	skip := func(reason string) domain.Outcome {
		out.State, out.Reason = domain.StateSkipped, reason
		return out
	}
	fail := func(reason string) domain.Outcome {
		out.State, out.Reason = domain.StateFailed, reason
		return out
	}
	log := o.log.WithContext(ctx)

	if trigger == domain.TriggerOnUpdate && !passesChangeGate(a, ev.ChangedFields) {
		return skip("no condition field changed")
	}

	matched, evalErrs := condition.Evaluate(entity.Snapshot, condition.ParseAll(a.Conditions))
	for _, e := range evalErrs {
		log.Warn("automation condition invalid",
			slog.String("automation_id", a.ID.String()),
			slog.String("error", e.Error()),
		)
	}
	if len(evalErrs) > 0 {
		return skip(evalErrs[0].Error())
	}
	if !matched {
		return skip("conditions not met")
	}

	rendered, renderErr := render.Render(render.FromMailContent(a.MailTemplate), render.Bindings{
		EntityType: ev.EntityType,
		Entity:     entity.Snapshot,
		Static:     a.TemplateVariables,
		Now:        ev.OccurredAt(),
		Locale:     entity.Locale,
		SystemName: o.opts.PublicBaseURL,
	})
	if renderErr == nil && len(rendered.Unresolved) > 0 {
		log.Info("template tokens left unresolved",
			slog.String("automation_id", a.ID.String()),
			slog.Any("tokens", rendered.Unresolved),
		)
	}

	recipients := validRecipients(a.Recipients)
	rec := domain.DeliveryRecord{
		ID:           uuid.New(),
		AutomationID: a.ID,
		EntityType:   ev.EntityType,
		EntityID:     ev.EntityID,
		CompanyID:    entity.CompanyID,
		DedupeKey:    domain.DedupeKey(ev.EntityID, a.ID, ev.OccurredAt()),
		Status:       domain.DeliveryDispatched,
		Recipients:   recipients,
		Subject:      rendered.Subject,
	}
	switch {
	case renderErr != nil:
		rec.Status = domain.DeliveryFailed
		rec.Subject = a.MailTemplate.Subject
		rec.Error = ptr(fmt.Sprintf("render for automation %s entity %s: %v", a.ID, ev.EntityID, renderErr))
	case len(recipients) == 0:
		rec.Status = domain.DeliverySkipped
		rec.Error = ptr("no valid recipients")
	}

	stored, created, err := o.deliveries.Insert(ctx, rec)
	if err != nil {
		return fail(fmt.Sprintf("record delivery: %v", err))
	}
	out.DeliveryID = &stored.ID
	if !created {
		return skip("already processed")
	}
	switch stored.Status {
	case domain.DeliveryFailed:
		return fail(*rec.Error)
	case domain.DeliverySkipped:
		return skip(*rec.Error)
	}

	var archiveKey *string
	if o.archive != nil {
		key, err := o.archive.Store(ctx, stored, rendered)
		if err != nil {
			log.Warn("delivery archive failed", slog.String("delivery_id", stored.ID.String()), slog.String("error", err.Error()))
		} else {
			archiveKey = &key
		}
	}

	attempts := 0
	result, sendErr := o.mailer.Send(ctx, entity.CompanyID, maildomain.Message{
		To:        recipients,
		Subject:   rendered.Subject,
		HTML:      rendered.HTML,
		Text:      rendered.Text,
		DedupeKey: stored.DedupeKey,
	}, func(at gateway.Attempt) {
		attempts = at.Number
		if at.Final {
			return
		}
		params := repository.UpdateDeliveryParams{
			ID:         stored.ID,
			Status:     domain.DeliveryDispatched,
			Attempts:   at.Number,
			Provider:   ptr(string(at.Provider)),
			ArchiveKey: archiveKey,
		}
		if at.Err != nil {
			params.Error = ptr(at.Err.Error())
		}
		o.updateStatus(ctx, params)
	})

	if sendErr != nil {
		reason := sendErr.Error()
		if errors.Is(sendErr, maildomain.ErrNoProviderConfigured) {
			reason = "no mail provider configured"
		}
		o.updateStatus(ctx, repository.UpdateDeliveryParams{
			ID:         stored.ID,
			Status:     domain.DeliveryFailed,
			Attempts:   attempts,
			Error:      &reason,
			ArchiveKey: archiveKey,
		})
		return fail(reason)
	}

	o.updateStatus(ctx, repository.UpdateDeliveryParams{
		ID:         stored.ID,
		Status:     domain.DeliveryDelivered,
		Attempts:   result.Attempts,
		Provider:   ptr(string(result.Provider)),
		MessageID:  ptr(result.MessageID),
		ArchiveKey: archiveKey,
	})
	out.State = domain.StateDelivered
	return out
}

// updateStatus never fails the run: the message has already left, so a lost
// status write is logged rather than retried.
func (o *Orchestrator) updateStatus(ctx context.Context, params repository.UpdateDeliveryParams) {
	if err := o.deliveries.UpdateStatus(context.WithoutCancel(ctx), params); err != nil {
		o.log.WithContext(ctx).Error("delivery status update failed",
			slog.String("delivery_id", params.ID.String()),
			slog.String("status", string(params.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) logOutcome(ctx context.Context, ev events.EntityChanged, out domain.Outcome) {
	o.log.WithContext(ctx).AutomationOutcome(out.AutomationID.String(), string(ev.EntityType), ev.EntityID.String(), string(out.State), out.Reason)
}

// passesChangeGate reports whether an update touched a field the automation's
// conditions read. A condition on a relation ("project.name") counts its
// foreign key column ("project_id") as the field. Unknown changes and
// unconditional automations always pass.
func passesChangeGate(a domain.Automation, changed []string) bool {
	if changed == nil {
		return true
	}
	fields := a.ConditionFields()
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		for _, c := range changed {
			if c == f || c == f+"_id" {
				return true
			}
		}
	}
	return false
}

func validRecipients(recipients []string) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if checkmail.ValidateFormat(r) == nil {
			out = append(out, r)
		}
	}
	return out
}

func lockKey(entityType events.EntityType, id uuid.UUID) string {
	return "automation:entity:" + string(entityType) + ":" + id.String()
}

func ptr[T any](v T) *T {
	return &v
}
