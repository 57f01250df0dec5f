package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/automation/registry"
	"recruitment_backend/internal/automation/render"
	"recruitment_backend/internal/automation/repository"
	"recruitment_backend/internal/events"
	maildomain "recruitment_backend/internal/mail/domain"
	"recruitment_backend/internal/mail/gateway"
	"recruitment_backend/internal/mail/provider"
	"recruitment_backend/platform/apperr"
	"recruitment_backend/platform/distlock"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
)

var eventTime = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

type memorySource struct {
	automations []domain.Automation
}

func (m *memorySource) ListActive(_ context.Context, entityType events.EntityType, trigger domain.TriggerEvent) ([]domain.Automation, error) {
	out := make([]domain.Automation, 0)
	for _, a := range m.automations {
		if a.IsActive && a.EntityType == entityType && a.TriggerEvent == trigger {
			out = append(out, a)
		}
	}
	return out, nil
}

type memoryLoader struct {
	mu       sync.Mutex
	entities map[uuid.UUID]repository.Entity
	loads    int
	err      error
}

func (m *memoryLoader) Load(_ context.Context, _ events.EntityType, id uuid.UUID) (repository.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return repository.Entity{}, m.err
	}
	e, ok := m.entities[id]
	if !ok {
		return repository.Entity{}, repository.ErrEntityNotFound
	}
	return e, nil
}

type memoryDeliveries struct {
	mu      sync.Mutex
	byKey   map[string]*domain.DeliveryRecord
	order   []string
	updates []repository.UpdateDeliveryParams
}

func newMemoryDeliveries() *memoryDeliveries {
	return &memoryDeliveries{byKey: make(map[string]*domain.DeliveryRecord)}
}

func (m *memoryDeliveries) Insert(_ context.Context, rec domain.DeliveryRecord) (domain.DeliveryRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byKey[rec.DedupeKey]; ok {
		return *existing, false, nil
	}
	rec.CreatedAt, rec.UpdatedAt = eventTime, eventTime
	m.byKey[rec.DedupeKey] = &rec
	m.order = append(m.order, rec.DedupeKey)
	return rec, true, nil
}

func (m *memoryDeliveries) UpdateStatus(_ context.Context, params repository.UpdateDeliveryParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, params)
	for _, rec := range m.byKey {
		if rec.ID != params.ID {
			continue
		}
		rec.Status = params.Status
		rec.Attempts = params.Attempts
		if params.Error != nil {
			rec.Error = params.Error
		}
		if params.Provider != nil {
			rec.Provider = params.Provider
		}
		if params.MessageID != nil {
			rec.MessageID = params.MessageID
		}
		if params.ArchiveKey != nil {
			rec.ArchiveKey = params.ArchiveKey
		}
		return nil
	}
	return errors.New("delivery not found")
}

func (m *memoryDeliveries) GetByID(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.DeliveryRecord, error) {
	for _, rec := range m.records() {
		if rec.ID != id {
			continue
		}
		if companyID != nil && (rec.CompanyID == nil || *rec.CompanyID != *companyID) {
			break
		}
		return rec, nil
	}
	return domain.DeliveryRecord{}, apperr.NotFound("delivery record not found")
}

func (m *memoryDeliveries) List(_ context.Context, params repository.ListDeliveriesParams) ([]domain.DeliveryRecord, int, error) {
	records := m.records()
	out := make([]domain.DeliveryRecord, 0, len(records))
	for _, rec := range records {
		if params.AutomationID != nil && rec.AutomationID != *params.AutomationID {
			continue
		}
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (m *memoryDeliveries) records() []domain.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DeliveryRecord, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, *m.byKey[key])
	}
	return out
}

type scriptedSender struct {
	mu      sync.Mutex
	results []error
	sent    []maildomain.Message
}

func (s *scriptedSender) Provider() maildomain.ProviderType { return maildomain.ProviderSendGrid }

func (s *scriptedSender) Send(_ context.Context, msg maildomain.Message) (maildomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		if err != nil {
			return maildomain.Result{}, err
		}
	}
	return maildomain.Result{Provider: maildomain.ProviderSendGrid, MessageID: "sg-1"}, nil
}

func (s *scriptedSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type staticConfig struct{ configured bool }

func (c staticConfig) Resolve(context.Context, *uuid.UUID) (maildomain.Configuration, error) {
	if !c.configured {
		return maildomain.Configuration{}, maildomain.ErrNoProviderConfigured
	}
	return maildomain.Configuration{
		ID:           uuid.New(),
		ProviderType: maildomain.ProviderSendGrid,
		FromEmail:    "noreply@example.com",
		IsActive:     true,
	}, nil
}

type plainCipher struct{}

func (plainCipher) DecryptOptional(encrypted *string) (string, error) {
	if encrypted == nil {
		return "", nil
	}
	return *encrypted, nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (distlock.ReleaseFunc, error) {
	return nil, distlock.ErrLocked
}

type recordingArchive struct {
	mu     sync.Mutex
	stored []render.Rendered
}

func (a *recordingArchive) Store(_ context.Context, rec domain.DeliveryRecord, msg render.Rendered) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored = append(a.stored, msg)
	return "archive/" + rec.ID.String() + ".json", nil
}

type harness struct {
	source     *memorySource
	loader     *memoryLoader
	deliveries *memoryDeliveries
	sender     *scriptedSender
	orch       *Orchestrator
}

func newHarness(configured bool, automations ...domain.Automation) *harness {
	h := &harness{
		source:     &memorySource{automations: automations},
		loader:     &memoryLoader{entities: make(map[uuid.UUID]repository.Entity)},
		deliveries: newMemoryDeliveries(),
		sender:     &scriptedSender{},
	}
	factory := func(context.Context, maildomain.Configuration, maildomain.Credentials) (provider.Sender, error) {
		return h.sender, nil
	}
	gw := gateway.New(staticConfig{configured: configured}, plainCipher{}, factory, gateway.Options{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, logger.Discard())

	h.orch = NewOrchestrator(registry.New(h.source, 0), h.loader, h.deliveries, gw, distlock.NewLocalLocker(), OrchestratorOptions{
		Concurrency:   2,
		PublicBaseURL: "https://app.example.com",
		DefaultLocale: "fr-FR",
	}, logger.Discard())
	return h
}

func (h *harness) addEntity(id uuid.UUID, companyID *uuid.UUID, snap domain.Snapshot) {
	h.loader.entities[id] = repository.Entity{Snapshot: snap, CompanyID: companyID, Locale: "fr-FR"}
}

func candidateAutomation() domain.Automation {
	return domain.Automation{
		ID:           uuid.New(),
		Title:        "New candidate",
		EntityType:   events.EntityCandidate,
		TriggerEvent: domain.TriggerOnCreate,
		IsActive:     true,
		Recipients:   []string{"ops@x.com"},
		MailTemplate: domain.MailContent{
			Subject:     "New candidate: {{name}}",
			HTMLContent: "<p>{{name}} ({{email}}) applied on {{current_date}}</p>",
		},
	}
}

func candidateSnapshot(id uuid.UUID) domain.Snapshot {
	return domain.Snapshot{
		"id":         id.String(),
		"first_name": "Jean",
		"last_name":  "Dupont",
		"email":      "jean@x.com",
		"status":     "pending",
	}
}

// singleOutcome takes HandleEntityChanged's results directly:
// singleOutcome(t)(h.orch.HandleEntityChanged(ctx, ev)).
func singleOutcome(t *testing.T) func([]domain.Outcome, error) domain.Outcome {
	return func(outcomes []domain.Outcome, err error) domain.Outcome {
		t.Helper()
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if len(outcomes) != 1 {
			t.Fatalf("expected one outcome, got %+v", outcomes)
		}
		return outcomes[0]
	}
}

func TestCandidateCreateDeliversRenderedMail(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)))
	if out.State != domain.StateDelivered || out.AutomationID != a.ID {
		t.Fatalf("unexpected outcome %+v", out)
	}

	records := h.deliveries.records()
	if len(records) != 1 {
		t.Fatalf("expected one delivery record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != domain.DeliveryDelivered || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.Contains(rec.Subject, "Jean Dupont") {
		t.Fatalf("subject not rendered: %q", rec.Subject)
	}
	if rec.DedupeKey != domain.DedupeKey(id, a.ID, eventTime) {
		t.Fatalf("unexpected dedupe key %q", rec.DedupeKey)
	}
	if rec.MessageID == nil || *rec.MessageID != "sg-1" {
		t.Fatalf("message id not stored: %+v", rec.MessageID)
	}

	if h.sender.calls() != 1 {
		t.Fatalf("expected one send, got %d", h.sender.calls())
	}
	sent := h.sender.sent[0]
	if len(sent.To) != 1 || sent.To[0] != "ops@x.com" {
		t.Fatalf("unexpected recipients %v", sent.To)
	}
	if sent.HTML != "<p>Jean Dupont (jean@x.com) applied on 15/10/2026</p>" {
		t.Fatalf("unexpected html %q", sent.HTML)
	}
}

func TestInactiveAutomationProducesNothing(t *testing.T) {
	a := candidateAutomation()
	a.IsActive = false
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outcomes) != 0 || len(h.deliveries.records()) != 0 {
		t.Fatalf("inactive automation must not run: %+v", outcomes)
	}
	if h.loader.loads != 0 {
		t.Fatalf("entity must not be loaded without matches, got %d loads", h.loader.loads)
	}
}

func analysisAutomation() domain.Automation {
	return domain.Automation{
		ID:           uuid.New(),
		EntityType:   events.EntityAnalysis,
		TriggerEvent: domain.TriggerOnUpdate,
		IsActive:     true,
		Recipients:   []string{"hr@x.com"},
		MailTemplate: domain.MailContent{Subject: "Analysis ready for {{name}}", HTMLContent: "<p>{{score}}</p>"},
		Conditions:   []domain.ConditionSpec{{Field: "status", Operator: "eq", Value: "analyzed"}},
	}
}

func TestAnalysisStatusChangeFiresOnceAndNoOpUpdateIsGated(t *testing.T) {
	a := analysisAutomation()
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, domain.Snapshot{"id": id.String(), "status": "analyzed", "score": 91.0, "first_name": "Ana", "last_name": "Lee"})
	ctx := context.Background()

	out := singleOutcome(t)(h.orch.HandleEntityChanged(ctx,
		events.NewEntityChanged(events.EntityAnalysis, events.OperationUpdate, id, &company, []string{"status", "updated_at"}, eventTime)))
	if out.State != domain.StateDelivered {
		t.Fatalf("status transition should fire, got %+v", out)
	}

	out = singleOutcome(t)(h.orch.HandleEntityChanged(ctx,
		events.NewEntityChanged(events.EntityAnalysis, events.OperationUpdate, id, &company, []string{"updated_at"}, eventTime.Add(time.Minute))))
	if out.State != domain.StateSkipped {
		t.Fatalf("no-op update must be skipped, got %+v", out)
	}
	if got := len(h.deliveries.records()); got != 1 {
		t.Fatalf("expected one delivery record, got %d", got)
	}
}

func TestUnknownChangedFieldsSkipTheGate(t *testing.T) {
	a := analysisAutomation()
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, domain.Snapshot{"status": "analyzed"})

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityAnalysis, events.OperationUpdate, id, &company, nil, eventTime)))
	if out.State != domain.StateDelivered {
		t.Fatalf("nil changed fields must not gate, got %+v", out)
	}
}

func TestConditionsNotMetSkipWithoutRecord(t *testing.T) {
	a := analysisAutomation()
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, domain.Snapshot{"status": "pending"})

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityAnalysis, events.OperationUpdate, id, &company, []string{"status"}, eventTime)))
	if out.State != domain.StateSkipped || out.Reason != "conditions not met" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.deliveries.records()) != 0 {
		t.Fatal("skipped conditions must not write a delivery record")
	}
}

func TestTransientFailuresRetriedIntoOneDelivery(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	transient := maildomain.Transient(maildomain.ProviderSendGrid, errors.New("503"))
	h.sender.results = []error{transient, transient, transient, nil}
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)))
	if out.State != domain.StateDelivered {
		t.Fatalf("expected delivery within the retry cap, got %+v", out)
	}

	records := h.deliveries.records()
	if len(records) != 1 {
		t.Fatalf("retries must update one record, got %d", len(records))
	}
	if records[0].Status != domain.DeliveryDelivered || records[0].Attempts != 4 {
		t.Fatalf("unexpected final record %+v", records[0])
	}
	if h.sender.calls() != 4 {
		t.Fatalf("expected 4 provider calls, got %d", h.sender.calls())
	}
	for _, msg := range h.sender.sent {
		if msg.DedupeKey != records[0].DedupeKey {
			t.Fatalf("every attempt must carry the record's dedupe key, got %q", msg.DedupeKey)
		}
	}
	dispatched := 0
	for _, u := range h.deliveries.updates {
		if u.Status == domain.DeliveryDispatched {
			dispatched++
		}
	}
	if dispatched != 3 {
		t.Fatalf("expected 3 intermediate attempt updates, got %d", dispatched)
	}
}

func TestPermanentFailureMarksRecordFailed(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	h.sender.results = []error{maildomain.Permanent(maildomain.ProviderSendGrid, errors.New("invalid recipient"))}
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)))
	if out.State != domain.StateFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	rec := h.deliveries.records()[0]
	if rec.Status != domain.DeliveryFailed || rec.Attempts != 1 || rec.Error == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if h.sender.calls() != 1 {
		t.Fatalf("permanent failures must not be retried, got %d calls", h.sender.calls())
	}
}

func TestReprocessingSameEventIsIdempotent(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))
	ev := events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)
	ctx := context.Background()

	first := singleOutcome(t)(h.orch.HandleEntityChanged(ctx, ev))
	second := singleOutcome(t)(h.orch.HandleEntityChanged(ctx, ev))
	if first.State != domain.StateDelivered || second.State != domain.StateSkipped {
		t.Fatalf("unexpected outcomes %+v then %+v", first, second)
	}
	if second.DeliveryID == nil || *second.DeliveryID != *first.DeliveryID {
		t.Fatal("replay should point at the original delivery record")
	}
	if h.sender.calls() != 1 {
		t.Fatalf("replay must not send again, got %d sends", h.sender.calls())
	}
}

func TestMissingEntitySkipsEveryMatch(t *testing.T) {
	first, second := candidateAutomation(), candidateAutomation()
	first.TriggerEvent, second.TriggerEvent = domain.TriggerOnUpdate, domain.TriggerOnUpdate
	h := newHarness(true, first, second)
	company := uuid.New()

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationUpdate, uuid.New(), &company, nil, eventTime))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected two outcomes, got %+v", outcomes)
	}
	for _, out := range outcomes {
		if out.State != domain.StateSkipped || out.Reason != "entity not found" {
			t.Fatalf("unexpected outcome %+v", out)
		}
	}
	if len(h.deliveries.records()) != 0 || h.sender.calls() != 0 {
		t.Fatal("missing entity must not produce deliveries")
	}
}

func TestDeleteFallsBackToIdentifierSnapshot(t *testing.T) {
	a := candidateAutomation()
	a.TriggerEvent = domain.TriggerOnDelete
	a.Conditions = []domain.ConditionSpec{{Field: "company_id", Operator: "exists"}}
	a.MailTemplate = domain.MailContent{Subject: "Candidate {{id}} removed", HTMLContent: "<p>{{name}}</p>"}
	h := newHarness(true, a)
	company := uuid.New()
	id := uuid.New()

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationDelete, id, &company, nil, eventTime)))
	if out.State != domain.StateDelivered {
		t.Fatalf("delete should still deliver, got %+v", out)
	}
	sent := h.sender.sent[0]
	if sent.Subject != "Candidate "+id.String()+" removed" {
		t.Fatalf("unexpected subject %q", sent.Subject)
	}
	if sent.HTML != "<p>{{name}}</p>" {
		t.Fatalf("fields of the deleted row must stay unresolved, got %q", sent.HTML)
	}
}

func TestNoProviderConfiguredFails(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(false, a)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)))
	if out.State != domain.StateFailed || out.Reason != "no mail provider configured" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	rec := h.deliveries.records()[0]
	if rec.Status != domain.DeliveryFailed || rec.Attempts != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFailuresAreIsolatedPerAutomation(t *testing.T) {
	ok := candidateAutomation()
	badCondition := candidateAutomation()
	badCondition.Conditions = []domain.ConditionSpec{{Field: "status", Operator: "like", Value: "p%"}}
	badTemplate := candidateAutomation()
	badTemplate.MailTemplate.Subject = "broken \xff"
	noRecipients := candidateAutomation()
	noRecipients.Recipients = []string{"not-an-address"}

	h := newHarness(true, badCondition, badTemplate, ok, noRecipients)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := map[uuid.UUID]domain.State{
		badCondition.ID: domain.StateSkipped,
		badTemplate.ID:  domain.StateFailed,
		ok.ID:           domain.StateDelivered,
		noRecipients.ID: domain.StateSkipped,
	}
	if len(outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %+v", len(want), outcomes)
	}
	for _, out := range outcomes {
		if out.State != want[out.AutomationID] {
			t.Fatalf("automation %s: got %s (%s), want %s", out.AutomationID, out.State, out.Reason, want[out.AutomationID])
		}
	}

	statuses := map[uuid.UUID]domain.DeliveryStatus{}
	for _, rec := range h.deliveries.records() {
		statuses[rec.AutomationID] = rec.Status
	}
	if _, wrote := statuses[badCondition.ID]; wrote {
		t.Fatal("invalid condition must not write a record")
	}
	if statuses[badTemplate.ID] != domain.DeliveryFailed || statuses[noRecipients.ID] != domain.DeliverySkipped || statuses[ok.ID] != domain.DeliveryDelivered {
		t.Fatalf("unexpected record statuses %v", statuses)
	}
	if h.sender.calls() != 1 {
		t.Fatalf("only the healthy automation should send, got %d", h.sender.calls())
	}
}

func TestCompanyScopedAutomationDoesNotLeak(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	a := candidateAutomation()
	a.CompanyID = &owner
	h := newHarness(true, a)
	id := uuid.New()
	h.addEntity(id, &other, candidateSnapshot(id))

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &other, nil, eventTime))
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("another company's automation must not match: %+v %v", outcomes, err)
	}
}

func TestEventCompanyCannotClaimAnotherCompanysEntity(t *testing.T) {
	tenant, owner := uuid.New(), uuid.New()
	a := candidateAutomation()
	a.CompanyID = &tenant
	h := newHarness(true, a)
	id := uuid.New()
	h.addEntity(id, &owner, candidateSnapshot(id))

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &tenant, nil, eventTime))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outcomes) != 0 || len(h.deliveries.records()) != 0 || h.sender.calls() != 0 {
		t.Fatalf("automation of %s must not run on an entity of %s: %+v", tenant, owner, outcomes)
	}
}

func TestEntityCompanyDecidesMatchingOverEventCompany(t *testing.T) {
	tenant, owner := uuid.New(), uuid.New()
	tenantAutomation := candidateAutomation()
	tenantAutomation.CompanyID = &tenant
	ownerAutomation := candidateAutomation()
	ownerAutomation.CompanyID = &owner
	ownerAutomation.Recipients = []string{"owner@x.com"}
	h := newHarness(true, tenantAutomation, ownerAutomation)
	id := uuid.New()
	h.addEntity(id, &owner, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &tenant, nil, eventTime)))
	if out.AutomationID != ownerAutomation.ID || out.State != domain.StateDelivered {
		t.Fatalf("only the owning company's automation should run, got %+v", out)
	}
	if to := h.sender.sent[0].To; len(to) != 1 || to[0] != "owner@x.com" {
		t.Fatalf("unexpected recipients %v", to)
	}
	if rec := h.deliveries.records()[0]; rec.CompanyID == nil || *rec.CompanyID != owner {
		t.Fatalf("record should carry the owner company, got %v", rec.CompanyID)
	}
}

func TestEntityWithoutCompanyIgnoresEventCompany(t *testing.T) {
	tenant := uuid.New()
	a := candidateAutomation()
	a.CompanyID = &tenant
	h := newHarness(true, a)
	id := uuid.New()
	h.addEntity(id, nil, candidateSnapshot(id))

	outcomes, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &tenant, nil, eventTime))
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("a company automation must not adopt an unowned entity: %+v %v", outcomes, err)
	}
}

func TestEventWithoutCompanyUsesLoadedCompany(t *testing.T) {
	company := uuid.New()
	a := candidateAutomation()
	a.CompanyID = &company
	h := newHarness(true, a)
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	out := singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, nil, nil, eventTime)))
	if out.State != domain.StateDelivered {
		t.Fatalf("company learned from the entity should match, got %+v", out)
	}
	if rec := h.deliveries.records()[0]; rec.CompanyID == nil || *rec.CompanyID != company {
		t.Fatalf("record should carry the entity's company, got %v", rec.CompanyID)
	}
}

func TestHeldLockReturnsError(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	h.orch.locker = heldLocker{}
	company := uuid.New()

	_, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, uuid.New(), &company, nil, eventTime))
	if !errors.Is(err, distlock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestLoaderErrorIsReturned(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	h.loader.err = errors.New("connection reset")
	company := uuid.New()

	if _, err := h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, uuid.New(), &company, nil, eventTime)); err == nil {
		t.Fatal("expected loader failure to surface for retry")
	}
}

func TestArchiveKeyStoredOnRecord(t *testing.T) {
	a := candidateAutomation()
	h := newHarness(true, a)
	archive := &recordingArchive{}
	h.orch.SetArchive(archive)
	company := uuid.New()
	id := uuid.New()
	h.addEntity(id, &company, candidateSnapshot(id))

	singleOutcome(t)(h.orch.HandleEntityChanged(context.Background(),
		events.NewEntityChanged(events.EntityCandidate, events.OperationCreate, id, &company, nil, eventTime)))

	rec := h.deliveries.records()[0]
	if rec.ArchiveKey == nil || *rec.ArchiveKey != "archive/"+rec.ID.String()+".json" {
		t.Fatalf("archive key not stored: %v", rec.ArchiveKey)
	}
	if len(archive.stored) != 1 || !strings.Contains(archive.stored[0].Subject, "Jean Dupont") {
		t.Fatalf("unexpected archived messages %+v", archive.stored)
	}
}

type unrelatedEvent struct{ events.BaseEvent }

func (unrelatedEvent) EventName() string { return "mail.sent" }

func TestHandleIgnoresOtherEvents(t *testing.T) {
	h := newHarness(true)
	if err := h.orch.Handle(context.Background(), unrelatedEvent{events.NewBaseEvent()}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPassesChangeGate(t *testing.T) {
	a := domain.Automation{Conditions: []domain.ConditionSpec{{Field: "project.company_id", Operator: "exists"}}}
	cases := []struct {
		changed []string
		want    bool
	}{
		{nil, true},
		{[]string{}, false},
		{[]string{"status"}, false},
		{[]string{"project_id"}, true},
		{[]string{"project"}, true},
	}
	for _, tc := range cases {
		if got := passesChangeGate(a, tc.changed); got != tc.want {
			t.Fatalf("passesChangeGate(%v) = %v, want %v", tc.changed, got, tc.want)
		}
	}
	if !passesChangeGate(domain.Automation{}, []string{"anything"}) {
		t.Fatal("automations without conditions fire on every update")
	}
}
