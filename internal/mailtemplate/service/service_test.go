package service

import (
	"context"
	"testing"
	"time"

	"recruitment_backend/internal/mailtemplate/domain"
	"recruitment_backend/internal/mailtemplate/repository"
	"recruitment_backend/internal/mailtemplate/transport"
	"recruitment_backend/platform/apperr"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
)

type memoryTemplates struct {
	items map[uuid.UUID]domain.Template
}

func newMemoryTemplates() *memoryTemplates {
	return &memoryTemplates{items: map[uuid.UUID]domain.Template{}}
}

func (m *memoryTemplates) Create(_ context.Context, t domain.Template) (domain.Template, error) {
	t.ID = uuid.New()
	t.CreatedAt, t.UpdatedAt = time.Now(), time.Now()
	m.items[t.ID] = t
	return t, nil
}

func (m *memoryTemplates) Update(_ context.Context, t domain.Template) (domain.Template, error) {
	if _, ok := m.items[t.ID]; !ok {
		return domain.Template{}, apperr.NotFound("mail template not found")
	}
	m.items[t.ID] = t
	return t, nil
}

func (m *memoryTemplates) GetByID(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.Template, error) {
	t, ok := m.items[id]
	if !ok || (companyID != nil && t.CompanyID != nil && *t.CompanyID != *companyID) {
		return domain.Template{}, apperr.NotFound("mail template not found")
	}
	return t, nil
}

func (m *memoryTemplates) List(_ context.Context, params repository.ListParams) ([]domain.Template, error) {
	out := []domain.Template{}
	for _, t := range m.items {
		if params.CompanyID != nil && t.CompanyID != nil && *t.CompanyID != *params.CompanyID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func welcomeRequest() transport.UpsertTemplateRequest {
	return transport.UpsertTemplateRequest{
		Type:        "welcome",
		Name:        " Welcome ",
		Subject:     "Welcome {{name}}",
		HTMLContent: "<p>Hello {{name}}</p>",
		Status:      "active",
	}
}

func TestCreateStartsAtVersionOne(t *testing.T) {
	svc := New(newMemoryTemplates(), logger.Discard())
	tenant := uuid.New()

	resp, err := svc.Create(context.Background(), &tenant, welcomeRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Version != 1 || resp.Name != "Welcome" || resp.Status != "active" {
		t.Fatalf("unexpected template %+v", resp)
	}
	if resp.CompanyID == nil || *resp.CompanyID != tenant {
		t.Fatalf("tenant templates belong to the tenant, got %v", resp.CompanyID)
	}
}

func TestUpdateBumpsVersionOnContentChangeOnly(t *testing.T) {
	svc := New(newMemoryTemplates(), logger.Discard())
	ctx := context.Background()
	created, err := svc.Create(ctx, nil, welcomeRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := welcomeRequest()
	req.Name = "Renamed"
	renamed, err := svc.Update(ctx, nil, created.ID, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Version != 1 {
		t.Fatalf("metadata edits keep the version, got %d", renamed.Version)
	}

	req.TextContent = "Hello {{name}}"
	changed, err := svc.Update(ctx, nil, created.ID, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed.Version != 2 {
		t.Fatalf("content edits bump the version, got %d", changed.Version)
	}
}

func TestTenantCannotEditGlobalTemplate(t *testing.T) {
	svc := New(newMemoryTemplates(), logger.Discard())
	ctx := context.Background()
	global, err := svc.Create(ctx, nil, welcomeRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tenant := uuid.New()
	if _, err := svc.Update(ctx, &tenant, global.ID, welcomeRequest()); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, &tenant, global.ID); err != nil {
		t.Fatalf("tenants can read global templates: %v", err)
	}
}

func TestCreateRejectsInvalidTemplates(t *testing.T) {
	svc := New(newMemoryTemplates(), logger.Discard())

	draftDefault := welcomeRequest()
	draftDefault.Status = "draft"
	draftDefault.IsDefault = true

	badSubject := welcomeRequest()
	badSubject.Subject = "bad \xff"

	for name, req := range map[string]transport.UpsertTemplateRequest{
		"draft default": draftDefault,
		"invalid utf8":  badSubject,
	} {
		if _, err := svc.Create(context.Background(), nil, req); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestListFiltersByType(t *testing.T) {
	svc := New(newMemoryTemplates(), logger.Discard())
	ctx := context.Background()
	if _, err := svc.Create(ctx, nil, welcomeRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := welcomeRequest()
	other.Type = "invitation"
	if _, err := svc.Create(ctx, nil, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.List(ctx, nil, transport.ListTemplatesRequest{Type: "invitation"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Type != "invitation" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}
