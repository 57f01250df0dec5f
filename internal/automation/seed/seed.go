// Package seed loads automation definitions from a YAML file so a fresh
// environment starts with a known set of automations.
package seed

import (
	"context"
	"fmt"
	"io"
	"strings"

	"recruitment_backend/internal/automation/transport"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const listPageSize = 100

// File is the seed document.
type File struct {
	Automations []Automation `yaml:"automations"`
}

// Automation is one seeded definition.
type Automation struct {
	Title             string            `yaml:"title"`
	Description       string            `yaml:"description"`
	CompanyID         string            `yaml:"company_id"`
	EntityType        string            `yaml:"entity_type"`
	TriggerEvent      string            `yaml:"trigger_event"`
	Inactive          bool              `yaml:"inactive"`
	Recipients        []string          `yaml:"recipients"`
	Subject           string            `yaml:"subject"`
	HTML              string            `yaml:"html"`
	Text              string            `yaml:"text"`
	Conditions        []Condition       `yaml:"conditions"`
	TemplateVariables map[string]string `yaml:"template_variables"`
}

// Condition is one seeded predicate.
type Condition struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

// Store is the part of the automation service the seeder writes through, so
// seeded definitions get the same validation as API writes.
type Store interface {
	List(ctx context.Context, tenantID *uuid.UUID, req transport.ListAutomationsRequest) (transport.AutomationListResponse, error)
	Create(ctx context.Context, tenantID *uuid.UUID, req transport.UpsertAutomationRequest) (transport.AutomationResponse, error)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed file: %w", err)
	}
	return f, nil
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Apply creates every automation not already present. An automation is
// present when one with the same title exists for the same owner.
func Apply(ctx context.Context, store Store, f File, log *logger.Logger) (Result, error) {
	existing, err := existingTitles(ctx, store)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, a := range f.Automations {
		req, err := a.request()
		if err != nil {
			return res, fmt.Errorf("automations[%d]: %w", i, err)
		}
		key := ownerKey(req.CompanyID, req.Title)
		if existing[key] {
			res.Skipped++
			log.Info("seed automation already present", "title", req.Title)
			continue
		}
		created, err := store.Create(ctx, nil, req)
		if err != nil {
			return res, fmt.Errorf("automations[%d] %q: %w", i, req.Title, err)
		}
		existing[key] = true
		res.Created++
		log.Info("seed automation created", "automationId", created.ID, "title", created.Title)
	}
	return res, nil
}

func existingTitles(ctx context.Context, store Store) (map[string]bool, error) {
	titles := make(map[string]bool)
	for page := 1; ; page++ {
		resp, err := store.List(ctx, nil, transport.ListAutomationsRequest{Page: page, PageSize: listPageSize})
		if err != nil {
			return nil, fmt.Errorf("list automations: %w", err)
		}
		for _, a := range resp.Items {
			titles[ownerKey(a.CompanyID, a.Title)] = true
		}
		if page >= resp.TotalPages {
			return titles, nil
		}
	}
}

func ownerKey(companyID *uuid.UUID, title string) string {
	owner := "global"
	if companyID != nil {
		owner = companyID.String()
	}
	return owner + "|" + strings.TrimSpace(title)
}

func (a Automation) request() (transport.UpsertAutomationRequest, error) {
	req := transport.UpsertAutomationRequest{
		Title:        strings.TrimSpace(a.Title),
		EntityType:   a.EntityType,
		TriggerEvent: a.TriggerEvent,
		Recipients:   a.Recipients,
		MailTemplate: transport.MailTemplate{
			Subject:     a.Subject,
			HTMLContent: a.HTML,
			TextContent: a.Text,
		},
		TemplateVariables: a.TemplateVariables,
	}
	if req.Title == "" {
		return req, fmt.Errorf("title is required")
	}
	if a.Description != "" {
		req.Description = &a.Description
	}
	if a.CompanyID != "" {
		id, err := uuid.Parse(a.CompanyID)
		if err != nil {
			return req, fmt.Errorf("invalid company_id: %w", err)
		}
		req.CompanyID = &id
	}
	active := !a.Inactive
	req.IsActive = &active
	for _, c := range a.Conditions {
		req.Conditions = append(req.Conditions, transport.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	return req, nil
}
