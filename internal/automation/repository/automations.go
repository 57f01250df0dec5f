// Package repository provides PostgreSQL storage for automations, delivery
// records and the entity snapshots automations are evaluated against.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const automationNotFoundMessage = "automation not found"

const automationColumns = `id, company_id, title, description, entity_type, trigger_event, is_active,
	recipients, mail_subject, mail_html_content, mail_text_content, conditions, template_variables,
	created_at, updated_at`

// Automations implements AutomationRepository.
type Automations struct {
	pool *pgxpool.Pool
}

// NewAutomations creates the automation repository.
func NewAutomations(pool *pgxpool.Pool) *Automations {
	return &Automations{pool: pool}
}

var _ AutomationRepository = (*Automations)(nil)

// Create inserts a new automation.
func (r *Automations) Create(ctx context.Context, a domain.Automation) (domain.Automation, error) {
	conditions, variables, err := encodeJSONColumns(a)
	if err != nil {
		return domain.Automation{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO automations (id, company_id, title, description, entity_type, trigger_event, is_active,
			recipients, mail_subject, mail_html_content, mail_text_content, conditions, template_variables)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + automationColumns

	row := r.pool.QueryRow(ctx, query,
		a.ID, a.CompanyID, a.Title, a.Description, string(a.EntityType), string(a.TriggerEvent), a.IsActive,
		a.Recipients, a.MailTemplate.Subject, a.MailTemplate.HTMLContent, a.MailTemplate.TextContent,
		conditions, variables,
	)
	created, err := scanAutomation(row)
	if err != nil {
		return domain.Automation{}, fmt.Errorf("create automation: %w", err)
	}
	return created, nil
}

// Update replaces every mutable field of an automation owned by a.CompanyID.
func (r *Automations) Update(ctx context.Context, a domain.Automation) (domain.Automation, error) {
	conditions, variables, err := encodeJSONColumns(a)
	if err != nil {
		return domain.Automation{}, err
	}

	query := `
		UPDATE automations
		SET title = $3, description = $4, entity_type = $5, trigger_event = $6, is_active = $7,
			recipients = $8, mail_subject = $9, mail_html_content = $10, mail_text_content = $11,
			conditions = $12, template_variables = $13, updated_at = now()
		WHERE id = $1 AND company_id IS NOT DISTINCT FROM $2
		RETURNING ` + automationColumns

	row := r.pool.QueryRow(ctx, query,
		a.ID, a.CompanyID, a.Title, a.Description, string(a.EntityType), string(a.TriggerEvent), a.IsActive,
		a.Recipients, a.MailTemplate.Subject, a.MailTemplate.HTMLContent, a.MailTemplate.TextContent,
		conditions, variables,
	)
	updated, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Automation{}, apperr.NotFound(automationNotFoundMessage)
		}
		return domain.Automation{}, fmt.Errorf("update automation: %w", err)
	}
	return updated, nil
}

// Delete removes an automation owned by companyID (nil for global ones).
func (r *Automations) Delete(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM automations WHERE id = $1 AND company_id IS NOT DISTINCT FROM $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(automationNotFoundMessage)
	}
	return nil
}

// GetByID returns an automation visible to companyID: its own or a global
// one. A nil companyID sees every automation.
func (r *Automations) GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.Automation, error) {
	query := `SELECT ` + automationColumns + `
		FROM automations
		WHERE id = $1 AND ($2::uuid IS NULL OR company_id = $2 OR company_id IS NULL)`

	a, err := scanAutomation(r.pool.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Automation{}, apperr.NotFound(automationNotFoundMessage)
		}
		return domain.Automation{}, fmt.Errorf("get automation: %w", err)
	}
	return a, nil
}

// List returns automations visible to params.CompanyID, newest first.
func (r *Automations) List(ctx context.Context, params ListAutomationsParams) ([]domain.Automation, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.CompanyID != nil {
		p := next(*params.CompanyID)
		where = append(where, fmt.Sprintf("(company_id = %s OR company_id IS NULL)", p))
	}
	if params.EntityType != nil {
		where = append(where, "entity_type = "+next(string(*params.EntityType)))
	}
	if params.TriggerEvent != nil {
		where = append(where, "trigger_event = "+next(string(*params.TriggerEvent)))
	}
	if params.ActiveOnly {
		where = append(where, "is_active")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM automations WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count automations: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM automations WHERE %s ORDER BY created_at DESC, id LIMIT %s OFFSET %s`,
		automationColumns, whereClause, next(limit), next(params.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	items, err := collectAutomations(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListActive returns every active automation for an entity type and trigger,
// global and company-scoped alike, oldest first.
func (r *Automations) ListActive(ctx context.Context, entityType events.EntityType, trigger domain.TriggerEvent) ([]domain.Automation, error) {
	query := `SELECT ` + automationColumns + `
		FROM automations
		WHERE is_active AND entity_type = $1 AND trigger_event = $2
		ORDER BY created_at ASC, id`

	rows, err := r.pool.Query(ctx, query, string(entityType), string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

func collectAutomations(rows pgx.Rows) ([]domain.Automation, error) {
	items := make([]domain.Automation, 0)
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate automations: %w", err)
	}
	return items, nil
}

func scanAutomation(row pgx.Row) (domain.Automation, error) {
	var (
		a                      domain.Automation
		entityType, trigger    string
		conditionsRaw, varsRaw []byte
	)
	if err := row.Scan(
		&a.ID, &a.CompanyID, &a.Title, &a.Description, &entityType, &trigger, &a.IsActive,
		&a.Recipients, &a.MailTemplate.Subject, &a.MailTemplate.HTMLContent, &a.MailTemplate.TextContent,
		&conditionsRaw, &varsRaw, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return domain.Automation{}, err
	}
	a.EntityType = events.EntityType(entityType)
	a.TriggerEvent = domain.TriggerEvent(trigger)

	if len(conditionsRaw) > 0 {
		if err := json.Unmarshal(conditionsRaw, &a.Conditions); err != nil {
			return domain.Automation{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if len(varsRaw) > 0 {
		if err := json.Unmarshal(varsRaw, &a.TemplateVariables); err != nil {
			return domain.Automation{}, fmt.Errorf("decode template variables: %w", err)
		}
	}
	if a.Recipients == nil {
		a.Recipients = []string{}
	}
	return a, nil
}

func encodeJSONColumns(a domain.Automation) ([]byte, []byte, error) {
	conditions := a.Conditions
	if conditions == nil {
		conditions = []domain.ConditionSpec{}
	}
	variables := a.TemplateVariables
	if variables == nil {
		variables = map[string]string{}
	}
	c, err := json.Marshal(conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	v, err := json.Marshal(variables)
	if err != nil {
		return nil, nil, fmt.Errorf("encode template variables: %w", err)
	}
	return c, v, nil
}
