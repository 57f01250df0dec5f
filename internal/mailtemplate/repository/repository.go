// Package repository stores mail templates.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recruitment_backend/internal/mailtemplate/domain"
	"recruitment_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const templateNotFoundMessage = "mail template not found"

const templateColumns = `id, company_id, type, name, subject, html_content, text_content, variables,
	status, is_default, version, created_at, updated_at`

// Repository defines mail template persistence.
type Repository interface {
	Create(ctx context.Context, t domain.Template) (domain.Template, error)
	Update(ctx context.Context, t domain.Template) (domain.Template, error)
	// GetByID returns a template owned by companyID or a global one. A nil
	// companyID sees every template.
	GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.Template, error)
	List(ctx context.Context, params ListParams) ([]domain.Template, error)
}

// ListParams filters the template listing.
type ListParams struct {
	CompanyID *uuid.UUID
	Type      *domain.Type
	Status    *domain.Status
}

// Repo implements Repository with pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates the mail template repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

// Create inserts t. A default template demotes the previous default of the
// same owner and type.
func (r *Repo) Create(ctx context.Context, t domain.Template) (domain.Template, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	variables, err := encodeVariables(t.Variables)
	if err != nil {
		return domain.Template{}, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if err := clearDefault(ctx, tx, t); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO mail_templates (id, company_id, type, name, subject, html_content, text_content,
				variables, status, is_default, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.CompanyID, string(t.Type), t.Name, t.Subject, t.HTMLContent, t.TextContent,
			variables, string(t.Status), t.IsDefault, t.Version,
		)
		return err
	})
	if err != nil {
		return domain.Template{}, fmt.Errorf("create mail template: %w", err)
	}
	return r.GetByID(ctx, nil, t.ID)
}

// Update replaces t.
func (r *Repo) Update(ctx context.Context, t domain.Template) (domain.Template, error) {
	variables, err := encodeVariables(t.Variables)
	if err != nil {
		return domain.Template{}, err
	}

	var updated int64
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if err := clearDefault(ctx, tx, t); err != nil {
				return err
			}
		}
		result, err := tx.Exec(ctx, `
			UPDATE mail_templates
			SET type = $2, name = $3, subject = $4, html_content = $5, text_content = $6, variables = $7,
				status = $8, is_default = $9, version = $10, updated_at = now()
			WHERE id = $1`,
			t.ID, string(t.Type), t.Name, t.Subject, t.HTMLContent, t.TextContent, variables,
			string(t.Status), t.IsDefault, t.Version,
		)
		updated = result.RowsAffected()
		return err
	})
	if err != nil {
		return domain.Template{}, fmt.Errorf("update mail template: %w", err)
	}
	if updated == 0 {
		return domain.Template{}, apperr.NotFound(templateNotFoundMessage)
	}
	return r.GetByID(ctx, nil, t.ID)
}

func (r *Repo) GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.Template, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM mail_templates
		WHERE id = $1 AND ($2::uuid IS NULL OR company_id = $2 OR company_id IS NULL)`, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return domain.Template{}, fmt.Errorf("get mail template: %w", err)
	}
	return t, nil
}

// List returns templates ordered by type then name.
func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Template, error) {
	where := []string{"TRUE"}
	args := []any{}

	if params.CompanyID != nil {
		args = append(args, *params.CompanyID)
		where = append(where, fmt.Sprintf("(company_id = $%d OR company_id IS NULL)", len(args)))
	}
	if params.Type != nil {
		args = append(args, string(*params.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM mail_templates WHERE `+
		strings.Join(where, " AND ")+` ORDER BY type, name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list mail templates: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail template: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail templates: %w", err)
	}
	return items, nil
}

func clearDefault(ctx context.Context, tx pgx.Tx, t domain.Template) error {
	_, err := tx.Exec(ctx, `
		UPDATE mail_templates SET is_default = FALSE, updated_at = now()
		WHERE type = $1 AND company_id IS NOT DISTINCT FROM $2 AND id <> $3 AND is_default`,
		string(t.Type), t.CompanyID, t.ID)
	return err
}

func scanTemplate(row pgx.Row) (domain.Template, error) {
	var (
		t            domain.Template
		kind, status string
		variables    []byte
	)
	err := row.Scan(&t.ID, &t.CompanyID, &kind, &t.Name, &t.Subject, &t.HTMLContent, &t.TextContent, &variables,
		&status, &t.IsDefault, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Template{}, err
	}
	t.Type = domain.Type(kind)
	t.Status = domain.Status(status)
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return domain.Template{}, fmt.Errorf("decode template variables: %w", err)
		}
	}
	return t, nil
}

func encodeVariables(v map[string]string) ([]byte, error) {
	if v == nil {
		v = map[string]string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode template variables: %w", err)
	}
	return data, nil
}
