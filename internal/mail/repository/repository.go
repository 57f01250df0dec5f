// Package repository stores mail provider configurations and their company
// links.
package repository

import (
	"context"
	"errors"
	"fmt"

	"recruitment_backend/internal/mail/domain"
	"recruitment_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	configurationNotFoundMessage = "mail configuration not found"
	uniqueViolation              = "23505"
)

const configurationColumns = `mc.id, mc.provider_type, mc.smtp_host, mc.smtp_port, mc.smtp_user, mc.smtp_password_enc,
	mc.smtp_secure, mc.smtp_require_tls, mc.api_key_enc, mc.api_secret_enc, mc.region, mc.domain,
	mc.from_email, mc.from_name, mc.is_active, mc.is_default,
	COALESCE((SELECT array_agg(l.company_id ORDER BY l.company_id) FROM mail_configuration_companies l
		WHERE l.mail_configuration_id = mc.id), '{}'::uuid[]),
	mc.created_at, mc.updated_at`

// Repository defines mail configuration persistence.
type Repository interface {
	Create(ctx context.Context, cfg domain.Configuration) (domain.Configuration, error)
	Update(ctx context.Context, cfg domain.Configuration) (domain.Configuration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Configuration, error)
	List(ctx context.Context) ([]domain.Configuration, error)
	Resolve(ctx context.Context, companyID *uuid.UUID) (domain.Configuration, error)
}

// Repo implements Repository with pgx.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates the mail configuration repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

// Create inserts a configuration and its company links in one transaction.
func (r *Repo) Create(ctx context.Context, cfg domain.Configuration) (domain.Configuration, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO mail_configurations (id, provider_type, smtp_host, smtp_port, smtp_user, smtp_password_enc,
				smtp_secure, smtp_require_tls, api_key_enc, api_secret_enc, region, domain,
				from_email, from_name, is_active, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			cfg.ID, string(cfg.ProviderType), cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPasswordEnc,
			cfg.SMTPSecure, cfg.SMTPRequireTLS, cfg.APIKeyEnc, cfg.APISecretEnc, cfg.Region, cfg.Domain,
			cfg.FromEmail, cfg.FromName, cfg.IsActive, cfg.IsDefault,
		)
		if err != nil {
			return err
		}
		return replaceLinks(ctx, tx, cfg.ID, cfg.CompanyIDs)
	})
	if err != nil {
		return domain.Configuration{}, mapWriteError("create mail configuration", err)
	}
	return r.GetByID(ctx, cfg.ID)
}

// Update replaces a configuration. Nil secret fields keep the stored
// ciphertext so clients never have to resend secrets.
func (r *Repo) Update(ctx context.Context, cfg domain.Configuration) (domain.Configuration, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE mail_configurations
			SET provider_type = $2, smtp_host = $3, smtp_port = $4, smtp_user = $5,
				smtp_password_enc = COALESCE($6, smtp_password_enc),
				smtp_secure = $7, smtp_require_tls = $8,
				api_key_enc = COALESCE($9, api_key_enc),
				api_secret_enc = COALESCE($10, api_secret_enc),
				region = $11, domain = $12, from_email = $13, from_name = $14,
				is_active = $15, is_default = $16, updated_at = now()
			WHERE id = $1`,
			cfg.ID, string(cfg.ProviderType), cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPasswordEnc,
			cfg.SMTPSecure, cfg.SMTPRequireTLS, cfg.APIKeyEnc, cfg.APISecretEnc, cfg.Region, cfg.Domain,
			cfg.FromEmail, cfg.FromName, cfg.IsActive, cfg.IsDefault,
		)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return replaceLinks(ctx, tx, cfg.ID, cfg.CompanyIDs)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Configuration{}, apperr.NotFound(configurationNotFoundMessage)
		}
		return domain.Configuration{}, mapWriteError("update mail configuration", err)
	}
	return r.GetByID(ctx, cfg.ID)
}

// Delete removes a configuration; company links cascade.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM mail_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mail configuration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(configurationNotFoundMessage)
	}
	return nil
}

// GetByID returns one configuration with its company links.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (domain.Configuration, error) {
	cfg, err := scanConfiguration(r.pool.QueryRow(ctx,
		`SELECT `+configurationColumns+` FROM mail_configurations mc WHERE mc.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Configuration{}, apperr.NotFound(configurationNotFoundMessage)
		}
		return domain.Configuration{}, fmt.Errorf("get mail configuration: %w", err)
	}
	return cfg, nil
}

// List returns every configuration, defaults first.
func (r *Repo) List(ctx context.Context) ([]domain.Configuration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+configurationColumns+` FROM mail_configurations mc ORDER BY mc.is_default DESC, mc.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list mail configurations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Configuration, 0)
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail configuration: %w", err)
		}
		items = append(items, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail configurations: %w", err)
	}
	return items, nil
}

// Resolve returns the active configuration linked to companyID, falling
// back to the active default.
func (r *Repo) Resolve(ctx context.Context, companyID *uuid.UUID) (domain.Configuration, error) {
	query := `SELECT ` + configurationColumns + `
		FROM mail_configurations mc
		WHERE mc.is_active AND (
			($1::uuid IS NOT NULL AND EXISTS (
				SELECT 1 FROM mail_configuration_companies l
				WHERE l.mail_configuration_id = mc.id AND l.company_id = $1))
			OR mc.is_default)
		ORDER BY mc.is_default ASC
		LIMIT 1`

	cfg, err := scanConfiguration(r.pool.QueryRow(ctx, query, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Configuration{}, domain.ErrNoProviderConfigured
		}
		return domain.Configuration{}, fmt.Errorf("resolve mail configuration: %w", err)
	}
	return cfg, nil
}

func replaceLinks(ctx context.Context, tx pgx.Tx, configurationID uuid.UUID, companyIDs []uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM mail_configuration_companies WHERE mail_configuration_id = $1`, configurationID); err != nil {
		return err
	}
	for _, companyID := range companyIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO mail_configuration_companies (mail_configuration_id, company_id) VALUES ($1, $2)`,
			configurationID, companyID); err != nil {
			return err
		}
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "uq_mail_configurations_default":
			return apperr.Conflict("another active default mail configuration exists")
		case "uq_mail_configuration_companies_company":
			return apperr.Conflict("a company is already linked to another mail configuration")
		}
		return apperr.Conflict("mail configuration conflicts with an existing one")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanConfiguration(row pgx.Row) (domain.Configuration, error) {
	var (
		cfg          domain.Configuration
		providerType string
	)
	err := row.Scan(
		&cfg.ID, &providerType, &cfg.SMTPHost, &cfg.SMTPPort, &cfg.SMTPUser, &cfg.SMTPPasswordEnc,
		&cfg.SMTPSecure, &cfg.SMTPRequireTLS, &cfg.APIKeyEnc, &cfg.APISecretEnc, &cfg.Region, &cfg.Domain,
		&cfg.FromEmail, &cfg.FromName, &cfg.IsActive, &cfg.IsDefault, &cfg.CompanyIDs,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return domain.Configuration{}, err
	}
	cfg.ProviderType = domain.ProviderType(providerType)
	return cfg, nil
}
