package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryColumns = `id, automation_id, entity_type, entity_id, company_id, dedupe_key, status, attempts,
	error, provider, message_id, recipients, subject, archive_key, created_at, updated_at`

const deliveryNotFoundMessage = "delivery record not found"

// Deliveries implements DeliveryRepository.
type Deliveries struct {
	pool *pgxpool.Pool
}

// NewDeliveries creates the delivery record repository.
func NewDeliveries(pool *pgxpool.Pool) *Deliveries {
	return &Deliveries{pool: pool}
}

var (
	_ DeliveryRepository  = (*Deliveries)(nil)
	_ DeliveryMaintenance = (*Deliveries)(nil)
)

// Insert stores rec keyed by its dedupe key. A concurrent or repeated insert
// for the same key returns the row that won.
func (r *Deliveries) Insert(ctx context.Context, rec domain.DeliveryRecord) (domain.DeliveryRecord, bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	recipients := rec.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	query := `
		INSERT INTO delivery_records (id, automation_id, entity_type, entity_id, company_id, dedupe_key,
			status, attempts, error, provider, message_id, recipients, subject, archive_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING ` + deliveryColumns

	stored, err := scanDelivery(r.pool.QueryRow(ctx, query,
		rec.ID, rec.AutomationID, string(rec.EntityType), rec.EntityID, rec.CompanyID, rec.DedupeKey,
		string(rec.Status), rec.Attempts, rec.Error, rec.Provider, rec.MessageID, recipients, rec.Subject, rec.ArchiveKey,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.DeliveryRecord{}, false, fmt.Errorf("insert delivery record: %w", err)
	}

	existing, err := scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_records WHERE dedupe_key = $1`, rec.DedupeKey))
	if err != nil {
		return domain.DeliveryRecord{}, false, fmt.Errorf("load existing delivery record: %w", err)
	}
	return existing, false, nil
}

// UpdateStatus records the outcome of a send attempt.
func (r *Deliveries) UpdateStatus(ctx context.Context, params UpdateDeliveryParams) error {
	query := `
		UPDATE delivery_records
		SET status = $2,
			attempts = $3,
			error = COALESCE($4, error),
			provider = COALESCE($5, provider),
			message_id = COALESCE($6, message_id),
			archive_key = COALESCE($7, archive_key),
			updated_at = now()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		params.ID, string(params.Status), params.Attempts, params.Error, params.Provider, params.MessageID, params.ArchiveKey)
	if err != nil {
		return fmt.Errorf("update delivery record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("delivery record not found")
	}
	return nil
}

func (r *Deliveries) GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.DeliveryRecord, error) {
	rec, err := scanDelivery(r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_records WHERE id = $1 AND ($2::uuid IS NULL OR company_id = $2)`,
		id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeliveryRecord{}, apperr.NotFound(deliveryNotFoundMessage)
		}
		return domain.DeliveryRecord{}, fmt.Errorf("get delivery record: %w", err)
	}
	return rec, nil
}

// List returns delivery records, newest first.
func (r *Deliveries) List(ctx context.Context, params ListDeliveriesParams) ([]domain.DeliveryRecord, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if params.CompanyID != nil {
		where = append(where, fmt.Sprintf("company_id = $%d", argIdx))
		args = append(args, *params.CompanyID)
		argIdx++
	}
	if params.AutomationID != nil {
		where = append(where, fmt.Sprintf("automation_id = $%d", argIdx))
		args = append(args, *params.AutomationID)
		argIdx++
	}
	if params.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM delivery_records WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count delivery records: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM delivery_records WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		deliveryColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, params.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	items := make([]domain.DeliveryRecord, 0)
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan delivery record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate delivery records: %w", err)
	}
	return items, total, nil
}

func scanDelivery(row pgx.Row) (domain.DeliveryRecord, error) {
	var (
		rec                domain.DeliveryRecord
		entityType, status string
	)
	err := row.Scan(
		&rec.ID, &rec.AutomationID, &entityType, &rec.EntityID, &rec.CompanyID, &rec.DedupeKey, &status, &rec.Attempts,
		&rec.Error, &rec.Provider, &rec.MessageID, &rec.Recipients, &rec.Subject, &rec.ArchiveKey,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.DeliveryRecord{}, err
	}
	rec.EntityType = events.EntityType(entityType)
	rec.Status = domain.DeliveryStatus(status)
	return rec, nil
}

// FailStale marks records still dispatched after before as failed. Such
// records belong to a process that stopped mid-send.
func (r *Deliveries) FailStale(ctx context.Context, before time.Time, reason string) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE delivery_records
		SET status = $1, error = COALESCE(error || '; ', '') || $2, updated_at = now()
		WHERE status = $3 AND updated_at < $4`,
		string(domain.DeliveryFailed), reason, string(domain.DeliveryDispatched), before)
	if err != nil {
		return 0, fmt.Errorf("fail stale delivery records: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteFinishedBefore removes terminal records last touched before before
// and returns the archive keys they referenced.
func (r *Deliveries) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, []string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM delivery_records
		WHERE status <> $1 AND updated_at < $2
		RETURNING archive_key`,
		string(domain.DeliveryDispatched), before)
	if err != nil {
		return 0, nil, fmt.Errorf("delete finished delivery records: %w", err)
	}
	defer rows.Close()

	var (
		deleted int64
		keys    []string
	)
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return deleted, keys, fmt.Errorf("scan deleted delivery record: %w", err)
		}
		deleted++
		if key != nil {
			keys = append(keys, *key)
		}
	}
	if err := rows.Err(); err != nil {
		return deleted, keys, fmt.Errorf("delete finished delivery records: %w", err)
	}
	return deleted, keys, nil
}
