package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Loader reads entity snapshots, with their project and company relations,
// straight from the entity tables.
type Loader struct {
	pool          *pgxpool.Pool
	defaultLocale string
}

// NewLoader creates the entity loader. defaultLocale applies to entities
// without a company.
func NewLoader(pool *pgxpool.Pool, defaultLocale string) *Loader {
	return &Loader{pool: pool, defaultLocale: defaultLocale}
}

var _ EntityLoader = (*Loader)(nil)

// Load returns ErrEntityNotFound when the row does not exist.
func (l *Loader) Load(ctx context.Context, entityType events.EntityType, id uuid.UUID) (Entity, error) {
	var (
		entity Entity
		err    error
	)
	switch entityType {
	case events.EntityCandidate:
		entity, err = l.loadCandidate(ctx, id)
	case events.EntityProject:
		entity, err = l.loadProject(ctx, id)
	case events.EntityAnalysis:
		entity, err = l.loadAnalysis(ctx, id)
	case events.EntityUser:
		entity, err = l.loadUser(ctx, id)
	default:
		return Entity{}, fmt.Errorf("load entity: unsupported type %q", entityType)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, ErrEntityNotFound
		}
		return Entity{}, fmt.Errorf("load %s %s: %w", entityType, id, err)
	}
	if entity.Locale == "" {
		entity.Locale = l.defaultLocale
	}
	return entity, nil
}

// relation columns shared by every query: project then company.
type relations struct {
	projectID     *uuid.UUID
	projectName   *string
	projectStatus *string
	companyID     *uuid.UUID
	companyName   *string
	companyLocale *string
}

func (r relations) project() domain.Snapshot {
	if r.projectID == nil {
		return nil
	}
	s := domain.Snapshot{"id": r.projectID.String()}
	putString(s, "name", r.projectName)
	putString(s, "status", r.projectStatus)
	if c := r.company(); c != nil {
		s["company"] = c
		s["company_id"] = r.companyID.String()
	}
	return s
}

func (r relations) company() domain.Snapshot {
	if r.companyID == nil {
		return nil
	}
	s := domain.Snapshot{"id": r.companyID.String()}
	putString(s, "name", r.companyName)
	return s
}

// attach adds the project and company relations with their id columns.
func (r relations) attach(s domain.Snapshot) {
	if p := r.project(); p != nil {
		s["project"] = p
		s["project_id"] = r.projectID.String()
	}
	if c := r.company(); c != nil {
		s["company"] = c
		s["company_id"] = r.companyID.String()
	}
}

func (r relations) entity(s domain.Snapshot) Entity {
	e := Entity{Snapshot: s, CompanyID: r.companyID}
	if r.companyLocale != nil {
		e.Locale = *r.companyLocale
	}
	return e
}

type candidateRow struct {
	id                    uuid.UUID
	firstName, lastName   string
	email, phone, summary *string
	status                string
	score                 pgtype.Numeric
	tags                  []string
	metadata              []byte
	createdAt, updatedAt  time.Time
	rel                   relations
}

func (r candidateRow) entity() Entity {
	s := domain.Snapshot{
		"id":         r.id.String(),
		"first_name": r.firstName,
		"last_name":  r.lastName,
		"status":     r.status,
		"tags":       stringsToAny(r.tags),
		"created_at": r.createdAt,
		"updated_at": r.updatedAt,
	}
	putString(s, "email", r.email)
	putString(s, "phone", r.phone)
	putString(s, "summary", r.summary)
	putNumeric(s, "score", r.score)
	if len(r.metadata) > 0 {
		var m map[string]any
		if err := json.Unmarshal(r.metadata, &m); err == nil && len(m) > 0 {
			s["metadata"] = m
		}
	}
	r.rel.attach(s)
	return r.rel.entity(s)
}

func (l *Loader) loadCandidate(ctx context.Context, id uuid.UUID) (Entity, error) {
	query := `
		SELECT c.id, c.first_name, c.last_name, c.email, c.phone, c.status, c.score, c.summary, c.tags, c.metadata,
			c.created_at, c.updated_at,
			p.id, p.name, p.status, co.id, co.name, co.locale
		FROM candidates c
		LEFT JOIN projects p ON p.id = c.project_id
		LEFT JOIN companies co ON co.id = p.company_id
		WHERE c.id = $1`

	var r candidateRow
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&r.id, &r.firstName, &r.lastName, &r.email, &r.phone, &r.status, &r.score, &r.summary, &r.tags, &r.metadata,
		&r.createdAt, &r.updatedAt,
		&r.rel.projectID, &r.rel.projectName, &r.rel.projectStatus, &r.rel.companyID, &r.rel.companyName, &r.rel.companyLocale,
	)
	if err != nil {
		return Entity{}, err
	}
	return r.entity(), nil
}

type projectRow struct {
	id                   uuid.UUID
	name, status         string
	description          *string
	createdAt, updatedAt time.Time
	rel                  relations
}

func (r projectRow) entity() Entity {
	s := domain.Snapshot{
		"id":         r.id.String(),
		"name":       r.name,
		"status":     r.status,
		"created_at": r.createdAt,
		"updated_at": r.updatedAt,
	}
	putString(s, "description", r.description)
	r.rel.attach(s)
	return r.rel.entity(s)
}

func (l *Loader) loadProject(ctx context.Context, id uuid.UUID) (Entity, error) {
	query := `
		SELECT p.id, p.name, p.description, p.status, p.created_at, p.updated_at,
			co.id, co.name, co.locale
		FROM projects p
		JOIN companies co ON co.id = p.company_id
		WHERE p.id = $1`

	var r projectRow
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&r.id, &r.name, &r.description, &r.status, &r.createdAt, &r.updatedAt,
		&r.rel.companyID, &r.rel.companyName, &r.rel.companyLocale,
	)
	if err != nil {
		return Entity{}, err
	}
	return r.entity(), nil
}

type analysisRow struct {
	id                             uuid.UUID
	candidateID                    *uuid.UUID
	score                          pgtype.Numeric
	summary                        *string
	status                         string
	createdAt, updatedAt           time.Time
	candFirst, candLast, candEmail *string
	rel                            relations
}

func (r analysisRow) entity() Entity {
	s := domain.Snapshot{
		"id":         r.id.String(),
		"status":     r.status,
		"created_at": r.createdAt,
		"updated_at": r.updatedAt,
	}
	putNumeric(s, "score", r.score)
	putString(s, "summary", r.summary)
	if r.candidateID != nil {
		candidate := domain.Snapshot{"id": r.candidateID.String()}
		putString(candidate, "first_name", r.candFirst)
		putString(candidate, "last_name", r.candLast)
		putString(candidate, "email", r.candEmail)
		s["candidate"] = candidate
		s["candidate_id"] = r.candidateID.String()
		// Analyses address the candidate, so expose their identity at the top level too.
		putString(s, "first_name", r.candFirst)
		putString(s, "last_name", r.candLast)
		putString(s, "email", r.candEmail)
	}
	r.rel.attach(s)
	return r.rel.entity(s)
}

func (l *Loader) loadAnalysis(ctx context.Context, id uuid.UUID) (Entity, error) {
	query := `
		SELECT a.id, a.candidate_id, a.score, a.summary, a.status, a.created_at, a.updated_at,
			c.first_name, c.last_name, c.email,
			p.id, p.name, p.status, co.id, co.name, co.locale
		FROM analyses a
		LEFT JOIN candidates c ON c.id = a.candidate_id
		LEFT JOIN projects p ON p.id = COALESCE(a.project_id, c.project_id)
		LEFT JOIN companies co ON co.id = p.company_id
		WHERE a.id = $1`

	var r analysisRow
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&r.id, &r.candidateID, &r.score, &r.summary, &r.status, &r.createdAt, &r.updatedAt,
		&r.candFirst, &r.candLast, &r.candEmail,
		&r.rel.projectID, &r.rel.projectName, &r.rel.projectStatus, &r.rel.companyID, &r.rel.companyName, &r.rel.companyLocale,
	)
	if err != nil {
		return Entity{}, err
	}
	return r.entity(), nil
}

type userRow struct {
	id                         uuid.UUID
	email, firstName, lastName string
	phone                      *string
	role, status               string
	createdAt, updatedAt       time.Time
	rel                        relations
}

func (r userRow) entity() Entity {
	s := domain.Snapshot{
		"id":         r.id.String(),
		"email":      r.email,
		"first_name": r.firstName,
		"last_name":  r.lastName,
		"role":       r.role,
		"status":     r.status,
		"created_at": r.createdAt,
		"updated_at": r.updatedAt,
	}
	putString(s, "phone", r.phone)
	r.rel.attach(s)
	return r.rel.entity(s)
}

func (l *Loader) loadUser(ctx context.Context, id uuid.UUID) (Entity, error) {
	query := `
		SELECT u.id, u.email, u.first_name, u.last_name, u.phone, u.role, u.status, u.created_at, u.updated_at,
			co.id, co.name, co.locale
		FROM users u
		LEFT JOIN companies co ON co.id = u.company_id
		WHERE u.id = $1`

	var r userRow
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&r.id, &r.email, &r.firstName, &r.lastName, &r.phone, &r.role, &r.status, &r.createdAt, &r.updatedAt,
		&r.rel.companyID, &r.rel.companyName, &r.rel.companyLocale,
	)
	if err != nil {
		return Entity{}, err
	}
	return r.entity(), nil
}

// Absent columns are left out of the snapshot so exists/notExists see them
// as missing.
func putString(s domain.Snapshot, key string, v *string) {
	if v != nil {
		s[key] = *v
	}
}

func putNumeric(s domain.Snapshot, key string, n pgtype.Numeric) {
	if !n.Valid {
		return
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return
	}
	s[key] = f.Float64
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
