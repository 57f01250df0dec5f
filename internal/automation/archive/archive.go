// Package archive keeps a copy of every rendered automation message in
// object storage so a delivery can be inspected after the fact.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"recruitment_backend/internal/adapters/storage"
	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/automation/render"
)

const contentType = "application/json"

// ObjectStore is the subset of storage.StorageService the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error)
	DeleteObject(ctx context.Context, bucket, fileKey string) error
}

// Archive writes rendered messages to one bucket.
type Archive struct {
	store  ObjectStore
	bucket string
	now    func() time.Time
}

// New creates an archive.
func New(store ObjectStore, bucket string) *Archive {
	return &Archive{store: store, bucket: bucket, now: time.Now}
}

type document struct {
	DeliveryID   string    `json:"delivery_id"`
	AutomationID string    `json:"automation_id"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	DedupeKey    string    `json:"dedupe_key"`
	Recipients   []string  `json:"recipients"`
	Subject      string    `json:"subject"`
	HTML         string    `json:"html"`
	Text         string    `json:"text,omitempty"`
	Unresolved   []string  `json:"unresolved_tokens,omitempty"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Key returns the object key used for rec. Records without a company are
// filed under "global".
func Key(rec domain.DeliveryRecord) string {
	owner := "global"
	if rec.CompanyID != nil {
		owner = rec.CompanyID.String()
	}
	return fmt.Sprintf("%s/%s/%s.json", owner, rec.AutomationID, rec.ID)
}

// Store uploads the rendered message for rec and returns its key.
func (a *Archive) Store(ctx context.Context, rec domain.DeliveryRecord, msg render.Rendered) (string, error) {
	body, err := json.Marshal(document{
		DeliveryID:   rec.ID.String(),
		AutomationID: rec.AutomationID.String(),
		EntityType:   string(rec.EntityType),
		EntityID:     rec.EntityID.String(),
		DedupeKey:    rec.DedupeKey,
		Recipients:   rec.Recipients,
		Subject:      msg.Subject,
		HTML:         msg.HTML,
		Text:         msg.Text,
		Unresolved:   msg.Unresolved,
		ArchivedAt:   a.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode archive document: %w", err)
	}

	key := Key(rec)
	if err := a.store.PutObject(ctx, a.bucket, key, contentType, bytes.NewReader(body), int64(len(body))); err != nil {
		return "", fmt.Errorf("archive delivery %s: %w", rec.ID, err)
	}
	return key, nil
}

// DownloadURL presigns a short-lived link to an archived message.
func (a *Archive) DownloadURL(ctx context.Context, key string) (*storage.PresignedURL, error) {
	url, err := a.store.GenerateDownloadURL(ctx, a.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("presign archive %s: %w", key, err)
	}
	return url, nil
}

// Remove deletes an archived message.
func (a *Archive) Remove(ctx context.Context, key string) error {
	if err := a.store.DeleteObject(ctx, a.bucket, key); err != nil {
		return fmt.Errorf("remove archive %s: %w", key, err)
	}
	return nil
}
