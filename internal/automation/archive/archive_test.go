package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"recruitment_backend/internal/adapters/storage"
	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/automation/render"
	"recruitment_backend/internal/events"

	"github.com/google/uuid"
)

type memoryStore struct {
	bucket, key, contentType string
	body                     []byte
	deleted                  []string
	err                      error
}

func (m *memoryStore) DeleteObject(_ context.Context, bucket, key string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, bucket+"/"+key)
	return nil
}

func (m *memoryStore) PutObject(_ context.Context, bucket, key, contentType string, reader io.Reader, size int64) error {
	if m.err != nil {
		return m.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(body)) != size {
		return errors.New("size mismatch")
	}
	m.bucket, m.key, m.contentType, m.body = bucket, key, contentType, body
	return nil
}

func (m *memoryStore) GenerateDownloadURL(_ context.Context, bucket, key string) (*storage.PresignedURL, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &storage.PresignedURL{URL: "https://minio.test/" + bucket + "/" + key, FileKey: key}, nil
}

func TestStoreWritesDocument(t *testing.T) {
	store := &memoryStore{}
	a := New(store, "deliveries")
	a.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	company := uuid.New()
	rec := domain.DeliveryRecord{
		ID:           uuid.New(),
		AutomationID: uuid.New(),
		EntityType:   events.EntityCandidate,
		EntityID:     uuid.New(),
		CompanyID:    &company,
		DedupeKey:    "k",
		Recipients:   []string{"hr@acme.test"},
	}

	key, err := a.Store(context.Background(), rec, render.Rendered{Subject: "Hi", HTML: "<p>Hi</p>"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if key != company.String()+"/"+rec.AutomationID.String()+"/"+rec.ID.String()+".json" {
		t.Fatalf("unexpected key %q", key)
	}
	if store.bucket != "deliveries" || store.contentType != "application/json" {
		t.Fatalf("unexpected upload target %q %q", store.bucket, store.contentType)
	}

	var doc document
	if err := json.Unmarshal(store.body, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Subject != "Hi" || doc.DedupeKey != "k" || doc.EntityType != "CANDIDATE" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestKeyForGlobalRecord(t *testing.T) {
	rec := domain.DeliveryRecord{ID: uuid.New(), AutomationID: uuid.New()}
	want := "global/" + rec.AutomationID.String() + "/" + rec.ID.String() + ".json"
	if got := Key(rec); got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestStoreWrapsUploadError(t *testing.T) {
	boom := errors.New("bucket gone")
	a := New(&memoryStore{err: boom}, "deliveries")
	_, err := a.Store(context.Background(), domain.DeliveryRecord{ID: uuid.New()}, render.Rendered{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
}

func TestDownloadURLUsesArchiveBucket(t *testing.T) {
	a := New(&memoryStore{}, "deliveries")
	url, err := a.DownloadURL(context.Background(), "global/a/b.json")
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if url.URL != "https://minio.test/deliveries/global/a/b.json" {
		t.Fatalf("unexpected url %q", url.URL)
	}

	boom := errors.New("minio down")
	if _, err := New(&memoryStore{err: boom}, "deliveries").DownloadURL(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped presign error, got %v", err)
	}
}

func TestRemoveDeletesFromArchiveBucket(t *testing.T) {
	store := &memoryStore{}
	if err := New(store, "deliveries").Remove(context.Background(), "global/a/b.json"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "deliveries/global/a/b.json" {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
}
