package document

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartella/cartella/internal/domain/analysis"
	"github.com/cartella/cartella/internal/platform/blobstore"
)

// -- Mocks --

type mockRepo struct {
	docs map[uuid.UUID]*Document
}

func newMockRepo() *mockRepo {
	return &mockRepo{docs: make(map[uuid.UUID]*Document)}
}

func (m *mockRepo) Create(_ context.Context, d *Document) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.docs[d.ID] = d
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return d, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Document, error) {
	var docs []*Document
	for _, d := range m.docs {
		if d.PatientID == patientID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

type recordedChange struct {
	patientID uuid.UUID
	field     string
	oldValue  string
}

type mockRecorder struct {
	changes []recordedChange
}

func (m *mockRecorder) RecordChange(_ context.Context, patientID, _ uuid.UUID, field, oldValue, _ string) error {
	m.changes = append(m.changes, recordedChange{patientID: patientID, field: field, oldValue: oldValue})
	return nil
}

func newTestDocService(t *testing.T) (*Service, *mockRepo, *mockRecorder, *blobstore.MemoryStore) {
	t.Helper()
	repo := newMockRepo()
	recorder := &mockRecorder{}
	blobs := blobstore.NewMemoryStore(1 << 20)
	svc := NewService(repo, blobs, recorder, analysis.NewStaticDirectory(), zerolog.Nop())
	return svc, repo, recorder, blobs
}

// -- Tests --

func TestUploadAndView(t *testing.T) {
	svc, _, _, _ := newTestDocService(t)
	ctx := context.Background()
	patientID := uuid.New()

	doc, err := svc.Upload(ctx, patientID, uuid.New(), KindID, "", "carta.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if doc.Kind != KindID || doc.FileName != "carta.pdf" {
		t.Errorf("unexpected document: %+v", doc)
	}

	got, rc, err := svc.View(ctx, doc.ID)
	if err != nil {
		t.Fatalf("View() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if got.ID != doc.ID || string(data) != "pdf-bytes" {
		t.Errorf("View returned doc %v content %q", got.ID, data)
	}
}

func TestUploadRejectsInvalidKind(t *testing.T) {
	svc, _, _, _ := newTestDocService(t)

	_, err := svc.Upload(context.Background(), uuid.New(), uuid.New(), "Passaporto", "", "x.pdf", strings.NewReader("x"))
	if err == nil {
		t.Error("expected unknown kind to be rejected")
	}
}

func TestUploadOtherRequiresDescription(t *testing.T) {
	svc, _, _, _ := newTestDocService(t)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, uuid.New(), uuid.New(), KindOther, "", "x.pdf", strings.NewReader("x")); err == nil {
		t.Error("expected missing description to be rejected")
	}

	doc, err := svc.Upload(ctx, uuid.New(), uuid.New(), KindOther, "referto specialistico", "x.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if doc.Description == nil || *doc.Description != "referto specialistico" {
		t.Errorf("description not stored: %+v", doc)
	}
}

func TestDeleteRemovesBlobAndRecordsChange(t *testing.T) {
	svc, repo, recorder, blobs := newTestDocService(t)
	ctx := context.Background()
	patientID := uuid.New()

	doc, err := svc.Upload(ctx, patientID, uuid.New(), KindFiscalCode, "", "cf.png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if err := svc.Delete(ctx, doc.ID, uuid.New()); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.GetByID(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Error("document row should be gone")
	}
	if blobs.Len() != 0 {
		t.Error("stored file should be gone")
	}

	if len(recorder.changes) != 1 {
		t.Fatalf("expected 1 change-log entry, got %d", len(recorder.changes))
	}
	ch := recorder.changes[0]
	if ch.patientID != patientID || ch.field != "documento_eliminato" || ch.oldValue != KindFiscalCode {
		t.Errorf("unexpected change entry: %+v", ch)
	}
}

func TestQuickAnalysis(t *testing.T) {
	svc, _, _, _ := newTestDocService(t)
	ctx := context.Background()

	csv := "esame;valore;unita\nEmoglobina;10;g/dL\nGlicemia;85;mg/dL\n"
	doc, err := svc.Upload(ctx, uuid.New(), uuid.New(), KindAnalysisCSV, "", "esami.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	results, err := svc.QuickAnalysis(ctx, doc.ID)
	if err != nil {
		t.Fatalf("QuickAnalysis() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Flag != "abnormal" || results[1].Flag != "normal" {
		t.Errorf("flags = %q/%q, want abnormal/normal", results[0].Flag, results[1].Flag)
	}
}

func TestQuickAnalysisRejectsOtherKinds(t *testing.T) {
	svc, _, _, _ := newTestDocService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, uuid.New(), uuid.New(), KindID, "", "carta.pdf", strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if _, err := svc.QuickAnalysis(ctx, doc.ID); !errors.Is(err, ErrNotAnalysisCSV) {
		t.Errorf("QuickAnalysis on %q = %v, want ErrNotAnalysisCSV", KindID, err)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"doc.pdf", "application/pdf"},
		{"foto.PNG", "image/png"},
		{"foto.jpeg", "image/jpeg"},
		{"esami.csv", "text/csv"},
		{"boh.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.file); got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}
