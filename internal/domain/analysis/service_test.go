package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartella/cartella/internal/platform/blobstore"
)

// -- Mocks --

type mockRepo struct {
	analyses map[uuid.UUID]*Analysis
	values   map[uuid.UUID][]ClassifiedResult
	failTx   bool
}

func newMockAnalysisRepo() *mockRepo {
	return &mockRepo{
		analyses: make(map[uuid.UUID]*Analysis),
		values:   make(map[uuid.UUID][]ClassifiedResult),
	}
}

func (m *mockRepo) Create(_ context.Context, a *Analysis) error {
	if m.failTx {
		return fmt.Errorf("insert failed")
	}
	a.CreatedAt = time.Now()
	m.analyses[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Analysis, error) {
	a, ok := m.analyses[id]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return a, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error) {
	var items []*Analysis
	for _, a := range m.analyses {
		if a.PatientID == patientID {
			items = append(items, a)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.analyses[id]; !ok {
		return ErrAnalysisNotFound
	}
	delete(m.analyses, id)
	delete(m.values, id)
	return nil
}

func (m *mockRepo) InsertValues(_ context.Context, analysisID uuid.UUID, results []ClassifiedResult) error {
	m.values[analysisID] = append(m.values[analysisID], results...)
	return nil
}

func (m *mockRepo) ListValues(_ context.Context, analysisID uuid.UUID) ([]*AnalysisValue, error) {
	var values []*AnalysisValue
	for _, res := range m.values[analysisID] {
		values = append(values, &AnalysisValue{
			ID:           uuid.New(),
			AnalysisID:   analysisID,
			TestName:     res.TestName,
			Value:        res.Value,
			Unit:         res.Unit,
			ReferenceMin: res.ReferenceMin,
			ReferenceMax: res.ReferenceMax,
			Flag:         res.Flag,
			IsAbnormal:   res.IsAbnormal,
		})
	}
	return values, nil
}

type mockRangeStore struct {
	ranges map[uuid.UUID]*ReferenceRange
}

func newMockRangeStore() *mockRangeStore {
	return &mockRangeStore{ranges: make(map[uuid.UUID]*ReferenceRange)}
}

func (m *mockRangeStore) List(_ context.Context) ([]ReferenceRange, error) {
	var out []ReferenceRange
	for _, r := range m.ranges {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRangeStore) Upsert(_ context.Context, r *ReferenceRange) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.ranges[r.ID] = r
	return nil
}

func (m *mockRangeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.ranges[id]; !ok {
		return ErrNoReference
	}
	delete(m.ranges, id)
	return nil
}

// passthroughTx runs the function without a database.
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockSexLookup struct {
	sexes map[uuid.UUID]string
}

func (m *mockSexLookup) SexOf(_ context.Context, patientID uuid.UUID) (string, error) {
	sex, ok := m.sexes[patientID]
	if !ok {
		return "", fmt.Errorf("patient not found")
	}
	return sex, nil
}

func newTestService(t *testing.T, repo *mockRepo, patientSexes map[uuid.UUID]string) (*Service, *blobstore.MemoryStore) {
	t.Helper()
	blobs := blobstore.NewMemoryStore(1 << 20)
	svc := NewService(repo, NewStaticDirectory(), newMockRangeStore(), testIngestor(),
		blobs, passthroughTx{}, &mockSexLookup{sexes: patientSexes}, zerolog.Nop())
	return svc, blobs
}

// -- Tests --

func TestUploadPersistsAnalysisAndValues(t *testing.T) {
	repo := newMockAnalysisRepo()
	patientID := uuid.New()
	svc, blobs := newTestService(t, repo, map[uuid.UUID]string{patientID: "F"})

	csv := "esame;valore;unita\nEmoglobina;10;g/dL\nGlicemia;85;mg/dL\nGlicemia;abc;mg/dL\n"
	analysis, outcome, err := svc.Upload(context.Background(), patientID, uuid.New(), "esami.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if outcome.RowsRead != 3 || outcome.RowsSkipped != 1 || outcome.Abnormal != 1 {
		t.Errorf("outcome = %+v, want 3 read / 1 skipped / 1 abnormal", outcome)
	}
	if analysis.RowsRead != outcome.RowsRead || analysis.Abnormal != outcome.Abnormal {
		t.Errorf("analysis counts %+v do not match outcome %+v", analysis, outcome)
	}

	stored, err := repo.GetByID(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("analysis row not persisted: %v", err)
	}
	if stored.PatientID != patientID {
		t.Errorf("PatientID = %v, want %v", stored.PatientID, patientID)
	}

	values, err := svc.Values(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Values() error: %v", err)
	}
	if len(values) != 2 {
		t.Errorf("got %d persisted values, want 2", len(values))
	}

	if _, err := blobs.Open(context.Background(), analysis.FilePath); err != nil {
		t.Errorf("uploaded file should remain in the store: %v", err)
	}
}

func TestUploadUnknownPatient(t *testing.T) {
	svc, _ := newTestService(t, newMockAnalysisRepo(), map[uuid.UUID]string{})

	_, _, err := svc.Upload(context.Background(), uuid.New(), uuid.New(), "esami.csv",
		strings.NewReader("esame;valore\nGlicemia;85\n"))
	if err == nil {
		t.Error("expected unknown patient to fail the upload")
	}
}

func TestUploadBadHeaderRemovesBlob(t *testing.T) {
	repo := newMockAnalysisRepo()
	patientID := uuid.New()
	svc, blobs := newTestService(t, repo, map[uuid.UUID]string{patientID: "M"})

	_, _, err := svc.Upload(context.Background(), patientID, uuid.New(), "rotto.csv",
		strings.NewReader("foo;bar\nx;1\n"))
	if err == nil {
		t.Fatal("expected bad header to fail the upload")
	}

	if len(repo.analyses) != 0 {
		t.Error("failed ingestion must not persist an analysis row")
	}
	if blobs.Len() != 0 {
		t.Errorf("blob should have been removed, store holds %d", blobs.Len())
	}
}

func TestUploadPersistFailureRemovesBlob(t *testing.T) {
	repo := newMockAnalysisRepo()
	repo.failTx = true
	patientID := uuid.New()
	svc, _ := newTestService(t, repo, map[uuid.UUID]string{patientID: "M"})

	_, outcome, err := svc.Upload(context.Background(), patientID, uuid.New(), "esami.csv",
		strings.NewReader("esame;valore\nGlicemia;85\n"))
	if err == nil {
		t.Fatal("expected persist failure to surface")
	}
	if outcome == nil || outcome.RowsRead != 1 {
		t.Errorf("outcome should still carry the parsed counts, got %+v", outcome)
	}
	if len(repo.values) != 0 {
		t.Error("no values may remain after a failed transaction")
	}
}

func TestDeleteRemovesRowAndBlob(t *testing.T) {
	repo := newMockAnalysisRepo()
	patientID := uuid.New()
	svc, blobs := newTestService(t, repo, map[uuid.UUID]string{patientID: "F"})

	analysis, _, err := svc.Upload(context.Background(), patientID, uuid.New(), "esami.csv",
		strings.NewReader("esame;valore\nGlicemia;85\n"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if err := svc.Delete(context.Background(), patientID, analysis.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), analysis.ID); err == nil {
		t.Error("analysis row should be gone")
	}
	if _, err := blobs.Open(context.Background(), analysis.FilePath); err == nil {
		t.Error("stored file should be gone")
	}
}

func TestGetScopesToPatient(t *testing.T) {
	repo := newMockAnalysisRepo()
	patientID := uuid.New()
	svc, _ := newTestService(t, repo, map[uuid.UUID]string{patientID: "F"})

	analysis, _, err := svc.Upload(context.Background(), patientID, uuid.New(), "esami.csv",
		strings.NewReader("esame;valore\nGlicemia;85\n"))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if _, err := svc.Get(context.Background(), uuid.New(), analysis.ID); err != ErrAnalysisNotFound {
		t.Errorf("Get with wrong patient = %v, want ErrAnalysisNotFound", err)
	}
}

func TestSaveRangeValidation(t *testing.T) {
	svc, _ := newTestService(t, newMockAnalysisRepo(), nil)

	if err := svc.SaveRange(context.Background(), &ReferenceRange{Sex: "F", Min: 1, Max: 2}); err == nil {
		t.Error("expected missing test name to be rejected")
	}
	if err := svc.SaveRange(context.Background(), &ReferenceRange{TestName: "TSH", Sex: "X", Min: 1, Max: 2}); err == nil {
		t.Error("expected unknown sex to be rejected")
	}
	if err := svc.SaveRange(context.Background(), &ReferenceRange{TestName: "TSH", Sex: "F", Min: 4.5, Max: 0.4}); err == nil {
		t.Error("expected inverted bounds to be rejected")
	}
	if err := svc.SaveRange(context.Background(), &ReferenceRange{TestName: "TSH", Sex: "F", Min: 0.4, Max: 4.5}); err != nil {
		t.Errorf("valid range rejected: %v", err)
	}
}
