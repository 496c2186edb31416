package document

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartella/cartella/internal/domain/analysis"
	"github.com/cartella/cartella/internal/platform/blobstore"
)

var ErrNotAnalysisCSV = errors.New("document is not an analysis CSV")

// ChangeRecorder writes entries to the patient change log on behalf of
// this domain. Implemented by the patient service.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, patientID, userID uuid.UUID, field, oldValue, newValue string) error
}

type Service struct {
	repo     Repository
	blobs    blobstore.BlobStore
	recorder ChangeRecorder
	quickDir analysis.ReferenceRangeDirectory
	log      zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.BlobStore, recorder ChangeRecorder,
	quickDir analysis.ReferenceRangeDirectory, log zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, recorder: recorder, quickDir: quickDir, log: log}
}

// Upload validates the kind, stores the file and creates the document row.
func (s *Service) Upload(ctx context.Context, patientID, userID uuid.UUID, kind, description, fileName string, content io.Reader) (*Document, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("invalid document kind: %q", kind)
	}
	if kind == KindOther && description == "" {
		return nil, fmt.Errorf("description is required for kind %q", KindOther)
	}

	blob, err := s.blobs.Save(ctx, patientID, "doc", fileName, content)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	doc := &Document{
		PatientID: patientID,
		UserID:    userID,
		Kind:      kind,
		FilePath:  blob.Path,
		FileName:  fileName,
	}
	if description != "" {
		doc.Description = &description
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		if rmErr := s.blobs.Remove(ctx, blob.Path); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", blob.Path).Msg("failed to remove blob after insert error")
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// View returns the document and a reader over its stored content for
// inline serving. The caller closes the reader.
func (s *Service) View(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored file: %w", err)
	}
	return doc, rc, nil
}

// Delete removes the row and the stored file, then records the removal in
// the patient change log.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, doc.FilePath); err != nil {
		s.log.Warn().Err(err).Str("path", doc.FilePath).Msg("failed to remove document file")
	}
	if err := s.recorder.RecordChange(ctx, doc.PatientID, userID, "documento_eliminato", doc.Kind, ""); err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("failed to record document removal")
	}
	return nil
}

// QuickAnalysis classifies an attached analysis CSV against the static
// reference table without persisting anything.
func (s *Service) QuickAnalysis(ctx context.Context, id uuid.UUID) ([]analysis.QuickResult, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Kind != KindAnalysisCSV {
		return nil, ErrNotAnalysisCSV
	}

	rc, err := s.blobs.Open(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	return analysis.QuickScan(ctx, rc, s.quickDir)
}
