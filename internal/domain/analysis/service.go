package analysis

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartella/cartella/internal/platform/blobstore"
	"github.com/cartella/cartella/internal/platform/db"
)

// PatientSexLookup resolves the recorded sex for a patient, "" when not
// recorded. Implemented by the patient service.
type PatientSexLookup interface {
	SexOf(ctx context.Context, patientID uuid.UUID) (string, error)
}

type Service struct {
	repo     Repository
	dir      ReferenceRangeDirectory
	ranges   RangeStore
	ingestor *Ingestor
	blobs    blobstore.BlobStore
	tx       db.TxRunner
	patients PatientSexLookup
	log      zerolog.Logger
}

func NewService(repo Repository, dir ReferenceRangeDirectory, ranges RangeStore,
	ingestor *Ingestor, blobs blobstore.BlobStore, tx db.TxRunner,
	patients PatientSexLookup, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		ranges:   ranges,
		ingestor: ingestor,
		blobs:    blobs,
		tx:       tx,
		patients: patients,
		log:      log,
	}
}

// Upload runs the full pipeline for one CSV file: store the upload, stream
// it through the ingestor with the patient's sex, then persist the analysis
// row and every classified value in a single transaction. A fatal ingestion
// error removes the stored blob and persists nothing.
func (s *Service) Upload(ctx context.Context, patientID, userID uuid.UUID, fileName string, content io.Reader) (*Analysis, *Outcome, error) {
	sex, err := s.patients.SexOf(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("look up patient: %w", err)
	}

	blob, err := s.blobs.Save(ctx, patientID, "analisi", fileName, content)
	if err != nil {
		return nil, nil, fmt.Errorf("store upload: %w", err)
	}

	rc, err := s.blobs.Open(ctx, blob.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("reopen upload: %w", err)
	}
	outcome, ingestErr := s.ingestor.Ingest(ctx, rc, sex, s.dir)
	rc.Close()
	if ingestErr != nil {
		if rmErr := s.blobs.Remove(ctx, blob.Path); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", blob.Path).Msg("failed to remove blob after ingestion error")
		}
		return nil, outcome, fmt.Errorf("ingest %s: %w", fileName, ingestErr)
	}

	analysis := &Analysis{
		ID:          uuid.New(),
		PatientID:   patientID,
		UserID:      userID,
		FilePath:    blob.Path,
		FileName:    fileName,
		RowsRead:    outcome.RowsRead,
		RowsSkipped: outcome.RowsSkipped,
		Abnormal:    outcome.Abnormal,
		NoReference: outcome.NoReference,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, analysis); err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		if err := s.repo.InsertValues(ctx, analysis.ID, outcome.Results); err != nil {
			return fmt.Errorf("insert values: %w", err)
		}
		return nil
	})
	if err != nil {
		if rmErr := s.blobs.Remove(ctx, blob.Path); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", blob.Path).Msg("failed to remove blob after persist error")
		}
		return nil, outcome, err
	}

	s.log.Info().
		Str("analysis_id", analysis.ID.String()).
		Str("patient_id", patientID.String()).
		Int("rows_read", outcome.RowsRead).
		Int("abnormal", outcome.Abnormal).
		Msg("analysis ingested")

	return analysis, outcome, nil
}

func (s *Service) Get(ctx context.Context, patientID, analysisID uuid.UUID) (*Analysis, error) {
	a, err := s.repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != patientID {
		return nil, ErrAnalysisNotFound
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Values(ctx context.Context, analysisID uuid.UUID) ([]*AnalysisValue, error) {
	if _, err := s.repo.GetByID(ctx, analysisID); err != nil {
		return nil, err
	}
	return s.repo.ListValues(ctx, analysisID)
}

// Delete removes the analysis row (values cascade) and its stored file.
func (s *Service) Delete(ctx context.Context, patientID, analysisID uuid.UUID) error {
	a, err := s.Get(ctx, patientID, analysisID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, a.FilePath); err != nil {
		s.log.Warn().Err(err).Str("path", a.FilePath).Msg("failed to remove analysis file")
	}
	return nil
}

// -- Reference range administration --

func (s *Service) ListRanges(ctx context.Context) ([]ReferenceRange, error) {
	return s.ranges.List(ctx)
}

func (s *Service) SaveRange(ctx context.Context, r *ReferenceRange) error {
	if r.TestName == "" {
		return fmt.Errorf("test name is required")
	}
	switch r.Sex {
	case "M", "F", SexAny:
	default:
		return fmt.Errorf("sex must be M, F or %s", SexAny)
	}
	if r.Min > r.Max {
		return fmt.Errorf("min %v exceeds max %v", r.Min, r.Max)
	}
	return s.ranges.Upsert(ctx, r)
}

func (s *Service) DeleteRange(ctx context.Context, id uuid.UUID) error {
	return s.ranges.Delete(ctx, id)
}
