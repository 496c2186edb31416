package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// Repository defines storage operations for uploaded analyses and their
// classified values.
type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error)
	Delete(ctx context.Context, id uuid.UUID) error

	InsertValues(ctx context.Context, analysisID uuid.UUID, results []ClassifiedResult) error
	ListValues(ctx context.Context, analysisID uuid.UUID) ([]*AnalysisValue, error)
}

// RangeStore is the maintenance surface of the persisted reference table,
// used by the admin endpoints and the seed command.
type RangeStore interface {
	List(ctx context.Context) ([]ReferenceRange, error)
	Upsert(ctx context.Context, r *ReferenceRange) error
	Delete(ctx context.Context, id uuid.UUID) error
}
