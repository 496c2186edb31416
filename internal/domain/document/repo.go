package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDocumentNotFound = errors.New("document not found")

// Repository defines storage operations for patient documents.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
