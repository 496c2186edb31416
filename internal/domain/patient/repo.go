package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPatientNotFound = errors.New("patient not found")

// Repository defines storage operations for patients and their change log.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Patient, int, error)
	// LastCode returns the highest assigned code for the doctor, "" if none.
	LastCode(ctx context.Context, doctorID uuid.UUID) (string, error)
	Stats(ctx context.Context, doctorID *uuid.UUID) (*Stats, error)

	AddLog(ctx context.Context, l *ChangeLog) error
	ListLogs(ctx context.Context, patientID uuid.UUID) ([]*ChangeLog, error)
}
