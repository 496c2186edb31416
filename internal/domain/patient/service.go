package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cartella/cartella/internal/platform/auth"
)

// Viewer identifies the authenticated caller for scoping decisions.
type Viewer struct {
	UserID uuid.UUID
	Role   string
}

func (v Viewer) IsAdmin() bool { return v.Role == auth.RoleAdmin }

// ViewerFromContext builds a Viewer from the auth values on the context.
func ViewerFromContext(ctx context.Context) Viewer {
	return Viewer{
		UserID: auth.UserIDFromContext(ctx),
		Role:   auth.RoleFromContext(ctx),
	}
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// scoped returns the patient only if the viewer may see it. Non-owners get
// ErrPatientNotFound rather than a forbidden, so record existence does not
// leak across doctors.
func (s *Service) scoped(ctx context.Context, viewer Viewer, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() && p.DoctorID != viewer.UserID {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

// Create assigns the next progressive code for the owning doctor and stores
// the record. Admins may create on behalf of another doctor.
func (s *Service) Create(ctx context.Context, viewer Viewer, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if !viewer.IsAdmin() || p.DoctorID == uuid.Nil {
		p.DoctorID = viewer.UserID
	}

	last, err := s.repo.LastCode(ctx, p.DoctorID)
	if err != nil {
		return fmt.Errorf("look up last code: %w", err)
	}
	p.Code = NextCode(last)

	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, viewer Viewer, id uuid.UUID) (*Patient, error) {
	return s.scoped(ctx, viewer, id)
}

// Update applies the editable fields and records one change-log entry per
// field that actually changed.
func (s *Service) Update(ctx context.Context, viewer Viewer, id uuid.UUID, updated *Patient) (*Patient, error) {
	if updated.FirstName == "" || updated.LastName == "" {
		return nil, fmt.Errorf("first and last name are required")
	}

	existing, err := s.scoped(ctx, viewer, id)
	if err != nil {
		return nil, err
	}

	changes := diffPatients(existing, updated)

	updated.ID = existing.ID
	updated.Code = existing.Code
	updated.DoctorID = existing.DoctorID
	if updated.Status == "" {
		updated.Status = existing.Status
	}
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	for _, ch := range changes {
		ch.PatientID = existing.ID
		ch.UserID = viewer.UserID
		if err := s.repo.AddLog(ctx, ch); err != nil {
			return nil, fmt.Errorf("record change log: %w", err)
		}
	}

	return s.repo.GetByID(ctx, existing.ID)
}

func (s *Service) Delete(ctx context.Context, viewer Viewer, id uuid.UUID) error {
	if _, err := s.scoped(ctx, viewer, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// List returns the viewer's patients, optionally filtered by a search term
// matching name or code. Admins see every doctor's patients.
func (s *Service) List(ctx context.Context, viewer Viewer, search string, limit, offset int) ([]*Patient, int, error) {
	f := ListFilter{Search: search, Limit: limit, Offset: offset}
	if !viewer.IsAdmin() {
		doctorID := viewer.UserID
		f.DoctorID = &doctorID
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Logs(ctx context.Context, viewer Viewer, patientID uuid.UUID) ([]*ChangeLog, error) {
	if _, err := s.scoped(ctx, viewer, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, patientID)
}

// AddLogEntry records a manual change-log entry for the patient.
func (s *Service) AddLogEntry(ctx context.Context, viewer Viewer, patientID uuid.UUID, field, oldValue, newValue string) error {
	if _, err := s.scoped(ctx, viewer, patientID); err != nil {
		return err
	}
	return s.repo.AddLog(ctx, &ChangeLog{
		PatientID: patientID,
		UserID:    viewer.UserID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

// RecordChange writes a change-log entry on behalf of another domain, such
// as a document upload or removal.
func (s *Service) RecordChange(ctx context.Context, patientID, userID uuid.UUID, field, oldValue, newValue string) error {
	return s.repo.AddLog(ctx, &ChangeLog{
		PatientID: patientID,
		UserID:    userID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

// GetStats returns patient counts scoped to the viewer.
func (s *Service) GetStats(ctx context.Context, viewer Viewer) (*Stats, error) {
	var doctorID *uuid.UUID
	if !viewer.IsAdmin() {
		id := viewer.UserID
		doctorID = &id
	}
	return s.repo.Stats(ctx, doctorID)
}

// SexOf returns the recorded sex for the patient, "" when not recorded.
func (s *Service) SexOf(ctx context.Context, patientID uuid.UUID) (string, error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.Sex, nil
}

// diffPatients returns a change-log entry per editable field whose value
// differs between old and new.
func diffPatients(oldP, newP *Patient) []*ChangeLog {
	var changes []*ChangeLog
	add := func(field, oldV, newV string) {
		if oldV != newV {
			changes = append(changes, &ChangeLog{Field: field, OldValue: oldV, NewValue: newV})
		}
	}

	add("first_name", oldP.FirstName, newP.FirstName)
	add("last_name", oldP.LastName, newP.LastName)
	add("birth_date", dateString(oldP.BirthDate), dateString(newP.BirthDate))
	add("sex", oldP.Sex, newP.Sex)
	add("birth_place", derefString(oldP.BirthPlace), derefString(newP.BirthPlace))
	add("fiscal_code", derefString(oldP.FiscalCode), derefString(newP.FiscalCode))
	add("address", derefString(oldP.Address), derefString(newP.Address))
	add("city", derefString(oldP.City), derefString(newP.City))
	add("province", derefString(oldP.Province), derefString(newP.Province))
	add("phone", derefString(oldP.Phone), derefString(newP.Phone))
	add("email", derefString(oldP.Email), derefString(newP.Email))
	add("notes", derefString(oldP.Notes), derefString(newP.Notes))
	if newP.Status != "" {
		add("status", oldP.Status, newP.Status)
	}

	return changes
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
