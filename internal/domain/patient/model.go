// Package patient manages patient records, their change log and the
// per-doctor visibility rules.
package patient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient status values.
const (
	StatusActive  = "attivo"
	StatusPending = "in_sospeso"
)

// Sex values as stored on the record. Reference-range lookups key on these.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// Patient maps to the patients table. Code is the per-doctor progressive
// identifier (PAT001, PAT002, ...).
type Patient struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Code       string     `db:"code" json:"code"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Sex        string     `db:"sex" json:"sex,omitempty"`
	BirthPlace *string    `db:"birth_place" json:"birth_place,omitempty"`
	FiscalCode *string    `db:"fiscal_code" json:"fiscal_code,omitempty"`
	Address    *string    `db:"address" json:"address,omitempty"`
	City       *string    `db:"city" json:"city,omitempty"`
	Province   *string    `db:"province" json:"province,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ChangeLog maps to the patient_logs table: one row per changed field.
type ChangeLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Field     string    `db:"field" json:"field"`
	OldValue  string    `db:"old_value" json:"old_value"`
	NewValue  string    `db:"new_value" json:"new_value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stats aggregates patient counts for the caller's scope.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Pending int `json:"pending"`
}

// ListFilter narrows a patient listing. A nil DoctorID means all doctors.
type ListFilter struct {
	DoctorID *uuid.UUID
	Search   string
	Limit    int
	Offset   int
}

const codePrefix = "PAT"

// NextCode returns the progressive code following last ("" yields PAT001).
func NextCode(last string) string {
	n := 1
	if digits := strings.TrimPrefix(last, codePrefix); digits != last {
		if parsed, err := strconv.Atoi(digits); err == nil {
			n = parsed + 1
		}
	}
	return fmt.Sprintf("%s%03d", codePrefix, n)
}
