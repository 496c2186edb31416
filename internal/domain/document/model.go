// Package document manages files attached to a patient record: identity
// documents, fiscal-code cards, analysis CSVs and free-form attachments.
package document

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document kinds. KindOther requires a description.
const (
	KindID          = "ID"
	KindFiscalCode  = "Codice Fiscale"
	KindAnalysisCSV = "Analisi CSV"
	KindOther       = "Altro"
)

// ValidKind reports whether kind is one of the accepted document kinds.
func ValidKind(kind string) bool {
	switch kind {
	case KindID, KindFiscalCode, KindAnalysisCSV, KindOther:
		return true
	}
	return false
}

// Document maps to the patient_documents table.
type Document struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Kind        string    `db:"kind" json:"kind"`
	Description *string   `db:"description" json:"description,omitempty"`
	FilePath    string    `db:"file_path" json:"file_path"`
	FileName    string    `db:"file_name" json:"file_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ContentType maps a stored file name to the MIME type served on inline
// viewing. Unknown extensions fall back to octet-stream.
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".csv":
		return "text/csv"
	}
	return "application/octet-stream"
}
