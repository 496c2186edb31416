// Package analysis implements the lab-analysis pipeline: CSV parsing,
// reference-range lookup, anomaly classification and persistence of the
// classified values.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Flag classifies a single lab value against its reference range.
type Flag string

const (
	FlagNormal Flag = "N"
	FlagLow    Flag = "L"
	FlagHigh   Flag = "H"
)

// ReferenceRange is the [Min,Max] interval considered normal for a test.
// Sex is "M", "F" or SexAny for a universal range. Invariant: Min <= Max.
type ReferenceRange struct {
	ID       uuid.UUID `db:"id" json:"id,omitempty"`
	TestName string    `db:"test_name" json:"test_name"`
	Sex      string    `db:"sex" json:"sex"`
	Min      float64   `db:"min_value" json:"min"`
	Max      float64   `db:"max_value" json:"max"`
	Unit     string    `db:"unit" json:"unit"`
}

// SexAny marks a reference range that applies regardless of sex.
const SexAny = "any"

// Measurement is one successfully parsed CSV row.
type Measurement struct {
	TestName string  `json:"test_name"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

// ClassifiedResult is a Measurement judged against its reference range.
// ReferenceMin/Max are nil when no range was found; in that case the flag
// is FlagNormal and HasReference is false.
type ClassifiedResult struct {
	TestName     string   `json:"test_name"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	ReferenceMin *float64 `json:"reference_min"`
	ReferenceMax *float64 `json:"reference_max"`
	Flag         Flag     `json:"flag"`
	IsAbnormal   bool     `json:"is_abnormal"`
	HasReference bool     `json:"has_reference"`
}

// Outcome summarizes one file ingestion.
type Outcome struct {
	Results     []ClassifiedResult `json:"results"`
	RowsRead    int                `json:"rows_read"`
	RowsSkipped int                `json:"rows_skipped"`
	Abnormal    int                `json:"abnormal"`
	NoReference int                `json:"no_reference"`
}

// Analysis maps to the patient_analyses table: one uploaded CSV file.
type Analysis struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	FilePath    string    `db:"file_path" json:"file_path"`
	FileName    string    `db:"file_name" json:"file_name"`
	RowsRead    int       `db:"rows_read" json:"rows_read"`
	RowsSkipped int       `db:"rows_skipped" json:"rows_skipped"`
	Abnormal    int       `db:"abnormal" json:"abnormal"`
	NoReference int       `db:"no_reference" json:"no_reference"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AnalysisValue maps to the analysis_values table: one classified row of an
// uploaded file.
type AnalysisValue struct {
	ID           uuid.UUID `db:"id" json:"id"`
	AnalysisID   uuid.UUID `db:"analysis_id" json:"analysis_id"`
	TestName     string    `db:"test_name" json:"test_name"`
	Value        float64   `db:"value" json:"value"`
	Unit         string    `db:"unit" json:"unit"`
	ReferenceMin *float64  `db:"reference_min" json:"reference_min"`
	ReferenceMax *float64  `db:"reference_max" json:"reference_max"`
	Flag         Flag      `db:"flag" json:"flag"`
	IsAbnormal   bool      `db:"is_abnormal" json:"is_abnormal"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// QuickResult is the lightweight classification used for CSVs attached as
// plain documents: every row is reported, no persistence, flags are just
// normal/abnormal.
type QuickResult struct {
	TestName string   `json:"test_name"`
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit"`
	Flag     string   `json:"flag"`
}
