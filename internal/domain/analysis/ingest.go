package analysis

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// MaxResultsPerFile bounds the in-memory result buffer for one ingestion.
const MaxResultsPerFile = 10000

// ErrTooManyRows is returned when a file exceeds MaxResultsPerFile.
var ErrTooManyRows = fmt.Errorf("file exceeds %d data rows", MaxResultsPerFile)

// Ingestor drives a CSV stream through parse, reference lookup and
// classification, one row at a time.
type Ingestor struct {
	log zerolog.Logger
}

func NewIngestor(log zerolog.Logger) *Ingestor {
	return &Ingestor{log: log}
}

// Ingest reads semicolon-delimited rows from r and classifies each against
// dir using the patient's sex. Malformed rows are counted and skipped;
// stream-level I/O errors are fatal and return the partial outcome
// alongside the error. The context is checked between rows so a cancelled
// upload stops promptly.
func (ing *Ingestor) Ingest(ctx context.Context, r io.Reader, sex string, dir ReferenceRangeDirectory) (*Outcome, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Outcome{}, fmt.Errorf("empty file")
		}
		return &Outcome{}, fmt.Errorf("read header: %w", err)
	}
	layout, err := resolveHeader(header)
	if err != nil {
		return &Outcome{}, err
	}

	outcome := &Outcome{}
	for {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				outcome.RowsRead++
				outcome.RowsSkipped++
				continue
			}
			return outcome, fmt.Errorf("read row %d: %w", outcome.RowsRead+1, err)
		}

		outcome.RowsRead++
		m, ok := layout.parseRow(record)
		if !ok {
			outcome.RowsSkipped++
			continue
		}

		ref, err := dir.Lookup(ctx, m.TestName, sex)
		if err != nil && !errors.Is(err, ErrNoReference) {
			return outcome, fmt.Errorf("lookup %q: %w", m.TestName, err)
		}

		result := Classify(m, ref)
		if result.IsAbnormal {
			outcome.Abnormal++
		}
		if !result.HasReference {
			outcome.NoReference++
		}

		if len(outcome.Results) >= MaxResultsPerFile {
			return outcome, ErrTooManyRows
		}
		outcome.Results = append(outcome.Results, result)
	}

	ing.log.Debug().
		Int("rows_read", outcome.RowsRead).
		Int("rows_skipped", outcome.RowsSkipped).
		Int("abnormal", outcome.Abnormal).
		Int("no_reference", outcome.NoReference).
		Msg("ingestion completed")

	return outcome, nil
}

// QuickScan is the lightweight variant used for CSVs attached as plain
// documents: every data row is reported, nothing is persisted, and flags
// collapse to normal/abnormal. Unparseable values come back with a nil
// value and a normal flag.
func QuickScan(ctx context.Context, r io.Reader, dir ReferenceRangeDirectory) ([]QuickResult, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	layout, err := resolveHeader(header)
	if err != nil {
		return nil, err
	}

	var results []QuickResult
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return results, fmt.Errorf("read row: %w", err)
		}

		qr := QuickResult{
			TestName: layout.field(record, layout.testName),
			Unit:     layout.field(record, layout.unit),
			Flag:     "normal",
		}
		if v, err := parseDecimal(layout.field(record, layout.value)); err == nil {
			qr.Value = &v
			if ref, err := dir.Lookup(ctx, qr.TestName, ""); err == nil {
				if v < ref.Min || v > ref.Max {
					qr.Flag = "abnormal"
				}
			}
		}
		if len(results) >= MaxResultsPerFile {
			return results, ErrTooManyRows
		}
		results = append(results, qr)
	}
	return results, nil
}
