package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartella/cartella/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const analysisCols = `id, patient_id, user_id, file_path, file_name,
	rows_read, rows_skipped, abnormal, no_reference, created_at`

func (r *repoPG) scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	err := row.Scan(&a.ID, &a.PatientID, &a.UserID, &a.FilePath, &a.FileName,
		&a.RowsRead, &a.RowsSkipped, &a.Abnormal, &a.NoReference, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_analyses (id, patient_id, user_id, file_path, file_name,
			rows_read, rows_skipped, abnormal, no_reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.PatientID, a.UserID, a.FilePath, a.FileName,
		a.RowsRead, a.RowsSkipped, a.Abnormal, a.NoReference)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	return r.scanAnalysis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+analysisCols+` FROM patient_analyses WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_analyses WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+analysisCols+` FROM patient_analyses WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Analysis
	for rows.Next() {
		a, err := r.scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_analyses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

func (r *repoPG) InsertValues(ctx context.Context, analysisID uuid.UUID, results []ClassifiedResult) error {
	for _, res := range results {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO analysis_values (id, analysis_id, test_name, value, unit,
				reference_min, reference_max, flag, is_abnormal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			uuid.New(), analysisID, res.TestName, res.Value, res.Unit,
			res.ReferenceMin, res.ReferenceMax, res.Flag, res.IsAbnormal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) ListValues(ctx context.Context, analysisID uuid.UUID) ([]*AnalysisValue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, analysis_id, test_name, value, unit, reference_min, reference_max,
			flag, is_abnormal, created_at
		FROM analysis_values WHERE analysis_id = $1 ORDER BY created_at, test_name`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*AnalysisValue
	for rows.Next() {
		var v AnalysisValue
		if err := rows.Scan(&v.ID, &v.AnalysisID, &v.TestName, &v.Value, &v.Unit,
			&v.ReferenceMin, &v.ReferenceMax, &v.Flag, &v.IsAbnormal, &v.CreatedAt); err != nil {
			return nil, err
		}
		values = append(values, &v)
	}
	return values, rows.Err()
}
