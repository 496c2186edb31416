package patient

import (
	"context"
	"errors"
	"strconv"

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

const patientCols = `id, code, doctor_id, first_name, last_name, birth_date, sex,
	birth_place, fiscal_code, address, city, province, phone, email, notes,
	status, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Code, &p.DoctorID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Sex,
		&p.BirthPlace, &p.FiscalCode, &p.Address, &p.City, &p.Province, &p.Phone, &p.Email, &p.Notes,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusActive
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, code, doctor_id, first_name, last_name, birth_date, sex,
			birth_place, fiscal_code, address, city, province, phone, email, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.Code, p.DoctorID, p.FirstName, p.LastName, p.BirthDate, p.Sex,
		p.BirthPlace, p.FiscalCode, p.Address, p.City, p.Province, p.Phone, p.Email, p.Notes, p.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, birth_date=$4, sex=$5,
			birth_place=$6, fiscal_code=$7, address=$8, city=$9, province=$10,
			phone=$11, email=$12, notes=$13, status=$14, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Sex,
		p.BirthPlace, p.FiscalCode, p.Address, p.City, p.Province,
		p.Phone, p.Email, p.Notes, p.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Patient, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	arg := 1
	if f.DoctorID != nil {
		where += ` AND doctor_id = $` + strconv.Itoa(arg)
		args = append(args, *f.DoctorID)
		arg++
	}
	if f.Search != "" {
		where += ` AND (first_name ILIKE $` + strconv.Itoa(arg) + ` OR last_name ILIKE $` + strconv.Itoa(arg) + ` OR code ILIKE $` + strconv.Itoa(arg) + `)`
		args = append(args, "%"+f.Search+"%")
		arg++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients `+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(arg)+` OFFSET $`+strconv.Itoa(arg+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) LastCode(ctx context.Context, doctorID uuid.UUID) (string, error) {
	var code string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT code FROM patients WHERE doctor_id = $1 ORDER BY code DESC LIMIT 1`, doctorID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return code, err
}

func (r *repoPG) Stats(ctx context.Context, doctorID *uuid.UUID) (*Stats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM patients`
	args := []interface{}{StatusActive, StatusPending}
	if doctorID != nil {
		query += ` WHERE doctor_id = $3`
		args = append(args, *doctorID)
	}

	var s Stats
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&s.Total, &s.Active, &s.Pending); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) AddLog(ctx context.Context, l *ChangeLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_logs (id, patient_id, user_id, field, old_value, new_value)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.PatientID, l.UserID, l.Field, l.OldValue, l.NewValue)
	return err
}

func (r *repoPG) ListLogs(ctx context.Context, patientID uuid.UUID) ([]*ChangeLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, user_id, field, old_value, new_value, created_at
		FROM patient_logs WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*ChangeLog
	for rows.Next() {
		var l ChangeLog
		if err := rows.Scan(&l.ID, &l.PatientID, &l.UserID, &l.Field, &l.OldValue, &l.NewValue, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
