package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartella/cartella/internal/platform/db"
)

// PersistedDirectory is the authoritative per-sex reference table backed by
// lab_reference_ranges. It also carries the admin maintenance operations.
type PersistedDirectory struct {
	pool *pgxpool.Pool
}

func NewPersistedDirectory(pool *pgxpool.Pool) *PersistedDirectory {
	return &PersistedDirectory{pool: pool}
}

func (d *PersistedDirectory) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return d.pool
}

const rangeCols = `id, test_name, sex, min_value, max_value, unit`

func (d *PersistedDirectory) Lookup(ctx context.Context, testName, sex string) (*ReferenceRange, error) {
	var r ReferenceRange
	err := d.conn(ctx).QueryRow(ctx,
		`SELECT `+rangeCols+` FROM lab_reference_ranges WHERE test_name = $1 AND sex = $2`,
		testName, sex).
		Scan(&r.ID, &r.TestName, &r.Sex, &r.Min, &r.Max, &r.Unit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoReference
		}
		return nil, fmt.Errorf("lookup reference range: %w", err)
	}
	return &r, nil
}

// List returns every persisted range ordered by test name then sex.
func (d *PersistedDirectory) List(ctx context.Context) ([]ReferenceRange, error) {
	rows, err := d.conn(ctx).Query(ctx,
		`SELECT `+rangeCols+` FROM lab_reference_ranges ORDER BY test_name, sex`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []ReferenceRange
	for rows.Next() {
		var r ReferenceRange
		if err := rows.Scan(&r.ID, &r.TestName, &r.Sex, &r.Min, &r.Max, &r.Unit); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// Upsert inserts or replaces the range for (test_name, sex).
func (d *PersistedDirectory) Upsert(ctx context.Context, r *ReferenceRange) error {
	if r.Min > r.Max {
		return fmt.Errorf("min %v exceeds max %v", r.Min, r.Max)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := d.conn(ctx).Exec(ctx, `
		INSERT INTO lab_reference_ranges (id, test_name, sex, min_value, max_value, unit)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (test_name, sex)
		DO UPDATE SET min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value, unit = EXCLUDED.unit`,
		r.ID, r.TestName, r.Sex, r.Min, r.Max, r.Unit)
	return err
}

// Delete removes the range with the given id.
func (d *PersistedDirectory) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := d.conn(ctx).Exec(ctx, `DELETE FROM lab_reference_ranges WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoReference
	}
	return nil
}

// SeedFromStatic copies the static table into the persisted one for both
// sexes, skipping pairs that already exist.
func (d *PersistedDirectory) SeedFromStatic(ctx context.Context, static *StaticDirectory) (int, error) {
	seeded := 0
	for _, r := range static.Ranges() {
		for _, sex := range []string{"M", "F"} {
			tag, err := d.conn(ctx).Exec(ctx, `
				INSERT INTO lab_reference_ranges (id, test_name, sex, min_value, max_value, unit)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (test_name, sex) DO NOTHING`,
				uuid.New(), r.TestName, sex, r.Min, r.Max, r.Unit)
			if err != nil {
				return seeded, fmt.Errorf("seed %s/%s: %w", r.TestName, sex, err)
			}
			seeded += int(tag.RowsAffected())
		}
	}
	return seeded, nil
}
