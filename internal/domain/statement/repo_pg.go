package statement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careportal/portal/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type statementRepoPG struct{ pool *pgxpool.Pool }

func NewStatementRepoPG(pool *pgxpool.Pool) StatementRepository {
	return &statementRepoPG{pool: pool}
}

func (r *statementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const statementCols = `id, patient_id, COALESCE(short_code, ''), status, description,
	total_amount, amount_due, period_start, period_end,
	first_viewed_at, last_viewed_at, view_count, created_at, updated_at`

func (r *statementRepoPG) scanRow(row pgx.Row) (*Statement, error) {
	var st Statement
	err := row.Scan(&st.ID, &st.PatientID, &st.ShortCode, &st.Status, &st.Description,
		&st.TotalAmount, &st.AmountDue, &st.PeriodStart, &st.PeriodEnd,
		&st.FirstViewedAt, &st.LastViewedAt, &st.ViewCount, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &st, err
}

// Create stores the statement. Drafts carry no short code yet; the empty
// string is persisted as NULL so the partial unique index only constrains
// assigned codes.
func (r *statementRepoPG) Create(ctx context.Context, st *Statement) error {
	st.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO statement (id, patient_id, short_code, status, description,
			total_amount, amount_due, period_start, period_end)
		VALUES ($1,$2,NULLIF($3, ''),$4,$5,$6,$7,$8,$9)`,
		st.ID, st.PatientID, st.ShortCode, st.Status, st.Description,
		st.TotalAmount, st.AmountDue, st.PeriodStart, st.PeriodEnd)
	return err
}

func (r *statementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Statement, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+statementCols+` FROM statement WHERE id = $1`, id))
}

func (r *statementRepoPG) GetByShortCode(ctx context.Context, code string) (*Statement, error) {
	// short_code is a case-sensitive text column; equality here is exact.
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+statementCols+` FROM statement WHERE short_code = $1`, code))
}

func (r *statementRepoPG) Update(ctx context.Context, st *Statement) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE statement SET patient_id=$2, short_code=NULLIF($3, ''), status=$4, description=$5,
			total_amount=$6, amount_due=$7, period_start=$8, period_end=$9, updated_at=NOW()
		WHERE id = $1`,
		st.ID, st.PatientID, st.ShortCode, st.Status, st.Description,
		st.TotalAmount, st.AmountDue, st.PeriodStart, st.PeriodEnd)
	return err
}

func (r *statementRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE statement SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *statementRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM statement WHERE id = $1`, id)
	return err
}

func (r *statementRepoPG) List(ctx context.Context, limit, offset int) ([]*Statement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM statement`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+statementCols+` FROM statement ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *statementRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Statement, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM statement WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+statementCols+` FROM statement WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *statementRepoPG) collect(rows pgx.Rows, total int) ([]*Statement, int, error) {
	var items []*Statement
	for rows.Next() {
		st, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, st)
	}
	return items, total, nil
}

// RecordView runs the whole view-tracking update server-side so concurrent
// verifications never lose an increment.
func (r *statementRepoPG) RecordView(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	var viewCount int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE statement
		SET first_viewed_at = COALESCE(first_viewed_at, $2),
		    last_viewed_at = $2,
		    view_count = view_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING view_count`, id, now).Scan(&viewCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return viewCount, err
}
