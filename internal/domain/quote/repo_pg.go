package quote

import (
	"context"

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

type quoteRepoPG struct{ pool *pgxpool.Pool }

func NewQuoteRepoPG(pool *pgxpool.Pool) QuoteRepository {
	return &quoteRepoPG{pool: pool}
}

func (r *quoteRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const quoteCols = `id, patient_id, procedure_code, description, estimated_amount, patient_portion,
	status, valid_until, issued_at, created_at, updated_at`

func (r *quoteRepoPG) scanRow(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.PatientID, &q.ProcedureCode, &q.Description,
		&q.EstimatedAmount, &q.PatientPortion, &q.Status, &q.ValidUntil, &q.IssuedAt,
		&q.CreatedAt, &q.UpdatedAt)
	return &q, err
}

func (r *quoteRepoPG) Create(ctx context.Context, q *Quote) error {
	q.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO quote (id, patient_id, procedure_code, description, estimated_amount,
			patient_portion, status, valid_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		q.ID, q.PatientID, q.ProcedureCode, q.Description, q.EstimatedAmount,
		q.PatientPortion, q.Status, q.ValidUntil)
	return err
}

func (r *quoteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+quoteCols+` FROM quote WHERE id = $1`, id))
}

func (r *quoteRepoPG) Update(ctx context.Context, q *Quote) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE quote SET procedure_code=$2, description=$3, estimated_amount=$4,
			patient_portion=$5, status=$6, valid_until=$7, issued_at=$8, updated_at=NOW()
		WHERE id = $1`,
		q.ID, q.ProcedureCode, q.Description, q.EstimatedAmount,
		q.PatientPortion, q.Status, q.ValidUntil, q.IssuedAt)
	return err
}

func (r *quoteRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM quote WHERE id = $1`, id)
	return err
}

func (r *quoteRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Quote, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM quote `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + quoteCols + ` FROM quote ` + where
	if status != "" {
		q += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *quoteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Quote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM quote WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+quoteCols+` FROM quote WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *quoteRepoPG) collect(rows pgx.Rows, total int) ([]*Quote, int, error) {
	var items []*Quote
	for rows.Next() {
		q, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, nil
}
