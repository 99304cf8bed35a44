package referral

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

type referralRepoPG struct{ pool *pgxpool.Pool }

func NewReferralRepoPG(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const referralCols = `id, patient_id, referring_provider, receiving_provider, reason, notes,
	status, completed_at, created_at, updated_at`

func (r *referralRepoPG) scanRow(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.PatientID, &ref.ReferringProvider, &ref.ReceivingProvider,
		&ref.Reason, &ref.Notes, &ref.Status, &ref.CompletedAt, &ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral (id, patient_id, referring_provider, receiving_provider, reason, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ref.ID, ref.PatientID, ref.ReferringProvider, ref.ReceivingProvider, ref.Reason, ref.Notes, ref.Status)
	return err
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+referralCols+` FROM referral WHERE id = $1`, id))
}

func (r *referralRepoPG) Update(ctx context.Context, ref *Referral) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET referring_provider=$2, receiving_provider=$3, reason=$4, notes=$5,
			status=$6, completed_at=$7, updated_at=NOW()
		WHERE id = $1`,
		ref.ID, ref.ReferringProvider, ref.ReceivingProvider, ref.Reason, ref.Notes,
		ref.Status, ref.CompletedAt)
	return err
}

func (r *referralRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM referral WHERE id = $1`, id)
	return err
}

func (r *referralRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Referral, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM referral `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + referralCols + ` FROM referral ` + where
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

func (r *referralRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM referral WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+referralCols+` FROM referral WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *referralRepoPG) collect(rows pgx.Rows, total int) ([]*Referral, int, error) {
	var items []*Referral
	for rows.Next() {
		ref, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ref)
	}
	return items, total, nil
}
