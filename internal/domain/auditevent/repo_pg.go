package auditevent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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

type AuditEventRepoPG struct {
	pool *pgxpool.Pool
}

func NewAuditEventRepoPG(pool *pgxpool.Pool) *AuditEventRepoPG {
	return &AuditEventRepoPG{pool: pool}
}

func (r *AuditEventRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, kind, subject_type, subject_id, status_before, status_after,
	actor_id, remote_addr, user_agent, metadata, created_at`

func scanAudit(row pgx.Row) (*AuditEvent, error) {
	var a AuditEvent
	var metadata []byte
	err := row.Scan(
		&a.ID, &a.Kind, &a.SubjectType, &a.SubjectID, &a.StatusBefore, &a.StatusAfter,
		&a.ActorID, &a.RemoteAddr, &a.UserAgent, &metadata, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decoding audit metadata: %w", err)
		}
	}
	return &a, nil
}

func (r *AuditEventRepoPG) Create(ctx context.Context, e *AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding audit metadata: %w", err)
		}
	}

	q := fmt.Sprintf(`INSERT INTO audit_event (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, auditCols)
	_, err := r.conn(ctx).Exec(ctx, q,
		e.ID, e.Kind, e.SubjectType, e.SubjectID, e.StatusBefore, e.StatusAfter,
		e.ActorID, e.RemoteAddr, e.UserAgent, metadata, e.CreatedAt,
	)
	return err
}

func (r *AuditEventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_event WHERE id = $1", auditCols)
	return scanAudit(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *AuditEventRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if v, ok := params["kind"]; ok {
		where = append(where, fmt.Sprintf("kind = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["subject_type"]; ok {
		where = append(where, fmt.Sprintf("subject_type = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["subject_id"]; ok {
		where = append(where, fmt.Sprintf("subject_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["actor_id"]; ok {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, v)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_event %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_event %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AuditEvent
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
