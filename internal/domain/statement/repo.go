package statement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no statement matches.
var ErrNotFound = errors.New("statement not found")

type StatementRepository interface {
	Create(ctx context.Context, st *Statement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Statement, error)
	// GetByShortCode matches exactly and case-sensitively.
	GetByShortCode(ctx context.Context, code string) (*Statement, error)
	Update(ctx context.Context, st *Statement) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Statement, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Statement, int, error)
	// RecordView applies the compound view-tracking update in a single
	// statement: first_viewed_at is set only if still null, last_viewed_at
	// is set to now, and view_count is incremented server-side. It returns
	// the incremented view count.
	RecordView(ctx context.Context, id uuid.UUID, now time.Time) (int, error)
}
