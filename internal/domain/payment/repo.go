package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("payment not found")

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	// GetByExternalEventID returns ErrNotFound when the processor event
	// has not been seen before.
	GetByExternalEventID(ctx context.Context, eventID string) (*Payment, error)
	ListByStatement(ctx context.Context, statementID uuid.UUID) ([]*Payment, error)
	List(ctx context.Context, limit, offset int) ([]*Payment, int, error)
}
