package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/domain/statement"
)

func isStatementNotFound(err error) bool {
	return errors.Is(err, statement.ErrNotFound)
}

// StatementMarker transitions a statement to paid. Satisfied by the
// statement service.
type StatementMarker interface {
	MarkPaid(ctx context.Context, id uuid.UUID) error
}

// ProcessorEvent is the payload the payment processor posts to the
// payments webhook. EventID is the processor's delivery identifier and
// is the idempotency key: an event id seen before is acknowledged and
// ignored.
type ProcessorEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID string          `json:"transaction_id"`
	StatementID   uuid.UUID       `json:"statement_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	OccurredAt    *time.Time      `json:"occurred_at,omitempty"`
}

type Service struct {
	payments   PaymentRepository
	statements StatementMarker
	audit      auditevent.Recorder
}

func NewService(payments PaymentRepository, statements StatementMarker) *Service {
	return &Service{payments: payments, statements: statements}
}

func (s *Service) SetAuditRecorder(r auditevent.Recorder) { s.audit = r }

// ProcessEvent applies one processor event. The returned bool is false
// when the event id was already applied and the call was a no-op.
func (s *Service) ProcessEvent(ctx context.Context, evt *ProcessorEvent) (*Payment, bool, error) {
	if strings.TrimSpace(evt.EventID) == "" {
		return nil, false, fmt.Errorf("event_id is required")
	}
	if evt.Amount.IsNegative() {
		return nil, false, fmt.Errorf("amount cannot be negative")
	}
	if evt.Status == "" {
		evt.Status = StatusCompleted
	}
	if !validStatuses[evt.Status] {
		return nil, false, fmt.Errorf("invalid payment status: %s", evt.Status)
	}
	if evt.Method != "" && !validMethods[evt.Method] {
		return nil, false, fmt.Errorf("invalid payment method: %s", evt.Method)
	}

	if existing, err := s.payments.GetByExternalEventID(ctx, evt.EventID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	received := time.Now().UTC()
	if evt.OccurredAt != nil {
		received = *evt.OccurredAt
	}
	p := &Payment{
		ID:              uuid.New(),
		StatementID:     evt.StatementID,
		Amount:          evt.Amount,
		Method:          evt.Method,
		Status:          evt.Status,
		ExternalEventID: evt.EventID,
		ExternalTxnID:   evt.TransactionID,
		ReceivedAt:      received,
	}

	// Completed payments settle the statement. A transition failure
	// (for example a second payment against an already-paid statement)
	// does not reject the event; the payment record itself still lands.
	if evt.Status == StatusCompleted {
		if err := s.statements.MarkPaid(ctx, evt.StatementID); err != nil {
			if isStatementNotFound(err) {
				return nil, false, err
			}
			log.Warn().Err(err).
				Str("statement_id", evt.StatementID.String()).
				Str("event_id", evt.EventID).
				Msg("payment recorded but statement transition failed")
		}
	}

	if err := s.payments.Create(ctx, p); err != nil {
		return nil, false, err
	}
	s.recordAudit(ctx, p)
	return p, true, nil
}

func (s *Service) recordAudit(ctx context.Context, p *Payment) {
	if s.audit == nil {
		return
	}
	id := p.StatementID
	err := s.audit.Record(ctx, &auditevent.AuditEvent{
		Kind:        auditevent.KindPaymentReceived,
		SubjectType: "statement",
		SubjectID:   &id,
		Metadata: map[string]any{
			"payment_id": p.ID.String(),
			"amount":     p.Amount.String(),
			"event_id":   p.ExternalEventID,
			"status":     p.Status,
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("failed to record payment audit event")
	}
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *Service) ListByStatement(ctx context.Context, statementID uuid.UUID) ([]*Payment, error) {
	return s.payments.ListByStatement(ctx, statementID)
}

func (s *Service) ListPayments(ctx context.Context, limit, offset int) ([]*Payment, int, error) {
	return s.payments.List(ctx, limit, offset)
}
