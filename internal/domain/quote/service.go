package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careportal/portal/internal/domain/auditevent"
)

type Service struct {
	repo  QuoteRepository
	audit auditevent.Recorder
}

func NewService(repo QuoteRepository) *Service {
	return &Service{repo: repo}
}

// SetAuditRecorder attaches an optional audit recorder.
func (s *Service) SetAuditRecorder(rec auditevent.Recorder) { s.audit = rec }

func (s *Service) CreateQuote(ctx context.Context, q *Quote) error {
	if q.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if q.ProcedureCode == "" {
		return fmt.Errorf("procedure_code is required")
	}
	if q.EstimatedAmount.IsNegative() || q.PatientPortion.IsNegative() {
		return fmt.Errorf("amounts cannot be negative")
	}
	if q.Status == "" {
		q.Status = StatusDraft
	}
	if !validStatuses[q.Status] {
		return fmt.Errorf("invalid status: %s", q.Status)
	}
	return s.repo.Create(ctx, q)
}

func (s *Service) GetQuote(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateQuote(ctx context.Context, q *Quote) error {
	current, err := s.repo.GetByID(ctx, q.ID)
	if err != nil {
		return err
	}
	if current.Status != StatusDraft {
		return fmt.Errorf("only draft quotes can be edited")
	}
	if q.EstimatedAmount.IsNegative() || q.PatientPortion.IsNegative() {
		return fmt.Errorf("amounts cannot be negative")
	}
	q.Status = current.Status
	q.IssuedAt = current.IssuedAt
	return s.repo.Update(ctx, q)
}

// IssueQuote transitions draft → issued and stamps the issue time.
func (s *Service) IssueQuote(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusIssued) {
		return nil, fmt.Errorf("cannot issue quote in status %s", q.Status)
	}

	now := time.Now().UTC()
	q.Status = StatusIssued
	q.IssuedAt = &now
	if err := s.repo.Update(ctx, q); err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:         auditevent.KindQuoteIssued,
			SubjectType:  "quote",
			SubjectID:    &q.ID,
			StatusBefore: StatusDraft,
			StatusAfter:  StatusIssued,
		})
	}
	return q, nil
}

// AcceptQuote transitions issued → accepted; an expired validity window
// forces the quote to expired instead.
func (s *Service) AcceptQuote(ctx context.Context, id uuid.UUID) (*Quote, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusAccepted) {
		return nil, fmt.Errorf("cannot accept quote in status %s", q.Status)
	}
	if q.Expired(time.Now().UTC()) {
		q.Status = StatusExpired
		if err := s.repo.Update(ctx, q); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("quote has expired")
	}

	q.Status = StatusAccepted
	if err := s.repo.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) DeleteQuote(ctx context.Context, id uuid.UUID) error {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if q.Status != StatusDraft {
		return fmt.Errorf("only draft quotes can be deleted")
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListQuotes(ctx context.Context, status string, limit, offset int) ([]*Quote, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Quote, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
