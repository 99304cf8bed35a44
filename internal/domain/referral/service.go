package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careportal/portal/internal/domain/auditevent"
)

type Service struct {
	repo  ReferralRepository
	audit auditevent.Recorder
}

func NewService(repo ReferralRepository) *Service {
	return &Service{repo: repo}
}

// SetAuditRecorder attaches an optional audit recorder.
func (s *Service) SetAuditRecorder(rec auditevent.Recorder) { s.audit = rec }

func (s *Service) CreateReferral(ctx context.Context, r *Referral) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.ReferringProvider == "" || r.ReceivingProvider == "" {
		return fmt.Errorf("referring and receiving providers are required")
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !validStatuses[r.Status] {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:        auditevent.KindReferralReceived,
			SubjectType: "referral",
			SubjectID:   &r.ID,
			StatusAfter: r.Status,
		})
	}
	return nil
}

func (s *Service) GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateReferral(ctx context.Context, r *Referral) error {
	current, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	// Status moves go through Transition; plain updates keep the current one.
	r.Status = current.Status
	r.CompletedAt = current.CompletedAt
	return s.repo.Update(ctx, r)
}

// Transition moves a referral along pending → accepted|declined → completed.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to string) (*Referral, error) {
	if !validStatuses[to] {
		return nil, fmt.Errorf("invalid status: %s", to)
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, to) {
		return nil, fmt.Errorf("cannot transition referral from %s to %s", r.Status, to)
	}

	before := r.Status
	r.Status = to
	if to == StatusCompleted {
		now := time.Now().UTC()
		r.CompletedAt = &now
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:         auditevent.KindReferralReceived,
			SubjectType:  "referral",
			SubjectID:    &r.ID,
			StatusBefore: before,
			StatusAfter:  to,
		})
	}
	return r, nil
}

func (s *Service) DeleteReferral(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListReferrals(ctx context.Context, status string, limit, offset int) ([]*Referral, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
