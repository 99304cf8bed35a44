package statement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/platform/notification"
	"github.com/careportal/portal/pkg/caldate"
	"github.com/careportal/portal/pkg/shortcode"
)

// PatientSource is the read access the verify flow needs; satisfied by
// patient.PatientRepository.
type PatientSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Notifier is the delivery surface used on send; satisfied by
// notification.Manager.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	statements StatementRepository
	patients   PatientSource
	audit      auditevent.Recorder
	notifier   Notifier
	portalURL  string
}

func NewService(statements StatementRepository, patients PatientSource) *Service {
	return &Service{statements: statements, patients: patients}
}

// SetAuditRecorder attaches an optional audit recorder.
func (s *Service) SetAuditRecorder(rec auditevent.Recorder) { s.audit = rec }

// SetNotifier attaches an optional notifier used on send.
func (s *Service) SetNotifier(n Notifier, portalURL string) {
	s.notifier = n
	s.portalURL = portalURL
}

// Verify checks a claimed date of birth against the patient on the statement
// carrying the short code. Failures are collapsed into a closed outcome set
// so callers cannot distinguish a bad guess from a bad code beyond what the
// outcome taxonomy exposes.
func (s *Service) Verify(ctx context.Context, code, claimedDOB string) (*VerifyResult, error) {
	st, err := s.statements.GetByShortCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return &VerifyResult{Outcome: VerifyInvalidCode}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up short code: %w", err)
	}

	if st.Status != StatusSent {
		return &VerifyResult{Outcome: VerifyUnavailable}, nil
	}

	claimed, err := caldate.Parse(claimedDOB)
	if err != nil {
		return &VerifyResult{Outcome: VerifyInvalidFormat}, nil
	}

	p, err := s.patients.GetByID(ctx, st.PatientID)
	if err != nil {
		s.recordVerification(ctx, auditevent.KindVerificationError, st,
			map[string]any{"reason": "patient lookup failed"})
		return nil, fmt.Errorf("loading patient %s: %w", st.PatientID, err)
	}
	if p.BirthDate == nil {
		s.recordVerification(ctx, auditevent.KindVerificationError, st,
			map[string]any{"reason": "no birth date on record"})
		return &VerifyResult{Outcome: VerifyNotAvailable}, nil
	}

	if !claimed.Equal(caldate.FromTime(*p.BirthDate)) {
		s.recordVerification(ctx, auditevent.KindVerificationMismatch, st, nil)
		return &VerifyResult{Outcome: VerifyMismatch}, nil
	}

	// Tracking and audit are side effects of a successful verification;
	// their failures are logged and never surfaced to the caller.
	now := time.Now().UTC()
	viewCount, err := s.statements.RecordView(ctx, st.ID, now)
	if err != nil {
		log.Error().Err(err).Str("statement_id", st.ID.String()).Msg("view tracking update failed")
		viewCount = st.ViewCount
	} else {
		st.ViewCount = viewCount
		if st.FirstViewedAt == nil {
			st.FirstViewedAt = &now
		}
		st.LastViewedAt = &now
	}

	s.recordVerification(ctx, auditevent.KindVerificationSuccess, st, nil)
	if s.audit != nil {
		_ = s.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:         auditevent.KindStatementViewed,
			SubjectType:  "statement",
			SubjectID:    &st.ID,
			StatusBefore: StatusSent,
			StatusAfter:  StatusSent,
			Metadata:     map[string]any{"view_count": viewCount},
		})
	}

	return &VerifyResult{Outcome: VerifySuccess, Statement: st}, nil
}

func (s *Service) recordVerification(ctx context.Context, kind string, st *Statement, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, &auditevent.AuditEvent{
		Kind:        kind,
		SubjectType: "statement",
		SubjectID:   &st.ID,
		Metadata:    metadata,
	})
}

// -- Staff operations --

func (s *Service) CreateStatement(ctx context.Context, st *Statement) error {
	if st.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if st.Status == "" {
		st.Status = StatusDraft
	}
	if !validStatuses[st.Status] {
		return fmt.Errorf("invalid status: %s", st.Status)
	}
	return s.statements.Create(ctx, st)
}

func (s *Service) GetStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	return s.statements.GetByID(ctx, id)
}

func (s *Service) GetByShortCode(ctx context.Context, code string) (*Statement, error) {
	return s.statements.GetByShortCode(ctx, code)
}

// UpdateStatement edits a statement's content. Only drafts are editable.
func (s *Service) UpdateStatement(ctx context.Context, st *Statement) error {
	current, err := s.statements.GetByID(ctx, st.ID)
	if err != nil {
		return err
	}
	if current.Status != StatusDraft {
		return fmt.Errorf("only draft statements can be edited")
	}
	st.Status = current.Status
	st.ShortCode = current.ShortCode
	return s.statements.Update(ctx, st)
}

// SendStatement transitions draft → sent, assigning a short access code and
// dispatching the patient notification.
func (s *Service) SendStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	st, err := s.statements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(st.Status, StatusSent) {
		return nil, fmt.Errorf("cannot send statement in status %s", st.Status)
	}

	if st.ShortCode == "" {
		code, err := shortcode.New(shortcode.DefaultLength)
		if err != nil {
			return nil, fmt.Errorf("generating short code: %w", err)
		}
		st.ShortCode = code
	}
	st.Status = StatusSent
	if err := s.statements.Update(ctx, st); err != nil {
		return nil, err
	}

	s.recordTransition(ctx, auditevent.KindStatementSent, st.ID, StatusDraft, StatusSent)
	s.notifyPatient(ctx, st)

	return st, nil
}

// RejectStatement transitions sent → rejected, withdrawing public access.
func (s *Service) RejectStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	st, err := s.statements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(st.Status, StatusRejected) {
		return nil, fmt.Errorf("cannot reject statement in status %s", st.Status)
	}
	if err := s.statements.SetStatus(ctx, st.ID, StatusRejected); err != nil {
		return nil, err
	}
	prev := st.Status
	st.Status = StatusRejected

	s.recordTransition(ctx, auditevent.KindStatementRejected, st.ID, prev, StatusRejected)
	return st, nil
}

// MarkPaid transitions sent → paid. Used by the payment webhook flow.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) error {
	st, err := s.statements.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(st.Status, StatusPaid) {
		return fmt.Errorf("cannot mark statement in status %s as paid", st.Status)
	}
	return s.statements.SetStatus(ctx, st.ID, StatusPaid)
}

func (s *Service) DeleteStatement(ctx context.Context, id uuid.UUID) error {
	st, err := s.statements.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if st.Status != StatusDraft {
		return fmt.Errorf("only draft statements can be deleted")
	}
	return s.statements.Delete(ctx, id)
}

func (s *Service) ListStatements(ctx context.Context, limit, offset int) ([]*Statement, int, error) {
	return s.statements.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Statement, int, error) {
	return s.statements.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) recordTransition(ctx context.Context, kind string, id uuid.UUID, before, after string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, &auditevent.AuditEvent{
		Kind:         kind,
		SubjectType:  "statement",
		SubjectID:    &id,
		StatusBefore: before,
		StatusAfter:  after,
	})
}

func (s *Service) notifyPatient(ctx context.Context, st *Statement) {
	if s.notifier == nil {
		return
	}
	p, err := s.patients.GetByID(ctx, st.PatientID)
	if err != nil || p.Email == nil || *p.Email == "" {
		return
	}
	data := map[string]string{
		"patient_name": p.DisplayName(),
		"short_code":   st.ShortCode,
		"portal_url":   s.portalURL,
	}
	if _, err := s.notifier.SendFromTemplate(ctx, "statement-ready", data, *p.Email); err != nil {
		log.Warn().Err(err).Str("statement_id", st.ID.String()).Msg("statement notification failed")
	}
}
