package auditevent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careportal/portal/internal/platform/auth"
)

// Recorder is the write-side contract other domains depend on. Record is
// best-effort from the caller's point of view: implementations log failures
// and callers are free to ignore the returned error.
type Recorder interface {
	Record(ctx context.Context, e *AuditEvent) error
}

type Service struct {
	repo AuditEventRepository
}

func NewService(repo AuditEventRepository) *Service {
	return &Service{repo: repo}
}

// Record validates and persists an event. A write failure is logged at warn
// level and returned; callers recording as a side effect should not propagate
// it to their own response. Actor and client attribution are filled from the
// context when the caller left them blank.
func (s *Service) Record(ctx context.Context, e *AuditEvent) error {
	if !ValidKind(e.Kind) {
		return fmt.Errorf("unknown audit event kind %q", e.Kind)
	}
	if e.ActorID == "" {
		e.ActorID = auth.UserIDFromContext(ctx)
	}
	if info, ok := ClientInfoFromContext(ctx); ok {
		if e.RemoteAddr == "" {
			e.RemoteAddr = info.RemoteAddr
		}
		if e.UserAgent == "" {
			e.UserAgent = info.UserAgent
		}
	}
	if err := s.repo.Create(ctx, e); err != nil {
		log.Warn().Err(err).
			Str("kind", e.Kind).
			Str("subject_type", e.SubjectType).
			Msg("audit event write failed")
		return err
	}
	return nil
}

func (s *Service) GetAuditEvent(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchAuditEvents(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
