package auditevent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/careportal/portal/internal/platform/auth"
)

type mockRepo struct {
	events  map[uuid.UUID]*AuditEvent
	failing bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{events: make(map[uuid.UUID]*AuditEvent)}
}

func (m *mockRepo) Create(_ context.Context, e *AuditEvent) error {
	if m.failing {
		return errors.New("connection refused")
	}
	m.events[e.ID] = e
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*AuditEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return e, nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	var items []*AuditEvent
	for _, e := range m.events {
		if kind, ok := params["kind"]; ok && e.Kind != kind {
			continue
		}
		items = append(items, e)
	}
	return items, len(items), nil
}

// ── Record ──

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	e := &AuditEvent{Kind: KindStatementViewed, SubjectType: "statement"}
	if err := svc.Record(context.Background(), e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(repo.events))
	}
}

func TestRecordStampsAttributionFromContext(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	ctx := context.WithValue(context.Background(), auth.UserIDKey, "staff-42")
	ctx = WithClientInfo(ctx, ClientInfo{RemoteAddr: "203.0.113.9", UserAgent: "portal-web/1.4"})

	e := &AuditEvent{Kind: KindVerificationMismatch, SubjectType: "statement"}
	if err := svc.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if e.ActorID != "staff-42" {
		t.Errorf("actor_id = %q, want staff-42", e.ActorID)
	}
	if e.RemoteAddr != "203.0.113.9" {
		t.Errorf("remote_addr = %q, want 203.0.113.9", e.RemoteAddr)
	}
	if e.UserAgent != "portal-web/1.4" {
		t.Errorf("user_agent = %q, want portal-web/1.4", e.UserAgent)
	}
}

func TestRecordKeepsExplicitAttribution(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	ctx := WithClientInfo(context.Background(), ClientInfo{RemoteAddr: "203.0.113.9"})
	e := &AuditEvent{Kind: KindStatementViewed, SubjectType: "statement", RemoteAddr: "198.51.100.4"}
	if err := svc.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if e.RemoteAddr != "198.51.100.4" {
		t.Errorf("remote_addr = %q, caller-supplied value must win", e.RemoteAddr)
	}
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.Record(context.Background(), &AuditEvent{Kind: "statement.exploded"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRecordReturnsRepoError(t *testing.T) {
	repo := newMockRepo()
	repo.failing = true
	svc := NewService(repo)

	err := svc.Record(context.Background(), &AuditEvent{Kind: KindVerificationMismatch, SubjectType: "statement"})
	if err == nil {
		t.Fatal("expected error when repo write fails")
	}
}

// ── Search ──

func TestSearchFiltersByKind(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	for _, kind := range []string{KindStatementViewed, KindStatementViewed, KindStatementSent} {
		if err := svc.Record(context.Background(), &AuditEvent{ID: uuid.New(), Kind: kind, SubjectType: "statement"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	items, total, err := svc.SearchAuditEvents(context.Background(), map[string]string{"kind": KindStatementViewed}, 20, 0)
	if err != nil {
		t.Fatalf("SearchAuditEvents failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("got %d items (total %d), want 2", len(items), total)
	}
}
