package referral

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type mockReferralRepo struct {
	data map[uuid.UUID]*Referral
}

func newMockReferralRepo() *mockReferralRepo {
	return &mockReferralRepo{data: make(map[uuid.UUID]*Referral)}
}

func (m *mockReferralRepo) Create(_ context.Context, r *Referral) error {
	r.ID = uuid.New()
	m.data[r.ID] = r
	return nil
}
func (m *mockReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	if r, ok := m.data[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("not found")
}
func (m *mockReferralRepo) Update(_ context.Context, r *Referral) error {
	if _, ok := m.data[r.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.data[r.ID] = r
	return nil
}
func (m *mockReferralRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.data, id)
	return nil
}
func (m *mockReferralRepo) List(_ context.Context, status string, limit, offset int) ([]*Referral, int, error) {
	var out []*Referral
	for _, r := range m.data {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}
func (m *mockReferralRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	var out []*Referral
	for _, r := range m.data {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func newReferral() *Referral {
	return &Referral{
		PatientID:         uuid.New(),
		ReferringProvider: "Dr. Allen",
		ReceivingProvider: "Valley Cardiology",
		Reason:            "cardiac workup",
	}
}

func TestCreateReferralDefaultsToPending(t *testing.T) {
	svc := NewService(newMockReferralRepo())

	r := newReferral()
	if err := svc.CreateReferral(context.Background(), r); err != nil {
		t.Fatalf("CreateReferral failed: %v", err)
	}
	if r.Status != StatusPending {
		t.Errorf("status = %q, want pending", r.Status)
	}
}

func TestCreateReferralRequiresProviders(t *testing.T) {
	svc := NewService(newMockReferralRepo())

	r := newReferral()
	r.ReceivingProvider = ""
	if err := svc.CreateReferral(context.Background(), r); err == nil {
		t.Error("expected error for missing receiving provider")
	}
}

func TestTransitionLifecycle(t *testing.T) {
	svc := NewService(newMockReferralRepo())
	r := newReferral()
	if err := svc.CreateReferral(context.Background(), r); err != nil {
		t.Fatalf("CreateReferral failed: %v", err)
	}

	accepted, err := svc.Transition(context.Background(), r.ID, StatusAccepted)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Status != StatusAccepted {
		t.Errorf("status = %q, want accepted", accepted.Status)
	}

	completed, err := svc.Transition(context.Background(), r.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestTransitionRejectsInvalidMoves(t *testing.T) {
	svc := NewService(newMockReferralRepo())
	r := newReferral()
	if err := svc.CreateReferral(context.Background(), r); err != nil {
		t.Fatalf("CreateReferral failed: %v", err)
	}

	// pending → completed skips acceptance.
	if _, err := svc.Transition(context.Background(), r.ID, StatusCompleted); err == nil {
		t.Error("expected error for pending → completed")
	}

	if _, err := svc.Transition(context.Background(), r.ID, StatusDeclined); err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	// declined is terminal.
	if _, err := svc.Transition(context.Background(), r.ID, StatusAccepted); err == nil {
		t.Error("expected error transitioning out of declined")
	}
}

func TestListReferralsByStatus(t *testing.T) {
	repo := newMockReferralRepo()
	svc := NewService(repo)

	for i := 0; i < 3; i++ {
		if err := svc.CreateReferral(context.Background(), newReferral()); err != nil {
			t.Fatalf("CreateReferral failed: %v", err)
		}
	}

	items, total, err := svc.ListReferrals(context.Background(), StatusPending, 20, 0)
	if err != nil {
		t.Fatalf("ListReferrals failed: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Errorf("got %d items (total %d), want 3", len(items), total)
	}

	if _, _, err := svc.ListReferrals(context.Background(), "bogus", 20, 0); err == nil {
		t.Error("expected error for invalid status filter")
	}
}
