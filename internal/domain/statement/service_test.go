package statement

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/domain/patient"
)

// ── Mock Repositories ──

type mockStatementRepo struct {
	data           map[uuid.UUID]*Statement
	getByCodeErr   error
	recordViewErr  error
	recordViewTime time.Time
}

func newMockStatementRepo() *mockStatementRepo {
	return &mockStatementRepo{data: make(map[uuid.UUID]*Statement)}
}

func (m *mockStatementRepo) Create(_ context.Context, st *Statement) error {
	st.ID = uuid.New()
	m.data[st.ID] = st
	return nil
}
func (m *mockStatementRepo) GetByID(_ context.Context, id uuid.UUID) (*Statement, error) {
	if st, ok := m.data[id]; ok {
		return st, nil
	}
	return nil, ErrNotFound
}
func (m *mockStatementRepo) GetByShortCode(_ context.Context, code string) (*Statement, error) {
	if m.getByCodeErr != nil {
		return nil, m.getByCodeErr
	}
	for _, st := range m.data {
		if st.ShortCode == code {
			return st, nil
		}
	}
	return nil, ErrNotFound
}
func (m *mockStatementRepo) Update(_ context.Context, st *Statement) error {
	if _, ok := m.data[st.ID]; !ok {
		return ErrNotFound
	}
	m.data[st.ID] = st
	return nil
}
func (m *mockStatementRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	st, ok := m.data[id]
	if !ok {
		return ErrNotFound
	}
	st.Status = status
	return nil
}
func (m *mockStatementRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.data, id)
	return nil
}
func (m *mockStatementRepo) List(_ context.Context, limit, offset int) ([]*Statement, int, error) {
	var out []*Statement
	for _, st := range m.data {
		out = append(out, st)
	}
	return out, len(out), nil
}
func (m *mockStatementRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Statement, int, error) {
	var out []*Statement
	for _, st := range m.data {
		if st.PatientID == patientID {
			out = append(out, st)
		}
	}
	return out, len(out), nil
}
func (m *mockStatementRepo) RecordView(_ context.Context, id uuid.UUID, now time.Time) (int, error) {
	if m.recordViewErr != nil {
		return 0, m.recordViewErr
	}
	st, ok := m.data[id]
	if !ok {
		return 0, ErrNotFound
	}
	if st.FirstViewedAt == nil {
		t := now
		st.FirstViewedAt = &t
	}
	t := now
	st.LastViewedAt = &t
	st.ViewCount++
	m.recordViewTime = now
	return st.ViewCount, nil
}

type mockPatientSource struct {
	data map[uuid.UUID]*patient.Patient
}

func (m *mockPatientSource) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if p, ok := m.data[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("not found")
}

type mockAudit struct {
	events []*auditevent.AuditEvent
	err    error
}

func (m *mockAudit) Record(_ context.Context, e *auditevent.AuditEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func strPtr(s string) *string { return &s }

// fixture returns a service with one sent statement and its patient on file.
func fixture() (*Service, *mockStatementRepo, *mockAudit, *Statement) {
	repo := newMockStatementRepo()
	dob := time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC)
	patientID := uuid.New()
	patients := &mockPatientSource{data: map[uuid.UUID]*patient.Patient{
		patientID: {
			ID:        patientID,
			FirstName: strPtr("Jane"),
			LastName:  strPtr("Doe"),
			BirthDate: &dob,
			Email:     strPtr("jane@example.com"),
		},
	}}
	st := &Statement{
		ID:        uuid.New(),
		PatientID: patientID,
		ShortCode: "X7PQ2M4T",
		Status:    StatusSent,
		AmountDue: decimal.RequireFromString("125.50"),
	}
	repo.data[st.ID] = st

	audit := &mockAudit{}
	svc := NewService(repo, patients)
	svc.SetAuditRecorder(audit)
	return svc, repo, audit, st
}

// ── Verify: failure outcomes ──

func TestVerifyUnknownCode(t *testing.T) {
	svc, _, _, _ := fixture()

	res, err := svc.Verify(context.Background(), "NOSUCHCD", "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyInvalidCode {
		t.Errorf("outcome = %v, want VerifyInvalidCode", res.Outcome)
	}
	if res.Statement != nil {
		t.Error("statement must not be returned for an invalid code")
	}
}

func TestVerifyLookupFailureIsAnError(t *testing.T) {
	svc, repo, _, st := fixture()
	repo.getByCodeErr = fmt.Errorf("connection refused")

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err == nil {
		t.Fatal("a failed code lookup must surface as an error, not an outcome")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on lookup failure", res)
	}
}

func TestVerifyDraftStatementUnavailable(t *testing.T) {
	svc, repo, _, st := fixture()
	repo.data[st.ID].Status = StatusDraft

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyUnavailable {
		t.Errorf("outcome = %v, want VerifyUnavailable", res.Outcome)
	}
}

func TestVerifyRejectedStatementUnavailable(t *testing.T) {
	svc, repo, _, st := fixture()
	repo.data[st.ID].Status = StatusRejected

	res, _ := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if res.Outcome != VerifyUnavailable {
		t.Errorf("outcome = %v, want VerifyUnavailable", res.Outcome)
	}
}

func TestVerifyUnparsableDOB(t *testing.T) {
	svc, _, _, st := fixture()

	for _, input := range []string{"", "garbage", "0115199", "15/01/1990x"} {
		res, err := svc.Verify(context.Background(), st.ShortCode, input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if res.Outcome != VerifyInvalidFormat {
			t.Errorf("input %q: outcome = %v, want VerifyInvalidFormat", input, res.Outcome)
		}
	}
}

func TestVerifyPatientWithoutDOB(t *testing.T) {
	svc, _, _, st := fixture()
	patients := svc.patients.(*mockPatientSource)
	patients.data[st.PatientID].BirthDate = nil

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyNotAvailable {
		t.Errorf("outcome = %v, want VerifyNotAvailable", res.Outcome)
	}
}

func TestVerifyMismatch(t *testing.T) {
	svc, repo, audit, st := fixture()

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/16/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifyMismatch {
		t.Errorf("outcome = %v, want VerifyMismatch", res.Outcome)
	}
	if repo.data[st.ID].ViewCount != 0 {
		t.Error("mismatch must not count as a view")
	}
	if len(audit.events) != 1 || audit.events[0].Kind != auditevent.KindVerificationMismatch {
		t.Errorf("audit events = %+v, want one verification.mismatch", audit.events)
	}
}

func TestVerifyFailedAttemptsLeaveTrail(t *testing.T) {
	svc, _, audit, st := fixture()
	patients := svc.patients.(*mockPatientSource)
	patients.data[st.PatientID].BirthDate = nil

	if _, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audit.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(audit.events))
	}
	e := audit.events[0]
	if e.Kind != auditevent.KindVerificationError {
		t.Errorf("audit kind = %q, want verification.error", e.Kind)
	}
	if e.SubjectID == nil || *e.SubjectID != st.ID {
		t.Errorf("audit subject = %v, want statement %s", e.SubjectID, st.ID)
	}
}

// ── Verify: success ──

func TestVerifySuccessTracksView(t *testing.T) {
	svc, repo, audit, st := fixture()

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifySuccess {
		t.Fatalf("outcome = %v, want VerifySuccess", res.Outcome)
	}
	if res.Statement == nil {
		t.Fatal("expected statement payload on success")
	}

	got := repo.data[st.ID]
	if got.ViewCount != 1 {
		t.Errorf("view count = %d, want 1", got.ViewCount)
	}
	if got.FirstViewedAt == nil || got.LastViewedAt == nil {
		t.Error("expected view timestamps to be set")
	}
	if len(audit.events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(audit.events))
	}
	if audit.events[0].Kind != auditevent.KindVerificationSuccess {
		t.Errorf("first audit kind = %q, want verification.success", audit.events[0].Kind)
	}
	viewed := audit.events[1]
	if viewed.Kind != auditevent.KindStatementViewed {
		t.Errorf("second audit kind = %q, want statement.viewed", viewed.Kind)
	}
	if viewed.Metadata["view_count"] != 1 {
		t.Errorf("audit view_count = %v, want 1", viewed.Metadata["view_count"])
	}
}

func TestVerifySuccessPreservesFirstViewedAt(t *testing.T) {
	svc, repo, _, st := fixture()

	if _, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990"); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}
	first := *repo.data[st.ID].FirstViewedAt

	if _, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990"); err != nil {
		t.Fatalf("second verify failed: %v", err)
	}

	got := repo.data[st.ID]
	if !got.FirstViewedAt.Equal(first) {
		t.Error("first_viewed_at must not change on subsequent views")
	}
	if got.ViewCount != 2 {
		t.Errorf("view count = %d, want 2", got.ViewCount)
	}
}

func TestVerifyEquivalentDOBFormats(t *testing.T) {
	inputs := []string{"01151990", "01/15/1990", "1990-01-15", "01-15-1990", "1/15/1990"}

	for _, input := range inputs {
		svc, _, _, st := fixture()
		res, err := svc.Verify(context.Background(), st.ShortCode, input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if res.Outcome != VerifySuccess {
			t.Errorf("input %q: outcome = %v, want VerifySuccess", input, res.Outcome)
		}
	}
}

func TestVerifyShortCodeCaseSensitive(t *testing.T) {
	svc, _, _, _ := fixture()

	res, _ := svc.Verify(context.Background(), "x7pq2m4t", "01/15/1990")
	if res.Outcome != VerifyInvalidCode {
		t.Errorf("outcome = %v, want VerifyInvalidCode for lowercased code", res.Outcome)
	}
}

func TestVerifySucceedsWhenTrackingFails(t *testing.T) {
	svc, repo, _, st := fixture()
	repo.recordViewErr = fmt.Errorf("connection refused")

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifySuccess {
		t.Errorf("outcome = %v, want VerifySuccess despite tracking failure", res.Outcome)
	}
}

func TestVerifySucceedsWhenAuditFails(t *testing.T) {
	svc, _, audit, st := fixture()
	audit.err = fmt.Errorf("connection refused")

	res, err := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != VerifySuccess {
		t.Errorf("outcome = %v, want VerifySuccess despite audit failure", res.Outcome)
	}
}

// ── Staff operations ──

func TestCreateStatementDefaultsToDraft(t *testing.T) {
	repo := newMockStatementRepo()
	svc := NewService(repo, &mockPatientSource{data: map[uuid.UUID]*patient.Patient{}})

	st := &Statement{PatientID: uuid.New()}
	if err := svc.CreateStatement(context.Background(), st); err != nil {
		t.Fatalf("CreateStatement failed: %v", err)
	}
	if st.Status != StatusDraft {
		t.Errorf("status = %q, want draft", st.Status)
	}
}

func TestCreateStatementRequiresPatient(t *testing.T) {
	svc := NewService(newMockStatementRepo(), &mockPatientSource{})

	if err := svc.CreateStatement(context.Background(), &Statement{}); err == nil {
		t.Error("expected error for missing patient_id")
	}
}

func TestSendStatementAssignsShortCode(t *testing.T) {
	svc, repo, audit, st := fixture()
	draft := &Statement{ID: uuid.New(), PatientID: st.PatientID, Status: StatusDraft}
	repo.data[draft.ID] = draft

	sent, err := svc.SendStatement(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("SendStatement failed: %v", err)
	}
	if sent.Status != StatusSent {
		t.Errorf("status = %q, want sent", sent.Status)
	}
	if sent.ShortCode == "" {
		t.Error("expected a short code to be assigned")
	}
	if len(audit.events) != 1 || audit.events[0].Kind != auditevent.KindStatementSent {
		t.Error("expected a statement.sent audit event")
	}
}

func TestSendStatementRejectsNonDraft(t *testing.T) {
	svc, _, _, st := fixture()

	if _, err := svc.SendStatement(context.Background(), st.ID); err == nil {
		t.Error("expected error sending an already-sent statement")
	}
}

func TestRejectStatement(t *testing.T) {
	svc, _, _, st := fixture()

	rejected, err := svc.RejectStatement(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("RejectStatement failed: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}

	// The code stops working once rejected.
	res, _ := svc.Verify(context.Background(), st.ShortCode, "01/15/1990")
	if res.Outcome != VerifyUnavailable {
		t.Errorf("post-reject verify outcome = %v, want VerifyUnavailable", res.Outcome)
	}
}

func TestMarkPaid(t *testing.T) {
	svc, repo, _, st := fixture()

	if err := svc.MarkPaid(context.Background(), st.ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if repo.data[st.ID].Status != StatusPaid {
		t.Errorf("status = %q, want paid", repo.data[st.ID].Status)
	}
	if err := svc.MarkPaid(context.Background(), st.ID); err == nil {
		t.Error("expected error marking a paid statement paid again")
	}
}

func TestUpdateStatementOnlyDraft(t *testing.T) {
	svc, _, _, st := fixture()

	edit := *st
	edit.Description = "updated"
	if err := svc.UpdateStatement(context.Background(), &edit); err == nil {
		t.Error("expected error editing a sent statement")
	}
}

func TestDeleteStatementOnlyDraft(t *testing.T) {
	svc, repo, _, st := fixture()

	if err := svc.DeleteStatement(context.Background(), st.ID); err == nil {
		t.Error("expected error deleting a sent statement")
	}

	draft := &Statement{ID: uuid.New(), PatientID: st.PatientID, Status: StatusDraft}
	repo.data[draft.ID] = draft
	if err := svc.DeleteStatement(context.Background(), draft.ID); err != nil {
		t.Errorf("DeleteStatement failed: %v", err)
	}
}
