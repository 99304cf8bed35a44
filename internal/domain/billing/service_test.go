package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/platform/registry"
	"github.com/careportal/portal/pkg/caldate"
)

// ── Mocks ──

type mockPatients struct {
	data       map[uuid.UUID]*patient.Patient
	external   map[uuid.UUID]string
	getByIDErr error
}

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if m.getByIDErr != nil {
		return nil, m.getByIDErr
	}
	if p, ok := m.data[id]; ok {
		return p, nil
	}
	return nil, patient.ErrNotFound
}

func (m *mockPatients) SetExternalPersonID(_ context.Context, id uuid.UUID, externalID string) error {
	if m.external == nil {
		m.external = make(map[uuid.UUID]string)
	}
	m.external[id] = externalID
	return nil
}

type mockRegistry struct {
	candidates   []registry.Candidate
	lookupErr    error
	balances     *registry.BalancesPayload
	balancesErr  error
	lookupCalls  int
	balanceCalls int
	lastOpts     registry.LookupOptions
	lastDOB      caldate.Date
}

func (m *mockRegistry) LookupPersons(_ context.Context, firstName, lastName string, dob caldate.Date, opts registry.LookupOptions) ([]registry.Candidate, error) {
	m.lookupCalls++
	m.lastOpts = opts
	m.lastDOB = dob
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.candidates, nil
}

func (m *mockRegistry) GetBalances(_ context.Context, externalID string) (*registry.BalancesPayload, error) {
	m.balanceCalls++
	if m.balancesErr != nil {
		return nil, m.balancesErr
	}
	return m.balances, nil
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newFixture() (*Resolver, *mockPatients, *mockRegistry, uuid.UUID) {
	dob := time.Date(1985, 6, 30, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	patients := &mockPatients{data: map[uuid.UUID]*patient.Patient{
		id: {ID: id, FirstName: strPtr("Sam"), LastName: strPtr("Rivera"), BirthDate: &dob},
	}}
	reg := &mockRegistry{}
	return NewResolver(patients, reg), patients, reg, id
}

// ── ResolveBalances ──

func TestResolveMissingPatientData(t *testing.T) {
	resolver, patients, reg, id := newFixture()
	patients.data[id].BirthDate = nil

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolveMissingPatientData {
		t.Errorf("outcome = %v, want ResolveMissingPatientData", res.Outcome)
	}
	if reg.lookupCalls != 0 {
		t.Error("registry must not be called when patient data is incomplete")
	}
}

func TestResolvePersonNotFound(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = nil

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolvePersonNotFound {
		t.Errorf("outcome = %v, want ResolvePersonNotFound", res.Outcome)
	}
}

func TestResolveMultipleCandidates(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = []registry.Candidate{
		{ExternalID: "ext-1", PersonNumber: "100"},
		{ExternalID: "ext-2", PersonNumber: "200"},
	}

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolveMultiplePersonsFound {
		t.Errorf("outcome = %v, want ResolveMultiplePersonsFound", res.Outcome)
	}
	if res.CandidateCount != 2 {
		t.Errorf("candidate count = %d, want 2", res.CandidateCount)
	}
	if reg.balanceCalls != 0 {
		t.Error("balances must not be fetched when the match is ambiguous")
	}
}

func TestResolveSuccess(t *testing.T) {
	resolver, patients, reg, id := newFixture()
	reg.candidates = []registry.Candidate{{ExternalID: "ext-1", PersonNumber: "100"}}
	reg.balances = &registry.BalancesPayload{
		TotalAmountDue: decPtr("240.75"),
		BadDebtAmount:  decPtr("10.00"),
	}

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolveSuccess {
		t.Fatalf("outcome = %v, want ResolveSuccess", res.Outcome)
	}
	if res.Candidate == nil || res.Candidate.ExternalID != "ext-1" {
		t.Errorf("candidate = %+v, want ext-1", res.Candidate)
	}
	if !res.Balances.TotalAmountDue.Equal(decimal.RequireFromString("240.75")) {
		t.Errorf("total amount due = %s", res.Balances.TotalAmountDue)
	}
	// Fields the upstream omitted default to zero.
	if !res.Balances.AvailableCredit.IsZero() || !res.Balances.AccountCredit.IsZero() {
		t.Error("omitted balance fields must default to zero")
	}
	if patients.external[id] != "ext-1" {
		t.Error("expected external person id to be cached on the patient")
	}
}

func TestResolveLookupOptions(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = []registry.Candidate{{ExternalID: "ext-1"}}
	reg.balances = &registry.BalancesPayload{}

	if _, err := resolver.ResolveBalances(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.lastOpts.ExcludeExpired || !reg.lastOpts.PatientsOnly {
		t.Errorf("lookup options = %+v, want ExcludeExpired and PatientsOnly", reg.lastOpts)
	}
	want := caldate.Date{Year: 1985, Month: time.June, Day: 30}
	if !reg.lastDOB.Equal(want) {
		t.Errorf("lookup dob = %+v, want %+v", reg.lastDOB, want)
	}
}

func TestResolveLookupUpstreamError(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.lookupErr = &registry.StatusError{StatusCode: 503, Message: "registry maintenance"}

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolveUpstreamError {
		t.Fatalf("outcome = %v, want ResolveUpstreamError", res.Outcome)
	}
	if res.UpstreamStatus != 503 || res.UpstreamMessage != "registry maintenance" {
		t.Errorf("upstream = %d %q", res.UpstreamStatus, res.UpstreamMessage)
	}
	if reg.lookupCalls != 1 {
		t.Errorf("lookup calls = %d, want 1 (no retry)", reg.lookupCalls)
	}
}

func TestResolveBalancesUpstreamError(t *testing.T) {
	resolver, _, reg, id := newFixture()
	reg.candidates = []registry.Candidate{{ExternalID: "ext-1"}}
	reg.balancesErr = &registry.StatusError{StatusCode: 404, Message: "no balances"}

	res, err := resolver.ResolveBalances(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != ResolveUpstreamError {
		t.Fatalf("outcome = %v, want ResolveUpstreamError", res.Outcome)
	}
	if res.UpstreamStatus != 404 {
		t.Errorf("upstream status = %d, want 404", res.UpstreamStatus)
	}
}

func TestResolveUnknownPatient(t *testing.T) {
	resolver, _, _, _ := newFixture()

	_, err := resolver.ResolveBalances(context.Background(), uuid.New())
	if !errors.Is(err, patient.ErrNotFound) {
		t.Errorf("err = %v, want patient.ErrNotFound in chain", err)
	}
}
