package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careportal/portal/internal/domain/auditevent"
	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/platform/registry"
	"github.com/careportal/portal/pkg/caldate"
)

// PatientSource is the patient access the resolver needs; satisfied by
// patient.PatientRepository.
type PatientSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	SetExternalPersonID(ctx context.Context, id uuid.UUID, externalID string) error
}

type Resolver struct {
	patients PatientSource
	registry registry.Client
	audit    auditevent.Recorder
}

func NewResolver(patients PatientSource, reg registry.Client) *Resolver {
	return &Resolver{patients: patients, registry: reg}
}

// SetAuditRecorder attaches an optional audit recorder.
func (r *Resolver) SetAuditRecorder(rec auditevent.Recorder) { r.audit = rec }

// ResolveBalances disambiguates the patient against the registry and, on an
// exact single match, fetches their balances. Registry calls are not
// retried; an upstream failure is reported as-is.
func (r *Resolver) ResolveBalances(ctx context.Context, patientID uuid.UUID) (*Resolution, error) {
	p, err := r.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient %s: %w", patientID, err)
	}

	if !p.HasResolverIdentity() {
		return &Resolution{Outcome: ResolveMissingPatientData}, nil
	}

	candidates, err := r.registry.LookupPersons(ctx, *p.FirstName, *p.LastName,
		caldate.FromTime(*p.BirthDate), registry.LookupOptions{
			ExcludeExpired: true,
			PatientsOnly:   true,
		})
	if err != nil {
		return r.upstreamFailure(ctx, patientID, err), nil
	}

	switch {
	case len(candidates) == 0:
		return &Resolution{Outcome: ResolvePersonNotFound}, nil
	case len(candidates) > 1:
		return &Resolution{
			Outcome:        ResolveMultiplePersonsFound,
			CandidateCount: len(candidates),
		}, nil
	}

	candidate := candidates[0]

	payload, err := r.registry.GetBalances(ctx, candidate.ExternalID)
	if err != nil {
		return r.upstreamFailure(ctx, patientID, err), nil
	}
	balances := payload.Normalize()

	// Cache the resolved external id on the patient record; failure here is
	// an optimization lost, not an error.
	if err := r.patients.SetExternalPersonID(ctx, patientID, candidate.ExternalID); err != nil {
		log.Warn().Err(err).Str("patient_id", patientID.String()).Msg("caching external person id failed")
	}

	if r.audit != nil {
		_ = r.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:        auditevent.KindBalanceResolved,
			SubjectType: "patient",
			SubjectID:   &patientID,
			Metadata:    map[string]any{"external_person_id": candidate.ExternalID},
		})
	}

	return &Resolution{
		Outcome:   ResolveSuccess,
		Candidate: &candidate,
		Balances:  &balances,
	}, nil
}

func (r *Resolver) upstreamFailure(ctx context.Context, patientID uuid.UUID, err error) *Resolution {
	res := &Resolution{Outcome: ResolveUpstreamError, UpstreamMessage: err.Error()}

	var se *registry.StatusError
	if errors.As(err, &se) {
		res.UpstreamStatus = se.StatusCode
		res.UpstreamMessage = se.Message
	}

	if r.audit != nil {
		_ = r.audit.Record(ctx, &auditevent.AuditEvent{
			Kind:        auditevent.KindBalanceFailed,
			SubjectType: "patient",
			SubjectID:   &patientID,
			Metadata:    map[string]any{"upstream_status": res.UpstreamStatus},
		})
	}
	return res
}
