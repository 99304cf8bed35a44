// Package billing resolves a portal patient against the external clinical
// registry and fetches their account balances. Resolution is strict: the
// patient must match exactly one registry person before any balance data is
// returned.
package billing

import (
	"github.com/careportal/portal/internal/platform/registry"
)

// ResolveOutcome classifies a balance resolution attempt. The set is closed.
type ResolveOutcome int

const (
	// ResolveMissingPatientData means the patient record lacks the first
	// name, last name, or birth date the registry lookup requires. No
	// registry call is made.
	ResolveMissingPatientData ResolveOutcome = iota
	// ResolvePersonNotFound means the registry returned no candidates.
	ResolvePersonNotFound
	// ResolveMultiplePersonsFound means the registry returned more than
	// one candidate; balances are not fetched.
	ResolveMultiplePersonsFound
	// ResolveUpstreamError means a registry call failed; the upstream
	// status and message are carried on the Resolution.
	ResolveUpstreamError
	// ResolveSuccess means exactly one candidate matched and balances
	// were fetched.
	ResolveSuccess
)

// Reason returns the machine-readable reason string for the outcome.
func (o ResolveOutcome) Reason() string {
	switch o {
	case ResolveMissingPatientData:
		return "missing_patient_data"
	case ResolvePersonNotFound:
		return "person_not_found"
	case ResolveMultiplePersonsFound:
		return "multiple_persons_found"
	case ResolveUpstreamError:
		return "upstream_error"
	case ResolveSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Resolution is the result of one ResolveBalances call. Candidate and
// Balances are populated only on ResolveSuccess; CandidateCount only on
// ResolveMultiplePersonsFound; UpstreamStatus/UpstreamMessage only on
// ResolveUpstreamError.
type Resolution struct {
	Outcome         ResolveOutcome
	Candidate       *registry.Candidate
	Balances        *registry.Balances
	CandidateCount  int
	UpstreamStatus  int
	UpstreamMessage string
}
