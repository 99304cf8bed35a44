// Package statement implements patient billing statements and the
// date-of-birth verification flow that gates public access to them. A
// statement is reachable from outside only through its short access code,
// and only after the caller proves the patient's date of birth.
package statement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Statement statuses.
const (
	StatusDraft    = "draft"
	StatusSent     = "sent"
	StatusRejected = "rejected"
	StatusPaid     = "paid"
)

var validStatuses = map[string]bool{
	StatusDraft: true, StatusSent: true, StatusRejected: true, StatusPaid: true,
}

// validTransitions holds the allowed status moves. Draft statements are
// sent or discarded; sent statements are rejected or paid.
var validTransitions = map[string][]string{
	StatusDraft: {StatusSent},
	StatusSent:  {StatusRejected, StatusPaid},
}

// CanTransition reports whether from → to is an allowed status move.
func CanTransition(from, to string) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Statement is one billing statement issued to a patient.
type Statement struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	ShortCode   string          `db:"short_code" json:"short_code,omitempty"`
	Status      string          `db:"status" json:"status"`
	Description string          `db:"description" json:"description,omitempty"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountDue   decimal.Decimal `db:"amount_due" json:"amount_due"`
	PeriodStart *time.Time      `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time      `db:"period_end" json:"period_end,omitempty"`

	// View tracking. FirstViewedAt is set once, on the first successful
	// verification; ViewCount is incremented server-side on every one.
	FirstViewedAt *time.Time `db:"first_viewed_at" json:"first_viewed_at,omitempty"`
	LastViewedAt  *time.Time `db:"last_viewed_at" json:"last_viewed_at,omitempty"`
	ViewCount     int        `db:"view_count" json:"view_count"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// VerifyOutcome classifies the result of a date-of-birth verification
// attempt. The set is closed; handlers map each value to exactly one HTTP
// status and reason string.
type VerifyOutcome int

const (
	// VerifyInvalidCode means no statement carries the short code.
	VerifyInvalidCode VerifyOutcome = iota
	// VerifyUnavailable means the statement exists but is not in the sent
	// status, so it cannot be viewed.
	VerifyUnavailable
	// VerifyInvalidFormat means the claimed date of birth did not parse.
	VerifyInvalidFormat
	// VerifyNotAvailable means the patient record has no birth date on
	// file, so verification can never succeed for this statement.
	VerifyNotAvailable
	// VerifyMismatch means the claimed date of birth did not equal the one
	// on file.
	VerifyMismatch
	// VerifySuccess means the claimed date of birth matched.
	VerifySuccess
)

// Reason returns the machine-readable reason string for the outcome.
func (o VerifyOutcome) Reason() string {
	switch o {
	case VerifyInvalidCode:
		return "invalid_code"
	case VerifyUnavailable:
		return "unavailable"
	case VerifyInvalidFormat:
		return "invalid_format"
	case VerifyNotAvailable:
		return "verification_unavailable"
	case VerifyMismatch:
		return "mismatch"
	case VerifySuccess:
		return "success"
	default:
		return "unknown"
	}
}

// VerifyResult carries the outcome of a verification attempt. Statement is
// populated only on VerifySuccess.
type VerifyResult struct {
	Outcome   VerifyOutcome
	Statement *Statement
}
