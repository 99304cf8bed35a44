// Package auditevent records an append-only trail of portal activity:
// verification attempts, statement views, status transitions, and registry
// lookups. Events are written best-effort; a failed audit write must never
// fail the operation that produced it.
package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded by the portal.
const (
	KindVerificationSuccess  = "verification.success"
	KindVerificationMismatch = "verification.mismatch"
	KindVerificationError    = "verification.error"
	KindStatementViewed      = "statement.viewed"
	KindStatementSent        = "statement.sent"
	KindStatementRejected    = "statement.rejected"
	KindBalanceResolved      = "balance.resolved"
	KindBalanceFailed        = "balance.failed"
	KindPaymentReceived      = "payment.received"
	KindReferralReceived     = "referral.received"
	KindQuoteIssued          = "quote.issued"
)

var validKinds = map[string]bool{
	KindVerificationSuccess:  true,
	KindVerificationMismatch: true,
	KindVerificationError:    true,
	KindStatementViewed:      true,
	KindStatementSent:        true,
	KindStatementRejected:    true,
	KindBalanceResolved:      true,
	KindBalanceFailed:        true,
	KindPaymentReceived:      true,
	KindReferralReceived:     true,
	KindQuoteIssued:          true,
}

// ValidKind reports whether kind is a recognized event kind.
func ValidKind(kind string) bool {
	return validKinds[kind]
}

// AuditEvent is one recorded portal event.
type AuditEvent struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	Kind         string         `db:"kind" json:"kind"`
	SubjectType  string         `db:"subject_type" json:"subject_type"`
	SubjectID    *uuid.UUID     `db:"subject_id" json:"subject_id,omitempty"`
	StatusBefore string         `db:"status_before" json:"status_before,omitempty"`
	StatusAfter  string         `db:"status_after" json:"status_after,omitempty"`
	ActorID      string         `db:"actor_id" json:"actor_id,omitempty"`
	RemoteAddr   string         `db:"remote_addr" json:"remote_addr,omitempty"`
	UserAgent    string         `db:"user_agent" json:"user_agent,omitempty"`
	Metadata     map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
