// Package quote manages up-front price quotes for procedures.
package quote

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft    = "draft"
	StatusIssued   = "issued"
	StatusAccepted = "accepted"
	StatusExpired  = "expired"
)

var validStatuses = map[string]bool{
	StatusDraft: true, StatusIssued: true, StatusAccepted: true, StatusExpired: true,
}

var validTransitions = map[string][]string{
	StatusDraft:  {StatusIssued},
	StatusIssued: {StatusAccepted, StatusExpired},
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

type Quote struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	ProcedureCode   string          `db:"procedure_code" json:"procedure_code"`
	Description     string          `db:"description" json:"description,omitempty"`
	EstimatedAmount decimal.Decimal `db:"estimated_amount" json:"estimated_amount"`
	PatientPortion  decimal.Decimal `db:"patient_portion" json:"patient_portion"`
	Status          string          `db:"status" json:"status"`
	ValidUntil      *time.Time      `db:"valid_until" json:"valid_until,omitempty"`
	IssuedAt        *time.Time      `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the quote's validity window has passed.
func (q *Quote) Expired(now time.Time) bool {
	return q.ValidUntil != nil && now.After(*q.ValidUntil)
}
