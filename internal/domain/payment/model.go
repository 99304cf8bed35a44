// Package payment records statement payments reported by the payment
// processor. Payments arrive on a signed webhook; each processor event is
// applied at most once.
package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusFailed    = "failed"
)

var validStatuses = map[string]bool{
	StatusCompleted: true, StatusRefunded: true, StatusFailed: true,
}

var validMethods = map[string]bool{
	"card": true, "ach": true, "check": true, "cash": true,
}

type Payment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	StatementID     uuid.UUID       `db:"statement_id" json:"statement_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Method          string          `db:"method" json:"method"`
	Status          string          `db:"status" json:"status"`
	ExternalEventID string          `db:"external_event_id" json:"external_event_id"`
	ExternalTxnID   string          `db:"external_txn_id" json:"external_txn_id,omitempty"`
	ReceivedAt      time.Time       `db:"received_at" json:"received_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
