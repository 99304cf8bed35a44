package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/careportal/portal/internal/domain/payment"
	"github.com/careportal/portal/internal/domain/statement"
)

func TestPaymentWebhookIdempotency(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)

	p := createTestPatient(t, ctx, "Omar", "Reyes", time.Date(1992, 7, 4, 0, 0, 0, 0, time.UTC))
	stmtSvc := newStatementService()

	st := &statement.Statement{PatientID: p.ID, AmountDue: decimal.RequireFromString("310.00")}
	if err := stmtSvc.CreateStatement(ctx, st); err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	if _, err := stmtSvc.SendStatement(ctx, st.ID); err != nil {
		t.Fatalf("SendStatement: %v", err)
	}

	repo := payment.NewPaymentRepoPG(globalDB.Pool)
	paySvc := payment.NewService(repo, stmtSvc)

	evt := &payment.ProcessorEvent{
		EventID:       "evt-int-1",
		TransactionID: "txn-int-1",
		StatementID:   st.ID,
		Amount:        decimal.RequireFromString("310.00"),
		Method:        "card",
		Status:        payment.StatusCompleted,
	}

	first, applied, err := paySvc.ProcessEvent(ctx, evt)
	if err != nil {
		t.Fatalf("first ProcessEvent: %v", err)
	}
	if !applied {
		t.Fatal("expected first event to be applied")
	}

	paid, err := stmtSvc.GetStatement(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if paid.Status != statement.StatusPaid {
		t.Errorf("statement status = %s, want paid", paid.Status)
	}

	second, applied, err := paySvc.ProcessEvent(ctx, evt)
	if err != nil {
		t.Fatalf("replayed ProcessEvent: %v", err)
	}
	if applied {
		t.Error("replayed event must be a no-op")
	}
	if second.ID != first.ID {
		t.Errorf("replay returned %s, want original %s", second.ID, first.ID)
	}

	payments, err := paySvc.ListByStatement(ctx, st.ID)
	if err != nil {
		t.Fatalf("ListByStatement: %v", err)
	}
	if len(payments) != 1 {
		t.Errorf("stored payments = %d, want 1", len(payments))
	}
}
