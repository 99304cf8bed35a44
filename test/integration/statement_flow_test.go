package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/careportal/portal/internal/domain/patient"
	"github.com/careportal/portal/internal/domain/statement"
)

func newStatementService() *statement.Service {
	return statement.NewService(
		statement.NewStatementRepoPG(globalDB.Pool),
		patient.NewPatientRepoPG(globalDB.Pool),
	)
}

func TestStatementVerifyFlow(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)

	p := createTestPatient(t, ctx, "Maria", "Santos", time.Date(1985, 3, 22, 0, 0, 0, 0, time.UTC))
	svc := newStatementService()

	st := &statement.Statement{
		PatientID:   p.ID,
		Description: "March visit",
		TotalAmount: decimal.RequireFromString("240.00"),
		AmountDue:   decimal.RequireFromString("120.00"),
	}
	if err := svc.CreateStatement(ctx, st); err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}

	t.Run("DraftIsNotVerifiable", func(t *testing.T) {
		// Drafts have no code yet; verification must miss entirely.
		res, err := svc.Verify(ctx, "NOSUCHCD", "03/22/1985")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Outcome != statement.VerifyInvalidCode {
			t.Errorf("outcome = %v, want VerifyInvalidCode", res.Outcome)
		}
	})

	sent, err := svc.SendStatement(ctx, st.ID)
	if err != nil {
		t.Fatalf("SendStatement: %v", err)
	}
	if sent.ShortCode == "" {
		t.Fatal("send did not assign a short code")
	}

	t.Run("MismatchedDOB", func(t *testing.T) {
		res, err := svc.Verify(ctx, sent.ShortCode, "01/01/1990")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Outcome != statement.VerifyMismatch {
			t.Errorf("outcome = %v, want VerifyMismatch", res.Outcome)
		}
	})

	t.Run("SuccessRecordsView", func(t *testing.T) {
		res, err := svc.Verify(ctx, sent.ShortCode, "03/22/1985")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Outcome != statement.VerifySuccess {
			t.Fatalf("outcome = %v, want VerifySuccess", res.Outcome)
		}
		if res.Statement.ViewCount != 1 {
			t.Errorf("view count = %d, want 1", res.Statement.ViewCount)
		}
		if res.Statement.FirstViewedAt == nil {
			t.Error("first_viewed_at not set")
		}
	})

	t.Run("SecondViewPreservesFirstViewedAt", func(t *testing.T) {
		first, err := svc.GetStatement(ctx, st.ID)
		if err != nil {
			t.Fatalf("GetStatement: %v", err)
		}

		res, err := svc.Verify(ctx, sent.ShortCode, "1985-03-22")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Outcome != statement.VerifySuccess {
			t.Fatalf("outcome = %v, want VerifySuccess", res.Outcome)
		}
		if res.Statement.ViewCount != 2 {
			t.Errorf("view count = %d, want 2", res.Statement.ViewCount)
		}

		after, err := svc.GetStatement(ctx, st.ID)
		if err != nil {
			t.Fatalf("GetStatement: %v", err)
		}
		if !after.FirstViewedAt.Equal(*first.FirstViewedAt) {
			t.Errorf("first_viewed_at changed: %v -> %v", first.FirstViewedAt, after.FirstViewedAt)
		}
		if !after.LastViewedAt.After(*first.FirstViewedAt) && !after.LastViewedAt.Equal(*first.FirstViewedAt) {
			t.Errorf("last_viewed_at %v not advanced past %v", after.LastViewedAt, first.FirstViewedAt)
		}
	})

	t.Run("RejectedWithdrawsAccess", func(t *testing.T) {
		if _, err := svc.RejectStatement(ctx, st.ID); err != nil {
			t.Fatalf("RejectStatement: %v", err)
		}
		res, err := svc.Verify(ctx, sent.ShortCode, "03/22/1985")
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if res.Outcome != statement.VerifyUnavailable {
			t.Errorf("outcome = %v, want VerifyUnavailable", res.Outcome)
		}
	})
}

func TestStatementShortCodeIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)

	p := createTestPatient(t, ctx, "Dan", "Ives", time.Date(1978, 11, 2, 0, 0, 0, 0, time.UTC))
	svc := newStatementService()

	st := &statement.Statement{PatientID: p.ID, AmountDue: decimal.RequireFromString("50.00")}
	if err := svc.CreateStatement(ctx, st); err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	sent, err := svc.SendStatement(ctx, st.ID)
	if err != nil {
		t.Fatalf("SendStatement: %v", err)
	}

	lowered := make([]byte, len(sent.ShortCode))
	for i := range sent.ShortCode {
		c := sent.ShortCode[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lowered[i] = c
	}

	res, err := svc.Verify(ctx, string(lowered), "11/02/1978")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Outcome != statement.VerifyInvalidCode {
		t.Errorf("lowercased code outcome = %v, want VerifyInvalidCode", res.Outcome)
	}
}

func TestStatementDraftsCoexistWithoutCodes(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)

	p := createTestPatient(t, ctx, "Lena", "Ortiz", time.Date(1992, 7, 14, 0, 0, 0, 0, time.UTC))
	svc := newStatementService()

	first := &statement.Statement{PatientID: p.ID, AmountDue: decimal.RequireFromString("80.00")}
	if err := svc.CreateStatement(ctx, first); err != nil {
		t.Fatalf("CreateStatement first draft: %v", err)
	}
	second := &statement.Statement{PatientID: p.ID, AmountDue: decimal.RequireFromString("35.00")}
	if err := svc.CreateStatement(ctx, second); err != nil {
		t.Fatalf("CreateStatement second draft: %v", err)
	}

	items, total, err := svc.ListByPatient(ctx, p.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("got %d statements (total %d), want 2", len(items), total)
	}
	for _, st := range items {
		if st.ShortCode != "" {
			t.Errorf("draft %s has short code %q, want none", st.ID, st.ShortCode)
		}
	}

	// Sending assigns distinct codes; both must persist.
	sentFirst, err := svc.SendStatement(ctx, first.ID)
	if err != nil {
		t.Fatalf("SendStatement first: %v", err)
	}
	sentSecond, err := svc.SendStatement(ctx, second.ID)
	if err != nil {
		t.Fatalf("SendStatement second: %v", err)
	}
	if sentFirst.ShortCode == sentSecond.ShortCode {
		t.Errorf("both statements got short code %q", sentFirst.ShortCode)
	}
}
