package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

func heldRecord(id string) *lead.OutreachRecord {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &lead.OutreachRecord{
		ID:          id,
		PostRef:     "post-" + id,
		Company:     lead.Company{Name: "Acme", Domain: "acme.io", CanonicalKey: "acme"},
		Contact:     lead.Contact{FullName: "Jane Doe", Title: "CTO", CompanyKey: "acme"},
		ChosenEmail: &lead.EmailCandidate{Address: "jane@acme.io", GenerationRule: "first", VerificationState: lead.Unknown},
		Ambiguous:   true,
		Status:      lead.OutreachHeld,
		LastError:   lead.ErrAmbiguousVerification.Error(),
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		choice     string
		done       bool
		wantStatus lead.OutreachStatus
		wantLedger lead.State
	}{
		{choice: PromptApprove, done: true, wantStatus: lead.OutreachApproved},
		{choice: PromptReject, done: true, wantStatus: lead.OutreachDiscarded, wantLedger: lead.StateFailed},
		{choice: PromptSkip, wantStatus: lead.OutreachHeld},
		{choice: PromptBack, wantStatus: lead.OutreachHeld},
	}

	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			st, err := store.Open(":memory:")
			if err != nil {
				t.Fatalf("opening store: %v", err)
			}
			defer st.Close()

			rec := heldRecord("1")
			if err := st.SaveOutreach(ctx, rec); err != nil {
				t.Fatalf("save: %v", err)
			}

			done, err := decide(ctx, st, rec, tt.choice, now)
			if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if done != tt.done {
				t.Fatalf("expected done=%v, got %v", tt.done, done)
			}

			stored, err := st.Outreach(ctx, "1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if stored.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, stored.Status)
			}
			if tt.choice == PromptApprove && (!stored.Approved || stored.LastError != "") {
				t.Fatalf("approval must be recorded: %+v", stored)
			}

			entry, err := st.LedgerEntry(ctx, rec.PostRef)
			if tt.wantLedger == "" {
				if err == nil {
					t.Fatalf("no ledger entry expected, got %+v", entry)
				}
				return
			}
			if err != nil {
				t.Fatalf("ledger: %v", err)
			}
			if entry.State != tt.wantLedger || entry.Reason != "discarded in review" || entry.RunID != reviewRunID {
				t.Fatalf("unexpected ledger entry %+v", entry)
			}
		})
	}
}

func TestDecideRejectsUnknownAction(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	if _, err := decide(context.Background(), st, heldRecord("1"), "Maybe", time.Now()); err == nil {
		t.Fatalf("expected an error for an unknown action")
	}
}

func TestDescribe(t *testing.T) {
	rec := heldRecord("1")
	if got := describe(rec); got != "Acme <jane@acme.io> Jane Doe" {
		t.Fatalf("unexpected description %q", got)
	}
	rec.ChosenEmail = nil
	if got := describe(rec); got != "Acme <> Jane Doe" {
		t.Fatalf("unexpected description %q", got)
	}
}
