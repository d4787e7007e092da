package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/dedup"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "outpilot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestPingClosedStoreIsFatal(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if err := s.Ping(context.Background()); !errors.Is(err, lead.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestLeadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	l := &Lead{
		Post: lead.Post{
			ID: "p1", Source: lead.SourceSocial, RawText: "Hiring ML engineer at Acme, remote",
			PostedAt: t0, ObservedAt: t0.Add(time.Minute), SourceURL: "https://x.com/1",
		},
		Result:      lead.ClassificationResult{Accepted: true, Score: 1, MatchedSignals: []string{"hiring", "tech"}, Kind: lead.KindHiring},
		CompanyName: "Acme",
		CompanyKey:  "acme",
		Role:        "ML Engineer",
		Fingerprint: "fp",
	}
	if err := s.SaveLead(ctx, l); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Lead(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, l) {
		t.Fatalf("got %+v, want %+v", got, l)
	}

	if _, err := s.Lead(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOutreachQueries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	records := []*lead.OutreachRecord{
		{ID: "o1", PostRef: "p1", Company: lead.Company{CanonicalKey: "acme"}, Status: lead.OutreachSent, SentAt: t0.Add(2 * time.Hour), CreatedAt: t0},
		{ID: "o2", PostRef: "p2", Company: lead.Company{CanonicalKey: "acme"}, Status: lead.OutreachSent, SentAt: t0.Add(-48 * time.Hour), CreatedAt: t0.Add(time.Minute)},
		{ID: "o3", PostRef: "p3", Company: lead.Company{CanonicalKey: "globex"}, Status: lead.OutreachSkipped, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "o4", PostRef: "p4", Company: lead.Company{CanonicalKey: "initech"}, Status: lead.OutreachHeld, CreatedAt: t0.Add(3 * time.Minute)},
	}
	for _, r := range records {
		if err := s.SaveOutreach(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	n, err := s.CountSentSince(ctx, t0)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 sent since t0, got %d, %v", n, err)
	}

	last, ok, err := s.LastSentAt(ctx, "acme")
	if err != nil || !ok || !last.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("unexpected last sent %v %v %v", last, ok, err)
	}
	if _, ok, _ := s.LastSentAt(ctx, "globex"); ok {
		t.Fatalf("globex was never emailed")
	}

	pending, err := s.OutreachByStatus(ctx, lead.OutreachSkipped, lead.OutreachHeld)
	if err != nil || len(pending) != 2 || pending[0].ID != "o3" || pending[1].ID != "o4" {
		t.Fatalf("unexpected pending records %+v, %v", pending, err)
	}

	records[2].Status = lead.OutreachSent
	records[2].SentAt = t0.Add(3 * time.Hour)
	if err := s.SaveOutreach(ctx, records[2]); err != nil {
		t.Fatal(err)
	}
	got, err := s.OutreachForPost(ctx, "p3")
	if err != nil || got.Status != lead.OutreachSent {
		t.Fatalf("expected updated record, got %+v, %v", got, err)
	}
}

func TestLedgerTransitions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	steps := []lead.LedgerEntry{
		{ItemID: "p1", RunID: "r1", State: lead.StateIngested},
		{ItemID: "p1", RunID: "r1", State: lead.StateClassified, CompanyKey: "acme"},
		{ItemID: "p1", RunID: "r1", State: lead.StateResolving},
		{ItemID: "p1", RunID: "r2", State: lead.StateUnresolved, Reason: string(lead.Timeout)},
	}
	for i, e := range steps {
		e.UpdatedAt = t0.Add(time.Duration(i) * time.Second)
		if err := s.Transition(ctx, e); err != nil {
			t.Fatalf("transition %d: %v", i, err)
		}
	}

	cur, err := s.LedgerEntry(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if cur.State != lead.StateUnresolved || cur.Reason != "timeout" || cur.RunID != "r2" || cur.CompanyKey != "acme" {
		t.Fatalf("unexpected entry %+v", cur)
	}

	history, err := s.LedgerHistory(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	want := []lead.State{lead.StateIngested, lead.StateClassified, lead.StateResolving, lead.StateUnresolved}
	if !reflect.DeepEqual(history, want) {
		t.Fatalf("history %v, want %v", history, want)
	}

	entries, err := s.LedgerByState(ctx, lead.StateUnresolved, lead.StateResolving)
	if err != nil || len(entries) != 1 {
		t.Fatalf("unexpected entries %+v, %v", entries, err)
	}
}

func TestStoreBacksDedupEngine(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e := dedup.New(s, 7*24*time.Hour, 0, nil)

	id := dedup.IdentityFor("acme", "ML Engineer", lead.KindHiring, "")
	if v, err := e.CheckAndRecord(ctx, id, t0); err != nil || v.Duplicate {
		t.Fatalf("unexpected verdict %+v, %v", v, err)
	}
	if v, _ := e.CheckAndRecord(ctx, id, t0.Add(time.Hour)); v.Reason != dedup.ReasonFingerprint {
		t.Fatalf("expected fingerprint duplicate, got %+v", v)
	}

	other := dedup.IdentityFor("acme", "Data Scientist", lead.KindHiring, "")
	if v, _ := e.CheckAndRecord(ctx, other, t0.Add(48*time.Hour)); v.Reason != dedup.ReasonCompanyWindow {
		t.Fatalf("expected company window duplicate, got %+v", v)
	}

	if err := e.Prune(ctx, t0.Add(30*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.LastSeen(ctx, "acme"); ok {
		t.Fatalf("expected window to be pruned")
	}
	if seen, _ := s.HasFingerprint(ctx, id.Fingerprint()); !seen {
		t.Fatalf("fingerprint must survive pruning")
	}
}

func TestCompanyAndContactCache(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.SaveCompany(ctx, lead.Company{Name: "Acme", CanonicalKey: "acme", Domain: "acme.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCompany(ctx, lead.Company{Name: "ACME Inc", CanonicalKey: "acme"}); err != nil {
		t.Fatal(err)
	}
	c, err := s.Company(ctx, "acme")
	if err != nil || c.Domain != "acme.com" || c.Name != "ACME Inc" {
		t.Fatalf("unexpected company %+v, %v", c, err)
	}

	jane := lead.Contact{FullName: "Jane Doe", Title: "CTO", CompanyKey: "acme", SourceOfDiscovery: lead.DiscoveryDirectorySearch}
	if err := s.SaveContact(ctx, jane, nil); err != nil {
		t.Fatal(err)
	}
	candidate := lead.NewCandidate("jane.doe@acme.com", "first.last")
	if err := candidate.Verify(lead.Deliverable, t0); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveContact(ctx, lead.Contact{FullName: "Jane Doe", CompanyKey: "acme", SourceOfDiscovery: lead.DiscoveryDirectorySearch}, []*lead.EmailCandidate{candidate}); err != nil {
		t.Fatal(err)
	}

	contacts, emails, err := s.Contacts(ctx, "acme")
	if err != nil || len(contacts) != 1 {
		t.Fatalf("unexpected contacts %+v, %v", contacts, err)
	}
	if contacts[0].Title != "CTO" {
		t.Fatalf("title should survive an update without one: %+v", contacts[0])
	}
	if got := emails["Jane Doe"]; len(got) != 1 || got[0].VerificationState != lead.Deliverable {
		t.Fatalf("unexpected emails %+v", got)
	}
}

func TestCursorOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, ok, _ := s.Cursor(ctx, "feed"); ok {
		t.Fatalf("expected no cursor")
	}
	if err := s.SetCursor(ctx, "feed", t0); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCursor(ctx, "feed", t0.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Cursor(ctx, "feed")
	if err != nil || !ok || !got.Equal(t0) {
		t.Fatalf("unexpected cursor %v %v %v", got, ok, err)
	}
}
