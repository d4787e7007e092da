package lead

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyIsMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewCandidate("jane.doe@acme.io", "first.last")

	if err := c.Verify(Deliverable, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.VerifiedAt != now {
		t.Fatalf("expected verified at %v, got %v", now, c.VerifiedAt)
	}

	for _, next := range []VerificationState{Unverified, Undeliverable, Unknown, Deliverable} {
		if err := c.Verify(next, now.Add(time.Minute)); !errors.Is(err, ErrVerificationFinal) {
			t.Fatalf("expected ErrVerificationFinal for %s, got %v", next, err)
		}
	}
	if c.VerificationState != Deliverable {
		t.Fatalf("state changed to %s", c.VerificationState)
	}
}

func TestVerifyRejectsUnverifiedTarget(t *testing.T) {
	c := NewCandidate("a@b.io", "first")
	if err := c.Verify(Unverified, time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if c.VerificationState != Unverified {
		t.Fatalf("state changed to %s", c.VerificationState)
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in      string
		want    Source
		wantErr bool
	}{
		{in: "social", want: SourceSocial},
		{in: " Professional-Network ", want: SourceProfessionalNetwork},
		{in: "news-site", want: SourceNewsSite},
		{in: "code-host", want: SourceCodeHost},
		{in: "fax", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseSource(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedInput) {
				t.Fatalf("%q: expected malformed input, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %q, %v", tt.in, got, err)
		}
	}
}

func TestPostIDStable(t *testing.T) {
	a := PostID(SourceSocial, "https://x.com/1", "text one")
	b := PostID(SourceSocial, "https://x.com/1", "text two")
	if a != b {
		t.Fatalf("expected url to drive the id")
	}
	if PostID(SourceNewsSite, "https://x.com/1", "") == a {
		t.Fatalf("expected source to be part of the id")
	}
	if PostID(SourceSocial, "", "hello") == PostID(SourceSocial, "", "world") {
		t.Fatalf("expected text fallback to differ")
	}
}

func TestContactFirstLast(t *testing.T) {
	first, last := Contact{FullName: "Jane Q Doe"}.FirstLast()
	if first != "Jane" || last != "Doe" {
		t.Fatalf("got %q %q", first, last)
	}
	first, last = Contact{FullName: "Cher"}.FirstLast()
	if first != "Cher" || last != "" {
		t.Fatalf("got %q %q", first, last)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateRejected, StateDuplicate, StateUnresolved, StateSent, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateResolving, StateSkipped, StateHeld, StateDrafted} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
