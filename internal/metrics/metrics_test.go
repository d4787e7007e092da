package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Transition(lead.StateSent)
	m.Transition(lead.StateSent)
	m.Transition(lead.StateRejected)
	m.ExternalCall("smtp", nil)
	m.ExternalCall("smtp", fmt.Errorf("probe: %w", context.DeadlineExceeded))
	m.ExternalCall("dns", errors.New("boom"))

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected 2 sent transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExternalCalls.WithLabelValues("smtp", "timeout")); got != 1 {
		t.Fatalf("expected 1 smtp timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExternalCalls.WithLabelValues("dns", "error")); got != 1 {
		t.Fatalf("expected 1 dns error, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Transition(lead.StateSent)
	m.ExternalCall("dns", nil)
	m.RunFinished(time.Now(), time.Now())
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Transition(lead.StateHeld)
	started := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	m.RunFinished(started, started.Add(90*time.Second))

	path := filepath.Join(t.TempDir(), "outpilot.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		`outpilot_item_transitions_total{state="held"} 1`,
		"outpilot_run_duration_seconds 90",
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("textfile misses %q:\n%s", want, data)
		}
	}
}
