package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/source"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	posts := filepath.Join(dir, "posts.jsonl")
	content := `{"text":"Lovely weather at the park today, had lunch with old friends.","url":"https://example.com/p/1","posted_at":"2026-03-01T10:00:00Z"}
`
	if err := os.WriteFile(posts, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := defaultConfig()
	cfg.Store.Path = filepath.Join(dir, "outpilot.db")
	cfg.Dedup.Backend = DedupMemory
	cfg.Run.DryRun = true
	cfg.Sources = []source.Config{{Name: "local", Type: source.TypeFile, Kind: "social", Path: posts}}
	cfg.Metrics.Textfile = filepath.Join(dir, "outpilot.prom")
	return &cfg
}

func TestApplicationRunsOnce(t *testing.T) {
	cfg := testConfig(t)

	app, err := newApplication(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	defer app.Close()

	summary, err := app.runOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched != 1 || summary.Count(lead.StateRejected) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), `outpilot_item_transitions_total{state="rejected"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}

	// the cursor moved, the same post is not fetched twice
	again, err := app.runOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Count(lead.StateRejected) != 0 {
		t.Fatalf("post processed twice: %+v", again.Counts)
	}
}

func TestApplicationRedisDedup(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Dedup.Backend = DedupRedis
	cfg.Dedup.Redis.Addr = mr.Addr()

	app, err := newApplication(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	mr.Close()
	cfg = testConfig(t)
	cfg.Dedup.Backend = DedupRedis
	cfg.Dedup.Redis.Addr = mr.Addr()
	if _, err := newApplication(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected an unreachable redis to fail")
	}
}

func TestApplicationNeedsCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := testConfig(t)
	cfg.Draft.Provider = DraftGemini
	if _, err := newApplication(context.Background(), cfg, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected a missing gemini key error, got %v", err)
	}

	cfg = testConfig(t)
	cfg.Run.DryRun = false
	if _, err := newApplication(context.Background(), cfg, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "smtp host") {
		t.Fatalf("expected a missing smtp host error, got %v", err)
	}
}
