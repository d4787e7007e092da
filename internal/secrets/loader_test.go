package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "token")
	if err := os.WriteFile(file, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("OUTPILOT_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr bool
		unset   bool
	}{
		{name: "file wins", src: Source{File: file, Value: "inline", Env: "OUTPILOT_TEST_SECRET"}, want: "from-file"},
		{name: "inline before env", src: Source{Value: " inline ", Env: "OUTPILOT_TEST_SECRET"}, want: "inline"},
		{name: "env fallback", src: Source{Env: "OUTPILOT_TEST_SECRET"}, want: "from-env"},
		{name: "missing file", src: Source{File: filepath.Join(dir, "nope")}, wantErr: true},
		{name: "empty file", src: Source{File: empty}, wantErr: true},
		{name: "unset env", src: Source{Env: "OUTPILOT_TEST_UNSET"}, wantErr: true, unset: true},
		{name: "nothing", src: Source{Name: "api key"}, wantErr: true, unset: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if errors.Is(err, ErrNotConfigured) != tt.unset {
					t.Fatalf("ErrNotConfigured = %v for %v", !tt.unset, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "token"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret, got %q, %v", got, err)
	}

	if _, err := Optional(Source{File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected a broken file reference to fail")
	}
}
