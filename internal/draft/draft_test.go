package draft

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject string
		body    string
		err     error
	}{
		{name: "subject line", raw: "Subject: \"Hello Acme\"\n\nHi Jane,\nshort note.", subject: "Hello Acme", body: "Hi Jane,\nshort note."},
		{name: "lower case", raw: "subject: hi\r\nbody", subject: "hi", body: "body"},
		{name: "default subject", raw: "Hi Jane", subject: DefaultSubject, body: "Hi Jane"},
		{name: "empty body", raw: "Subject: only", err: ErrRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage(tt.raw)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if tt.err != nil {
				return
			}
			if msg.Subject != tt.subject || msg.Body != tt.body {
				t.Fatalf("got %+v", msg)
			}
		})
	}
}

func TestFundingDetails(t *testing.T) {
	tests := map[string]string{
		"Acme raises $12M Series A to build agents": "raised $12M Series A",
		"We closed our seed round":                  "closed a seed round",
		"Globex secured 30 million from investors":  "raised 30 million",
		"Hiring ML engineers":                       "",
	}
	for in, want := range tests {
		if got := FundingDetails(in); got != want {
			t.Fatalf("FundingDetails(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewContextHasNoPostText(t *testing.T) {
	rec := &lead.OutreachRecord{
		PostRef: "p1",
		Kind:    lead.KindHiring,
		Role:    "ML Engineer",
		Company: lead.Company{Name: "Acme", Domain: "acme.com", CanonicalKey: "acme"},
		Contact: lead.Contact{FullName: "Jane Doe", Title: "Recruiter"},
		Signals: []string{"hiring", "ai-role"},
	}
	c := NewContext(rec, Profile{Name: "Sam"})
	if c.FirstName != "Jane" || c.Company != "Acme" || c.Role != "ML Engineer" || c.Sender.Name != "Sam" {
		t.Fatalf("unexpected context %+v", c)
	}

	rec.Kind = ""
	if NewContext(rec, Profile{}).Kind != lead.KindHiring {
		t.Fatalf("empty kind must default to hiring")
	}
}

func TestTemplateDrafter(t *testing.T) {
	tmpl, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := TemplateDrafter{Templates: tmpl}
	base := Context{Company: "Acme", ContactName: "Jane Doe", FirstName: "Jane", Role: "ML Engineer", Sender: Profile{Name: "Sam Lee", Role: "an ML engineer", Skills: "PyTorch"}}

	tests := []struct {
		kind    lead.Kind
		subject string
		body    string
	}{
		{kind: lead.KindHiring, subject: "ML Engineer role at Acme", body: "is hiring for ML Engineer"},
		{kind: lead.KindFunding, subject: "Congrats on the news, Acme", body: "raised $5M"},
		{kind: lead.KindBoth, subject: "ML Engineer role at Acme", body: "raised $5M and is hiring"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := base
			c.Kind = tt.kind
			c.Funding = "raised $5M"
			msg, err := d.Draft(context.Background(), c)
			if err != nil {
				t.Fatalf("draft: %v", err)
			}
			if msg.Subject != tt.subject {
				t.Fatalf("unexpected subject %q", msg.Subject)
			}
			if !strings.Contains(msg.Body, tt.body) || !strings.HasPrefix(msg.Body, "Hi Jane,") {
				t.Fatalf("unexpected body %q", msg.Body)
			}
			if !strings.HasSuffix(msg.Body, "Sam Lee") {
				t.Fatalf("missing signature: %q", msg.Body)
			}
		})
	}
}

func TestPromptPerKind(t *testing.T) {
	tmpl, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	system, prompt, err := tmpl.Prompt(Context{Company: "Acme", ContactName: "Jane Doe", Kind: lead.KindFunding, Sender: Profile{GitHub: "https://github.test/sam"}})
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if !strings.Contains(system, "JSON") {
		t.Fatalf("system prompt must ask for JSON: %q", system)
	}
	if !strings.Contains(prompt, "Acme just secured new funding") || !strings.Contains(prompt, "- GitHub: https://github.test/sam") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if strings.Contains(prompt, "Resume:") {
		t.Fatalf("empty links must be omitted: %q", prompt)
	}
}

func TestLoadTemplatesOverride(t *testing.T) {
	dir := t.TempDir()
	custom := `{{define "hiring"}}Subject: custom
Body for {{.Company}}{{end}}{{define "funding"}}x{{end}}{{define "both"}}y{{end}}`
	if err := os.WriteFile(filepath.Join(dir, "email.tmpl"), []byte(custom), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tmpl, err := LoadTemplates(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	msg, err := TemplateDrafter{Templates: tmpl}.Draft(context.Background(), Context{Company: "Acme", Kind: lead.KindHiring})
	if err != nil || msg.Subject != "custom" || msg.Body != "Body for Acme" {
		t.Fatalf("override not used: %+v %v", msg, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "prompt.tmpl"), []byte(`{{define "hiring"}}x{{end}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTemplates(dir); err == nil {
		t.Fatalf("expected error for a template missing kind blocks")
	}
}
