package draft

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

//go:embed templates
var builtin embed.FS

// Templates renders kind-specific emails and prompts. Files named
// email.tmpl, prompt.tmpl and system.md in dir replace the built-in ones.
type Templates struct {
	email  *template.Template
	prompt *template.Template
	system string
}

func LoadTemplates(dir string) (*Templates, error) {
	read := func(name string) (string, error) {
		if dir != "" {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return string(data), nil
			}
			if !os.IsNotExist(err) {
				return "", err
			}
		}
		data, err := builtin.ReadFile("templates/" + name)
		return string(data), err
	}

	t := &Templates{}
	for _, tpl := range []struct {
		name string
		dst  **template.Template
	}{
		{name: "email.tmpl", dst: &t.email},
		{name: "prompt.tmpl", dst: &t.prompt},
	} {
		text, err := read(tpl.name)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", tpl.name, err)
		}
		tmpl, err := template.New(tpl.name).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", tpl.name, err)
		}
		for _, kind := range []lead.Kind{lead.KindHiring, lead.KindFunding, lead.KindBoth} {
			if tmpl.Lookup(string(kind)) == nil {
				return nil, fmt.Errorf("template %s has no %q block", tpl.name, kind)
			}
		}
		*tpl.dst = tmpl
	}

	system, err := read("system.md")
	if err != nil {
		return nil, fmt.Errorf("read system prompt: %w", err)
	}
	t.system = strings.TrimSpace(system)
	return t, nil
}

func block(kind lead.Kind) string {
	switch kind {
	case lead.KindFunding, lead.KindBoth:
		return string(kind)
	}
	return string(lead.KindHiring)
}

// Email renders the email for the context's kind.
func (t *Templates) Email(c Context) (string, error) {
	var b bytes.Buffer
	if err := t.email.ExecuteTemplate(&b, block(c.Kind), c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Prompt returns the system instruction and the user prompt for a text service.
func (t *Templates) Prompt(c Context) (string, string, error) {
	var b bytes.Buffer
	if err := t.prompt.ExecuteTemplate(&b, block(c.Kind), c); err != nil {
		return "", "", err
	}
	return t.system, strings.TrimSpace(b.String()), nil
}

// TemplateDrafter fills the email templates locally, without a text service.
type TemplateDrafter struct {
	Templates *Templates
}

func (d TemplateDrafter) Draft(ctx context.Context, c Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	raw, err := d.Templates.Email(c)
	if err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}
	return ParseMessage(raw)
}
