// Package source fetches raw posts from the configured collaborators.
package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
)

// Source is one external feed of posts.
type Source interface {
	Name() string
	Kind() lead.Source
	Fetch(ctx context.Context, since time.Time) ([]normalizer.RawPayload, error)
}

const (
	TypeFile = "file"
	TypeHTTP = "http"
)

type Config struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Kind     string `mapstructure:"kind"`
	Path     string `mapstructure:"path"`
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	PerPage  int    `mapstructure:"per-page"`
	MaxPages int    `mapstructure:"max-pages"`
}

// New builds a source from its configuration.
func New(cfg Config, client *httpclient.Client, logger *zap.Logger) (Source, error) {
	kind, err := lead.ParseSource(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", cfg.Name, err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("source without name: %w", lead.ErrMalformedInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case TypeFile, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("source %q: path is required: %w", cfg.Name, lead.ErrMalformedInput)
		}
		return &File{name: cfg.Name, kind: kind, path: cfg.Path, logger: logger}, nil
	case TypeHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("source %q: url is required: %w", cfg.Name, lead.ErrMalformedInput)
		}
		return NewHTTP(cfg.Name, kind, cfg.URL, cfg.Token, cfg.PerPage, cfg.MaxPages, client, logger), nil
	default:
		return nil, fmt.Errorf("source %q: unknown type %q: %w", cfg.Name, cfg.Type, lead.ErrMalformedInput)
	}
}

// after drops payloads reported as posted before since. Payloads without a
// usable time are kept.
func after(items []normalizer.RawPayload, since time.Time) []normalizer.RawPayload {
	if since.IsZero() {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if t, ok := normalizer.PostedAt(item); ok && t.Before(since) {
			continue
		}
		out = append(out, item)
	}
	return out
}
