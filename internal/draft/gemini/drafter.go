// Package gemini drafts outreach emails with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

const (
	defaultMaxLogLength = 200
	maxProfileRunes     = 300
)

// Drafter renders the kind-specific prompt and asks Gemini for a JSON
// {"subject", "body"} reply.
type Drafter struct {
	generator contentGenerator
	templates *draft.Templates
	logger    *zap.Logger
	maxLogLen int
}

func NewDrafter(generator contentGenerator, templates *draft.Templates, logger *zap.Logger, maxLogLength int) *Drafter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{generator: generator, templates: templates, logger: logger, maxLogLen: maxLogLength}
}

func (d *Drafter) Draft(ctx context.Context, c draft.Context) (*draft.Message, error) {
	c.Sender = sanitizeProfile(c.Sender)

	system, prompt, err := d.templates.Prompt(c)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	d.logger.Debug("gemini draft request",
		zap.String("company", c.Company),
		zap.String("kind", string(c.Kind)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, system, prompt)
	if err != nil {
		return nil, classify(ctx, err)
	}

	d.logger.Debug("gemini draft response",
		zap.String("company", c.Company),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	return parseResponse(raw)
}

// classify maps API failures onto the drafting error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", draft.ErrTimeout, err)
	}
	if errors.Is(err, errBlocked) || errors.Is(err, errEmptyResponse) {
		return fmt.Errorf("%w: %v", draft.ErrRefused, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", draft.ErrRateLimited, err)
		case apiErr.Code == http.StatusGatewayTimeout || apiErr.Code == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %v", draft.ErrTimeout, err)
		case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", draft.ErrRefused, err)
		}
	}
	return err
}

func parseResponse(raw string) (*draft.Message, error) {
	cleaned := extractJSON(raw)

	var data struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		// Plain text with a "Subject:" line is accepted too.
		return draft.ParseMessage(raw)
	}

	msg := &draft.Message{
		Subject: strings.TrimSpace(data.Subject),
		Body:    strings.TrimSpace(data.Body),
	}
	if msg.Body == "" {
		return nil, fmt.Errorf("%w: empty body", draft.ErrRefused)
	}
	if msg.Subject == "" {
		msg.Subject = draft.DefaultSubject
	}
	return msg, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// sanitizeProfile keeps configured sender fields on one line and stops them
// from posing as prompt sections.
func sanitizeProfile(p draft.Profile) draft.Profile {
	p.Name = sanitizeLine(p.Name)
	p.Role = sanitizeLine(p.Role)
	p.Skills = sanitizeLine(p.Skills)
	return p
}

func sanitizeLine(s string) string {
	s = strings.NewReplacer("[", "(", "]", ")", "{", "(", "}", ")").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > maxProfileRunes {
		s = string(runes[:maxProfileRunes])
	}
	return s
}
