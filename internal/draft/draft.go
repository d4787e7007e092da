// Package draft turns a resolved outreach record into an email subject and body.
package draft

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

var (
	ErrRateLimited = errors.New("drafting service rate limited")
	ErrRefused     = errors.New("drafting service refused the request")
	ErrTimeout     = errors.New("drafting service timed out")
)

const DefaultSubject = "Quick note about your AI team"

// Profile describes the sender.
type Profile struct {
	Name       string `mapstructure:"name" json:"name"`
	Email      string `mapstructure:"email" json:"email,omitempty"`
	Role       string `mapstructure:"role" json:"role"`
	Skills     string `mapstructure:"skills" json:"skills"`
	ResumeLink string `mapstructure:"resume-link" json:"resume_link,omitempty"`
	LinkedIn   string `mapstructure:"linkedin" json:"linkedin,omitempty"`
	GitHub     string `mapstructure:"github" json:"github,omitempty"`
	Portfolio  string `mapstructure:"portfolio" json:"portfolio,omitempty"`
}

// Context is everything a drafter may see. It never carries the post text.
type Context struct {
	Company      string    `json:"company"`
	Domain       string    `json:"domain"`
	ContactName  string    `json:"contact_name"`
	FirstName    string    `json:"first_name"`
	ContactTitle string    `json:"contact_title,omitempty"`
	Role         string    `json:"role,omitempty"`
	Kind         lead.Kind `json:"kind"`
	Funding      string    `json:"funding,omitempty"`
	Signals      []string  `json:"signals,omitempty"`
	Sender       Profile   `json:"sender"`
}

// NewContext projects an outreach record onto a drafting context.
func NewContext(rec *lead.OutreachRecord, sender Profile) Context {
	first, _ := rec.Contact.FirstLast()
	kind := rec.Kind
	if kind == "" {
		kind = lead.KindHiring
	}
	return Context{
		Company:      rec.Company.Name,
		Domain:       rec.Company.Domain,
		ContactName:  rec.Contact.FullName,
		FirstName:    first,
		ContactTitle: rec.Contact.Title,
		Role:         rec.Role,
		Kind:         kind,
		Funding:      rec.Funding,
		Signals:      rec.Signals,
		Sender:       sender,
	}
}

type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Drafter interface {
	Draft(ctx context.Context, c Context) (*Message, error)
}

// ParseMessage splits "Subject: ..." lines from the body. A missing subject
// falls back to DefaultSubject; an empty body is a refusal.
func ParseMessage(raw string) (*Message, error) {
	var (
		subject string
		body    []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if subject == "" && len(trimmed) >= 8 && strings.EqualFold(trimmed[:8], "subject:") {
			subject = strings.Trim(strings.TrimSpace(trimmed[8:]), `"`)
			continue
		}
		body = append(body, line)
	}

	msg := &Message{Subject: subject, Body: strings.TrimSpace(strings.Join(body, "\n"))}
	if msg.Subject == "" {
		msg.Subject = DefaultSubject
	}
	if msg.Body == "" {
		return nil, ErrRefused
	}
	return msg, nil
}

var (
	amountPattern = regexp.MustCompile(`(?i)(?:[$€£]\s?\d+(?:[.,]\d+)?\s?(?:k|m|mm|b|bn|million|billion)?\b|\b\d+(?:[.,]\d+)?\s?(?:million|billion)\b)`)
	stagePattern  = regexp.MustCompile(`(?i)\b(pre-seed|seed|series [a-f])\b`)
)

// FundingDetails extracts "raised $12M Series A" style details for the
// drafting context.
func FundingDetails(text string) string {
	amount := strings.TrimSpace(amountPattern.FindString(text))
	stage := stagePattern.FindString(text)
	switch {
	case amount != "" && stage != "":
		return "raised " + amount + " " + stage
	case amount != "":
		return "raised " + amount
	case stage != "":
		return "closed a " + stage + " round"
	}
	return ""
}
