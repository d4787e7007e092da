// Package normalizer converts raw source payloads into immutable posts.
package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/html"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// RawPayload is a post as a source hands it over.
type RawPayload map[string]any

const DefaultMaxTextRunes = 4000

type payload struct {
	Text        string `mapstructure:"text"`
	Content     string `mapstructure:"content"`
	Body        string `mapstructure:"body"`
	Source      string `mapstructure:"source"`
	URL         string `mapstructure:"url"`
	SourceURL   string `mapstructure:"source_url"`
	Link        string `mapstructure:"link"`
	PostedAt    any    `mapstructure:"posted_at"`
	Timestamp   any    `mapstructure:"timestamp"`
	CreatedAt   any    `mapstructure:"created_at"`
	PublishedAt any    `mapstructure:"published_at"`
	Author      string `mapstructure:"author"`
	Handle      string `mapstructure:"author_handle"`
	Username    string `mapstructure:"username"`
	AuthorName  string `mapstructure:"author_name"`
	Company     string `mapstructure:"author_company"`
	ProfileURL  string `mapstructure:"profile_url"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Normalizer validates and cleans raw payloads. It performs no I/O.
type Normalizer struct {
	MaxTextRunes int
}

// New returns a normalizer truncating text to maxRunes (default when <= 0).
func New(maxRunes int) *Normalizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxTextRunes
	}
	return &Normalizer{MaxTextRunes: maxRunes}
}

// Normalize builds a Post. src is used when the payload does not name its source.
// now is the observation time and the fallback for a missing posted_at.
func (n *Normalizer) Normalize(raw RawPayload, src lead.Source, now time.Time) (*lead.Post, error) {
	if raw == nil {
		return nil, fmt.Errorf("empty payload: %w", lead.ErrMalformedInput)
	}

	var p payload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]any(raw)); err != nil {
		return nil, fmt.Errorf("decoding payload: %v: %w", err, lead.ErrMalformedInput)
	}

	if strings.TrimSpace(p.Source) != "" {
		parsed, err := lead.ParseSource(p.Source)
		if err != nil {
			return nil, err
		}
		src = parsed
	}
	if src == "" {
		return nil, fmt.Errorf("source is missing: %w", lead.ErrMalformedInput)
	}
	if _, err := lead.ParseSource(string(src)); err != nil {
		return nil, err
	}

	text := CleanText(first(p.Text, p.Content, p.Body))
	if text == "" {
		return nil, fmt.Errorf("text is missing: %w", lead.ErrMalformedInput)
	}
	text = truncate(text, n.MaxTextRunes)

	posted := now
	for _, v := range []any{p.PostedAt, p.Timestamp, p.CreatedAt, p.PublishedAt} {
		if t, ok := parseTime(v); ok {
			posted = t
			break
		}
	}

	sourceURL := strings.TrimSpace(first(p.SourceURL, p.URL, p.Link))

	return &lead.Post{
		ID:            lead.PostID(src, sourceURL, text),
		Source:        src,
		RawText:       text,
		PostedAt:      posted.UTC(),
		ObservedAt:    now.UTC(),
		SourceURL:     sourceURL,
		AuthorHandle:  strings.TrimPrefix(strings.TrimSpace(first(p.Handle, p.Username, p.Author)), "@"),
		AuthorName:    strings.TrimSpace(p.AuthorName),
		AuthorCompany: strings.TrimSpace(p.Company),
		ProfileURL:    strings.TrimSpace(p.ProfileURL),
	}, nil
}

// CleanText strips markup and collapses whitespace.
func CleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		s = stripHTML(s)
	}
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func stripHTML(s string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case int:
		return fromUnix(int64(t))
	case int64:
		return fromUnix(t)
	case float64:
		return fromUnix(int64(t))
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return fromUnix(n)
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// fromUnix accepts seconds or milliseconds.
func fromUnix(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

// PostedAt returns the source-reported time of a raw payload, if any.
func PostedAt(raw RawPayload) (time.Time, bool) {
	for _, key := range []string{"posted_at", "timestamp", "created_at", "published_at"} {
		if t, ok := parseTime(raw[key]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
