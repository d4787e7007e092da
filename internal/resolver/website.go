package resolver

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
)

// DefaultPages are the paths scraped for published addresses.
var DefaultPages = []string{"", "/about", "/about-us", "/team", "/our-team", "/contact", "/contact-us", "/careers", "/jobs"}

var genericMailboxes = map[string]struct{}{
	"info": {}, "contact": {}, "hello": {}, "support": {}, "admin": {}, "sales": {},
	"team": {}, "career": {}, "careers": {}, "jobs": {}, "hr": {}, "office": {},
	"press": {}, "marketing": {}, "help": {}, "noreply": {}, "no-reply": {},
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Generic reports whether the address is a shared mailbox rather than a person.
func Generic(address string) bool {
	local, _, _ := strings.Cut(strings.ToLower(address), "@")
	_, ok := genericMailboxes[local]
	return ok
}

// Website collects personal addresses published on the company site.
type Website struct {
	HTTP   *httpclient.Client
	Pages  []string
	Scheme string
}

// Emails returns personal addresses at domain in first-seen order. Pages that
// fail to load are skipped; the error of the last failure is returned only
// when nothing could be loaded.
func (w Website) Emails(ctx context.Context, domain string) ([]string, error) {
	pages := w.Pages
	if len(pages) == 0 {
		pages = DefaultPages
	}
	scheme := w.Scheme
	if scheme == "" {
		scheme = "https"
	}
	domain = strings.ToLower(domain)

	var (
		out     []string
		seen    = map[string]struct{}{}
		lastErr error
		loaded  bool
	)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		body, err := w.HTTP.Get(ctx, scheme+"://"+domain+page, nil, nil)
		if err != nil {
			lastErr = err
			continue
		}
		loaded = true

		for _, addr := range pageEmails(body) {
			addr = strings.ToLower(strings.TrimRight(addr, "."))
			if !strings.HasSuffix(addr, "@"+domain) || Generic(addr) {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}

	if !loaded && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// pageEmails returns addresses from the visible text and mailto links.
func pageEmails(body []byte) []string {
	var out []string
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "script", "style":
				if tok.Type == html.StartTagToken {
					skip++
				}
			case "a":
				for _, a := range tok.Attr {
					if a.Key == "href" && strings.HasPrefix(strings.ToLower(a.Val), "mailto:") {
						addr, _, _ := strings.Cut(a.Val[len("mailto:"):], "?")
						out = append(out, strings.TrimSpace(addr))
					}
				}
			}
		case html.EndTagToken:
			tok := z.Token()
			if (tok.Data == "script" || tok.Data == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				out = append(out, emailPattern.FindAllString(string(z.Text()), -1)...)
			}
		}
	}
}
