package resolver

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/Himanshuwagh/OutPilot/internal/company"
	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
)

// DNS is the subset of *net.Resolver the resolver needs.
type DNS interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// DomainQuery is the input of the domain chain.
type DomainQuery struct {
	Name string
	Key  string
	Hint string
}

var searchSkip = []string{
	"wikipedia.org", "crunchbase.com", "glassdoor.com", "indeed.com", "bloomberg.com",
	"forbes.com", "reuters.com", "bing.com", "duckduckgo.com", "reddit.com", "quora.com",
	"apple.com", "amazon.com", "pitchbook.com", "zoominfo.com", "tracxn.com",
}

// registrable strips subdomains: careers.acme.co.uk -> acme.co.uk.
func registrable(host string) string {
	if strings.Contains(host, "://") {
		if u, err := url.Parse(strings.TrimSpace(host)); err == nil {
			host = u.Hostname()
		}
	}
	host = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www."), ".")
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}

func acceptsMail(ctx context.Context, dns DNS, domain string) bool {
	mx, err := dns.LookupMX(ctx, domain)
	return err == nil && len(mx) > 0
}

// HintStrategy trusts a domain linked from the post once it resolves.
type HintStrategy struct {
	DNS DNS
}

func (HintStrategy) Name() string       { return "post-hint" }
func (HintStrategy) Dependency() string { return DepDNS }

func (s HintStrategy) Attempt(ctx context.Context, q DomainQuery) (string, bool, error) {
	domain := registrable(q.Hint)
	if domain == "" || company.Skipped(domain) {
		return "", false, nil
	}
	if acceptsMail(ctx, s.DNS, domain) {
		return domain, true, nil
	}
	if addrs, err := s.DNS.LookupHost(ctx, domain); err == nil && len(addrs) > 0 {
		return domain, true, nil
	}
	return "", false, nil
}

// SearchStrategy reads the result page of an HTML search index and takes the
// first result whose domain looks like the company name.
type SearchStrategy struct {
	HTTP *httpclient.Client
	URL  string
}

const DefaultSearchURL = "https://html.duckduckgo.com/html/"

func (SearchStrategy) Name() string       { return "search-index" }
func (SearchStrategy) Dependency() string { return DepSearch }

func (s SearchStrategy) Attempt(ctx context.Context, q DomainQuery) (string, bool, error) {
	endpoint := s.URL
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}

	body, err := s.HTTP.Get(ctx, endpoint, url.Values{"q": {q.Name + " official website"}}, nil)
	if err != nil {
		return "", false, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}

	slugs := company.Slugs(q.Name)
	for _, link := range resultLinks(doc) {
		domain := registrable(hostOf(link))
		if domain == "" || company.Skipped(domain) || skippedSearch(domain) {
			continue
		}
		if matchesSlug(domain, slugs) {
			return domain, true, nil
		}
	}
	return "", false, nil
}

// resultLinks returns hrefs of result anchors, falling back to every anchor.
func resultLinks(doc *html.Node) []string {
	var results, all []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, class string
			for _, a := range n.Attr {
				switch a.Key {
				case "href":
					href = a.Val
				case "class":
					class = a.Val
				}
			}
			if href != "" {
				all = append(all, href)
				if strings.Contains(class, "result__a") {
					results = append(results, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return append(results, all...)
}

// hostOf unwraps redirect links (?uddg=<target>) before taking the host.
func hostOf(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		if tu, err := url.Parse(target); err == nil {
			return tu.Hostname()
		}
	}
	return u.Hostname()
}

func skippedSearch(domain string) bool {
	for _, s := range searchSkip {
		if domain == s {
			return true
		}
	}
	return false
}

func matchesSlug(domain string, slugs []string) bool {
	label := strings.ReplaceAll(strings.SplitN(domain, ".", 2)[0], "-", "")
	for _, slug := range slugs {
		slug = strings.ReplaceAll(slug, "-", "")
		if len(slug) < 3 || len(label) < 3 {
			continue
		}
		if strings.Contains(label, slug) || strings.Contains(slug, label) {
			return true
		}
	}
	return false
}

// ProbeStrategy guesses <slug><tld> and keeps the first domain with mail exchangers.
type ProbeStrategy struct {
	DNS  DNS
	TLDs []string
}

var DefaultTLDs = []string{".com", ".ai", ".io", ".co", ".dev", ".tech"}

func (ProbeStrategy) Name() string       { return "dns-probe" }
func (ProbeStrategy) Dependency() string { return DepDNS }

func (s ProbeStrategy) Attempt(ctx context.Context, q DomainQuery) (string, bool, error) {
	tlds := s.TLDs
	if len(tlds) == 0 {
		tlds = DefaultTLDs
	}

	for _, slug := range company.Slugs(q.Name) {
		for _, tld := range tlds {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			domain := slug + "." + strings.TrimPrefix(tld, ".")
			if acceptsMail(ctx, s.DNS, domain) {
				return domain, true, nil
			}
		}
	}
	return "", false, nil
}
