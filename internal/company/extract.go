package company

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Mention is what a post says about the company behind it.
type Mention struct {
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	DomainHint string `json:"domain_hint,omitempty"`
}

// DefaultRoles are matched against the text, longest first.
var DefaultRoles = []string{
	"Machine Learning Engineer",
	"ML Engineer",
	"AI Engineer",
	"LLM Engineer",
	"MLOps Engineer",
	"Applied Scientist",
	"Research Engineer",
	"Research Scientist",
	"Data Scientist",
	"Data Engineer",
	"Computer Vision Engineer",
	"NLP Engineer",
	"Backend Engineer",
	"Software Engineer",
	"AI Intern",
	"ML Intern",
	"Research Intern",
}

const namePart = `[A-Z0-9@][\w&.'-]*(?:\s+[A-Z0-9][\w&.'-]*){0,3}`

var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:join|work at|join us at|come join)\s+(@?\w[\w\s&.'-]*?)(?:\s+as\b|\s+to\b|\s*[,!.])`),
	regexp.MustCompile(`(?i)we\s+at\s+(@?\w[\w\s&.'-]*?)(?:\s+are\b|\s*[,.])`),
	regexp.MustCompile(`(?i)@(\w+)\s+is\s+hiring`),
	regexp.MustCompile(`(?i)(?:hiring at|openings? at|positions? at|roles? at)\s+(@?\w[\w\s&.'-]*?)(?:\s*[,!.;]|\s+for\b|\s*$)`),
	regexp.MustCompile(`(?m)^(` + namePart + `)\s+(?:is\s+(?:hiring|looking|seeking)|raises|raised|secures|secured|closes|closed|lands|announces)\b`),
	regexp.MustCompile(`\b(?:[Ee]ngineers?|[Dd]evelopers?|[Ss]cientists?|[Rr]esearchers?|[Ii]nterns?|[Ll]ead)\s+at\s+(` + namePart + `)`),
	regexp.MustCompile(`(?i)at\s+(@?\w[\w\s&.'-]*?),?\s+we(?:'re|\s+are)`),
}

var stopNames = map[string]struct{}{
	"us": {}, "our": {}, "the": {}, "team": {}, "a": {}, "an": {}, "my": {},
	"this": {}, "we": {}, "i": {}, "remote": {}, "home": {}, "scale": {},
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// SkipDomains are hosts that never identify the company itself.
var SkipDomains = []string{
	"linkedin.com", "twitter.com", "x.com", "google.com", "github.com",
	"forms.gle", "bit.ly", "t.co", "youtu.be", "youtube.com",
	"medium.com", "substack.com", "lever.co", "greenhouse.io", "ashbyhq.com",
	"workable.com", "wellfound.com", "ycombinator.com", "techcrunch.com",
	"crunchbase.com", "facebook.com", "instagram.com", "notion.site",
}

// Extract pulls company, role and domain hint from the text. authorCompany,
// when known, wins over anything found in the text.
func Extract(text, authorCompany string, roles []string) Mention {
	m := Mention{
		Name:       strings.TrimSpace(authorCompany),
		Role:       Role(text, roles),
		DomainHint: DomainHint(text),
	}
	if m.Name == "" {
		m.Name = nameFromText(text)
	}
	if m.Name == "" && m.DomainHint != "" {
		m.Name = nameFromDomain(m.DomainHint)
	}
	return m
}

func nameFromText(text string) string {
	for _, pattern := range companyPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		name := strings.Trim(strings.TrimSpace(match[1]), "@.,'-")
		if _, stop := stopNames[strings.ToLower(name)]; stop || len(name) < 2 {
			continue
		}
		return name
	}
	return ""
}

func nameFromDomain(domain string) string {
	label := strings.Split(domain, ".")[0]
	if len(label) < 3 {
		return ""
	}
	words := strings.Split(label, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Role returns the first known role named in the text, longest names first.
func Role(text string, roles []string) string {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	ordered := append([]string(nil), roles...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	lower := strings.ToLower(text)
	for _, role := range ordered {
		if strings.Contains(lower, strings.ToLower(role)) {
			return role
		}
	}
	return ""
}

// DomainHint returns the first company-owned host linked from the text.
func DomainHint(text string) string {
	for _, raw := range urlPattern.FindAllString(text, -1) {
		raw = strings.TrimRight(raw, ".,;:)!?")
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host == "" || !strings.Contains(host, ".") || Skipped(host) {
			continue
		}
		return host
	}
	return ""
}

// Skipped reports whether the host belongs to an aggregator or social site.
func Skipped(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, skip := range SkipDomains {
		if host == skip || strings.HasSuffix(host, "."+skip) {
			return true
		}
	}
	return false
}
