package lead

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Source identifies the platform a post was collected from.
type Source string

const (
	SourceSocial              Source = "social"
	SourceProfessionalNetwork Source = "professional-network"
	SourceNewsSite            Source = "news-site"
	SourceCodeHost            Source = "code-host"

	// SourceManual marks leads requested by name rather than fetched. It is
	// not accepted in source configuration.
	SourceManual Source = "manual"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceSocial, SourceProfessionalNetwork, SourceNewsSite, SourceCodeHost:
		return src, nil
	}
	return "", fmt.Errorf("unknown source %q: %w", s, ErrMalformedInput)
}

// Kind is the opportunity type a post describes.
type Kind string

const (
	KindHiring  Kind = "hiring"
	KindFunding Kind = "funding"
	KindBoth    Kind = "both"
)

// Post is a normalized unit of input. It is never mutated after creation.
type Post struct {
	ID            string    `json:"id"`
	Source        Source    `json:"source"`
	RawText       string    `json:"raw_text"`
	PostedAt      time.Time `json:"posted_at"`
	ObservedAt    time.Time `json:"observed_at"`
	SourceURL     string    `json:"source_url,omitempty"`
	AuthorHandle  string    `json:"author_handle,omitempty"`
	AuthorName    string    `json:"author_name,omitempty"`
	AuthorCompany string    `json:"author_company,omitempty"`
	ProfileURL    string    `json:"profile_url,omitempty"`
}

// PostID derives a stable identifier from the source and the url, or the text when no url is known.
func PostID(src Source, sourceURL, text string) string {
	key := strings.TrimSpace(sourceURL)
	if key == "" {
		key = strings.TrimSpace(text)
	}
	sum := sha256.Sum256([]byte(string(src) + "\x00" + key))
	return hex.EncodeToString(sum[:16])
}

// ClassificationResult is the outcome of running the ruleset over a post.
type ClassificationResult struct {
	Accepted        bool     `json:"accepted"`
	Score           float64  `json:"score"`
	MatchedSignals  []string `json:"matched_signals"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
	Kind            Kind     `json:"kind,omitempty"`
}

// Company is an organization referenced by a post.
type Company struct {
	Name         string `json:"name"`
	Domain       string `json:"domain,omitempty"`
	CanonicalKey string `json:"canonical_key"`
}

// Discovery says how a contact was found.
type Discovery string

const (
	DiscoveryDirectorySearch Discovery = "directory-search"
	DiscoveryDirectProfile   Discovery = "direct-profile"
	DiscoveryInferred        Discovery = "inferred"
)

// Contact is a person believed to work at a company.
type Contact struct {
	FullName          string    `json:"full_name"`
	Title             string    `json:"title,omitempty"`
	CompanyKey        string    `json:"company_key"`
	SourceOfDiscovery Discovery `json:"source_of_discovery"`
	ProfileURL        string    `json:"profile_url,omitempty"`
}

// FirstLast splits the full name into its first and last tokens.
func (c Contact) FirstLast() (string, string) {
	parts := strings.Fields(c.FullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

// Window tracks when a company was last accepted as unique.
type Window struct {
	CompanyKey string    `json:"company_key"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
