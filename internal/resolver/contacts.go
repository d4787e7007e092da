package resolver

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Himanshuwagh/OutPilot/internal/company"
	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// ContactQuery is the input of the contact chain.
type ContactQuery struct {
	Company lead.Company
	Post    *lead.Post
	Max     int
}

// Found is a contact together with addresses discovered alongside it.
type Found struct {
	Contact lead.Contact
	Emails  []*lead.EmailCandidate
}

// RoleFilters rank contacts by title, most relevant first.
var RoleFilters = []string{
	"talent acquisition", "recruiter", "talent", "hiring manager", "people operations", "hr",
	"head of engineering", "vp engineering", "engineering manager", "cto", "co-founder", "founder",
}

func titleRank(title string) int {
	title = strings.ToLower(title)
	for i, f := range RoleFilters {
		if containsWord(title, f) {
			return i
		}
	}
	return len(RoleFilters)
}

func containsWord(s, word string) bool {
	for from := 0; from < len(s); {
		idx := strings.Index(s[from:], word)
		if idx < 0 {
			return false
		}
		idx += from
		end := idx + len(word)
		if (idx == 0 || !isWordByte(s[idx-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = idx + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Plausible reports whether the contact has a first and last name and is
// affiliated with the company.
func Plausible(c lead.Contact, companyKey string) bool {
	if len(strings.Fields(c.FullName)) < 2 {
		return false
	}
	return c.CompanyKey != "" && c.CompanyKey == companyKey
}

func limit(found []Found, max int) []Found {
	if max > 0 && len(found) > max {
		return found[:max]
	}
	return found
}

type person struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Company    string `json:"company"`
	ProfileURL string `json:"profile_url"`
}

// DirectoryStrategy queries a people-search API for staff of the company.
type DirectoryStrategy struct {
	HTTP   *httpclient.Client
	URL    string
	APIKey string
}

func (DirectoryStrategy) Name() string       { return string(lead.DiscoveryDirectorySearch) }
func (DirectoryStrategy) Dependency() string { return DepPeopleSearch }

func (s DirectoryStrategy) Attempt(ctx context.Context, q ContactQuery) ([]Found, bool, error) {
	if s.URL == "" {
		return nil, false, nil
	}

	params := url.Values{"company": {q.Company.Name}}
	if q.Company.Domain != "" {
		params.Set("domain", q.Company.Domain)
	}
	var headers map[string]string
	if s.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + s.APIKey}
	}

	var resp struct {
		People []person `json:"people"`
	}
	if err := s.HTTP.GetJSON(ctx, s.URL, params, headers, &resp); err != nil {
		return nil, false, fmt.Errorf("people search: %w", err)
	}

	var found []Found
	for _, p := range resp.People {
		c := lead.Contact{
			FullName:          strings.TrimSpace(p.Name),
			Title:             strings.TrimSpace(p.Title),
			CompanyKey:        company.CanonicalKey(p.Company),
			SourceOfDiscovery: lead.DiscoveryDirectorySearch,
			ProfileURL:        p.ProfileURL,
		}
		if Plausible(c, q.Company.CanonicalKey) {
			found = append(found, Found{Contact: c})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return titleRank(found[i].Contact.Title) < titleRank(found[j].Contact.Title)
	})
	found = limit(found, q.Max)
	return found, len(found) > 0, nil
}

// ProfileStrategy uses the author of the post when their profile names the company.
type ProfileStrategy struct{}

func (ProfileStrategy) Name() string       { return string(lead.DiscoveryDirectProfile) }
func (ProfileStrategy) Dependency() string { return "" }

func (ProfileStrategy) Attempt(_ context.Context, q ContactQuery) ([]Found, bool, error) {
	if q.Post == nil {
		return nil, false, nil
	}
	c := lead.Contact{
		FullName:          strings.TrimSpace(q.Post.AuthorName),
		CompanyKey:        company.CanonicalKey(q.Post.AuthorCompany),
		SourceOfDiscovery: lead.DiscoveryDirectProfile,
		ProfileURL:        q.Post.ProfileURL,
	}
	if !Plausible(c, q.Company.CanonicalKey) {
		return nil, false, nil
	}
	return []Found{{Contact: c}}, true, nil
}

const DefaultCodeHostURL = "https://api.github.com"

// CommitStrategy infers contacts from commit authors of the company's public
// repositories whose address is at the company domain.
type CommitStrategy struct {
	HTTP  *httpclient.Client
	URL   string
	Token string
	Repos int
}

func (CommitStrategy) Name() string       { return string(lead.DiscoveryInferred) }
func (CommitStrategy) Dependency() string { return DepCodeHost }

type commit struct {
	Commit struct {
		Author struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
}

func (s CommitStrategy) Attempt(ctx context.Context, q ContactQuery) ([]Found, bool, error) {
	domain := strings.ToLower(q.Company.Domain)
	if domain == "" {
		return nil, false, nil
	}

	base := strings.TrimSuffix(s.URL, "/")
	if base == "" {
		base = DefaultCodeHostURL
	}
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if s.Token != "" {
		headers["Authorization"] = "Bearer " + s.Token
	}
	repos := s.Repos
	if repos <= 0 {
		repos = 3
	}

	org := strings.SplitN(domain, ".", 2)[0]
	var list []struct {
		Name string `json:"name"`
	}
	err := s.HTTP.GetJSON(ctx, base+"/orgs/"+url.PathEscape(org)+"/repos",
		url.Values{"sort": {"pushed"}, "per_page": {fmt.Sprint(repos)}}, headers, &list)
	if err != nil {
		return nil, false, fmt.Errorf("list repositories of %s: %w", org, err)
	}

	seen := map[string]int{}
	var found []Found
	for _, repo := range list {
		var commits []commit
		err := s.HTTP.GetJSON(ctx, base+"/repos/"+url.PathEscape(org)+"/"+url.PathEscape(repo.Name)+"/commits",
			url.Values{"per_page": {"30"}}, headers, &commits)
		if err != nil {
			return nil, false, fmt.Errorf("list commits of %s/%s: %w", org, repo.Name, err)
		}

		for _, cm := range commits {
			addr := strings.ToLower(strings.TrimSpace(cm.Commit.Author.Email))
			name := strings.TrimSpace(cm.Commit.Author.Name)
			if !strings.HasSuffix(addr, "@"+domain) || strings.Contains(addr, "noreply") {
				continue
			}
			c := lead.Contact{
				FullName:          name,
				CompanyKey:        q.Company.CanonicalKey,
				SourceOfDiscovery: lead.DiscoveryInferred,
			}
			if !Plausible(c, q.Company.CanonicalKey) {
				continue
			}
			if i, ok := seen[name]; ok {
				if !hasAddress(found[i].Emails, addr) {
					found[i].Emails = append(found[i].Emails, lead.NewCandidate(addr, lead.RuleFromCommitHistory))
				}
				continue
			}
			seen[name] = len(found)
			found = append(found, Found{
				Contact: c,
				Emails:  []*lead.EmailCandidate{lead.NewCandidate(addr, lead.RuleFromCommitHistory)},
			})
		}
	}

	found = limit(found, q.Max)
	return found, len(found) > 0, nil
}

func hasAddress(list []*lead.EmailCandidate, addr string) bool {
	for _, c := range list {
		if strings.EqualFold(c.Address, addr) {
			return true
		}
	}
	return false
}
