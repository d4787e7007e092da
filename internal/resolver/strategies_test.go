package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/retry"
)

type fixedStrategy struct {
	name string
	out  string
	ok   bool
	err  error
	dep  string
}

func (s fixedStrategy) Name() string       { return s.name }
func (s fixedStrategy) Dependency() string { return s.dep }
func (s fixedStrategy) Attempt(context.Context, string) (string, bool, error) {
	return s.out, s.ok, s.err
}

func TestChainFirst(t *testing.T) {
	chain := Chain[string, string]{
		Strategies: []Strategy[string, string]{
			fixedStrategy{name: "broken", err: errors.New("boom")},
			fixedStrategy{name: "empty"},
			fixedStrategy{name: "winner", out: "acme.com", ok: true},
			fixedStrategy{name: "never", out: "other.com", ok: true},
		},
	}

	out, name, ok := chain.First(context.Background(), "acme")
	if !ok || out != "acme.com" || name != "winner" {
		t.Fatalf("unexpected result %q %q %v", out, name, ok)
	}

	_, _, ok = Chain[string, string]{Strategies: []Strategy[string, string]{fixedStrategy{name: "empty"}}}.First(context.Background(), "x")
	if ok {
		t.Fatalf("expected nothing from an empty chain")
	}
}

type slowStrategy struct{}

func (slowStrategy) Name() string       { return "slow" }
func (slowStrategy) Dependency() string { return DepSearch }
func (slowStrategy) Attempt(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func TestCallTimeoutIsTransient(t *testing.T) {
	limits := NewLimits(map[string]Limit{DepSearch: {Concurrency: 1, Timeout: 20 * time.Millisecond}},
		retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	_, err := Call(context.Background(), limits, DepSearch, func(ctx context.Context) (string, error) {
		attempts++
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, lead.ErrTransientExternal) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry after a timeout, got %d attempts", attempts)
	}

	chain := Chain[string, string]{
		Strategies: []Strategy[string, string]{slowStrategy{}, fixedStrategy{name: "fallback", out: "x.com", ok: true}},
		Limits:     limits,
	}
	if out, _, ok := chain.First(context.Background(), "x"); !ok || out != "x.com" {
		t.Fatalf("a timed out strategy must fall through, got %q %v", out, ok)
	}
}

func TestRegistrable(t *testing.T) {
	tests := map[string]string{
		"www.acme.com":                    "acme.com",
		"careers.acme.co.uk":              "acme.co.uk",
		"https://jobs.globex.io/openings": "globex.io",
		"ACME.AI.":                        "acme.ai",
		"":                                "",
	}
	for in, want := range tests {
		if got := registrable(in); got != want {
			t.Fatalf("registrable(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHintStrategy(t *testing.T) {
	dns := &stubDNS{
		mx:    map[string][]*net.MX{"acme.com": mx("mx.acme.com")},
		hosts: map[string][]string{"nomail.dev": {"192.0.2.1"}},
	}
	s := HintStrategy{DNS: dns}

	tests := []struct {
		hint string
		want string
		ok   bool
	}{
		{hint: "careers.acme.com", want: "acme.com", ok: true},
		{hint: "nomail.dev", want: "nomail.dev", ok: true},
		{hint: "jobs.lever.co", ok: false},
		{hint: "unknown.example", ok: false},
		{hint: "", ok: false},
	}
	for _, tt := range tests {
		got, ok, err := s.Attempt(context.Background(), DomainQuery{Hint: tt.hint})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.hint, err)
		}
		if ok != tt.ok || got != tt.want {
			t.Fatalf("%q: got %q %v, want %q %v", tt.hint, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSearchStrategy(t *testing.T) {
	world := newWorld(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Query().Get("q"), " official website") {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		fmt.Fprintf(w, "%s", searchPage)
	})

	s := SearchStrategy{HTTP: world, URL: "https://search.test/html/"}
	got, ok, err := s.Attempt(context.Background(), DomainQuery{Name: "Acme"})
	if err != nil || !ok || got != "acme.com" {
		t.Fatalf("unexpected result %q %v %v", got, ok, err)
	}

	got, ok, _ = s.Attempt(context.Background(), DomainQuery{Name: "Umbrella"})
	if ok {
		t.Fatalf("unrelated results must not match, got %q", got)
	}
}

func TestProbeStrategy(t *testing.T) {
	dns := &stubDNS{mx: map[string][]*net.MX{"tactful.ai": mx("mx.tactful.ai")}}
	s := ProbeStrategy{DNS: dns}

	got, ok, err := s.Attempt(context.Background(), DomainQuery{Name: "Tactful AI"})
	if err != nil || !ok || got != "tactful.ai" {
		t.Fatalf("unexpected result %q %v %v", got, ok, err)
	}

	if _, ok, _ := s.Attempt(context.Background(), DomainQuery{Name: "Nowhere Labs"}); ok {
		t.Fatalf("expected nothing without mail exchangers")
	}
}

func TestDirectoryStrategyRanksByTitle(t *testing.T) {
	world := newWorld(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing api key")
		}
		fmt.Fprint(w, `{"people":[
			{"name":"Ada Lovelace","title":"Staff Engineer","company":"Acme"},
			{"name":"Grace Hopper","title":"Founder","company":"Acme"},
			{"name":"Linus Pauling","title":"Senior Recruiter","company":"ACME, Inc."},
			{"name":"Alan Turing","title":"CTO","company":"Acme"}
		]}`)
	})

	s := DirectoryStrategy{HTTP: world, URL: "https://people.test/v1/people", APIKey: "key"}
	found, ok, err := s.Attempt(context.Background(), ContactQuery{Company: lead.Company{Name: "Acme", CanonicalKey: "acme"}, Max: 3})
	if err != nil || !ok {
		t.Fatalf("unexpected result %v %v", ok, err)
	}

	var names []string
	for _, f := range found {
		names = append(names, f.Contact.FullName)
	}
	want := []string{"Linus Pauling", "Alan Turing", "Grace Hopper"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("unexpected order %v, want %v", names, want)
	}
}

func TestProfileStrategy(t *testing.T) {
	q := ContactQuery{Company: lead.Company{Name: "Acme", CanonicalKey: "acme"}}

	tests := []struct {
		name string
		post *lead.Post
		ok   bool
	}{
		{name: "affiliated", post: &lead.Post{AuthorName: "Jane Doe", AuthorCompany: "Acme Inc"}, ok: true},
		{name: "single name", post: &lead.Post{AuthorName: "Jane", AuthorCompany: "Acme"}},
		{name: "other company", post: &lead.Post{AuthorName: "Jane Doe", AuthorCompany: "Globex"}},
		{name: "no post"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q.Post = tt.post
			found, ok, err := ProfileStrategy{}.Attempt(context.Background(), q)
			if err != nil || ok != tt.ok {
				t.Fatalf("got %v %v, want %v", ok, err, tt.ok)
			}
			if ok && found[0].Contact.SourceOfDiscovery != lead.DiscoveryDirectProfile {
				t.Fatalf("unexpected discovery %q", found[0].Contact.SourceOfDiscovery)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("José  Núñez-Ortiz", "Acme.com", nil)
	if len(got) == 0 {
		t.Fatalf("expected candidates")
	}
	if got[0].Address != "jose.nunezortiz@acme.com" || got[0].GenerationRule != "first.last" {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	if got[1].Address != "jnunezortiz@acme.com" || got[1].GenerationRule != "flast" {
		t.Fatalf("unexpected second candidate %+v", got[1])
	}
	for _, c := range got {
		if c.VerificationState != lead.Unverified {
			t.Fatalf("generated candidate must be unverified: %+v", c)
		}
	}

	if got := Candidates("Cher", "acme.com", nil); got != nil {
		t.Fatalf("single names must not produce candidates: %v", got)
	}

	dup := Candidates("Ann Ann", "acme.com", []string{"{first}", "{last}"})
	if len(dup) != 1 {
		t.Fatalf("duplicate addresses must be dropped: %v", dup)
	}
}

func TestMatchesName(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"jane.doe@acme.com", true},
		{"janedoe@acme.com", true},
		{"jdoe@acme.com", true},
		{"j.doe@acme.com", true},
		{"jane@acme.com", true},
		{"doe.jane@acme.com", false},
		{"info@acme.com", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		if got := MatchesName(tt.addr, "Jane Doe"); got != tt.want {
			t.Fatalf("MatchesName(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestPageEmails(t *testing.T) {
	page := []byte(`<html><head><style>.x{}</style><script>"hidden@acme.com"</script></head>
		<body><p>Write to jane.doe@acme.com.</p><a href="mailto:john@acme.com?subject=hi">John</a></body></html>`)

	got := pageEmails(page)
	if contains(got, "hidden@acme.com") {
		t.Fatalf("script content must be skipped: %v", got)
	}
	if !contains(got, "jane.doe@acme.com") || !contains(got, "john@acme.com") {
		t.Fatalf("missing addresses: %v", got)
	}
	if !Generic("Careers@acme.com") || Generic("jane@acme.com") {
		t.Fatalf("unexpected generic mailbox classification")
	}
}
