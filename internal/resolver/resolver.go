// Package resolver finds the company domain, a human contact and a verified
// email address for an accepted post. Every step is a prioritized chain of
// strategies; each strategy talks to one external dependency gated by its own
// concurrency cap, timeout and retry policy.
package resolver

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/company"
	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/retry"
)

// Cache keeps partial progress between runs. Errors are treated as misses.
type Cache interface {
	Company(ctx context.Context, key string) (*lead.Company, error)
	SaveCompany(ctx context.Context, c lead.Company) error
	Contacts(ctx context.Context, companyKey string) ([]lead.Contact, map[string][]*lead.EmailCandidate, error)
	SaveContact(ctx context.Context, c lead.Contact, candidates []*lead.EmailCandidate) error
}

// Verifier checks mailboxes. *Prober implements it.
type Verifier interface {
	CatchAll(ctx context.Context, domain string) (bool, error)
	Probe(ctx context.Context, address string) (lead.VerificationState, error)
}

type PeopleSearchConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api-key"`
}

type CodeHostConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	Repos int    `mapstructure:"repos"`
}

type Config struct {
	EmailPatterns []string           `mapstructure:"email-patterns"`
	TLDs          []string           `mapstructure:"tlds"`
	SearchURL     string             `mapstructure:"search-url"`
	PeopleSearch  PeopleSearchConfig `mapstructure:"people-search"`
	CodeHost      CodeHostConfig     `mapstructure:"code-host"`
	WebsitePages  []string           `mapstructure:"website-pages"`
	MaxContacts   int                `mapstructure:"max-contacts"`
	Probe         ProbeConfig        `mapstructure:"probe"`
	Limits        map[string]Limit   `mapstructure:"limits"`
	Retry         retry.Config       `mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		EmailPatterns: DefaultPatterns,
		TLDs:          DefaultTLDs,
		SearchURL:     DefaultSearchURL,
		CodeHost:      CodeHostConfig{URL: DefaultCodeHostURL, Repos: 3},
		WebsitePages:  DefaultPages,
		MaxContacts:   3,
		Probe:         DefaultProbeConfig(),
		Limits:        DefaultLimits(),
		Retry:         retry.DefaultConfig(),
	}
}

// Deps are the collaborators of a Resolver. Nil DNS means net.DefaultResolver,
// nil Verifier means SMTP probing through DNS. Observe, when set, sees the
// outcome of every external call attempt.
type Deps struct {
	HTTP     *httpclient.Client
	DNS      DNS
	Verifier Verifier
	Cache    Cache
	Observe  func(dep string, err error)
}

// Request describes what is known about an accepted post.
type Request struct {
	Post       *lead.Post
	Result     lead.ClassificationResult
	Company    string
	Role       string
	DomainHint string
}

// Resolution is either resolved (Email set) or carries an Unresolved reason.
type Resolution struct {
	Company    lead.Company
	Contact    *lead.Contact
	Email      *lead.EmailCandidate
	Candidates []*lead.EmailCandidate
	Ambiguous  bool
	Unresolved lead.UnresolvedReason
}

func (r *Resolution) Resolved() bool { return r.Email != nil }

type Resolver struct {
	cfg      Config
	cache    Cache
	verifier Verifier
	limits   *Limits
	domains  Chain[DomainQuery, string]
	contacts Chain[ContactQuery, []Found]
	website  Website
	logger   *zap.Logger
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if len(cfg.EmailPatterns) == 0 {
		cfg.EmailPatterns = def.EmailPatterns
	}
	if cfg.MaxContacts <= 0 {
		cfg.MaxContacts = def.MaxContacts
	}
	if deps.DNS == nil {
		deps.DNS = net.DefaultResolver
	}
	if deps.HTTP == nil {
		deps.HTTP = httpclient.New(20*time.Second, "", logger)
	}
	if deps.Verifier == nil {
		deps.Verifier = NewProber(deps.DNS, cfg.Probe, logger.Named("smtp"))
	}

	limits := NewLimits(cfg.Limits, cfg.Retry)
	limits.observe = deps.Observe
	return &Resolver{
		cfg:      cfg,
		cache:    deps.Cache,
		verifier: deps.Verifier,
		limits:   limits,
		domains: Chain[DomainQuery, string]{
			Strategies: []Strategy[DomainQuery, string]{
				HintStrategy{DNS: deps.DNS},
				SearchStrategy{HTTP: deps.HTTP, URL: cfg.SearchURL},
				ProbeStrategy{DNS: deps.DNS, TLDs: cfg.TLDs},
			},
			Limits: limits,
			Logger: logger.Named("domain"),
		},
		contacts: Chain[ContactQuery, []Found]{
			Strategies: []Strategy[ContactQuery, []Found]{
				DirectoryStrategy{HTTP: deps.HTTP, URL: cfg.PeopleSearch.URL, APIKey: cfg.PeopleSearch.APIKey},
				ProfileStrategy{},
				CommitStrategy{HTTP: deps.HTTP, URL: cfg.CodeHost.URL, Token: cfg.CodeHost.Token, Repos: cfg.CodeHost.Repos},
			},
			Limits: limits,
			Logger: logger.Named("contacts"),
		},
		website: Website{HTTP: deps.HTTP, Pages: cfg.WebsitePages},
		logger:  logger,
	}
}

// Resolve runs domain, contact, generation and verification steps. A deadline
// on ctx ends in Unresolved(timeout); cancellation is returned as an error.
// Domain and contacts are cached as soon as they are found.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	key := company.CanonicalKey(req.Company)
	res := &Resolution{Company: lead.Company{Name: strings.TrimSpace(req.Company), CanonicalKey: key}}
	logger := r.logger.With(zap.String("company_key", key))
	if req.Post != nil {
		logger = logger.With(zap.String("item_id", req.Post.ID))
	}

	if key == "" {
		return res.unresolved(lead.NoDomain), nil
	}

	res.Company.Domain = r.domain(ctx, req, key, logger)
	if stop, err := interrupted(ctx); stop {
		return res.unresolved(lead.Timeout), err
	}
	if res.Company.Domain == "" {
		return res.unresolved(lead.NoDomain), nil
	}

	found := r.findContacts(ctx, req.Post, res.Company, logger)
	if stop, err := interrupted(ctx); stop {
		return res.unresolved(lead.Timeout), err
	}
	if len(found) == 0 {
		return res.unresolved(lead.NoContact), nil
	}

	var (
		firstUnknown *lead.EmailCandidate
		unknownOwner *lead.Contact
	)
	for i := range found {
		f := &found[i]
		candidates := merge(f.Emails, Candidates(f.Contact.FullName, res.Company.Domain, r.cfg.EmailPatterns))
		best := r.verify(ctx, res.Company.Domain, candidates, logger)
		f.Emails = candidates
		r.saveContact(ctx, f.Contact, candidates, logger)

		if stop, err := interrupted(ctx); stop {
			return res.unresolved(lead.Timeout), err
		}
		if best != nil {
			res.Contact, res.Email, res.Candidates = &f.Contact, best, candidates
			return res, nil
		}
		if firstUnknown == nil {
			for _, c := range candidates {
				if c.VerificationState == lead.Unknown {
					firstUnknown, unknownOwner, res.Candidates = c, &f.Contact, candidates
					break
				}
			}
		}
	}

	if contact, email := r.fromWebsite(ctx, res.Company.Domain, found, logger); email != nil {
		res.Contact, res.Email = contact, email
		res.Candidates = append(res.Candidates, email)
		return res, nil
	}
	if stop, err := interrupted(ctx); stop {
		return res.unresolved(lead.Timeout), err
	}

	if firstUnknown != nil {
		res.Contact, res.Email, res.Ambiguous = unknownOwner, firstUnknown, true
		return res, nil
	}
	return res.unresolved(lead.NoVerifiedEmail), nil
}

func (r *Resolution) unresolved(reason lead.UnresolvedReason) *Resolution {
	r.Unresolved = reason
	r.Contact, r.Email, r.Ambiguous = nil, nil, false
	return r
}

func interrupted(ctx context.Context) (bool, error) {
	switch err := ctx.Err(); {
	case err == nil:
		return false, nil
	case errors.Is(err, context.DeadlineExceeded):
		return true, nil
	default:
		return true, err
	}
}

func (r *Resolver) domain(ctx context.Context, req Request, key string, logger *zap.Logger) string {
	if r.cache != nil {
		cached, err := r.cache.Company(ctx, key)
		if err != nil && ctx.Err() == nil {
			logger.Debug("company cache miss", zap.Error(err))
		}
		if cached != nil && cached.Domain != "" {
			return cached.Domain
		}
	}

	domain, strategy, ok := r.domains.First(ctx, DomainQuery{Name: req.Company, Key: key, Hint: req.DomainHint})
	if !ok {
		return ""
	}
	logger.Info("domain resolved", zap.String("domain", domain), zap.String("strategy", strategy))

	if r.cache != nil {
		c := lead.Company{Name: req.Company, Domain: domain, CanonicalKey: key}
		if err := r.cache.SaveCompany(context.WithoutCancel(ctx), c); err != nil {
			logger.Warn("cannot cache company", zap.Error(err))
		}
	}
	return domain
}

func (r *Resolver) findContacts(ctx context.Context, post *lead.Post, c lead.Company, logger *zap.Logger) []Found {
	if r.cache != nil {
		contacts, emails, err := r.cache.Contacts(ctx, c.CanonicalKey)
		if err != nil && ctx.Err() == nil {
			logger.Debug("contact cache miss", zap.Error(err))
		}
		var found []Found
		for _, contact := range contacts {
			if Plausible(contact, c.CanonicalKey) {
				found = append(found, Found{Contact: contact, Emails: emails[contact.FullName]})
			}
		}
		if len(found) > 0 {
			return limit(found, r.cfg.MaxContacts)
		}
	}

	found, strategy, ok := r.contacts.First(ctx, ContactQuery{Company: c, Post: post, Max: r.cfg.MaxContacts})
	if !ok {
		return nil
	}
	logger.Info("contacts found", zap.Int("count", len(found)), zap.String("strategy", strategy))

	for _, f := range found {
		r.saveContact(ctx, f.Contact, f.Emails, logger)
	}
	return found
}

func (r *Resolver) saveContact(ctx context.Context, c lead.Contact, candidates []*lead.EmailCandidate, logger *zap.Logger) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SaveContact(context.WithoutCancel(ctx), c, candidates); err != nil {
		logger.Warn("cannot cache contact", zap.String("contact", c.FullName), zap.Error(err))
	}
}

// merge keeps discovered addresses first and drops later duplicates.
func merge(lists ...[]*lead.EmailCandidate) []*lead.EmailCandidate {
	seen := map[string]struct{}{}
	var out []*lead.EmailCandidate
	for _, list := range lists {
		for _, c := range list {
			if c == nil {
				continue
			}
			addr := strings.ToLower(c.Address)
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// verify probes unverified candidates in order and returns the first
// deliverable one. On a catch-all domain every candidate becomes unknown.
func (r *Resolver) verify(ctx context.Context, domain string, candidates []*lead.EmailCandidate, logger *zap.Logger) *lead.EmailCandidate {
	for _, c := range candidates {
		if c.VerificationState == lead.Deliverable {
			return c
		}
	}

	catchAll, caErr := Call(ctx, r.limits, DepSMTP, func(ctx context.Context) (bool, error) {
		return r.verifier.CatchAll(ctx, domain)
	})
	if caErr != nil {
		logger.Debug("catch-all check failed", zap.String("domain", domain), zap.Error(caErr))
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		if c.VerificationState != lead.Unverified && c.VerificationState != "" {
			continue
		}

		state := lead.Unknown
		if !catchAll && caErr == nil {
			probed, err := Call(ctx, r.limits, DepSMTP, func(ctx context.Context) (lead.VerificationState, error) {
				return r.verifier.Probe(ctx, c.Address)
			})
			switch {
			case err == nil:
				state = probed
			case ctx.Err() != nil:
				return nil
			default:
				logger.Debug("probe failed", zap.String("address", c.Address), zap.Error(err))
			}
		}

		if verr := c.Verify(state, time.Now()); verr != nil {
			logger.Warn("verification refused", zap.Error(verr))
			continue
		}
		logger.Debug("candidate verified", zap.String("address", c.Address), zap.String("state", string(state)))
		if state == lead.Deliverable {
			return c
		}
	}
	return nil
}

// fromWebsite looks for a published address matching one of the contacts. A
// published address is accepted unless the mail server rejects it.
func (r *Resolver) fromWebsite(ctx context.Context, domain string, found []Found, logger *zap.Logger) (*lead.Contact, *lead.EmailCandidate) {
	if ctx.Err() != nil {
		return nil, nil
	}

	addrs, err := Call(ctx, r.limits, DepWebsite, func(ctx context.Context) ([]string, error) {
		return r.website.Emails(ctx, domain)
	})
	if err != nil {
		logger.Debug("website scrape failed", zap.String("domain", domain), zap.Error(err))
		return nil, nil
	}

	for i := range found {
		for _, addr := range addrs {
			if !MatchesName(addr, found[i].Contact.FullName) {
				continue
			}
			candidate := lead.NewCandidate(addr, lead.RuleFromWebpage)
			state, err := Call(ctx, r.limits, DepSMTP, func(ctx context.Context) (lead.VerificationState, error) {
				return r.verifier.Probe(ctx, addr)
			})
			if err != nil {
				state = lead.Unknown
			}
			_ = candidate.Verify(state, time.Now())
			if state == lead.Undeliverable {
				continue
			}

			r.saveContact(ctx, found[i].Contact, merge(found[i].Emails, []*lead.EmailCandidate{candidate}), logger)
			logger.Info("address found on website", zap.String("address", addr))
			return &found[i].Contact, candidate
		}
	}
	return nil, nil
}
