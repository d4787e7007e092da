package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/logger"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

// Target asks for outreach to a named company without a post.
type Target struct {
	Company string
	Role    string
	Domain  string
	Kind    lead.Kind
}

func (t Target) text() string {
	if t.Role != "" {
		return fmt.Sprintf("%s is hiring a %s", t.Company, t.Role)
	}
	return fmt.Sprintf("Outreach to %s", t.Company)
}

// Target resolves one company and drafts or sends to it right away. The
// classifier is skipped; dedup, cooldown and the daily quota still apply.
func (p *Pipeline) Target(ctx context.Context, t Target) (*Summary, error) {
	t.Company = strings.TrimSpace(t.Company)
	t.Role = strings.TrimSpace(t.Role)
	t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
	if t.Company == "" {
		return nil, fmt.Errorf("company is required: %w", lead.ErrMalformedInput)
	}
	if t.Kind == "" {
		t.Kind = lead.KindHiring
	}

	r, err := p.begin(ctx)
	if err != nil {
		return r.summary, err
	}
	persist := context.WithoutCancel(ctx)
	defer r.finish(persist)

	runCtx, cancel := p.bounded(ctx)
	defer cancel()

	now := r.summary.StartedAt
	text := t.text()
	post := lead.Post{
		// one request per company and role a day
		ID:            lead.PostID(lead.SourceManual, "", text+"\x00"+now.Format("2006-01-02")),
		Source:        lead.SourceManual,
		RawText:       text,
		PostedAt:      now,
		ObservedAt:    now,
		AuthorCompany: t.Company,
	}
	log := logger.WithFields(r.logger, logger.PostFields(&post)...)
	log.Info("targeted outreach", zap.String("company", t.Company), zap.String("role", t.Role), zap.String("domain", t.Domain))

	if e, err := p.deps.Store.LedgerEntry(persist, post.ID); err == nil {
		log.Info("already requested today", zap.String("state", string(e.State)))
		return r.summary, nil
	}

	r.summary.Fetched = 1
	l := &store.Lead{
		Post:        post,
		Result:      lead.ClassificationResult{Accepted: true, Score: 1, MatchedSignals: []string{"targeted"}, Kind: t.Kind},
		CompanyName: t.Company,
		Role:        t.Role,
		DomainHint:  t.Domain,
	}
	r.saveLead(persist, l, log)
	r.transition(runCtx, post.ID, "", lead.StateIngested, "")
	r.transition(runCtx, post.ID, "", lead.StateClassified, "")

	if rec := r.admit(runCtx, l, log); rec != nil {
		r.deliver(runCtx, []*lead.OutreachRecord{rec})
	}

	return r.summary, nil
}
