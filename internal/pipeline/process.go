package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Himanshuwagh/OutPilot/internal/company"
	"github.com/Himanshuwagh/OutPilot/internal/dedup"
	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/logger"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
	"github.com/Himanshuwagh/OutPilot/internal/resolver"
	"github.com/Himanshuwagh/OutPilot/internal/source"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

// item is one unit of work: a freshly fetched payload, or a lead an earlier
// run left in a non-terminal state.
type item struct {
	batch int
	kind  lead.Source
	raw   normalizer.RawPayload

	lead  *store.Lead
	state lead.State
}

func (r *run) fetched(batches []source.Batch) []item {
	var items []item
	for i, b := range batches {
		if b.Err != nil {
			r.summary.addError(fmt.Errorf("source %s: %w", b.Source, b.Err))
			continue
		}
		for _, raw := range b.Payloads {
			items = append(items, item{batch: i, kind: b.Kind, raw: raw})
		}
	}
	r.summary.Fetched = len(items)
	return items
}

// resumable returns leads stopped before a terminal state, including those
// whose resolution ran out of time.
func (r *run) resumable(ctx context.Context) []item {
	entries, err := r.deps.Store.LedgerByState(ctx,
		lead.StateIngested, lead.StateClassified, lead.StateUnique, lead.StateResolving, lead.StateUnresolved)
	if err != nil {
		r.logger.Error("cannot read ledger", zap.Error(err))
		r.summary.addError(fmt.Errorf("reading ledger: %w", err))
		return nil
	}

	var items []item
	for _, e := range entries {
		if e.State == lead.StateUnresolved && e.Reason != string(lead.Timeout) {
			continue
		}
		l, err := r.deps.Store.Lead(ctx, e.ItemID)
		if err != nil {
			r.logger.Warn("cannot load lead to resume", zap.String("item_id", e.ItemID), zap.Error(err))
			continue
		}
		items = append(items, item{batch: -1, lead: l, state: e.State})
	}
	if len(items) > 0 {
		r.logger.Info("resuming items", zap.Int("count", len(items)))
	}
	return items
}

// process handles items on the worker pool. It returns the new outreach
// records in item order, and for every batch whether all its items were
// picked up before the run deadline.
func (r *run) process(ctx context.Context, items []item, batches int) ([]*lead.OutreachRecord, []bool) {
	records := make([]*lead.OutreachRecord, len(items))
	picked := make([]bool, len(items))

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			picked[i] = true
			records[i] = r.handle(ctx, it)
			return nil
		})
	}
	_ = g.Wait()

	complete := make([]bool, batches)
	for i := range complete {
		complete[i] = true
	}
	for i, it := range items {
		if it.batch >= 0 && !picked[i] {
			complete[it.batch] = false
		}
	}

	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, complete
}

func (r *run) handle(ctx context.Context, it item) *lead.OutreachRecord {
	if it.lead != nil {
		switch it.state {
		case lead.StateClassified:
			if it.lead.Result.Accepted {
				return r.admit(ctx, it.lead, logger.WithFields(r.logger, logger.PostFields(&it.lead.Post)...))
			}
			return r.classify(ctx, &it.lead.Post)
		case lead.StateIngested:
			return r.classify(ctx, &it.lead.Post)
		default:
			return r.resolve(ctx, it.lead)
		}
	}

	persist := context.WithoutCancel(ctx)
	post, err := r.deps.Normalizer.Normalize(it.raw, it.kind, r.now())
	if err != nil {
		id := malformedID(it.kind, it.raw)
		r.logger.Warn("dropping malformed payload", zap.String("item_id", id), zap.Error(err))
		r.transition(ctx, id, "", lead.StateMalformed, trimReason(err))
		return nil
	}

	if e, err := r.deps.Store.LedgerEntry(persist, post.ID); err == nil {
		r.logger.Debug("post already in ledger", zap.String("item_id", post.ID), zap.String("state", string(e.State)))
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("cannot read ledger", zap.String("item_id", post.ID), zap.Error(err))
		r.summary.addError(fmt.Errorf("%s: %w", post.ID, err))
		return nil
	}

	if err := r.deps.Store.SaveLead(persist, &store.Lead{Post: *post}); err != nil {
		r.logger.Error("cannot save lead", zap.String("item_id", post.ID), zap.Error(err))
		r.summary.addError(fmt.Errorf("%s: %w", post.ID, err))
		return nil
	}
	r.transition(ctx, post.ID, "", lead.StateIngested, "")

	return r.classify(ctx, post)
}

func (r *run) classify(ctx context.Context, post *lead.Post) *lead.OutreachRecord {
	persist := context.WithoutCancel(ctx)
	log := logger.WithFields(r.logger, logger.PostFields(post)...)

	result := r.deps.Classifier.Classify(post)
	r.transition(ctx, post.ID, "", lead.StateClassified, "")

	l := &store.Lead{Post: *post, Result: result}
	if !result.Accepted {
		r.saveLead(persist, l, log)
		r.transition(ctx, post.ID, "", lead.StateRejected, result.RejectionReason)
		return nil
	}

	m := company.Extract(post.RawText, post.AuthorCompany, r.deps.Roles)
	l.CompanyName, l.Role, l.DomainHint = m.Name, m.Role, m.DomainHint

	return r.admit(ctx, l, log)
}

// admit runs an accepted lead through dedup and resolves it when it is new.
func (r *run) admit(ctx context.Context, l *store.Lead, log *zap.Logger) *lead.OutreachRecord {
	persist := context.WithoutCancel(ctx)
	post := &l.Post

	l.CompanyKey = company.CanonicalKey(l.CompanyName)
	id := dedup.IdentityFor(l.CompanyKey, l.Role, l.Result.Kind, post.RawText)
	l.Fingerprint = id.Fingerprint()
	r.saveLead(persist, l, log)

	verdict, err := r.deps.Dedup.CheckAndRecord(persist, id, post.PostedAt)
	if err != nil {
		r.fail(ctx, post.ID, l.CompanyKey, err)
		return nil
	}
	if verdict.Duplicate {
		log.Info("duplicate", zap.String("company_key", l.CompanyKey), zap.String("reason", verdict.Reason))
		r.transition(ctx, post.ID, l.CompanyKey, lead.StateDuplicate, verdict.Reason)
		return nil
	}
	r.transition(ctx, post.ID, l.CompanyKey, lead.StateUnique, "")

	return r.resolve(ctx, l)
}

func (r *run) saveLead(ctx context.Context, l *store.Lead, log *zap.Logger) {
	if err := r.deps.Store.SaveLead(ctx, l); err != nil {
		log.Error("cannot save lead", zap.Error(err))
		r.summary.addError(fmt.Errorf("%s: %w", l.Post.ID, err))
	}
}

func (r *run) resolve(ctx context.Context, l *store.Lead) *lead.OutreachRecord {
	persist := context.WithoutCancel(ctx)
	itemID, key := l.Post.ID, l.CompanyKey
	log := logger.WithFields(r.logger, logger.ItemFields(itemID, key)...)

	// a record already exists when an earlier run stopped right after saving it
	if _, err := r.deps.Store.OutreachForPost(persist, itemID); err == nil {
		r.transition(ctx, itemID, key, lead.StateResolved, "")
		return nil
	}

	r.transition(ctx, itemID, key, lead.StateResolving, "")
	res, err := r.deps.Resolver.Resolve(ctx, resolver.Request{
		Post:       &l.Post,
		Result:     l.Result,
		Company:    l.CompanyName,
		Role:       l.Role,
		DomainHint: l.DomainHint,
	})
	if err != nil {
		log.Warn("resolution interrupted", zap.Error(err))
		r.transition(ctx, itemID, key, lead.StateUnresolved, string(lead.Timeout))
		return nil
	}
	if !res.Resolved() {
		log.Info("unresolved", zap.String("reason", string(res.Unresolved)))
		r.transition(ctx, itemID, key, lead.StateUnresolved, string(res.Unresolved))
		return nil
	}

	now := r.now()
	rec := &lead.OutreachRecord{
		ID:          uuid.NewString(),
		PostRef:     itemID,
		Kind:        l.Result.Kind,
		Role:        l.Role,
		Signals:     l.Result.MatchedSignals,
		Funding:     draft.FundingDetails(l.Post.RawText),
		Company:     res.Company,
		Contact:     *res.Contact,
		ChosenEmail: res.Email,
		Ambiguous:   res.Ambiguous,
		Status:      lead.OutreachPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.deps.Store.SaveOutreach(persist, rec); err != nil {
		r.fail(ctx, itemID, key, fmt.Errorf("saving outreach: %w", err))
		return nil
	}

	log.Info("resolved",
		zap.String("domain", rec.Company.Domain),
		zap.String("contact", rec.Contact.FullName),
		zap.String("email", rec.ChosenEmail.Address),
		zap.String("verification", string(rec.ChosenEmail.VerificationState)),
	)
	r.transition(ctx, itemID, key, lead.StateResolved, "")
	return rec
}

func (r *run) fail(ctx context.Context, itemID, companyKey string, err error) {
	r.logger.Error("item failed", zap.String("item_id", itemID), zap.String("company_key", companyKey), zap.Error(err))
	r.summary.addError(fmt.Errorf("%s: %w", itemID, err))
	r.transition(ctx, itemID, companyKey, lead.StateFailed, trimReason(err))
}

// malformedID gives an unparseable payload a stable ledger key.
func malformedID(kind lead.Source, raw normalizer.RawPayload) string {
	data, err := json.Marshal(raw)
	if err != nil {
		data = []byte(fmt.Sprint(raw))
	}
	return lead.PostID(kind, "", string(data))
}
