package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/sender"
	"github.com/Himanshuwagh/OutPilot/internal/utils"
)

var (
	waitFor = utils.WaitFor
	jitter  = rand.Int64N
)

// delivery is the send budget of one run.
type delivery struct {
	remaining int
	sent      int
	// draftHalt and sendHalt stop drafting or sending for the rest of the run.
	draftHalt string
	sendHalt  string
}

// pendingRecords returns records earlier runs deferred. Drafted records are
// only picked up by runs that send.
func (r *run) pendingRecords(ctx context.Context) []*lead.OutreachRecord {
	statuses := []lead.OutreachStatus{lead.OutreachApproved, lead.OutreachSkipped, lead.OutreachPending}
	if !r.cfg.DryRun {
		statuses = append(statuses, lead.OutreachDrafted)
	}
	records, err := r.deps.Store.OutreachByStatus(ctx, statuses...)
	if err != nil {
		r.logger.Error("cannot load pending outreach", zap.Error(err))
		r.summary.addError(fmt.Errorf("loading pending outreach: %w", err))
		return nil
	}
	if len(records) > 0 {
		r.logger.Info("pending outreach from earlier runs", zap.Int("count", len(records)))
	}
	return records
}

// failInterrupted fails records an earlier run left mid-send. Whether the
// message went out is unknown, so it is never sent again.
func (r *run) failInterrupted(ctx context.Context) {
	records, err := r.deps.Store.OutreachByStatus(ctx, lead.OutreachSending)
	if err != nil {
		r.logger.Error("cannot load interrupted outreach", zap.Error(err))
		return
	}
	for _, rec := range records {
		r.logger.Warn("outreach interrupted while sending", zap.String("item_id", rec.PostRef), zap.String("outreach_id", rec.ID))
		r.park(ctx, rec, lead.OutreachFailed, lead.StateFailed, "interrupted while sending")
	}
}

// deliver drafts and sends records one at a time, in order.
func (r *run) deliver(ctx context.Context, records []*lead.OutreachRecord) {
	if len(records) == 0 {
		return
	}

	d := &delivery{remaining: r.cfg.DailySendQuota}
	if !r.cfg.DryRun {
		sent, err := r.deps.Store.CountSentSince(context.WithoutCancel(ctx), r.midnight())
		if err != nil {
			r.logger.Error("cannot count today's sends", zap.Error(err))
			d.sendHalt = "cannot count today's sends"
		}
		d.remaining -= sent
		r.logger.Info("send quota", zap.Int("quota", r.cfg.DailySendQuota), zap.Int("sent_today", sent), zap.Int("remaining", max(d.remaining, 0)))
	}

	for _, rec := range records {
		r.deliverRecord(ctx, d, rec)
	}
}

func (r *run) deliverRecord(ctx context.Context, d *delivery, rec *lead.OutreachRecord) {
	if rec.Ambiguous && !rec.Approved && r.cfg.AmbiguousPolicy == PolicyWithhold {
		r.park(ctx, rec, lead.OutreachHeld, lead.StateHeld, lead.ErrAmbiguousVerification.Error())
		return
	}
	if rec.ChosenEmail == nil || rec.ChosenEmail.Address == "" {
		r.failRecord(ctx, rec, errors.New("no address to send to"))
		return
	}
	if ctx.Err() != nil {
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, "run deadline reached")
		return
	}

	if !r.cfg.DryRun {
		if d.sendHalt != "" {
			r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, d.sendHalt)
			return
		}
		if d.remaining <= 0 {
			r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, lead.ErrQuotaExceeded.Error())
			return
		}
		if reason := r.cooling(ctx, rec.Company.CanonicalKey); reason != "" {
			r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, reason)
			return
		}
	}

	if rec.Subject == "" || rec.Body == "" {
		if !r.compose(ctx, d, rec) {
			return
		}
	}

	if r.cfg.DryRun {
		r.logger.Info("drafted",
			zap.String("item_id", rec.PostRef),
			zap.String("to", rec.ChosenEmail.Address),
			zap.String("subject", rec.Subject),
			zap.String("preview", utils.TruncateForLog(rec.Body, 120)),
		)
		r.transition(ctx, rec.PostRef, rec.Company.CanonicalKey, lead.StateDrafted, "")
		return
	}

	r.transition(ctx, rec.PostRef, rec.Company.CanonicalKey, lead.StateSendable, "")
	r.send(ctx, d, rec)
}

// cooling reports why the company cannot be emailed yet, or "".
func (r *run) cooling(ctx context.Context, companyKey string) string {
	if r.deps.Dedup == nil || companyKey == "" {
		return ""
	}
	last, ok, err := r.deps.Store.LastSentAt(context.WithoutCancel(ctx), companyKey)
	if err != nil {
		r.logger.Warn("cannot read last send", zap.String("company_key", companyKey), zap.Error(err))
		return "cannot read last send"
	}
	if ok && r.now().Sub(last) < r.deps.Dedup.Cooldown() {
		return fmt.Sprintf("company emailed at %s", last.Format(time.RFC3339))
	}
	return ""
}

// compose drafts the message and stores it on the record. It returns false
// when the record was parked or failed instead.
func (r *run) compose(ctx context.Context, d *delivery, rec *lead.OutreachRecord) bool {
	if d.draftHalt != "" {
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, d.draftHalt)
		return false
	}

	r.transition(ctx, rec.PostRef, rec.Company.CanonicalKey, lead.StateDrafting, "")
	msg, err := r.deps.Drafter.Draft(ctx, draft.NewContext(rec, r.deps.Profile))
	r.deps.Metrics.ExternalCall("draft", err)
	switch {
	case err == nil:
	case errors.Is(err, draft.ErrRateLimited):
		d.draftHalt = trimReason(err)
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, d.draftHalt)
		return false
	case errors.Is(err, draft.ErrTimeout), errors.Is(err, lead.ErrTransientExternal), ctx.Err() != nil:
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, trimReason(err))
		return false
	default:
		r.failRecord(ctx, rec, fmt.Errorf("drafting: %w", err))
		return false
	}

	rec.Subject, rec.Body = msg.Subject, msg.Body
	rec.Status = lead.OutreachDrafted
	rec.LastError = ""
	r.save(ctx, rec)
	return true
}

func (r *run) send(ctx context.Context, d *delivery, rec *lead.OutreachRecord) {
	key := rec.Company.CanonicalKey
	if d.sent > 0 {
		if err := r.wait(ctx, r.delay()); err != nil {
			r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, "run deadline reached")
			return
		}
	}

	// persisted before the transport sees it: a crash from here on fails the
	// record instead of sending twice
	rec.Status = lead.OutreachSending
	rec.AttemptCount++
	rec.UpdatedAt = r.now()
	if err := r.deps.Store.SaveOutreach(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("cannot save outreach before send", zap.String("item_id", rec.PostRef), zap.Error(err))
		r.summary.addError(fmt.Errorf("%s: %w", rec.PostRef, err))
		d.sendHalt = "store write failed"
		return
	}
	r.transition(ctx, rec.PostRef, key, lead.StateSending, "")

	messageID, err := r.deps.Sender.Send(ctx, rec.ChosenEmail.Address, rec.Subject, rec.Body)
	r.deps.Metrics.ExternalCall("send", err)
	if err == nil {
		rec.Status = lead.OutreachSent
		rec.MessageID = messageID
		rec.SentAt = r.now()
		rec.LastError = ""
		r.save(ctx, rec)
		r.transition(ctx, rec.PostRef, key, lead.StateSent, "")
		d.sent++
		d.remaining--
		r.logger.Info("email sent",
			zap.String("item_id", rec.PostRef),
			zap.String("company_key", key),
			zap.String("to", rec.ChosenEmail.Address),
			zap.String("message_id", messageID),
		)
		return
	}

	switch {
	case errors.Is(err, sender.ErrBounced):
		r.failRecord(ctx, rec, err)
	case errors.Is(err, sender.ErrAuthFailed), errors.Is(err, sender.ErrRateLimited):
		d.sendHalt = trimReason(err)
		r.summary.addError(fmt.Errorf("sending halted: %w", err))
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, d.sendHalt)
	case rec.AttemptCount >= r.cfg.MaxAttempts:
		r.failRecord(ctx, rec, fmt.Errorf("giving up after %d attempts: %w", rec.AttemptCount, err))
	default:
		r.park(ctx, rec, lead.OutreachSkipped, lead.StateSkipped, trimReason(err))
	}
}

// park stores the record with a status a later run or a review picks up.
func (r *run) park(ctx context.Context, rec *lead.OutreachRecord, status lead.OutreachStatus, state lead.State, reason string) {
	rec.Status = status
	rec.LastError = reason
	r.save(ctx, rec)
	r.transition(ctx, rec.PostRef, rec.Company.CanonicalKey, state, reason)
}

func (r *run) failRecord(ctx context.Context, rec *lead.OutreachRecord, err error) {
	r.logger.Error("outreach failed", zap.String("item_id", rec.PostRef), zap.String("company_key", rec.Company.CanonicalKey), zap.Error(err))
	r.summary.addError(fmt.Errorf("%s: %w", rec.PostRef, err))
	r.park(ctx, rec, lead.OutreachFailed, lead.StateFailed, trimReason(err))
}

func (r *run) save(ctx context.Context, rec *lead.OutreachRecord) {
	rec.UpdatedAt = r.now()
	if err := r.deps.Store.SaveOutreach(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("cannot save outreach", zap.String("item_id", rec.PostRef), zap.Error(err))
		r.summary.addError(fmt.Errorf("%s: %w", rec.PostRef, err))
	}
}

// delay picks a pause between two sends within the configured range.
func (r *run) delay() time.Duration {
	lo, hi := r.cfg.SendDelay.Min, r.cfg.SendDelay.Max
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.jitter(int64(hi-lo)+1))
}
