// Package pipeline drives one run: fetch, normalize, classify, dedup, resolve,
// draft and send. Every item transition is written to the ledger as it happens
// so an interrupted run can be resumed by the next one.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/dedup"
	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/metrics"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
	"github.com/Himanshuwagh/OutPilot/internal/resolver"
	"github.com/Himanshuwagh/OutPilot/internal/sender"
	"github.com/Himanshuwagh/OutPilot/internal/source"
	"github.com/Himanshuwagh/OutPilot/internal/store"
)

// Ambiguity policies for records whose address could not be verified.
const (
	PolicyWithhold = "withhold"
	PolicySend     = "send"
)

const (
	DefaultTimeout          = 30 * time.Minute
	DefaultWorkers          = 4
	DefaultDailySendQuota   = 20
	DefaultMaxAttempts      = 3
	DefaultMaxSummaryErrors = 10
)

type Delay struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type Config struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Workers           int           `mapstructure:"workers"`
	SourceConcurrency int           `mapstructure:"source-concurrency"`
	MaxPostsPerSource int           `mapstructure:"max-posts-per-source"`
	DailySendQuota    int           `mapstructure:"daily-send-quota"`
	DryRun            bool          `mapstructure:"dry-run"`
	AmbiguousPolicy   string        `mapstructure:"ambiguous-policy"`
	SendDelay         Delay         `mapstructure:"send-delay"`
	MaxAttempts       int           `mapstructure:"max-attempts"`
	MaxSummaryErrors  int           `mapstructure:"max-summary-errors"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		Workers:           DefaultWorkers,
		SourceConcurrency: 2,
		MaxPostsPerSource: 50,
		DailySendQuota:    DefaultDailySendQuota,
		AmbiguousPolicy:   PolicyWithhold,
		SendDelay:         Delay{Min: 30 * time.Second, Max: 90 * time.Second},
		MaxAttempts:       DefaultMaxAttempts,
		MaxSummaryErrors:  DefaultMaxSummaryErrors,
	}
}

// Validate reports settings a run cannot start with.
func (c Config) Validate() error {
	switch c.AmbiguousPolicy {
	case "", PolicyWithhold, PolicySend:
	default:
		return fmt.Errorf("ambiguous-policy must be %q or %q, got %q", PolicyWithhold, PolicySend, c.AmbiguousPolicy)
	}
	if c.DailySendQuota < 0 {
		return fmt.Errorf("daily-send-quota must not be negative")
	}
	if c.SendDelay.Max < c.SendDelay.Min {
		return fmt.Errorf("send-delay max %s is below min %s", c.SendDelay.Max, c.SendDelay.Min)
	}
	return nil
}

// Store is the durable state the pipeline reads and writes. *store.Store
// implements it.
type Store interface {
	Ping(ctx context.Context) error
	StartRun(ctx context.Context, runID string, at time.Time) error
	FinishRun(ctx context.Context, runID string, at time.Time, summary any) error

	Transition(ctx context.Context, e lead.LedgerEntry) error
	LedgerEntry(ctx context.Context, itemID string) (*lead.LedgerEntry, error)
	LedgerByState(ctx context.Context, states ...lead.State) ([]lead.LedgerEntry, error)

	SaveLead(ctx context.Context, l *store.Lead) error
	Lead(ctx context.Context, id string) (*store.Lead, error)

	SaveOutreach(ctx context.Context, rec *lead.OutreachRecord) error
	OutreachForPost(ctx context.Context, postRef string) (*lead.OutreachRecord, error)
	OutreachByStatus(ctx context.Context, statuses ...lead.OutreachStatus) ([]*lead.OutreachRecord, error)
	CountSentSince(ctx context.Context, t time.Time) (int, error)
	LastSentAt(ctx context.Context, companyKey string) (time.Time, bool, error)
}

type Fetcher interface {
	FetchAll(ctx context.Context) []source.Batch
	Commit(ctx context.Context, batches []source.Batch)
}

type Classifier interface {
	Classify(post *lead.Post) lead.ClassificationResult
}

type Deduper interface {
	CheckAndRecord(ctx context.Context, id dedup.Identity, at time.Time) (dedup.Verdict, error)
	Prune(ctx context.Context, now time.Time) error
	Cooldown() time.Duration
}

type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Resolution, error)
}

// Deps are the collaborators of a run. Metrics may be nil.
type Deps struct {
	Store      Store
	Fetcher    Fetcher
	Normalizer *normalizer.Normalizer
	Classifier Classifier
	Dedup      Deduper
	Resolver   Resolver
	Drafter    draft.Drafter
	Sender     sender.Sender
	Profile    draft.Profile
	Roles      []string
	Metrics    *metrics.Metrics
}

type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
	jitter   func(n int64) int64
	newRunID func() string
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DailySendQuota <= 0 {
		cfg.DailySendQuota = DefaultDailySendQuota
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxSummaryErrors <= 0 {
		cfg.MaxSummaryErrors = DefaultMaxSummaryErrors
	}
	if cfg.AmbiguousPolicy == "" {
		cfg.AmbiguousPolicy = PolicyWithhold
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.New(0)
	}

	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		now:      time.Now,
		wait:     waitFor,
		jitter:   jitter,
		newRunID: uuid.NewString,
	}
}

// run holds the state of one invocation of Run.
type run struct {
	*Pipeline
	id      string
	summary *Summary
	logger  *zap.Logger
}

// Run executes one batch. It returns an error only when the store is
// unreachable at start; every per-item failure ends up on the ledger and in the
// summary.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	r, err := p.begin(ctx)
	if err != nil {
		return r.summary, err
	}
	persist := context.WithoutCancel(ctx)
	defer r.finish(persist)

	runCtx, cancel := p.bounded(ctx)
	defer cancel()

	r.logger.Info("run started", zap.Bool("dry_run", p.cfg.DryRun), zap.Int("workers", p.cfg.Workers))

	if p.deps.Dedup != nil {
		if err := p.deps.Dedup.Prune(runCtx, r.summary.StartedAt); err != nil {
			r.logger.Warn("cannot prune company windows", zap.Error(err))
		}
	}

	r.failInterrupted(persist)
	queue := r.pendingRecords(persist)

	items := r.resumable(persist)
	var batches []source.Batch
	if p.deps.Fetcher != nil {
		batches = p.deps.Fetcher.FetchAll(runCtx)
	}
	items = append(items, r.fetched(batches)...)

	records, complete := r.process(runCtx, items, len(batches))
	queue = append(queue, records...)

	r.deliver(runCtx, queue)

	if p.deps.Fetcher != nil {
		var done []source.Batch
		for i, b := range batches {
			if complete[i] && b.Err == nil {
				done = append(done, b)
			}
		}
		p.deps.Fetcher.Commit(persist, done)
	}

	return r.summary, nil
}

// begin checks the store and registers a new run.
func (p *Pipeline) begin(ctx context.Context) (*run, error) {
	started := p.now()
	r := &run{Pipeline: p, id: p.newRunID()}
	r.summary = newSummary(r.id, started, p.cfg.MaxSummaryErrors)
	r.logger = p.logger.With(zap.String("run_id", r.id))

	if err := p.deps.Store.Ping(ctx); err != nil {
		r.summary.Aborted = true
		r.summary.addError(err)
		r.logger.Error("run aborted", zap.Error(err))
		return r, err
	}

	if err := p.deps.Store.StartRun(context.WithoutCancel(ctx), r.id, started); err != nil {
		r.logger.Warn("cannot register run", zap.Error(err))
	}
	return r, nil
}

func (p *Pipeline) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (r *run) finish(ctx context.Context) {
	finished := r.now()
	r.summary.FinishedAt = finished
	if err := r.deps.Store.FinishRun(ctx, r.id, finished, r.summary); err != nil {
		r.logger.Warn("cannot store run summary", zap.Error(err))
	}
	r.deps.Metrics.RunFinished(r.summary.StartedAt, finished)
	r.logger.Info("run finished",
		zap.Duration("took", finished.Sub(r.summary.StartedAt)),
		zap.Any("counts", r.summary.Counts),
		zap.Int("errors", len(r.summary.Errors)),
	)
}

// transition writes the new state of an item. The write never observes the
// run deadline so an item is never left half-recorded.
func (r *run) transition(ctx context.Context, itemID, companyKey string, state lead.State, reason string) {
	err := r.deps.Store.Transition(context.WithoutCancel(ctx), lead.LedgerEntry{
		ItemID:     itemID,
		RunID:      r.id,
		State:      state,
		Reason:     reason,
		CompanyKey: companyKey,
		UpdatedAt:  r.now(),
	})
	if err != nil {
		r.logger.Error("cannot write ledger", zap.String("item_id", itemID), zap.String("state", string(state)), zap.Error(err))
		r.summary.addError(fmt.Errorf("ledger %s -> %s: %w", itemID, state, err))
	}

	r.summary.count(state)
	r.deps.Metrics.Transition(state)
	r.logger.Debug("transition",
		zap.String("item_id", itemID),
		zap.String("company_key", companyKey),
		zap.String("state", string(state)),
		zap.String("reason", reason),
	)
}

func (r *run) midnight() time.Time {
	now := r.now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func trimReason(err error) string {
	return strings.TrimSpace(err.Error())
}
