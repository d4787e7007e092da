package source

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
)

// Cursors persists the fetch position of each source.
type Cursors interface {
	Cursor(ctx context.Context, source string) (time.Time, bool, error)
	SetCursor(ctx context.Context, source string, since time.Time) error
}

// Batch is the result of fetching one source.
type Batch struct {
	Source    string
	Kind      lead.Source
	Payloads  []normalizer.RawPayload
	Since     time.Time
	Next      time.Time
	Truncated int
	Err       error
}

// Fetcher fetches all sources with bounded parallelism. A failing source is
// reported in its batch and never fails the others.
type Fetcher struct {
	Sources      []Source
	Concurrency  int
	MaxPerSource int
	Cursors      Cursors
	Logger       *zap.Logger
	Now          func() time.Time
}

func (f *Fetcher) FetchAll(ctx context.Context) []Batch {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	batches := make([]Batch, len(f.Sources))
	g := new(errgroup.Group)
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}

	for i, src := range f.Sources {
		g.Go(func() error {
			b := Batch{Source: src.Name(), Kind: src.Kind()}
			defer func() { batches[i] = b }()

			if f.Cursors != nil {
				since, ok, err := f.Cursors.Cursor(ctx, src.Name())
				if err != nil {
					logger.Warn("cannot read source cursor", zap.String("source", src.Name()), zap.Error(err))
				} else if ok {
					b.Since = since
				}
			}

			started := now()
			items, err := src.Fetch(ctx, b.Since)
			if err != nil {
				b.Err = err
				logger.Error("source failed", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}

			b.Next = started
			if f.MaxPerSource > 0 && len(items) > f.MaxPerSource {
				b.Truncated = len(items) - f.MaxPerSource
				items = items[:f.MaxPerSource]
				b.Next = latest(items, b.Since)
			}
			b.Payloads = items

			logger.Info("source fetched", zap.String("source", src.Name()), zap.Int("posts", len(items)), zap.Int("truncated", b.Truncated))
			return nil
		})
	}
	_ = g.Wait()

	return batches
}

// Commit advances the cursors of successfully fetched sources.
func (f *Fetcher) Commit(ctx context.Context, batches []Batch) {
	if f.Cursors == nil {
		return
	}
	for _, b := range batches {
		if b.Err != nil || b.Next.IsZero() {
			continue
		}
		if err := f.Cursors.SetCursor(ctx, b.Source, b.Next); err != nil && f.Logger != nil {
			f.Logger.Warn("cannot save source cursor", zap.String("source", b.Source), zap.Error(err))
		}
	}
}

// latest is the newest posted time among the kept items, so a truncated
// source resumes after what was actually processed.
func latest(items []normalizer.RawPayload, since time.Time) time.Time {
	out := since
	for _, item := range items {
		if t, ok := normalizer.PostedAt(item); ok && t.After(out) {
			out = t
		}
	}
	return out
}
