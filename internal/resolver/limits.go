package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/retry"
)

// External dependencies, each with its own concurrency cap and timeout.
const (
	DepDNS          = "dns"
	DepSearch       = "search"
	DepPeopleSearch = "people-search"
	DepCodeHost     = "code-host"
	DepWebsite      = "website"
	DepSMTP         = "smtp"
)

type Limit struct {
	Concurrency int64         `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		DepDNS:          {Concurrency: 8, Timeout: 5 * time.Second},
		DepSearch:       {Concurrency: 1, Timeout: 10 * time.Second},
		DepPeopleSearch: {Concurrency: 2, Timeout: 10 * time.Second},
		DepCodeHost:     {Concurrency: 2, Timeout: 15 * time.Second},
		DepWebsite:      {Concurrency: 4, Timeout: 20 * time.Second},
		DepSMTP:         {Concurrency: 2, Timeout: 20 * time.Second},
	}
}

type dependency struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// Limits gates calls to external dependencies.
type Limits struct {
	deps    map[string]*dependency
	retry   retry.Config
	observe func(dep string, err error)
}

// NewLimits merges cfg over the defaults.
func NewLimits(cfg map[string]Limit, rc retry.Config) *Limits {
	merged := DefaultLimits()
	for name, l := range cfg {
		d := merged[name]
		if l.Concurrency > 0 {
			d.Concurrency = l.Concurrency
		}
		if l.Timeout > 0 {
			d.Timeout = l.Timeout
		}
		merged[name] = d
	}

	deps := make(map[string]*dependency, len(merged))
	for name, l := range merged {
		if l.Concurrency <= 0 {
			l.Concurrency = 1
		}
		deps[name] = &dependency{sem: semaphore.NewWeighted(l.Concurrency), timeout: l.Timeout}
	}
	return &Limits{deps: deps, retry: rc}
}

// Call runs fn holding one slot of the dependency for each attempt. An attempt
// hitting the dependency timeout counts as a transient failure and is retried.
func Call[T any](ctx context.Context, l *Limits, dep string, fn func(ctx context.Context) (T, error)) (T, error) {
	d := l.dependency(dep)
	if d == nil {
		return fn(ctx)
	}

	return retry.Do(ctx, retry.NewPolicy[T](l.retry), func(ctx context.Context) (T, error) {
		var zero T
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		defer d.sem.Release(1)

		attemptCtx := ctx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		out, err := fn(attemptCtx)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out: %v: %w", dep, err, lead.ErrTransientExternal)
		}
		if l.observe != nil {
			l.observe(dep, err)
		}
		return out, err
	})
}

func (l *Limits) dependency(name string) *dependency {
	if l == nil || name == "" {
		return nil
	}
	return l.deps[name]
}
