// Package retry wraps calls to external collaborators in bounded backoff retries.
// Only errors wrapping lead.ErrTransientExternal are retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

type Config struct {
	MaxRetries int           `mapstructure:"max-retries"`
	BaseDelay  time.Duration `mapstructure:"base-delay"`
	MaxDelay   time.Duration `mapstructure:"max-delay"`
}

func DefaultConfig() Config {
	return Config{MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func normalize(cfg Config) Config {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return cfg
}

// Transient reports whether err is worth another attempt.
func Transient(err error) bool {
	return err != nil && errors.Is(err, lead.ErrTransientExternal) && !errors.Is(err, context.Canceled)
}

// NewPolicy builds a retry policy returning the last failure once exhausted.
func NewPolicy[T any](cfg Config) retrypolicy.RetryPolicy[T] {
	cfg = normalize(cfg)
	return retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool { return Transient(err) }).
		ReturnLastFailure().
		Build()
}

// Do runs fn under the policy, stopping early when ctx is done.
func Do[T any](ctx context.Context, policy retrypolicy.RetryPolicy[T], fn func(ctx context.Context) (T, error)) (T, error) {
	return failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		return fn(ctx)
	})
}
