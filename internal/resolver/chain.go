package resolver

import (
	"context"

	"go.uber.org/zap"
)

// Strategy is one way of producing Out from In. Attempt reports false when it
// found nothing; errors are treated the same way by the chain.
type Strategy[In, Out any] interface {
	Name() string
	Dependency() string
	Attempt(ctx context.Context, in In) (Out, bool, error)
}

// Chain tries strategies in priority order until one succeeds.
type Chain[In, Out any] struct {
	Strategies []Strategy[In, Out]
	Limits     *Limits
	Logger     *zap.Logger
}

type attempt[Out any] struct {
	out Out
	ok  bool
}

// First returns the output of the first successful strategy and its name.
func (c Chain[In, Out]) First(ctx context.Context, in In) (Out, string, bool) {
	var zero Out
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, s := range c.Strategies {
		if ctx.Err() != nil {
			return zero, "", false
		}

		res, err := Call(ctx, c.Limits, s.Dependency(), func(ctx context.Context) (attempt[Out], error) {
			out, ok, err := s.Attempt(ctx, in)
			return attempt[Out]{out: out, ok: ok}, err
		})
		if err != nil {
			logger.Warn("strategy failed", zap.String("strategy", s.Name()), zap.String("dependency", s.Dependency()), zap.Error(err))
			continue
		}
		if !res.ok {
			logger.Debug("strategy found nothing", zap.String("strategy", s.Name()))
			continue
		}

		logger.Debug("strategy succeeded", zap.String("strategy", s.Name()))
		return res.out, s.Name(), true
	}

	return zero, "", false
}
