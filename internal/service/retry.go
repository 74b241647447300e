package service

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

// Retrier re-runs a booking operation once when it lost a lock race.
// No other error class is retried.
type Retrier struct {
	policy retrypolicy.RetryPolicy[any]
}

// NewRetrier builds a Retrier that waits delay before the single retry.
func NewRetrier(delay time.Duration, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay < 0 {
		delay = 0
	}
	policy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return isConcurrencyConflict(err)
		}).
		WithMaxRetries(1).
		WithDelay(delay).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			logger.Warn("booking operation hit a concurrency conflict, retrying", zap.Int("attempt", e.Attempts()), zap.Error(e.LastError()))
		}).
		Build()
	return &Retrier{policy: policy}
}

// Do runs fn, retrying once on CONCURRENCY_CONFLICT. A nil Retrier runs fn once.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	if r == nil {
		return fn()
	}
	return failsafe.With[any](r.policy).WithContext(ctx).Run(fn)
}

func isConcurrencyConflict(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, repository.ErrConcurrencyConflict) || appErrors.HasCode(err, appErrors.ErrConcurrencyConflict.Code)
}
