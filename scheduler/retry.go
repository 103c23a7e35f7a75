package scheduler

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sitegauge/sitegauge/models"
)

// linearBackoff grows the delay by base per attempt, capped. One instance
// serves one retry loop; it is not shared across goroutines.
func linearBackoff(base, cap time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		d := time.Duration(attempt) * base
		if d > cap {
			d = cap
		}
		return d, false
	})
}

// runWithRetry invokes fn up to maxAttempts times with capped linear
// backoff. Permanent errors (bad credentials, invalid input) abort the
// loop immediately; context expiry ends it between attempts.
//
// Criterion-specific retry counts are configuration on the descriptor, so
// every criterion runs through this one loop instead of hand-rolled
// per-criterion variants.
func runWithRetry(
	ctx context.Context,
	maxAttempts int,
	base, cap time.Duration,
	fn func(ctx context.Context) (models.CriterionResult, error),
) (models.CriterionResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var out models.CriterionResult
	b := retry.WithMaxRetries(uint64(maxAttempts-1), linearBackoff(base, cap))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			if models.IsPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		out = res
		return nil
	})
	if err != nil {
		return models.CriterionResult{}, err
	}
	return out, nil
}
