package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// retryWithBackoff wraps op with spec.md §4.F's retry policy: exponential
// backoff base × 2^(attempt−1), bounded by maxRetries, classifying errors
// via coretypes.IsRetryable. Non-retryable errors stop immediately.
func retryWithBackoff(ctx context.Context, maxRetries uint64, baseDelay time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !coretypes.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bounded)
}
