// Package retry factors every sleep-and-retry loop in the pipeline into one
// combinator, parameterized by a policy and an error classifier, so the STT
// and LLM clients do not each hand-roll backoff logic.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds one retry loop.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Classify reports whether err should be retried. A nil Classify
	// retries every non-nil error.
	Classify func(error) bool
}

// ErrExhausted is returned once a policy's attempts run out without op
// succeeding.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs op under policy, sleeping between attempts with a bounded
// exponential backoff, until it succeeds, Classify rejects an error, ctx is
// cancelled, or attempts are exhausted.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	if policy.Multiplier > 0 {
		b.Multiplier = policy.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.Classify != nil && !policy.Classify(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		wait := b.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}
