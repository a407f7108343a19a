package retry

import (
	"context"
	"errors"
	"fmt"
)

// ErrTooManyConsecutiveFailures is returned by RunConsecutive once more
// than maxConsecutive items in a row have failed.
var ErrTooManyConsecutiveFailures = errors.New("too many consecutive failures")

// RunConsecutive applies fn to each item in order, resetting a consecutive-
// failure counter on every success and aborting once the counter exceeds
// maxConsecutive. This is the "outer fold" layered on top of Do for the STT
// segment loop: each item's own retries are handled inside fn (typically by
// calling Do), and RunConsecutive tracks whether the run as a whole is
// degrading across items rather than within one item's attempts.
//
// onItemDone is called after every item (success or failure) so callers can
// update progress before the next item starts or the run aborts.
func RunConsecutive[T any](
	ctx context.Context,
	items []T,
	maxConsecutive int,
	fn func(ctx context.Context, item T, index int) error,
	onItemDone func(index int, err error),
) error {
	consecutiveFailures := 0
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, item, i)
		if onItemDone != nil {
			onItemDone(i, err)
		}

		if err != nil {
			consecutiveFailures++
			if consecutiveFailures > maxConsecutive {
				return fmt.Errorf("%w: %d consecutive failures at index %d: %v", ErrTooManyConsecutiveFailures, consecutiveFailures, i, err)
			}
			continue
		}
		consecutiveFailures = 0
	}
	return nil
}
