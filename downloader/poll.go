package downloader

import (
	"context"
	"fmt"
	"time"
)

// PollUntil evaluates cond, sleeping interval between evaluations, until it
// returns true. A positive max bounds the total time slept; reaching it
// yields ErrPollTimeout. A cond error ends polling with that error.
func PollUntil(ctx context.Context, interval, max time.Duration, sleep SleepFunc, cond func(ctx context.Context) (bool, error)) error {
	if sleep == nil {
		sleep = Sleep
	}

	var waited time.Duration
	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if max > 0 && waited >= max {
			return fmt.Errorf("%w after %v", ErrPollTimeout, waited)
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
		waited += interval
	}
}
