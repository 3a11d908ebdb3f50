package pactmock

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

var errNotYet = errors.New("retry")

// retryFor calls do every delay until it returns true or duration elapsed.
// It reports whether do succeeded.
func retryFor(do func(time.Duration) bool, delay, duration time.Duration) bool {
	if delay <= 0 {
		delay = defaultWaitDelay
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	err := retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errNotYet
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(duration/delay)+1),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}),
	)
	return err == nil
}
