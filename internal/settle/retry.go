package settle

import (
	"context"
	"errors"
	"time"

	"tokenLiquidity/internal/model"
)

// Policy bounds how a settlement attempt is retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy retries five times starting at two seconds.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
}

// Retry runs fn until it succeeds, the retry budget is spent or ctx ends.
// Invalid-argument failures are returned immediately. It reports the number
// of attempts made.
func Retry(ctx context.Context, policy Policy, fn func(context.Context) error) (int, error) {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if errors.Is(err, model.ErrInvalidArgument) || attempt >= maxRetries {
			return attempt + 1, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
