// Package poll waits on remote state with a bounded number of attempts.
package poll

import (
	"context"
	"time"
)

// Policy bounds a polling loop. Multiplier <= 1 keeps the delay fixed.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}

// Check reports whether the awaited condition holds. A returned error does not
// stop the loop; it is kept and returned if no later attempt succeeds.
type Check func(ctx context.Context) (bool, error)

// Until runs check up to MaxAttempts times, sleeping Delay between attempts.
// It returns true as soon as check is satisfied. Context cancellation ends the
// loop early with ctx.Err().
func (p Policy) Until(ctx context.Context, check Check) (bool, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	var lastErr error

	for i := 0; i < attempts; i++ {
		ok, err := check(ctx)
		if err == nil && ok {
			return true, nil
		}
		if err != nil {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			case <-timer.C:
			}
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return false, lastErr
}
