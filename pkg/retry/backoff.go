package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func newBackoff(policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = policy.MaxElapsedTime
	return exp
}

// BackoffDelay computes the delay after the given attempt (1-based)
// without driving a backoff instance. The relay worker uses it to gate
// re-claims of failed outbox records by attempt count.
func BackoffDelay(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt-1))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
