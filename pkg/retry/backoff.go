package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newExponential builds the jittered backoff used by Policy. A zero
// maxElapsed retries until MaxAttempts is reached.
func newExponential(initial, max, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = max
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = maxElapsed
	exp.Reset()
	return exp
}

// Delay is the deterministic counterpart of the policy backoff:
// initial * multiplier^attempt, capped at max.
func Delay(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(initial) * math.Pow(multiplier, float64(attempt))
	if d > float64(max) || math.IsInf(d, 1) {
		return max
	}
	return time.Duration(d)
}

// ExponentialDelay returns min(base * 2^attempt, max). Negative attempts yield base.
func ExponentialDelay(attempt int, base, max time.Duration) time.Duration {
	return Delay(attempt, base, 2.0, max)
}
