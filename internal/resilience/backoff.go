package resilience

import (
	"math"
	"time"
)

// DefaultMaxBackoff caps exponential growth so a deep retry chain
// cannot stall a job for minutes.
const DefaultMaxBackoff = 2 * time.Minute

// Backoff returns the delay before retry number attempt (0-based):
// initial * multiplier^attempt, capped at max.
func Backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}

	d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// ExponentialBackoff is Backoff with the conventional doubling multiplier.
func ExponentialBackoff(attempt int, initial time.Duration) time.Duration {
	return Backoff(attempt, initial, DefaultMaxBackoff, 2.0)
}
