package taskqueue

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and when.
type RetryPolicy struct {
	// MaxRetries counts re-executions after the first attempt.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	JitterMax   time.Duration

	// Retryable classifies errors; nil means nothing is retried.
	Retryable func(error) bool
}

// ShouldRetry reports whether a task that failed on attempt (1-based) with err
// gets another run.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || IsPermanent(err) || p.Retryable == nil {
		return false
	}
	if attempt > p.MaxRetries {
		return false
	}
	return p.Retryable(err)
}

// Backoff returns the delay before retry number attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = math.MaxInt64
	}
	return backoff(attempt, base, maxBackoff)
}

func backoff(attempts int, base, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	// base * 2^(attempts-1)
	factor := math.Pow(2, float64(attempts-1))
	d := float64(base) * factor
	if d >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(d)
}

func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	if r == nil {
		return 0
	}
	// [0, maxJitter]
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}
