package taskqueue

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	maxBackoff := 60 * time.Second
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 0},
		{attempts: 1, want: 1 * time.Second},
		{attempts: 2, want: 2 * time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 7, want: 60 * time.Second}, // cap
	}

	for _, tc := range cases {
		if got := backoff(tc.attempts, time.Second, maxBackoff); got != tc.want {
			t.Fatalf("attempts=%d: want %s got %s", tc.attempts, tc.want, got)
		}
	}
}

func TestRetryPolicy_Backoff_Defaults(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{BaseBackoff: 30 * time.Second, MaxBackoff: 10 * time.Minute}
	if got := p.Backoff(1); got != 30*time.Second {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := p.Backoff(3); got != 2*time.Minute {
		t.Fatalf("attempt 3: got %s", got)
	}
	if got := p.Backoff(10); got != 10*time.Minute {
		t.Fatalf("attempt 10: got %s", got)
	}
	if got := (RetryPolicy{}).Backoff(2); got != 2*time.Second {
		t.Fatalf("zero policy: got %s", got)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	errTransient := errors.New("transient")
	errOther := errors.New("other")
	p := RetryPolicy{
		MaxRetries: 3,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	}

	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "retryable first attempt", err: errTransient, attempt: 1, want: true},
		{name: "retryable last retry", err: errTransient, attempt: 3, want: true},
		{name: "retries exhausted", err: errTransient, attempt: 4, want: false},
		{name: "not retryable", err: errOther, attempt: 1, want: false},
		{name: "permanent wins", err: Permanent(errTransient), attempt: 1, want: false},
	}
	for _, tc := range cases {
		if got := p.ShouldRetry(tc.err, tc.attempt); got != tc.want {
			t.Fatalf("%s: want %v got %v", tc.name, tc.want, got)
		}
	}

	if (RetryPolicy{MaxRetries: 3}).ShouldRetry(errTransient, 1) {
		t.Fatalf("nil classifier must not retry")
	}
}

func TestJitterDeterministic(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(1))
	maxJitter := 200 * time.Millisecond

	got := jitter(r, maxJitter)
	if got < 0 || got > maxJitter {
		t.Fatalf("jitter out of range: %s", got)
	}

	r2 := rand.New(rand.NewSource(1))
	if got2 := jitter(r2, maxJitter); got2 != got {
		t.Fatalf("expected deterministic jitter; got %s and %s", got, got2)
	}

	if jitter(nil, maxJitter) != 0 || jitter(r, 0) != 0 {
		t.Fatalf("expected zero jitter")
	}
}
