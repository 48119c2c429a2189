package backend

import (
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy decides how long to wait before the next reconnection attempt.
type RetryPolicy interface {
	// NextDelay returns the delay before the next attempt.
	NextDelay() time.Duration

	// Reset resets the policy after a successful connection.
	Reset()
}

// ExponentialBackoff is the default retry policy.
type ExponentialBackoff struct {
	b *backoff.Backoff
}

// NewExponentialBackoff creates an exponential backoff policy with jitter.
func NewExponentialBackoff(min, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		b: &backoff.Backoff{
			Min:    min,
			Max:    max,
			Factor: 2,
			Jitter: true,
		},
	}
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *ExponentialBackoff {
	return NewExponentialBackoff(500*time.Millisecond, 30*time.Second)
}

// NextDelay returns the next backoff duration.
func (e *ExponentialBackoff) NextDelay() time.Duration {
	return e.b.Duration()
}

// Reset resets the backoff to its minimum.
func (e *ExponentialBackoff) Reset() {
	e.b.Reset()
}
