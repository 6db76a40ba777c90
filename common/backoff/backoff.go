// Package backoff contains helpers for dealing with backoffs.
package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewExponentialBackOff creates an instance of ExponentialBackOff using reasonable defaults.
//
// A zero maxElapsed makes the backoff never stop.
func NewExponentialBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
}
