package gateway

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the gateway's retry behavior. The delay sequence grows
// geometrically from BaseDelay by Multiplier up to MaxDelay, with no jitter
// so tests can assert exact values.
type RetryPolicy struct {
	// MaxAttempts is the default attempt bound for rate-limited failures,
	// used when a request does not carry its own retry budget.
	MaxAttempts int

	// OtherAttempts bounds attempts for non-rate-limit transport failures.
	OtherAttempts int

	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the tuning the pipeline was calibrated with:
// rate limits back off 5s, 10s, 20s, 40s capped at a minute; anything else
// fails after three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		OtherAttempts: 3,
		BaseDelay:     5 * time.Second,
		Multiplier:    2.0,
		MaxDelay:      60 * time.Second,
	}
}

// delays returns a fresh backoff sequence for one call's retry loop.
func (p RetryPolicy) delays() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
