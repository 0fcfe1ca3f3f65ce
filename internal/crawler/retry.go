package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/cenkalti/backoff/v4"
)

// ErrRateLimited is returned once a page keeps answering 429 after every
// retry has been spent
var ErrRateLimited = errors.New("rate limited: retries exhausted")

var errTooManyRequests = errors.New("too many requests")

// StatusError is a response that is neither success nor rate limiting
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// RetryPolicy bounds the exponential backoff applied to rate-limited fetches
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// PolicyFromConfig builds the retry policy from the runtime configuration
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		Attempts:   cfg.RetryAttempts,
		Initial:    time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Max:        time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		Multiplier: cfg.RetryMultiplier,
		Jitter:     cfg.RetryJitter,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0 // bounded by attempts only
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts)), ctx)
}
