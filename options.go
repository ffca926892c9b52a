package dashboard

import (
	"time"

	"github.com/zoobzio/pipz"
)

// Option configures the fetch pipeline of a Coordinator. Pipeline options
// wrap the data-source fetch with middleware for retry, backoff, and
// timeout protection.
//
// Instance configuration (clock, metrics, error history, stop hook) is
// handled via chainable methods on the Coordinator before calling Start().
type Option func(pipz.Chainable[*FetchRequest]) pipz.Chainable[*FetchRequest]

// WithFetchRetry wraps the fetch with retry logic.
// Failed fetches are retried immediately up to maxAttempts times.
// For exponential backoff between retries, use WithFetchBackoff instead.
func WithFetchRetry(maxAttempts int) Option {
	return func(p pipz.Chainable[*FetchRequest]) pipz.Chainable[*FetchRequest] {
		return pipz.NewRetry("fetch-retry", p, maxAttempts)
	}
}

// WithFetchBackoff wraps the fetch with exponential backoff retry logic.
// Failed fetches are retried with increasing delays: baseDelay,
// 2*baseDelay, 4*baseDelay, and so on.
func WithFetchBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(p pipz.Chainable[*FetchRequest]) pipz.Chainable[*FetchRequest] {
		return pipz.NewBackoff("fetch-backoff", p, maxAttempts, baseDelay)
	}
}

// WithFetchTimeout wraps each fetch attempt with an upper bound. A fetch
// that exceeds the duration fails with a timeout error instead of hanging;
// outer retry options then decide whether to try again.
func WithFetchTimeout(d time.Duration) Option {
	return func(p pipz.Chainable[*FetchRequest]) pipz.Chainable[*FetchRequest] {
		return pipz.NewTimeout("fetch-timeout", p, d)
	}
}
