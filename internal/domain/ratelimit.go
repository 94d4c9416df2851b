package domain

import "time"

// RateLimiter admits or rejects a request for a subject key before the
// protected operation runs. A denial must not mutate any state; retryAfter
// is the backpressure guidance returned to the caller.
type RateLimiter interface {
	Allow(key string) (ok bool, retryAfter time.Duration)
}
