package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second. Zero or less disables limiting.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter is a token bucket limiter for outgoing calls.
// A nil *Limiter lets every call through.
type Limiter struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	r := rate.Inf
	if opts.Rate > 0 {
		r = rate.Limit(opts.Rate)
	}
	return &Limiter{lim: rate.NewLimiter(r, opts.Burst), now: time.Now}
}

// Allow checks if a request is allowed (non-blocking).
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.AllowN(l.now(), 1)
}

// Wait blocks until a token is available or ctx is done. When the wait
// would outlast the ctx deadline it fails immediately with ErrRateLimited.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}
