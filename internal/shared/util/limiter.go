package util

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket limiter used to cap how often expensive work
// (full re-renders, history writes) runs under event storms.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a limiter refilling perSecond tokens with the given
// burst size.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow reports whether one more event may happen now.
func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}

// Wait blocks until the next event is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}
