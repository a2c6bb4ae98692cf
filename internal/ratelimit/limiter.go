// Package ratelimit spaces out reconnect attempts with a token bucket.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows a fixed number of events per period with a burst of the same size.
type Limiter struct {
	limiter *rate.Limiter
	waited  atomic.Int64
	denied  atomic.Int64
}

// New creates a Limiter that admits events per period.
func New(events int, period time.Duration) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(perPeriod(events, period), events),
	}
}

func perPeriod(events int, period time.Duration) rate.Limit {
	return rate.Limit(float64(events) / period.Seconds())
}

// Wait blocks until an event is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.denied.Add(1)
		return err
	}
	l.waited.Add(1)
	return nil
}

// Allow reports whether an event is admitted right now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l.limiter.Allow() {
		l.waited.Add(1)
		return true
	}
	l.denied.Add(1)
	return false
}

// SetLimit changes the rate to events per period. The burst follows events.
func (l *Limiter) SetLimit(events int, period time.Duration) {
	l.limiter.SetLimit(perPeriod(events, period))
	l.limiter.SetBurst(events)
}

// Metrics returns a snapshot of admission counters.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Admitted: l.waited.Load(),
		Denied:   l.denied.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// Admitted is the number of events let through.
	Admitted int64
	// Denied is the number of events refused or abandoned while waiting.
	Denied int64
}
