package transport

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"redial/internal/circuitbreaker"
	"redial/internal/ratelimit"
	"redial/pkg/core"
)

// Guarded puts a rate limiter and a circuit breaker in front of the reconnect
// attempts of another link. An attempt refused by the breaker fails immediately
// with core.ErrCircuitOpen, which the state machine counts like any failed attempt.
type Guarded struct {
	Link

	breaker *circuitbreaker.Breaker
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// NewGuarded wraps link. Disabled parts of config leave the corresponding guard out.
func NewGuarded(link Link, config core.GuardConfig) *Guarded {
	g := &Guarded{
		Link:   link,
		logger: zerolog.Nop(),
	}
	if config.CircuitBreakerEnabled {
		g.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}
	if config.RateLimitAttempts > 0 {
		g.limiter = ratelimit.New(config.RateLimitAttempts, config.RateLimitPeriod)
	}
	return g
}

// SetLogger configures the logger for the guard.
func (g *Guarded) SetLogger(logger zerolog.Logger) {
	g.logger = logger
}

// Reconnect waits for the limiter, consults the breaker, then delegates.
// Outcomes of attempts cut short by ctx are not fed to the breaker.
func (g *Guarded) Reconnect(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if g.breaker != nil && !g.breaker.Allow() {
		g.logger.Debug().Str("breaker", g.breaker.State().String()).Msg("reconnect refused")
		return core.ErrCircuitOpen
	}

	err := g.Link.Reconnect(ctx)
	if g.breaker != nil && ctx.Err() == nil {
		g.breaker.Record(err == nil)
	}
	return err
}

// BreakerState returns the breaker state, or StateClosed when no breaker is configured.
func (g *Guarded) BreakerState() circuitbreaker.State {
	if g.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return g.breaker.State()
}

// Stats returns the breaker and limiter counters. Absent guards report zero values.
func (g *Guarded) Stats() (circuitbreaker.MetricsSnapshot, ratelimit.MetricsSnapshot) {
	var b circuitbreaker.MetricsSnapshot
	var l ratelimit.MetricsSnapshot
	if g.breaker != nil {
		b = g.breaker.Metrics()
	}
	if g.limiter != nil {
		l = g.limiter.Metrics()
	}
	return b, l
}
