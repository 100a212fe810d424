package nsapi

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Option configures the Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger used for retry and escalation
// events. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. The default discards all
// observations; see [NewPrometheusMetrics] for a Prometheus-backed sink.
func WithMetrics(m Metrics) Option {
	return func(l *Limiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithMaxRetries sets the ceiling of the exponential backoff sequence for
// transient 500/502 responses. It does not bound 429 retries, which
// always honor the server-declared delay.
func WithMaxRetries(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithTelegram declares that requests sent through this limiter are
// telegram dispatches of the given tier. Telegram requests built with
// [Telegram] are detected automatically; this option exists for requests
// constructed by hand.
func WithTelegram(tier Tier) Option {
	return func(l *Limiter) {
		l.telegramMode = true
		l.telegramTier = tier
	}
}

// WithTelegramIntervals overrides the pacing intervals for the two
// telegram tiers. The server-side rule they approximate is undocumented,
// so these are policy knobs rather than constants. Non-positive values
// leave the current interval unchanged.
func WithTelegramIntervals(api, recruitment time.Duration) Option {
	return func(l *Limiter) {
		l.telegram.setIntervals(api, recruitment)
	}
}

// WithLocalBudget replaces the local request budget applied before lock
// acquisition. The default matches the published API limit of 50 requests
// per 30 seconds.
func WithLocalBudget(requests int, per time.Duration) Option {
	return func(l *Limiter) {
		if requests > 0 && per > 0 {
			l.budget = rate.NewLimiter(rate.Limit(requests)/rate.Limit(per.Seconds()), requests)
		}
	}
}

// WithoutLocalBudget disables the local request budget, leaving only the
// lock and the response headers to pace requests.
func WithoutLocalBudget() Option {
	return func(l *Limiter) {
		l.budget = nil
	}
}

// WithCircuitBreaker wraps the underlying transport in a circuit breaker
// so that a persistently failing API fails fast instead of consuming
// retries. See [DefaultBreakerConfig].
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(l *Limiter) {
		l.breaker = newBreaker(cfg, l.logger)
	}
}

// WithAgent uses a dedicated agent state instead of the process-wide one.
// This is mostly useful for tests and for tools that legitimately operate
// under more than one identity.
func WithAgent(a *Agent) Option {
	return func(l *Limiter) {
		if a != nil {
			l.agent = a
		}
	}
}
