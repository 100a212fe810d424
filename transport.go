package nsapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// transport implements http.RoundTripper and drives the governed
// request/retry state machine for API requests. Requests to other hosts
// are forwarded untouched.
type transport struct {
	limiter *Limiter
	base    http.RoundTripper
}

// RoundTrip sends req, enforcing the API's rate budget.
//
// For requests to the API endpoint it acquires the process-wide lock,
// injects the User-Agent header, and inspects the response: remaining
// quota of zero defers the lock's release until the quota resets; a 429
// is resent after the server-declared delay without giving up the lock;
// 500 and 502 are resent with bounded exponential backoff. Telegram
// dispatches are additionally paced through the telegram limiter, and a
// 429 that carries the telegram budget's signature on an undeclared
// request is rerouted under the telegram limiter.
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	l := t.limiter
	if !isAPIHost(req.URL) {
		return t.send(req)
	}
	agent := l.agent.Get()
	if agent == "" {
		return nil, ErrAgentNotSet
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", agent)
	if req.URL.Path != apiPath {
		// Daily dumps and other static pages share the host but not the
		// call budget.
		return t.send(req)
	}

	ctx := req.Context()
	if l.budget != nil {
		if err := l.budget.Wait(ctx); err != nil {
			return nil, err
		}
	}

	telegram := l.telegramMode || isTelegramQuery(req.URL)
	return t.exchange(ctx, req, telegram)
}

// exchange runs the retry loop. The telegram gate (when applicable) and
// the API lock are acquired in that order; on every exit path both are
// released, either directly or through a deferred release timer.
func (t *transport) exchange(ctx context.Context, req *http.Request, telegram bool) (*http.Response, error) {
	l := t.limiter

	if telegram {
		if err := l.telegram.gate(ctx, l.telegramTier); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	if err := l.lock.Acquire(ctx); err != nil {
		if telegram {
			l.telegram.abort()
		}
		return nil, err
	}
	l.metrics.LockWait(time.Since(start))

	fail := func(err error) (*http.Response, error) {
		l.lock.Release()
		if telegram {
			l.telegram.abort()
		}
		return nil, err
	}

	bo := newBackoff(l.maxRetries, l.backoffUnit)
	for {
		resp, err := t.send(req)
		if err != nil {
			return fail(err)
		}

		act, delay := decide(resp.StatusCode, resp.Header, telegram)
		switch act {
		case actRetryAfter:
			l.logger.Info("rate limit hit, retrying",
				slog.Duration("retry_after", delay),
				slog.String("url", req.URL.Redacted()))
			l.metrics.Retry("retry-after")
			bo = newBackoff(l.maxRetries, l.backoffUnit)
			drain(resp)
			if err := sleepCtx(ctx, delay); err != nil {
				return fail(err)
			}
			continue

		case actBackoff:
			d, ok := bo.next()
			if !ok {
				// Out of retries; the response is returned as-is and the
				// caller decides whether it is a failure.
				return t.finish(resp, telegram)
			}
			l.logger.Debug("transient server error, retrying",
				slog.Int("status", resp.StatusCode),
				slog.Duration("backoff", d))
			l.metrics.Retry("backoff")
			drain(resp)
			if err := sleepCtx(ctx, d); err != nil {
				return fail(err)
			}
			continue

		case actEscalate:
			// The general quota still has headroom, so this 429 came from
			// the telegram budget on a request that never declared itself
			// as telegram traffic. Reroute the retry under the telegram
			// limiter. The API lock is released first so lock ordering
			// stays telegram-before-API, as on the declared path.
			wait := l.telegram.escalate(delay)
			l.logger.Warn("undeclared telegram request hit telegram rate limit, rerouting",
				slog.Duration("wait", wait),
				slog.String("url", req.URL.Redacted()))
			l.metrics.Retry("escalate")
			bo = newBackoff(l.maxRetries, l.backoffUnit)
			drain(resp)
			l.lock.Release()
			telegram = true
			if err := l.telegram.gateAfter(ctx, wait); err != nil {
				return nil, err
			}
			start := time.Now()
			if err := l.lock.Acquire(ctx); err != nil {
				l.telegram.abort()
				return nil, err
			}
			l.metrics.LockWait(time.Since(start))
			continue

		default:
			return t.finish(resp, telegram)
		}
	}
}

// finish applies the response's quota headers to the lock, releases held
// locks, and returns the response. The lock release is a no-op when the
// quota headers armed a deferred release.
func (t *transport) finish(resp *http.Response, telegram bool) (*http.Response, error) {
	l := t.limiter
	l.lock.MaybeDefer(resp.Header)
	if until, ok := l.lock.DeferredUntil(); ok {
		l.metrics.Deferral(time.Until(until))
		l.logger.Debug("quota exhausted, deferring lock release",
			slog.Time("until", until))
	}
	l.lock.Release()
	if telegram {
		if resp.StatusCode < 400 {
			l.telegram.sent()
		} else {
			l.telegram.abort()
		}
	}
	l.metrics.Request(resp.StatusCode)
	return resp, nil
}

// send performs one exchange on the base transport, through the circuit
// breaker when one is configured.
func (t *transport) send(req *http.Request) (*http.Response, error) {
	cb := t.limiter.breaker
	if cb == nil {
		return t.base.RoundTrip(req)
	}
	v, err := cb.Execute(func() (interface{}, error) {
		return t.base.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}

// drain discards a retried response's body so the underlying connection
// can be reused.
func drain(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}
