package nsapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Local request budget, matching the published API limit of 50 requests
// per 30 seconds. The budget is applied before lock acquisition as a belt
// against bursts from many concurrent callers; the authoritative limit is
// still enforced through the response headers.
const (
	defaultBudgetRequests = 50
	defaultBudgetWindow   = 30 * time.Second
)

// Process-wide governed state. The API budget is per machine, not per
// client, so every limiter created with [New] shares one lock, one
// telegram limiter, one local budget, and one agent. Constructed lazily
// on first use.
var (
	sharedLock     = sync.OnceValue(NewResetLock)
	sharedTelegram = sync.OnceValue(func() *TelegramLimiter { return NewTelegramLimiter(0, 0) })
	sharedAgent    = sync.OnceValue(func() *Agent { return new(Agent) })
	sharedBudget   = sync.OnceValue(func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(defaultBudgetRequests)/rate.Limit(defaultBudgetWindow.Seconds()), defaultBudgetRequests)
	})
)

// Limiter governs outgoing requests to the NationStates API. It
// serializes API calls through a process-wide [ResetLock], injects the
// User-Agent header, defers the lock's release while the server-side
// quota is exhausted, retries 429s after the server-declared delay and
// transient 5xxs with randomized exponential backoff, and routes telegram
// dispatches through the independently-paced [TelegramLimiter].
//
// Requests to other hosts pass through untouched.
type Limiter struct {
	lock     *ResetLock
	telegram *TelegramLimiter
	agent    *Agent
	budget   *rate.Limiter

	logger      *slog.Logger
	metrics     Metrics
	maxRetries  int
	// backoffUnit scales the exponential backoff delays; tests shrink it
	// to keep retries fast.
	backoffUnit time.Duration

	telegramMode bool
	telegramTier Tier

	breaker *gobreaker.CircuitBreaker
}

// New creates a new Limiter with the given options. All limiters share
// the process-wide lock, telegram pacing state, and agent, so creating
// several limiters (for example one per worker) still respects the single
// remote budget.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		lock:        sharedLock(),
		telegram:    sharedTelegram(),
		agent:       sharedAgent(),
		budget:      sharedBudget(),
		logger:      slog.Default(),
		metrics:     NopMetrics{},
		maxRetries:  defaultMaxRetries,
		backoffUnit: time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Transport wraps an http.RoundTripper so that all requests made through
// it are governed by the limiter. A nil base uses http.DefaultTransport.
func (l *Limiter) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{limiter: l, base: base}
}

// Client returns an *http.Client whose transport is governed by the
// limiter.
func (l *Limiter) Client() *http.Client {
	return &http.Client{Transport: l.Transport(nil)}
}

// Send executes a single governed round trip, blocking through any rate
// limit waits and retries. It is equivalent to SendContext with a
// background context.
func (l *Limiter) Send(req *http.Request) (*http.Response, error) {
	return l.SendContext(context.Background(), req)
}

// SendContext executes a single governed round trip. Waits for the lock,
// retry delays, and telegram pacing all honor ctx; cancellation releases
// any held locks before returning.
func (l *Limiter) SendContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	t := &transport{limiter: l, base: http.DefaultTransport}
	return t.RoundTrip(req.WithContext(ctx))
}

// Deferred returns the wall-clock time at which the API lock's pending
// deferred release will fire, or false if the lock is not deferred.
func (l *Limiter) Deferred() (time.Time, bool) {
	return l.lock.DeferredUntil()
}

// Locked reports whether the API lock is currently held.
func (l *Limiter) Locked() bool {
	return l.lock.Held()
}
