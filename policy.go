package nsapi

import (
	"context"
	"net/http"
	"time"
)

// action is the outcome of inspecting a governed response.
type action int

const (
	// actDone terminates the retry loop and returns the response.
	actDone action = iota
	// actRetryAfter resends after the server-declared Retry-After delay,
	// holding the API lock throughout.
	actRetryAfter
	// actBackoff resends after the next exponential backoff delay,
	// holding the API lock throughout.
	actBackoff
	// actEscalate reroutes the retry through the telegram limiter: the
	// request hit the telegram rate limit without being declared as
	// telegram traffic.
	actEscalate
)

// decide maps a response onto the retry policy. It is the single decision
// point shared by every path through the retry loop.
//
// A 429 normally means the general API budget was exceeded and carries an
// authoritative Retry-After. A 429 whose RateLimit-Remaining is still
// nonzero, on a request not declared as telegram traffic, is the signature
// of the separately-budgeted telegram endpoint; those are escalated.
// 500 and 502 are transient and retried with backoff. Everything else is
// terminal.
func decide(status int, h http.Header, telegram bool) (action, time.Duration) {
	switch status {
	case http.StatusTooManyRequests:
		retry := time.Duration(headerInt(h, "Retry-After", 0)) * time.Second
		if !telegram && headerInt(h, "RateLimit-Remaining", 1) != 0 {
			return actEscalate, retry
		}
		if retry > 0 {
			return actRetryAfter, retry
		}
		return actDone, 0
	case http.StatusInternalServerError, http.StatusBadGateway:
		return actBackoff, 0
	default:
		return actDone, 0
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
