package nsapi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Tier selects the telegram pacing class. The API enforces a longer
// minimum interval between recruitment telegrams than between ordinary
// API telegrams.
type Tier int

const (
	// TierAPI paces ordinary API telegrams (30 seconds apart by default).
	TierAPI Tier = iota
	// TierRecruitment paces recruitment telegrams (180 seconds apart by
	// default).
	TierRecruitment
)

// Default minimum intervals between telegram dispatches per tier. These
// approximate an undocumented server-side rule and can be overridden with
// [WithTelegramIntervals].
const (
	DefaultTelegramInterval    = 30 * time.Second
	DefaultRecruitmentInterval = 180 * time.Second
)

func (t Tier) String() string {
	switch t {
	case TierAPI:
		return "TierAPI"
	case TierRecruitment:
		return "TierRecruitment"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// TelegramLimiter paces telegram dispatches, which the API budgets
// independently from general API calls. It combines its own [ResetLock]
// with a minimum inter-dispatch interval: a dispatch may not start until
// the interval since the previous successful dispatch has elapsed.
//
// One TelegramLimiter instance governs the process; limiters created with
// [New] share it.
type TelegramLimiter struct {
	lock *ResetLock

	mu       sync.Mutex
	lastSent time.Time
	// floor is the minimum interval learned from escalations; it is
	// applied on top of whatever tier the caller declared.
	floor       time.Duration
	short, long time.Duration
}

// NewTelegramLimiter creates an isolated telegram limiter with the given
// short (API) and long (recruitment) tier intervals. Non-positive values
// use the defaults.
func NewTelegramLimiter(short, long time.Duration) *TelegramLimiter {
	if short <= 0 {
		short = DefaultTelegramInterval
	}
	if long <= 0 {
		long = DefaultRecruitmentInterval
	}
	return &TelegramLimiter{
		lock:  NewResetLock(),
		short: short,
		long:  long,
	}
}

// gate acquires the telegram lock and waits out the remainder of the
// pacing interval since the previous dispatch. On error the lock is not
// held.
func (tg *TelegramLimiter) gate(ctx context.Context, tier Tier) error {
	if err := tg.lock.Acquire(ctx); err != nil {
		return err
	}
	tg.mu.Lock()
	var wait time.Duration
	if !tg.lastSent.IsZero() {
		wait = time.Until(tg.lastSent.Add(tg.intervalLocked(tier)))
	}
	tg.mu.Unlock()
	if err := sleepCtx(ctx, wait); err != nil {
		tg.lock.Release()
		return err
	}
	return nil
}

// gateAfter acquires the telegram lock and waits the explicit delay,
// used when an escalated 429 dictates the wait directly.
func (tg *TelegramLimiter) gateAfter(ctx context.Context, delay time.Duration) error {
	if err := tg.lock.Acquire(ctx); err != nil {
		return err
	}
	if err := sleepCtx(ctx, delay); err != nil {
		tg.lock.Release()
		return err
	}
	return nil
}

func (tg *TelegramLimiter) intervalLocked(tier Tier) time.Duration {
	d := tg.short
	if tier == TierRecruitment {
		d = tg.long
	}
	if tg.floor > d {
		d = tg.floor
	}
	return d
}

// setIntervals overrides the per-tier pacing intervals. Non-positive
// values leave the current interval unchanged.
func (tg *TelegramLimiter) setIntervals(short, long time.Duration) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if short > 0 {
		tg.short = short
	}
	if long > 0 {
		tg.long = long
	}
}

// sent records a successful dispatch and releases the telegram lock.
func (tg *TelegramLimiter) sent() {
	tg.mu.Lock()
	tg.lastSent = time.Now()
	tg.mu.Unlock()
	tg.lock.Release()
}

// abort releases the telegram lock without recording a dispatch.
func (tg *TelegramLimiter) abort() {
	tg.lock.Release()
}

// escalate handles a telegram rate limit hit by a request that was not
// declared as telegram traffic. It infers the pacing tier by comparing
// the elapsed time since the last known dispatch against the two tier
// intervals, raises the pacing floor so subsequent dispatches are paced
// at the inferred tier, and returns how long the rerouted retry must wait
// before resending. With no prior dispatch on record, the server's own
// Retry-After value is authoritative.
func (tg *TelegramLimiter) escalate(retryAfter time.Duration) time.Duration {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.lastSent.IsZero() {
		return retryAfter
	}
	elapsed := time.Since(tg.lastSent)
	switch {
	case elapsed < tg.short:
		if tg.floor < tg.short {
			tg.floor = tg.short
		}
		return tg.short - elapsed
	case elapsed < tg.long:
		if tg.floor < tg.long {
			tg.floor = tg.long
		}
		return tg.long - elapsed
	default:
		return retryAfter
	}
}

// LastSent returns the time of the most recent successful telegram
// dispatch. The second return value is false if none has been recorded.
func (tg *TelegramLimiter) LastSent() (time.Time, bool) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.lastSent, !tg.lastSent.IsZero()
}
