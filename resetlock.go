package nsapi

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ResetLock is the mutual-exclusion primitive that serializes requests
// against a rate-limited resource. It behaves like a mutex with two
// extensions:
//
//   - Waiters are woken in strict FIFO order, whether they arrived through
//     the blocking [ResetLock.Lock] or the cancellable [ResetLock.Acquire].
//   - The holder can schedule a deferred release with
//     [ResetLock.DeferRelease]: the lock stays held after the holder's code
//     has finished until a timer fires, which is how a quota-reset wait is
//     enforced without making the holder sleep inline.
//
// The zero value is an unlocked ResetLock ready for use.
type ResetLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}

	deferGen      uint64
	deferTimer    *time.Timer
	deferredUntil time.Time
}

// NewResetLock creates an unlocked ResetLock.
func NewResetLock() *ResetLock {
	return &ResetLock{}
}

// Acquire obtains the lock, waiting in FIFO order behind earlier callers.
// It returns ctx.Err() if the context is cancelled first. A cancelled
// waiter removes itself from the queue; if ownership had already been
// handed to it, ownership is passed to the next waiter instead.
func (l *ResetLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-ch:
		// Ownership arrived between cancellation and cleanup.
		// Pass it on rather than leaking a held-but-ownerless lock.
		l.handOff()
	default:
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				break
			}
		}
	}
	return ctx.Err()
}

// Lock obtains the lock, blocking until it is available.
// It shares the FIFO queue with [ResetLock.Acquire].
func (l *ResetLock) Lock() {
	_ = l.Acquire(context.Background())
}

// Release releases the lock, handing it directly to the next waiter if one
// is queued. While a deferred release is pending, Release is a no-op: the
// timer armed by [ResetLock.DeferRelease] performs the real release.
//
// Release panics if the lock is not held.
func (l *ResetLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deferTimer != nil {
		return
	}
	if !l.held {
		panic("nsapi: ResetLock.Release of unheld lock")
	}
	l.handOff()
}

// handOff transfers ownership to the oldest waiter, or marks the lock free.
// Callers must hold l.mu and own the lock.
func (l *ResetLock) handOff() {
	if len(l.waiters) > 0 {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(ch)
		return
	}
	l.held = false
}

// DeferRelease schedules the lock to release itself after delay.
// It may only be used while the lock is held; otherwise it is a no-op.
// Re-arming replaces any earlier pending deferred release.
func (l *ResetLock) DeferRelease(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	if l.deferTimer != nil {
		l.deferTimer.Stop()
	}
	l.deferGen++
	gen := l.deferGen
	l.deferredUntil = time.Now().Add(delay)
	l.deferTimer = time.AfterFunc(delay, func() {
		l.deferredRelease(gen)
	})
}

// deferredRelease is the timer callback for DeferRelease.
func (l *ResetLock) deferredRelease(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.deferGen {
		// A newer DeferRelease replaced this timer.
		return
	}
	l.deferTimer = nil
	l.deferredUntil = time.Time{}
	l.handOff()
}

// Held reports whether the lock is currently held.
func (l *ResetLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// DeferredUntil returns the wall-clock time at which a pending deferred
// release will fire. The second return value is false if no deferred
// release is pending.
func (l *ResetLock) DeferredUntil() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deferTimer == nil {
		return time.Time{}, false
	}
	return l.deferredUntil, true
}

// MaybeDefer inspects rate-limit response headers and arms a deferred
// release if the remaining quota is exhausted. With quota remaining (or no
// quota headers at all) it does nothing; the caller's Release proceeds
// normally. Malformed header values are treated as absent.
func (l *ResetLock) MaybeDefer(h http.Header) {
	if headerInt(h, "RateLimit-Remaining", 1) != 0 {
		return
	}
	reset := headerInt(h, "RateLimit-Reset", 0)
	if reset <= 0 {
		// Nothing usable to wait on; let the caller release normally.
		return
	}
	l.DeferRelease(time.Duration(reset) * time.Second)
}
