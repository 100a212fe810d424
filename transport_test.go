package nsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// scriptRT replays a fixed sequence of responses, one per round trip.
type scriptRT struct {
	mu    sync.Mutex
	resps []*http.Response
	calls int
	check func(call int, req *http.Request)
}

func (s *scriptRT) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.check != nil {
		s.check(s.calls, req)
	}
	if s.calls >= len(s.resps) {
		return nil, fmt.Errorf("unexpected request #%d to %s", s.calls+1, req.URL)
	}
	resp := s.resps[s.calls]
	s.calls++
	resp.Request = req
	return resp, nil
}

func (s *scriptRT) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stubResp(status int, hdr map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range hdr {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

// recordMetrics counts observations for assertions.
type recordMetrics struct {
	mu        sync.Mutex
	requests  []int
	retries   map[string]int
	deferrals int
}

func newRecordMetrics() *recordMetrics {
	return &recordMetrics{retries: make(map[string]int)}
}

func (m *recordMetrics) Request(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, status)
}

func (m *recordMetrics) Retry(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[reason]++
}

func (m *recordMetrics) Deferral(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferrals++
}

func (m *recordMetrics) LockWait(time.Duration) {}

func (m *recordMetrics) retryCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[reason]
}

// newTestLimiter builds a limiter with isolated (non-process-wide) state,
// millisecond-scale backoff, and short telegram intervals so retry paths
// run fast.
func newTestLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	a := new(Agent)
	if err := a.Set("limiter test (dev@example.org)"); err != nil {
		t.Fatal(err)
	}
	base := []Option{
		WithAgent(a),
		WithoutLocalBudget(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	l := New(append(base, opts...)...)
	l.lock = NewResetLock()
	l.telegram = NewTelegramLimiter(40*time.Millisecond, 160*time.Millisecond)
	l.backoffUnit = time.Millisecond
	return l
}

func TestTransportInjectsUserAgent(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{stubResp(200, map[string]string{"RateLimit-Remaining": "49"})},
		check: func(_ int, req *http.Request) {
			ua := req.Header.Get("User-Agent")
			if !strings.Contains(ua, "limiter test (dev@example.org)") {
				t.Errorf("User-Agent = %q, missing operator identification", ua)
			}
			if !strings.Contains(ua, "nsapi/"+Version) {
				t.Errorf("User-Agent = %q, missing library identification", ua)
			}
		},
	}
	l := newTestLimiter(t)

	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if l.Locked() {
		t.Error("lock still held after a successful round trip")
	}
}

func TestTransportDoesNotMutateCallerRequest(t *testing.T) {
	rt := &scriptRT{resps: []*http.Response{stubResp(200, nil)}}
	l := newTestLimiter(t)

	req := Nation("testlandia", "name")
	if _, err := l.Transport(rt).RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("User-Agent"); got != "" {
		t.Errorf("caller's request gained User-Agent %q", got)
	}
}

func TestTransportAgentRequired(t *testing.T) {
	l := newTestLimiter(t, WithAgent(new(Agent)))
	rt := &scriptRT{}

	_, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if !errors.Is(err, ErrAgentNotSet) {
		t.Fatalf("err = %v, want ErrAgentNotSet", err)
	}
	if rt.callCount() != 0 {
		t.Error("request reached the network without an agent")
	}
}

func TestTransportForeignHostPassthrough(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{stubResp(200, nil)},
		check: func(_ int, req *http.Request) {
			if ua := req.Header.Get("User-Agent"); ua != "" {
				t.Errorf("foreign-host request gained User-Agent %q", ua)
			}
		},
	}
	// No agent set: foreign hosts must not require one.
	l := newTestLimiter(t, WithAgent(new(Agent)))

	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Scheme: "https", Host: "example.org", Path: "/"},
		Header: make(http.Header),
	}
	if _, err := l.Transport(rt).RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if rt.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", rt.callCount())
	}
}

func TestTransportDumpSkipsLock(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{stubResp(200, nil)},
		check: func(_ int, req *http.Request) {
			if req.Header.Get("User-Agent") == "" {
				t.Error("dump request sent without User-Agent")
			}
		},
	}
	l := newTestLimiter(t)

	// Hold the API lock: dump downloads share the host but not the call
	// budget, so this must not block.
	l.lock.Lock()
	defer l.lock.Release()

	done := make(chan error, 1)
	go func() {
		_, err := l.Transport(rt).RoundTrip(NationsDump(time.Time{}))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("dump request blocked on the API lock")
	}
}

func TestTransportRetryAfter(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{
			stubResp(429, map[string]string{"Retry-After": "1", "RateLimit-Remaining": "0"}),
			stubResp(200, map[string]string{"RateLimit-Remaining": "10"}),
		},
	}
	m := newRecordMetrics()
	l := newTestLimiter(t, WithMetrics(m))
	rt.check = func(call int, _ *http.Request) {
		if call == 1 && !l.lock.Held() {
			t.Error("lock was given up between the 429 and its retry")
		}
	}

	start := time.Now()
	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if rt.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", rt.callCount())
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("retried after %v, before the declared Retry-After", elapsed)
	}
	if got := m.retryCount("retry-after"); got != 1 {
		t.Errorf("retry-after retries = %d, want 1", got)
	}
	if l.Locked() {
		t.Error("lock still held after completion")
	}
}

func TestTransportBackoffThenSuccess(t *testing.T) {
	resps := make([]*http.Response, 0, 7)
	for i := 0; i < 6; i++ {
		resps = append(resps, stubResp(500, nil))
	}
	resps = append(resps, stubResp(200, map[string]string{"RateLimit-Remaining": "10"}))
	rt := &scriptRT{resps: resps}
	m := newRecordMetrics()
	l := newTestLimiter(t, WithMetrics(m))

	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if rt.callCount() != 7 {
		t.Fatalf("calls = %d, want 7", rt.callCount())
	}
	if got := m.retryCount("backoff"); got != 6 {
		t.Errorf("backoff retries = %d, want 6", got)
	}
	if l.Locked() {
		t.Error("lock still held after completion")
	}
}

func TestTransportBackoffExhausted(t *testing.T) {
	resps := make([]*http.Response, 7)
	for i := range resps {
		resps[i] = stubResp(502, nil)
	}
	rt := &scriptRT{resps: resps}
	l := newTestLimiter(t)

	// After the retry budget is spent the last response comes back as-is.
	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 502 {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if rt.callCount() != 7 {
		t.Fatalf("calls = %d, want 7", rt.callCount())
	}
	if err := CheckStatus(resp); !errors.Is(err, ErrServerError) {
		t.Errorf("CheckStatus = %v, want ErrServerError", err)
	}
}

func TestTransportQuotaExhaustedDefersRelease(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{
			stubResp(200, map[string]string{
				"RateLimit-Remaining": "0",
				"RateLimit-Reset":     "1",
			}),
		},
	}
	m := newRecordMetrics()
	l := newTestLimiter(t, WithMetrics(m))

	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// The round trip is done but the lock stays held until the quota
	// resets.
	if !l.Locked() {
		t.Fatal("lock released despite exhausted quota")
	}
	until, ok := l.Deferred()
	if !ok {
		t.Fatal("no deferred release pending")
	}
	if d := time.Until(until); d > 1100*time.Millisecond {
		t.Errorf("deferred %v, want about 1s", d)
	}
	if m.deferrals != 1 {
		t.Errorf("deferrals = %d, want 1", m.deferrals)
	}

	time.Sleep(1200 * time.Millisecond)
	if l.Locked() {
		t.Error("lock still held after the quota reset window")
	}
}

func TestTransportEscalation(t *testing.T) {
	// A 429 that still shows general-budget headroom on an undeclared
	// request is the telegram limiter's doing: the retry must reroute
	// through the telegram limiter and, on success, count as a dispatch.
	rt := &scriptRT{
		resps: []*http.Response{
			stubResp(429, map[string]string{
				"Retry-After":         "0",
				"RateLimit-Remaining": "5",
			}),
			stubResp(200, map[string]string{"RateLimit-Remaining": "4"}),
		},
	}
	m := newRecordMetrics()
	l := newTestLimiter(t, WithMetrics(m))

	resp, err := l.Transport(rt).RoundTrip(Nation("testlandia", "name"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if rt.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", rt.callCount())
	}
	if got := m.retryCount("escalate"); got != 1 {
		t.Errorf("escalate retries = %d, want 1", got)
	}
	if _, ok := l.telegram.LastSent(); !ok {
		t.Error("rerouted request did not register as a telegram dispatch")
	}
	if l.Locked() || l.telegram.lock.Held() {
		t.Error("locks still held after completion")
	}
}

func TestTransportTelegramPacing(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{
			stubResp(200, map[string]string{"RateLimit-Remaining": "10"}),
			stubResp(200, map[string]string{"RateLimit-Remaining": "9"}),
		},
	}
	l := newTestLimiter(t)
	tr := l.Transport(rt)

	req := Telegram("clientkey", "1234", "secret", "testlandia")
	start := time.Now()
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	// Test limiter's API-tier interval is 40ms.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second telegram sent after %v, before the pacing interval", elapsed)
	}
	if l.telegram.lock.Held() {
		t.Error("telegram lock still held after completion")
	}
}

func TestTransportTelegramFailureDoesNotCountAsDispatch(t *testing.T) {
	rt := &scriptRT{
		resps: []*http.Response{stubResp(403, nil)},
	}
	l := newTestLimiter(t)

	resp, err := l.Transport(rt).RoundTrip(Telegram("clientkey", "1234", "bad", "testlandia"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 403 {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if _, ok := l.telegram.LastSent(); ok {
		t.Error("failed dispatch recorded as sent")
	}
	if l.telegram.lock.Held() {
		t.Error("telegram lock still held after a failed dispatch")
	}
}

func TestTransportContextCancellation(t *testing.T) {
	rt := &scriptRT{}
	l := newTestLimiter(t)

	// Another caller holds the lock indefinitely.
	l.lock.Lock()
	defer l.lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.SendContext(ctx, Nation("testlandia", "name"))
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled request did not return")
	}
	if rt.callCount() != 0 {
		t.Error("cancelled request reached the network")
	}
}

func TestTransportErrorReleasesLocks(t *testing.T) {
	failRT := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	l := newTestLimiter(t)

	_, err := l.Transport(failRT).RoundTrip(Telegram("clientkey", "1", "k", "testlandia"))
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if l.Locked() {
		t.Error("API lock still held after a transport error")
	}
	if l.telegram.lock.Held() {
		t.Error("telegram lock still held after a transport error")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestTransportSerializesConcurrentRequests(t *testing.T) {
	var inflight, overlaps int32
	var mu sync.Mutex
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		inflight++
		if inflight > 1 {
			overlaps++
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return stubResp(200, map[string]string{"RateLimit-Remaining": "10"}), nil
	})
	l := newTestLimiter(t)
	tr := l.Transport(rt)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.RoundTrip(Nation("testlandia", "name")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if overlaps != 0 {
		t.Fatalf("API requests overlapped %d times", overlaps)
	}
}

func TestTransportCircuitBreakerOpens(t *testing.T) {
	failRT := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	l := newTestLimiter(t, WithCircuitBreaker(BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	}))
	tr := l.Transport(failRT)

	var last error
	for i := 0; i < 5; i++ {
		_, last = tr.RoundTrip(Nation("testlandia", "name"))
		if last == nil {
			t.Fatal("expected every round trip to fail")
		}
	}
	if !errors.Is(last, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want gobreaker.ErrOpenState", last)
	}
	if l.Locked() {
		t.Error("lock still held with the breaker open")
	}
}
