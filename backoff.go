package nsapi

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// defaultMaxRetries bounds the exponential backoff sequence for transient
// server errors. Explicit 429 throttling is retried without bound.
const defaultMaxRetries = 6

// backoff generates a bounded sequence of randomized, exponentially
// increasing delays: the i-th delay is uniform in [0, 2^i) seconds.
// A fresh sequence is started whenever a round trip succeeds or the
// failure class changes.
type backoff struct {
	index int
	limit int
	unit  time.Duration
}

func newBackoff(limit int, unit time.Duration) backoff {
	if unit <= 0 {
		unit = time.Second
	}
	return backoff{limit: limit, unit: unit}
}

// next returns the next delay in the sequence, or false once the retry
// ceiling has been reached.
func (b *backoff) next() (time.Duration, bool) {
	if b.index >= b.limit {
		return 0, false
	}
	d := time.Duration(rand.Float64() * math.Ldexp(1, b.index) * float64(b.unit))
	b.index++
	return d, true
}

// headerInt reads a header as an integer, returning def if the header is
// absent or malformed. Lookups are case-insensitive.
func headerInt(h http.Header, key string, def int) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
