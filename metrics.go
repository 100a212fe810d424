package nsapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives observations from the governor. Implementations must
// be safe for concurrent use.
type Metrics interface {
	// Request is called once per governed round trip with the final
	// status code.
	Request(status int)
	// Retry is called before each retry wait. Reason is "retry-after",
	// "backoff", or "escalate".
	Retry(reason string)
	// Deferral is called when the lock's release is deferred to cover a
	// quota reset.
	Deferral(d time.Duration)
	// LockWait records how long a request waited to acquire the API lock.
	LockWait(d time.Duration)
}

// NopMetrics discards all observations. It is the default sink.
type NopMetrics struct{}

func (NopMetrics) Request(int)            {}
func (NopMetrics) Retry(string)           {}
func (NopMetrics) Deferral(time.Duration) {}
func (NopMetrics) LockWait(time.Duration) {}

// PrometheusMetrics implements Metrics with Prometheus collectors.
type PrometheusMetrics struct {
	requestsTotal  *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	deferralsTotal prometheus.Counter
	lockWait       prometheus.Histogram
}

// NewPrometheusMetrics creates a Prometheus-backed metrics sink and
// registers its collectors with reg. A nil reg uses the default
// registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nsapi",
			Name:      "requests_total",
			Help:      "Governed API round trips by final status code.",
		}, []string{"code"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nsapi",
			Name:      "retries_total",
			Help:      "Retries by reason (retry-after, backoff, escalate).",
		}, []string{"reason"}),
		deferralsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nsapi",
			Name:      "deferrals_total",
			Help:      "Lock releases deferred to cover a quota reset.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nsapi",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting to acquire the API lock.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(m.requestsTotal, m.retriesTotal, m.deferralsTotal, m.lockWait)
	return m
}

func (m *PrometheusMetrics) Request(status int) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *PrometheusMetrics) Retry(reason string) {
	m.retriesTotal.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) Deferral(time.Duration) {
	m.deferralsTotal.Inc()
}

func (m *PrometheusMetrics) LockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}
