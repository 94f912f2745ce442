// Package metrics exposes Prometheus counters for the credential flows and
// the HTTP boundary.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login and confirmation outcomes used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultInvalid     = "invalid"
	ResultError       = "error"
	ResultRateLimited = "rate_limited"
)

// Recorder is what handlers and middleware report into. A nil *Collector is
// a valid Recorder that drops everything.
type Recorder interface {
	RecordLogin(result string)
	RecordResetRequest()
	RecordResetConfirm(result string)
	RecordHTTPRequest(statusCode int, duration time.Duration)
}

type Collector struct {
	loginTotal        *prometheus.CounterVec
	resetRequestTotal prometheus.Counter
	resetConfirmTotal *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      prometheus.Histogram
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccs_auth_login_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		resetRequestTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccs_auth_reset_request_total",
			Help: "Accepted password reset requests, known and unknown emails alike",
		}),
		resetConfirmTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccs_auth_reset_confirm_total",
			Help: "Password reset confirmations by result",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccs_http_requests_total",
			Help: "HTTP responses by status code",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccs_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginTotal,
		c.resetRequestTotal,
		c.resetConfirmTotal,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

func (c *Collector) RecordLogin(result string) {
	if c == nil {
		return
	}
	c.loginTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RecordResetRequest() {
	if c == nil {
		return
	}
	c.resetRequestTotal.Inc()
}

func (c *Collector) RecordResetConfirm(result string) {
	if c == nil {
		return
	}
	c.resetConfirmTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
