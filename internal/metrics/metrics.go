// Package metrics exposes Prometheus counters for logins, notifications and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records process metrics. It satisfies the recorder interfaces of
// the notify and service packages.
type Collector struct {
	logins        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_notifications_total",
			Help: "Task assignment notifications by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(c.logins, c.notifications, c.httpRequests, c.httpDuration)
	return c
}

// RecordLogin counts one login attempt.
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordNotification counts one notification outcome.
func (c *Collector) RecordNotification(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

// RecordHTTP counts one served request.
func (c *Collector) RecordHTTP(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
