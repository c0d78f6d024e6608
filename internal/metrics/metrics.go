// Package metrics exposes Prometheus collectors for the tracker service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	visitsTotal            *prometheus.CounterVec
	ingestDroppedTotal     prometheus.Counter
	appendFailuresTotal    prometheus.Counter
	feedSubscribers        prometheus.Gauge
	feedSendFailuresTotal  prometheus.Counter
	simulationsTotal       *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		visitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlwatch_visits_total",
				Help: "Total classified visits ingested, labeled by bot category and name.",
			},
			[]string{"category", "bot"},
		)

		ingestDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlwatch_ingest_dropped_total",
				Help: "Visit events dropped because the ingest buffer was full.",
			},
		)

		appendFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlwatch_append_failures_total",
				Help: "Visit facts that failed to persist.",
			},
		)

		feedSubscribers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlwatch_feed_subscribers",
				Help: "Number of currently connected live-feed subscribers.",
			},
		)

		feedSendFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlwatch_feed_send_failures_total",
				Help: "Feed deliveries that failed and disconnected the subscriber.",
			},
		)

		simulationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlwatch_simulations_total",
				Help: "Crawler simulations executed, labeled by agent, mode, and outcome.",
			},
			[]string{"agent", "mode", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVisit increments the visit counter for a classified visit.
func ObserveVisit(category, bot string) {
	if visitsTotal != nil {
		visitsTotal.WithLabelValues(category, bot).Inc()
	}
}

// ObserveIngestDrop counts a visit event lost to backpressure.
func ObserveIngestDrop() {
	if ingestDroppedTotal != nil {
		ingestDroppedTotal.Inc()
	}
}

// ObserveAppendFailure counts a persistence failure.
func ObserveAppendFailure() {
	if appendFailuresTotal != nil {
		appendFailuresTotal.Inc()
	}
}

// SetFeedSubscribers records the current live subscriber count.
func SetFeedSubscribers(n int) {
	if feedSubscribers != nil {
		feedSubscribers.Set(float64(n))
	}
}

// ObserveFeedSendFailure counts a failed delivery to a subscriber.
func ObserveFeedSendFailure() {
	if feedSendFailuresTotal != nil {
		feedSendFailuresTotal.Inc()
	}
}

// ObserveSimulation counts one simulation run.
func ObserveSimulation(agent, mode string, success bool) {
	if simulationsTotal == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	simulationsTotal.WithLabelValues(agent, mode, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(duration.Seconds())
}
