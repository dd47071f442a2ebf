package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are registered on a per-server registry so several servers can
// live in one process (tests).
type metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	ingests   *prometheus.CounterVec
	matches   *prometheus.CounterVec
	votes     prometheus.Histogram
	throttled prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundz_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundz_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundz_ingests_total",
			Help: "Ingestion outcomes: added, duplicate or failed.",
		}, []string{"status"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundz_matches_total",
			Help: "Match outcomes: found, not_found or failed.",
		}, []string{"result"}),
		votes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soundz_match_votes",
			Help:    "Votes of the winning offset for successful matches.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundz_match_throttled_total",
			Help: "Match requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.ingests,
		m.matches,
		m.votes,
		m.throttled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
