// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pushd_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pushd_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	pushRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_push_requests_total",
		Help: "Push endpoint requests by outcome",
	}, []string{"outcome"})

	pushPayloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pushd_push_payload_bytes",
		Help:    "Accepted push payload sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 6),
	})
)

// HTTPRequestStarted tracks an in-flight request; call the returned func
// when it completes.
func HTTPRequestStarted() func() {
	httpRequestsInFlight.Inc()
	return httpRequestsInFlight.Dec
}

// ObserveHTTPRequest records one completed request. path must be a route
// pattern, never a raw URL.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordPush records one push endpoint request.
func RecordPush(outcome string, payloadBytes int) {
	o := strings.ToLower(strings.TrimSpace(outcome))
	switch o {
	case "delivered", "stored", "dropped", "invalid", "gone", "error":
	default:
		o = "unknown"
	}
	pushRequestsTotal.WithLabelValues(o).Inc()
	if o == "delivered" || o == "stored" {
		pushPayloadBytes.Observe(float64(payloadBytes))
	}
}
