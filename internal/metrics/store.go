// SPDX-License-Identifier: MIT

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_store_ops_total",
		Help: "Storage operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_ratelimit_exceeded_total",
		Help: "Total rate limit rejections",
	}, []string{"limit_type"})
)

// RecordStoreOp records one storage operation.
func RecordStoreOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOpsTotal.WithLabelValues(normalizeBackendLabel(backend), strings.ToLower(strings.TrimSpace(op)), result).Inc()
}

// IncRateLimitExceeded records a rejected client message or push request.
func IncRateLimitExceeded(limitType string) {
	switch limitType {
	case "client", "push":
	default:
		limitType = "unknown"
	}
	rateLimitExceeded.WithLabelValues(limitType).Inc()
}

func normalizeBackendLabel(backend string) string {
	switch b := strings.ToLower(strings.TrimSpace(backend)); b {
	case "memory", "redis", "sqlite", "badger":
		return b
	default:
		return "unknown"
	}
}
