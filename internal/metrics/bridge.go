// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bridgeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_bridge_calls_total",
		Help: "Calls dispatched to the decision service by command",
	}, []string{"command"})

	bridgeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_bridge_outcomes_total",
		Help: "Resolved decision service calls by command and outcome",
	}, []string{"command", "outcome"})

	linkGoneTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushd_bridge_link_gone_total",
		Help: "Times the bridge observed the decision service link gone",
	})

	boundaryFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_boundary_faults_total",
		Help: "Faults and rejections reported by guarded handle operations",
	}, []string{"op", "code"})
)

// IncBridgeCall records one dispatched call.
func IncBridgeCall(command string) {
	bridgeCallsTotal.WithLabelValues(normalizeCommandLabel(command)).Inc()
}

// RecordBridgeOutcome records how a call resolved.
func RecordBridgeOutcome(command, outcome string) {
	bridgeOutcomesTotal.WithLabelValues(normalizeCommandLabel(command), normalizeOutcomeLabel(outcome)).Inc()
}

// IncLinkGone records the first LinkGone observed by a bridge.
func IncLinkGone() {
	linkGoneTotal.Inc()
}

// IncBoundaryFault records a guarded operation that did not run to success.
func IncBoundaryFault(op, code string) {
	boundaryFaultsTotal.WithLabelValues(normalizeOpLabel(op), normalizeFaultCodeLabel(code)).Inc()
}

func normalizeCommandLabel(command string) string {
	switch c := strings.ToLower(strings.TrimSpace(command)); c {
	case "hello", "checkstorage", "register", "unregister", "dropuser", "delete", "storemessages":
		return c
	default:
		return "unknown"
	}
}

func normalizeOutcomeLabel(outcome string) string {
	switch o := strings.ToLower(strings.TrimSpace(outcome)); o {
	case "ok", "application_error", "deserialization_error", "cancelled", "link_gone", "boundary_fault", "context", "error":
		return o
	default:
		return "unknown"
	}
}

func normalizeOpLabel(op string) string {
	switch o := strings.ToLower(strings.TrimSpace(op)); o {
	case "input", "complete", "free":
		return o
	default:
		return "unknown"
	}
}

func normalizeFaultCodeLabel(code string) string {
	switch c := strings.ToLower(strings.TrimSpace(code)); c {
	case "panic", "retired", "poisoned":
		return c
	default:
		return "unknown"
	}
}
