// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_session_transitions_total",
		Help: "Session state machine transitions",
	}, []string{"from", "to"})

	clientMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_client_messages_total",
		Help: "Client messages consumed by sessions by messageType",
	}, []string{"message_type"})

	serverMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_server_messages_total",
		Help: "Server messages emitted by sessions by messageType",
	}, []string{"message_type"})

	notificationsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushd_notifications_delivered_total",
		Help: "Notifications emitted to active sessions",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pushd_active_sessions",
		Help: "Sessions currently in the Active state",
	})
)

// RecordSessionTransition records one state change.
func RecordSessionTransition(from, to string) {
	sessionTransitionsTotal.WithLabelValues(normalizeStateLabel(from), normalizeStateLabel(to)).Inc()
}

// IncClientMessage records one consumed client message.
func IncClientMessage(messageType string) {
	clientMessagesTotal.WithLabelValues(normalizeMessageTypeLabel(messageType)).Inc()
}

// IncServerMessage records one emitted server message.
func IncServerMessage(messageType string) {
	serverMessagesTotal.WithLabelValues(normalizeMessageTypeLabel(messageType)).Inc()
	if messageType == "notification" {
		notificationsDeliveredTotal.Inc()
	}
}

// SessionActivated adjusts the active-session gauge.
func SessionActivated() { activeSessions.Inc() }

// SessionDeactivated adjusts the active-session gauge.
func SessionDeactivated() { activeSessions.Dec() }

func normalizeStateLabel(state string) string {
	switch s := strings.ToLower(strings.TrimSpace(state)); s {
	case "unauthenticated", "hello_pending", "active":
		return s
	default:
		return "unknown"
	}
}

func normalizeMessageTypeLabel(messageType string) string {
	switch m := strings.ToLower(strings.TrimSpace(messageType)); m {
	case "hello", "register", "unregister", "ack", "notification":
		return m
	default:
		return "unknown"
	}
}
