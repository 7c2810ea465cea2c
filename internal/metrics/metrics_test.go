// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func getCounterVecValue(t *testing.T, counterVec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return getCounterValue(t, counterVec.WithLabelValues(labels...))
}

func TestRecordBridgeOutcome(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		outcome     string
		wantCommand string
		wantOutcome string
	}{
		{"known labels", "hello", "ok", "hello", "ok"},
		{"case folded", "CheckStorage", "Cancelled", "checkstorage", "cancelled"},
		{"unknown command", "reboot", "ok", "unknown", "ok"},
		{"unknown outcome", "register", "exploded", "register", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := getCounterVecValue(t, bridgeOutcomesTotal, tt.wantCommand, tt.wantOutcome)
			RecordBridgeOutcome(tt.command, tt.outcome)
			after := getCounterVecValue(t, bridgeOutcomesTotal, tt.wantCommand, tt.wantOutcome)
			assert.Equal(t, before+1, after)
		})
	}
}

func TestIncBoundaryFault(t *testing.T) {
	before := getCounterVecValue(t, boundaryFaultsTotal, "complete", "retired")
	IncBoundaryFault("complete", "retired")
	assert.Equal(t, before+1, getCounterVecValue(t, boundaryFaultsTotal, "complete", "retired"))
}

func TestIncServerMessageCountsNotifications(t *testing.T) {
	before := getCounterValue(t, notificationsDeliveredTotal)
	IncServerMessage("notification")
	IncServerMessage("hello")
	assert.Equal(t, before+1, getCounterValue(t, notificationsDeliveredTotal))
}

func TestRecordStoreOp(t *testing.T) {
	beforeOK := getCounterVecValue(t, storeOpsTotal, "redis", "get_user", "ok")
	beforeErr := getCounterVecValue(t, storeOpsTotal, "redis", "get_user", "error")

	RecordStoreOp("redis", "get_user", nil)
	RecordStoreOp("redis", "get_user", errors.New("down"))

	assert.Equal(t, beforeOK+1, getCounterVecValue(t, storeOpsTotal, "redis", "get_user", "ok"))
	assert.Equal(t, beforeErr+1, getCounterVecValue(t, storeOpsTotal, "redis", "get_user", "error"))
}

func TestRecordSessionTransitionNormalizes(t *testing.T) {
	before := getCounterVecValue(t, sessionTransitionsTotal, "unknown", "active")
	RecordSessionTransition("limbo", "active")
	assert.Equal(t, before+1, getCounterVecValue(t, sessionTransitionsTotal, "unknown", "active"))
}

func TestRecordPushNormalizesOutcome(t *testing.T) {
	before := getCounterVecValue(t, pushRequestsTotal, "unknown")
	RecordPush("teleported", 10)
	assert.Equal(t, before+1, getCounterVecValue(t, pushRequestsTotal, "unknown"))

	before = getCounterVecValue(t, pushRequestsTotal, "delivered")
	RecordPush("Delivered", 10)
	assert.Equal(t, before+1, getCounterVecValue(t, pushRequestsTotal, "delivered"))
}

func TestHTTPRequestStartedBalancesGauge(t *testing.T) {
	metric := &dto.Metric{}
	require.NoError(t, httpRequestsInFlight.Write(metric))
	before := metric.GetGauge().GetValue()

	done := HTTPRequestStarted()
	require.NoError(t, httpRequestsInFlight.Write(metric))
	assert.Equal(t, before+1, metric.GetGauge().GetValue())

	done()
	require.NoError(t, httpRequestsInFlight.Write(metric))
	assert.Equal(t, before, metric.GetGauge().GetValue())
}
