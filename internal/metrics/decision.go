package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushd_decision_commands_total",
		Help: "Commands answered by the decision service by command and result",
	}, []string{"command", "result"})

	decisionCommandSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pushd_decision_command_seconds",
		Help:    "Time the decision service spent answering a command",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"command"})
)

// RecordDecisionCommand records one answered command. result is "ok" or
// "error" (an error envelope was returned).
func RecordDecisionCommand(command string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	decisionCommandsTotal.WithLabelValues(normalizeCommandLabel(command), result).Inc()
	decisionCommandSeconds.WithLabelValues(normalizeCommandLabel(command)).Observe(elapsed.Seconds())
}
