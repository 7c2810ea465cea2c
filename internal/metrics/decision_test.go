package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordDecisionCommand_IncrementsCounter(t *testing.T) {
	initial := getCounterVecValue(t, decisionCommandsTotal, "hello", "ok")

	RecordDecisionCommand("hello", true, 3*time.Millisecond)

	actual := getCounterVecValue(t, decisionCommandsTotal, "hello", "ok")
	assert.Equal(t, initial+1, actual)
}

func TestRecordDecisionCommand_NormalizesLabels(t *testing.T) {
	initial := getCounterVecValue(t, decisionCommandsTotal, "unknown", "error")

	RecordDecisionCommand("Launch-Missiles", false, time.Millisecond)

	actual := getCounterVecValue(t, decisionCommandsTotal, "unknown", "error")
	assert.Equal(t, initial+1, actual)
}
