package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshotReflectsCounters(t *testing.T) {
	m := NewMetrics()
	m.ActiveWorkers.Store(3)
	m.TasksStarted.Add(5)
	m.TasksRefunded.Add(2)
	m.MessagesDispatched.Add(10)

	snap := m.Snapshot()
	assert.Equal(t, int32(3), snap.ActiveWorkers)
	assert.Equal(t, uint64(5), snap.TasksStarted)
	assert.Equal(t, uint64(2), snap.TasksRefunded)
	assert.Equal(t, uint64(10), snap.MessagesDispatched)
}

func TestThroughputRateZeroBeforeElapsedTime(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, m.ThroughputRate())
}
