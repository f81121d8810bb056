// Package domain holds the coordinator's shared metrics types.
package domain

import (
	"sync/atomic"
	"time"
)

// Metrics holds atomic counters tracking coordinator and reader activity.
type Metrics struct {
	ActiveWorkers      atomic.Int32
	TasksStarted       atomic.Uint64
	TasksRefunded      atomic.Uint64
	MessagesReceived   atomic.Uint64
	MessagesDispatched atomic.Uint64
	MessagesDropped    atomic.Uint64
	DispatchErrors     atomic.Uint64
	BottleneckWaits    atomic.Uint64
	ProcessingTimeNs   atomic.Uint64

	StartTime time.Time
}

// NewMetrics creates a zeroed metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// ThroughputRate returns dispatched messages per second since StartTime.
func (m *Metrics) ThroughputRate() float64 {
	elapsed := time.Since(m.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.MessagesDispatched.Load()) / elapsed
}

// ErrorRate returns dispatch errors per second since StartTime.
func (m *Metrics) ErrorRate() float64 {
	elapsed := time.Since(m.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.DispatchErrors.Load()) / elapsed
}

// AverageProcessingTime returns the mean dispatch time in nanoseconds.
func (m *Metrics) AverageProcessingTime() float64 {
	dispatched := m.MessagesDispatched.Load()
	if dispatched == 0 {
		return 0
	}
	return float64(m.ProcessingTimeNs.Load()) / float64(dispatched)
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for logging.
type MetricsSnapshot struct {
	Timestamp           time.Time
	ActiveWorkers       int32
	TasksStarted        uint64
	TasksRefunded       uint64
	MessagesReceived    uint64
	MessagesDispatched  uint64
	MessagesDropped     uint64
	DispatchErrors      uint64
	BottleneckWaits     uint64
	ThroughputRate      float64
	ErrorRate           float64
	AvgProcessingTimeMs float64
}

// Snapshot copies the current counters into a MetricsSnapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Timestamp:           time.Now(),
		ActiveWorkers:       m.ActiveWorkers.Load(),
		TasksStarted:        m.TasksStarted.Load(),
		TasksRefunded:       m.TasksRefunded.Load(),
		MessagesReceived:    m.MessagesReceived.Load(),
		MessagesDispatched:  m.MessagesDispatched.Load(),
		MessagesDropped:     m.MessagesDropped.Load(),
		DispatchErrors:      m.DispatchErrors.Load(),
		BottleneckWaits:     m.BottleneckWaits.Load(),
		ThroughputRate:      m.ThroughputRate(),
		ErrorRate:           m.ErrorRate(),
		AvgProcessingTimeMs: m.AverageProcessingTime() / 1_000_000,
	}
}
