// Package metrics exposes Prometheus instruments for capture sessions.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_session_events_total",
		Help: "Session transitions by event",
	}, []string{"event"})

	deviceOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_device_operations_total",
		Help: "Device lifecycle operations by class, operation and result",
	}, []string{"class", "operation", "result"})

	recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_recording",
		Help: "1 while a session is recording",
	})

	sessionDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_session_devices",
		Help: "Number of devices held by the current session",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recorder_session_duration_seconds",
		Help:    "Time between start and stop of a recording",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
)

// Session events. Anything else is recorded as "unknown".
const (
	EventSetup       = "setup"
	EventSetupFailed = "setup_failed"
	EventStarted     = "started"
	EventStartFailed = "start_failed"
	EventStopped     = "stopped"
)

// Device operations.
const (
	OpStart = "start"
	OpStop  = "stop"
	OpClose = "close"
)

// IncSessionEvent counts a session transition.
func IncSessionEvent(event string) {
	switch event {
	case EventSetup, EventSetupFailed, EventStarted, EventStartFailed, EventStopped:
	default:
		event = "unknown"
	}
	sessionEventsTotal.WithLabelValues(event).Inc()
}

// IncDeviceOperation counts one device operation and whether it failed.
func IncDeviceOperation(class, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	deviceOperationsTotal.WithLabelValues(strings.ToLower(class), operation, result).Inc()
}

// SetRecording flags whether a session is recording.
func SetRecording(active bool) {
	if active {
		recording.Set(1)
	} else {
		recording.Set(0)
	}
}

// SetSessionDevices sets the number of devices held by the session.
func SetSessionDevices(n int) {
	sessionDevices.Set(float64(n))
}

// ObserveSessionDuration records the length of a finished recording.
func ObserveSessionDuration(d time.Duration) {
	sessionDuration.Observe(d.Seconds())
}
