package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncSessionEvent_NormalizesUnknown(t *testing.T) {
	before := testutil.ToFloat64(sessionEventsTotal.WithLabelValues("unknown"))
	IncSessionEvent("exploded")
	if got := testutil.ToFloat64(sessionEventsTotal.WithLabelValues("unknown")); got != before+1 {
		t.Errorf("Expected unknown counter to increase, got %v", got)
	}

	before = testutil.ToFloat64(sessionEventsTotal.WithLabelValues(EventSetup))
	IncSessionEvent(EventSetup)
	if got := testutil.ToFloat64(sessionEventsTotal.WithLabelValues(EventSetup)); got != before+1 {
		t.Errorf("Expected setup counter to increase, got %v", got)
	}
}

func TestIncDeviceOperation(t *testing.T) {
	IncDeviceOperation("Microphone", OpStart, nil)
	IncDeviceOperation("microphone", OpStart, errors.New("busy"))

	if got := testutil.ToFloat64(deviceOperationsTotal.WithLabelValues("microphone", OpStart, "ok")); got < 1 {
		t.Errorf("Expected ok counter, got %v", got)
	}
	if got := testutil.ToFloat64(deviceOperationsTotal.WithLabelValues("microphone", OpStart, "error")); got < 1 {
		t.Errorf("Expected error counter, got %v", got)
	}
}

func TestGaugesAndExposure(t *testing.T) {
	SetRecording(true)
	SetSessionDevices(3)
	ObserveSessionDuration(2 * time.Second)

	if got := testutil.ToFloat64(recording); got != 1 {
		t.Errorf("Expected recording gauge 1, got %v", got)
	}
	SetRecording(false)
	if got := testutil.ToFloat64(recording); got != 0 {
		t.Errorf("Expected recording gauge 0, got %v", got)
	}

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"recorder_session_devices 3", "recorder_session_duration_seconds_count", "recorder_device_operations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %q in exposition", name)
		}
	}
}
