package device_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/device/devicetest"
)

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	mic := devicetest.New("microphone")
	reg := device.NewRegistry(mic, devicetest.New("realsense"))

	for _, name := range []string{"microphone", "Microphone", "MICROPHONE", " microphone "} {
		c, err := reg.Lookup(name)
		if err != nil {
			t.Errorf("Lookup(%q) failed: %v", name, err)
			continue
		}
		if c != mic {
			t.Errorf("Lookup(%q) returned the wrong class", name)
		}
	}
}

func TestRegistry_UnknownClassListsOptions(t *testing.T) {
	reg := device.NewRegistry(devicetest.New("realsense"), devicetest.New("microphone"))

	_, err := reg.Lookup("thermal")
	if !errors.Is(err, device.ErrUnknownClass) {
		t.Fatalf("Expected ErrUnknownClass, got: %v", err)
	}
	var unknown *device.UnknownClassError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected *UnknownClassError, got %T", err)
	}
	msg := err.Error()
	for _, want := range []string{`"thermal"`, "microphone", "realsense"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in error message, got: %s", want, msg)
		}
	}
	if strings.Index(msg, "microphone") > strings.Index(msg, "realsense") {
		t.Errorf("Expected sorted options in error message, got: %s", msg)
	}
}

func TestRegistry_NamesKeepRegistrationOrder(t *testing.T) {
	reg := device.NewRegistry(devicetest.New("realsense"), devicetest.New("Microphone"))
	names := reg.Names()
	if len(names) != 2 || names[0] != "realsense" || names[1] != "microphone" {
		t.Errorf("Expected [realsense microphone], got %v", names)
	}
	if len(reg.Classes()) != 2 {
		t.Errorf("Expected 2 classes, got %d", len(reg.Classes()))
	}
}
