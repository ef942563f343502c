package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/device/devicetest"
)

func testRegistry() (*device.Registry, *devicetest.Class, *devicetest.Class) {
	mic := devicetest.New("microphone", "samplerate", "channels")
	rs := devicetest.New("realsense", "serial_number")
	rs.Events = mic.Events
	return device.NewRegistry(mic, rs), mic, rs
}

func TestDevices_BuildsInDocumentOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatal(err)
	}
	registry, mic, _ := testRegistry()
	dir := t.TempDir()

	devices, err := doc.Devices(registry, dir)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	defer CloseAll(devices)

	var names []string
	for _, d := range devices {
		names = append(names, d.Class()+d.Index())
	}
	want := []string{"realsense012345678901", "microphone1", "microphone0"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Unexpected devices: %v", names)
	}
	if devices[1].OutputPath() != filepath.Join(dir, "microphone1") {
		t.Errorf("Unexpected output path: %s", devices[1].OutputPath())
	}
	if mic.Events.Live() != 3 {
		t.Errorf("Expected 3 open captures, got %d", mic.Events.Live())
	}
}

func TestDevices_DoesNotShareSettings(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatal(err)
	}
	registry, _, _ := testRegistry()

	devices, err := doc.Devices(registry, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range devices {
		if err := d.Start(); err != nil {
			t.Fatal(err)
		}
	}
	CloseAll(devices)

	for _, e := range doc.Entries() {
		if e.Settings.Has(device.StartTimestampKey) {
			t.Errorf("Document was modified by a session: %v", e.Settings)
		}
	}
}

func TestDevices_UnknownClassBuildsNothing(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument + "thermal:\n  0: {name: FLIR}\n"))
	if err != nil {
		t.Fatal(err)
	}
	registry, mic, _ := testRegistry()
	dir := t.TempDir()

	devices, err := doc.Devices(registry, dir)
	if !errors.Is(err, device.ErrUnknownClass) {
		t.Fatalf("Expected ErrUnknownClass, got %v", err)
	}
	if devices != nil {
		t.Error("Expected no devices")
	}
	if !strings.Contains(err.Error(), `"thermal"`) || !strings.Contains(err.Error(), "[microphone realsense]") {
		t.Errorf("Unexpected message: %v", err)
	}
	if len(mic.Events.Entries()) != 0 {
		t.Errorf("Expected no device to be constructed, got %v", mic.Events.Entries())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no files, got %d", len(entries))
	}
}

func TestDevices_UnknownClassWithoutDevices(t *testing.T) {
	for _, extra := range []string{"thermal: {}\n", "thermal:\n"} {
		doc, err := Parse([]byte(sampleDocument + extra))
		if err != nil {
			t.Fatal(err)
		}
		registry, mic, _ := testRegistry()

		devices, err := doc.Devices(registry, t.TempDir())
		if !errors.Is(err, device.ErrUnknownClass) {
			t.Errorf("%q: expected ErrUnknownClass, got %v", extra, err)
		}
		if devices != nil {
			t.Errorf("%q: expected no devices, got %d", extra, len(devices))
		}
		if len(mic.Events.Entries()) != 0 {
			t.Errorf("%q: expected no device to be constructed, got %v", extra, mic.Events.Entries())
		}
	}
}

func TestDevices_ConstructionErrorReleasesBuiltDevices(t *testing.T) {
	doc, err := Parse([]byte(`
microphone:
  0: {name: Built-in, samplerate: 44100, channels: 1}
  1: {name: Broken, samplerate: 44100}
  2: {name: Never, samplerate: 44100, channels: 1}
`))
	if err != nil {
		t.Fatal(err)
	}
	registry, mic, _ := testRegistry()

	devices, err := doc.Devices(registry, t.TempDir())
	if devices != nil {
		t.Error("Expected no devices")
	}
	var cerr *ConstructionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected ConstructionError, got %v", err)
	}
	if cerr.Class != "microphone" || cerr.Index != "1" {
		t.Errorf("Unexpected failing device: %s %s", cerr.Class, cerr.Index)
	}
	if !errors.Is(err, device.ErrMissingSetting) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
	if !strings.Contains(err.Error(), "name: Broken") {
		t.Errorf("Expected settings echo in message, got:\n%v", err)
	}
	if mic.Events.Live() != 0 {
		t.Errorf("Expected every built device to be released, %d still open", mic.Events.Live())
	}
	want := []string{"open microphone0", "close microphone0"}
	if !reflect.DeepEqual(mic.Events.Entries(), want) {
		t.Errorf("Unexpected events: %v", mic.Events.Entries())
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	old := WatchDebounce
	WatchDebounce = 10 * time.Millisecond
	defer func() { WatchDebounce = old }()

	path := filepath.Join(t.TempDir(), "recorder.yaml")
	if err := os.WriteFile(path, []byte("microphone:\n  0: {name: a}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Document, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(d *Document) { reloaded <- d })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("microphone:\n  0: {name: a}\n  1: {name: b}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case doc := <-reloaded:
		if doc.Len() != 2 {
			t.Errorf("Expected 2 devices after reload, got %d", doc.Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch did not return after cancel")
	}
}
