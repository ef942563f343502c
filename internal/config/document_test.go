package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/AcousticOdometry/recorder/internal/device"
)

const sampleDocument = `
realsense:
  "012345678901":
    name: Intel RealSense D435
    serial_number: "012345678901"
    streams:
      Depth: {type: depth, format: z16, framerate: 30}
microphone:
  1:
    name: USB Mic
    samplerate: 48000
    channels: 2
  0:
    name: Built-in
    samplerate: 44100
    channels: 1
`

func TestParse_KeepsDocumentOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := doc.Classes(); !reflect.DeepEqual(got, []string{"realsense", "microphone"}) {
		t.Errorf("Unexpected class order: %v", got)
	}
	if doc.Len() != 3 {
		t.Errorf("Expected 3 devices, got %d", doc.Len())
	}

	var order []string
	for _, e := range doc.Entries() {
		order = append(order, e.Class+e.Index)
	}
	want := []string{"realsense012345678901", "microphone1", "microphone0"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Unexpected device order: %v, want %v", order, want)
	}

	mic := doc.Entries()[1].Settings
	if n, _ := mic.Int("samplerate"); n != 48000 {
		t.Errorf("Unexpected samplerate: %v", mic["samplerate"])
	}
}

func TestParse_Empty(t *testing.T) {
	for _, data := range []string{"", "\n", "~\n", "microphone:\n"} {
		if _, err := Parse([]byte(data)); !errors.Is(err, ErrNoDocument) {
			t.Errorf("Parse(%q): expected ErrNoDocument, got %v", data, err)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"list":            "- microphone\n",
		"scalar class":    "microphone: 3\n",
		"duplicate class": "microphone:\n  0: {}\nmicrophone:\n  1: {}\n",
		"duplicate index": "microphone:\n  0: {}\n  0: {}\n",
		"scalar settings": "microphone:\n  0: loud\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			if err == nil {
				t.Fatal("Expected error")
			}
			if errors.Is(err, ErrNoDocument) {
				t.Errorf("Expected a parse error, got %v", err)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "recorder.yaml"))
	if !errors.Is(err, ErrNoDocument) {
		t.Errorf("Expected ErrNoDocument, got %v", err)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "recorder.yaml")
	if err := doc.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Entries(), doc.Entries()) {
		t.Errorf("Round trip changed the document:\n got: %v\nwant: %v", loaded.Entries(), doc.Entries())
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected file to exist: %v", err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatal(err)
	}
	clone := doc.Clone()
	clone.Add("microphone", "0", device.Settings{"name": "changed"})

	if doc.Entries()[2].Settings["name"] != "Built-in" {
		t.Errorf("Clone shares settings with the original: %v", doc.Entries()[2].Settings)
	}
	streams := doc.Clone().Entries()[0].Settings["streams"].(map[string]any)
	streams["Depth"] = nil
	if doc.Entries()[0].Settings["streams"].(map[string]any)["Depth"] == nil {
		t.Error("Clone shares nested maps with the original")
	}
}

func TestFilterAndAdd(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatal(err)
	}

	mics := doc.Filter("Microphone")
	if !reflect.DeepEqual(mics.Classes(), []string{"microphone"}) || mics.Len() != 2 {
		t.Errorf("Unexpected filter result: %v (%d devices)", mics.Classes(), mics.Len())
	}
	if doc.Filter("thermal").Len() != 0 {
		t.Error("Expected empty document for unknown class")
	}

	doc.Add("microphone", "2", device.Settings{"name": "Headset"})
	doc.Add("camera", "0", device.Settings{"name": "Webcam"})
	doc.Add("microphone", "1", device.Settings{"name": "Replaced"})

	var order []string
	for _, e := range doc.Entries() {
		order = append(order, e.Class+e.Index+":"+e.Settings["name"].(string))
	}
	want := []string{
		"realsense012345678901:Intel RealSense D435",
		"microphone1:Replaced",
		"microphone0:Built-in",
		"microphone2:Headset",
		"camera0:Webcam",
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("Unexpected entries:\n got: %v\nwant: %v", order, want)
	}
}
