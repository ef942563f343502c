package audio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fakePipeWire(output string, err error) *PipeWire {
	return &PipeWire{run: func(name string, args ...string) ([]byte, error) {
		if name != "pw-link" || len(args) != 1 || args[0] != "-o" {
			return nil, errors.New("unexpected command: " + name + " " + strings.Join(args, " "))
		}
		return []byte(output), err
	}}
}

const pwLinkOutput = `alsa_input.usb-Focusrite:capture_FL
alsa_input.usb-Focusrite:capture_FR
Chrome:output_FL
Chrome:output_FR
v4l2_input.platform:camera:monitor
`

func TestListNodes_GroupsPortsByNode(t *testing.T) {
	pw := fakePipeWire(pwLinkOutput, nil)

	nodes, err := pw.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d: %+v", len(nodes), nodes)
	}

	if nodes[0].ID != "alsa_input.usb-Focusrite" || nodes[0].Channels != 2 {
		t.Errorf("Unexpected first node: %+v", nodes[0])
	}
	if nodes[1].ID != "Chrome" || nodes[1].Channels != 2 {
		t.Errorf("Unexpected second node: %+v", nodes[1])
	}
	// Node names may contain colons themselves.
	if nodes[2].ID != "v4l2_input.platform:camera" || nodes[2].Channels != 1 {
		t.Errorf("Unexpected third node: %+v", nodes[2])
	}
	for _, n := range nodes {
		if n.SampleRate != defaultSampleRate {
			t.Errorf("Expected default sample rate for %s, got %d", n.ID, n.SampleRate)
		}
	}
}

func TestParsePorts_SkipsHeaders(t *testing.T) {
	ports := parsePorts("Output ports:\n  system:capture_1\n\nInput ports:\n")
	if len(ports) != 1 || ports[0] != "system:capture_1" {
		t.Errorf("Unexpected ports: %v", ports)
	}
}

func TestValidateNode(t *testing.T) {
	pw := fakePipeWire(pwLinkOutput, nil)

	if err := pw.ValidateNode("Chrome"); err != nil {
		t.Errorf("Expected no error for existing node, got: %v", err)
	}

	err := pw.ValidateNode("Firefox")
	if err == nil {
		t.Fatal("Expected error for missing node")
	}
	if !strings.Contains(err.Error(), "source not found") {
		t.Errorf("Expected 'source not found' error, got: %v", err)
	}
}

func TestListPorts_CommandFailure(t *testing.T) {
	pw := fakePipeWire("", errors.New("exit status 1"))
	if _, err := pw.ListPorts(); err == nil {
		t.Error("Expected error when pw-link fails")
	}
}

func TestOpenStream_ValidatesConfig(t *testing.T) {
	backend := &PipeWireBackend{pipewire: fakePipeWire(pwLinkOutput, nil), command: "pw-record"}
	out := filepath.Join(t.TempDir(), "microphone0.wav")

	cases := []struct {
		name string
		cfg  StreamConfig
	}{
		{"zero rate", StreamConfig{SampleRate: 0, Channels: 1, OutputPath: out}},
		{"zero channels", StreamConfig{SampleRate: 48000, Channels: 0, OutputPath: out}},
		{"no output", StreamConfig{SampleRate: 48000, Channels: 1}},
		{"unknown source", StreamConfig{Source: "Firefox", SampleRate: 48000, Channels: 1, OutputPath: out}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := backend.OpenStream(tc.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}

	stream, err := backend.OpenStream(StreamConfig{Source: "Chrome", SampleRate: 44100, Channels: 2, OutputPath: out})
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	args := strings.Join(stream.(*pipewireStream).args(), " ")
	want := "--rate 44100 --channels 2 --format s16 --target Chrome " + out
	if args != want {
		t.Errorf("Unexpected pw-record args:\n got: %s\nwant: %s", args, want)
	}

	// Stop and Close before Start are no-ops.
	if err := stream.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close before Start: %v", err)
	}
}

func TestWave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	w, err := CreateWave(path, 16000, 2)
	if err != nil {
		t.Fatalf("CreateWave failed: %v", err)
	}
	// 1600 stereo frames of 16 bit samples = 100ms.
	pcm := make([]byte, 1600*2*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = byte(i)
		pcm[i+1] = 0x10
	}
	if err := w.WritePCM16(pcm[:len(pcm)/2]); err != nil {
		t.Fatalf("WritePCM16 failed: %v", err)
	}
	if err := w.WritePCM16(pcm[len(pcm)/2:]); err != nil {
		t.Fatalf("WritePCM16 failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := ReadWaveInfo(path)
	if err != nil {
		t.Fatalf("ReadWaveInfo failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 2 || info.BitDepth != 16 {
		t.Errorf("Unexpected format: %+v", info)
	}
	if d := info.Duration - 100*time.Millisecond; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("Expected 100ms, got %s", info.Duration)
	}
}

func TestReadWaveInfo_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWaveInfo(path); err == nil {
		t.Error("Expected error for non-wave file")
	}
}

func TestDetermineBackend(t *testing.T) {
	if got := determineBackend("PipeWire"); got != BackendTypePipeWire {
		t.Errorf("Expected pipewire, got %s", got)
	}
	if got := determineBackend("miniaudio"); got != BackendTypeMiniaudio {
		t.Errorf("Expected miniaudio, got %s", got)
	}
	if _, err := NewBackend("pipewire"); err != nil {
		t.Errorf("Expected pipewire backend to be registered: %v", err)
	}
}
