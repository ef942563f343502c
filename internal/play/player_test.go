package play

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakePlayer(available ...string) (*Player, *[]string) {
	var calls []string
	p := New(&bytes.Buffer{})
	p.lookPath = func(file string) (string, error) {
		for _, a := range available {
			if a == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
	p.run = func(name string, args ...string) error {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return nil
	}
	return p, &calls
}

func TestPlayFolder_InNameOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"microphone1.wav", "microphone0.wav", "realsense0.bag"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p, calls := fakePlayer("ffplay", "aplay")
	if err := p.PlayFolder(dir, "microphone*.wav"); err != nil {
		t.Fatalf("PlayFolder failed: %v", err)
	}

	want := []string{
		"ffplay -nodisp -autoexit " + filepath.Join(dir, "microphone0.wav"),
		"ffplay -nodisp -autoexit " + filepath.Join(dir, "microphone1.wav"),
	}
	if strings.Join(*calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("Expected calls %v, got %v", want, *calls)
	}
}

func TestPlay_Errors(t *testing.T) {
	dir := t.TempDir()
	p, _ := fakePlayer()

	if err := p.Play(filepath.Join(dir, "missing.wav")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %v", err)
	}

	file := filepath.Join(dir, "microphone0.wav")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(file); err == nil || !strings.Contains(err.Error(), "no audio player found") {
		t.Errorf("Expected missing player error, got %v", err)
	}

	if err := p.PlayFolder(dir, "*.flac"); err == nil {
		t.Error("Expected error for empty match")
	}
}
