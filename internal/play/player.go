// Package play replays recorded audio artifacts with an external player.
package play

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Players in order of preference.
var Players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	out      io.Writer
	lookPath func(file string) (string, error)
	run      func(name string, args ...string) error
}

func New(out io.Writer) *Player {
	return &Player{
		out:      out,
		lookPath: exec.LookPath,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Play blocks until the player exits.
func (p *Player) Play(audioFile string) error {
	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	fmt.Fprintf(p.out, "Playing: %s\n", audioFile)
	slog.Debug("Starting audio player", "player", player, "file", audioFile)
	if err := p.run(player, playerArgs(player, audioFile)...); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

// PlayFolder plays every file in folder matching pattern, in name order.
func (p *Player) PlayFolder(folder, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(folder, pattern))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no files matching %s in %s", pattern, folder)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := p.Play(m); err != nil {
			return err
		}
	}
	fmt.Fprintln(p.out, "Playback completed")
	return nil
}

func playerArgs(player, audioFile string) []string {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", audioFile}
	case "mpv":
		return []string{"--no-video", audioFile}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", audioFile}
	default:
		return []string{audioFile}
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range Players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(Players, ", "))
}
