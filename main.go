package main

import (
	"github.com/AcousticOdometry/recorder/cmd"

	// Registers the miniaudio capture backend when built with cgo.
	_ "github.com/AcousticOdometry/recorder/internal/audio/miniaudio"
)

func main() {
	cmd.Execute()
}
