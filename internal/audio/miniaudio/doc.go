// Package miniaudio registers a capture backend built on miniaudio through
// malgo. It needs cgo; without it the package is empty and only the PipeWire
// backend is available.
//
// Import it for its side effect:
//
//	import _ "github.com/AcousticOdometry/recorder/internal/audio/miniaudio"
package miniaudio
