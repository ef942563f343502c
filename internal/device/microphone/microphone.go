// Package microphone implements the audio capture device class on top of an
// audio backend. Each device records <output>/microphone<index>.wav.
package microphone

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/AcousticOdometry/recorder/internal/audio"
	"github.com/AcousticOdometry/recorder/internal/device"
)

// ClassName is the registry key of this class.
const ClassName = "microphone"

const artifact = ".wav"

// Class is the microphone device class.
type Class struct {
	open func() (audio.AudioBackend, error)

	once    sync.Once
	backend audio.AudioBackend
	err     error
}

// New returns a class using the named audio backend ("auto", "pipewire",
// "miniaudio"). The backend is only initialized on first use.
func New(backend string) *Class {
	return &Class{open: func() (audio.AudioBackend, error) {
		return audio.NewBackend(backend)
	}}
}

// WithBackend returns a class bound to an already created backend.
func WithBackend(b audio.AudioBackend) *Class {
	return &Class{open: func() (audio.AudioBackend, error) { return b, nil }}
}

func (c *Class) audioBackend() (audio.AudioBackend, error) {
	c.once.Do(func() {
		c.backend, c.err = c.open()
	})
	return c.backend, c.err
}

func (c *Class) Name() string { return ClassName }

// Find lists the capture sources of the backend keyed by their position.
func (c *Class) Find() (map[string]device.Settings, error) {
	backend, err := c.audioBackend()
	if err != nil {
		return nil, err
	}
	sources, err := backend.ListSources()
	if err != nil {
		return nil, err
	}

	found := make(map[string]device.Settings, len(sources))
	for i, src := range sources {
		found[strconv.Itoa(i)] = device.Settings{
			"name":       src.Name,
			"samplerate": src.SampleRate,
			"channels":   src.Channels,
			"index":      src.ID,
		}
	}
	return found, nil
}

// New validates samplerate and channels before the backend stream is opened.
func (c *Class) New(index, outputFolder string, settings device.Settings) (device.Device, error) {
	base, err := device.NewBase(ClassName, index, outputFolder, settings)
	if err != nil {
		return nil, err
	}

	cfg := audio.StreamConfig{OutputPath: base.ArtifactPath(artifact)}
	if cfg.SampleRate, err = positive(settings, "samplerate"); err != nil {
		return nil, err
	}
	if cfg.Channels, err = positive(settings, "channels"); err != nil {
		return nil, err
	}

	backend, err := c.audioBackend()
	if err != nil {
		return nil, fmt.Errorf("audio backend: %w", err)
	}
	if cfg.Source, err = source(backend, index, settings); err != nil {
		return nil, err
	}

	h, err := device.Open(base, func() (device.Capture, error) {
		return backend.OpenStream(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone %s: %w", index, err)
	}
	return h, nil
}

// source picks the backend source: an explicit "source", then the "index"
// written by discovery, then the source Find lists under the config index.
// A config index that is not a position is used as a source id.
func source(backend audio.AudioBackend, index string, settings device.Settings) (string, error) {
	for _, key := range []string{"source", "index"} {
		if s, err := settings.String(key); err == nil && s != "" {
			return s, nil
		}
	}

	pos, err := strconv.Atoi(index)
	if err != nil {
		return index, nil
	}
	sources, err := backend.ListSources()
	if err != nil {
		return "", fmt.Errorf("list audio sources: %w", err)
	}
	if pos < 0 || pos >= len(sources) {
		return "", fmt.Errorf("%w: no capture source %s, %d found", device.ErrInvalidSetting, index, len(sources))
	}
	return sources[pos].ID, nil
}

func positive(settings device.Settings, key string) (int, error) {
	n, err := settings.Int(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive, got %d", device.ErrInvalidSetting, key, n)
	}
	return n, nil
}

// ShowResults prints every recorded WAV file with its format and sidecar.
func (c *Class) ShowResults(w io.Writer, folder string) error {
	files, err := filepath.Glob(filepath.Join(folder, ClassName+"*"+artifact))
	if err != nil {
		return err
	}
	for _, f := range files {
		stat, err := os.Stat(f)
		if err != nil {
			return err
		}
		info, err := audio.ReadWaveInfo(f)
		if err != nil {
			fmt.Fprintf(w, "%s: %d bytes (unreadable: %v)\n", f, stat.Size(), err)
		} else {
			fmt.Fprintf(w, "%s: %d bytes, %s, %d Hz, %d channels\n",
				f, stat.Size(), info.Duration, info.SampleRate, info.Channels)
		}
		meta, err := os.ReadFile(f[:len(f)-len(artifact)] + ".yaml")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(meta))
	}
	return nil
}
