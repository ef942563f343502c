// Package device defines the capability every capture device class
// implements, the per-device lifecycle and the registry of known classes.
package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Class is a family of capture devices (microphones, depth camera rigs, ...).
type Class interface {
	// Name is the lower-case registry key, also used as artifact prefix.
	Name() string

	// Find queries the host for devices of this class. Keys are stable ids
	// usable as config indexes, values carry at least a "name".
	Find() (map[string]Settings, error)

	// New builds a device bound to outputFolder. Required settings are
	// validated before any native resource is opened.
	New(index, outputFolder string, settings Settings) (Device, error)

	// ShowResults summarizes the artifacts of this class found in folder.
	ShowResults(w io.Writer, folder string) error
}

// Device is one instantiated capture unit, owned by a single session.
type Device interface {
	Class() string
	Index() string
	Name() string
	Settings() Settings
	OutputPath() string
	State() State

	Start() error
	Stop() error

	// Close releases the native resource and flushes the metadata sidecar.
	// It is safe to call more than once and on every exit path.
	Close() error
}

// Capture is the native capture resource a backend owns.
type Capture interface {
	Start() error
	Stop() error
	Close() error
}

// State of a device handle.
type State int

const (
	StateConstructed State = iota
	StateStarted
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Base carries the class independent attributes of a device.
type Base struct {
	class      string
	index      string
	name       string
	settings   Settings
	outputPath string
}

// NewBase validates the settings and derives the output path
// <outputFolder>/<class><index>.
func NewBase(class, index, outputFolder string, settings Settings) (*Base, error) {
	if settings == nil {
		settings = Settings{}
	}
	for _, key := range []string{StartTimestampKey, EndTimestampKey} {
		if settings.Has(key) {
			return nil, fmt.Errorf("%w: %q must not be set in the configuration", ErrReservedKey, key)
		}
	}

	name := "unknown"
	if n, err := settings.String("name"); err == nil && n != "" {
		name = n
	}

	return &Base{
		class:      class,
		index:      index,
		name:       name,
		settings:   settings,
		outputPath: filepath.Join(outputFolder, class+index),
	}, nil
}

func (b *Base) Class() string      { return b.class }
func (b *Base) Index() string      { return b.index }
func (b *Base) Name() string       { return b.name }
func (b *Base) OutputPath() string { return b.outputPath }

// ArtifactPath returns the output path with the given extension, e.g. ".wav".
func (b *Base) ArtifactPath(ext string) string {
	return b.outputPath + ext
}

// MetadataPath is the sidecar document location.
func (b *Base) MetadataPath() string {
	return b.outputPath + ".yaml"
}

func (b *Base) String() string {
	return b.class + b.index
}

// Handle binds a Base to its Capture and drives the
// constructed -> started -> stopped lifecycle.
type Handle struct {
	*Base

	mu      sync.Mutex
	capture Capture
	state   State
	closed  bool
}

// Open opens the capture for base. When opening fails the metadata sidecar is
// still written, so a failed device leaves the same trace as a working one.
func Open(base *Base, open func() (Capture, error)) (*Handle, error) {
	capture, err := open()
	if err != nil {
		if ferr := WriteMetadata(base.MetadataPath(), base.settings); ferr != nil {
			slog.Warn("Failed to write metadata for device that did not open", "device", base.String(), "error", ferr)
		}
		return nil, err
	}
	return &Handle{Base: base, capture: capture, state: StateConstructed}, nil
}

// Settings returns a copy of the current settings, timestamps included.
func (h *Handle) Settings() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings.Clone()
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start starts the capture. start_timestamp is the time just before the
// capture was started and is only recorded when it succeeded.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateConstructed {
		return fmt.Errorf("%w: cannot start %s from %s", ErrInvalidState, h, h.state)
	}

	started := timestamp(time.Now())
	if err := h.capture.Start(); err != nil {
		return fmt.Errorf("start %s: %w", h, err)
	}
	h.settings[StartTimestampKey] = started
	h.state = StateStarted
	slog.Debug("Device started", "device", h.String(), "name", h.name)
	return nil
}

// Stop stops the capture if it was started and stamps end_timestamp. Stopping
// a device that never started only finalizes its metadata.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *Handle) stopLocked() error {
	switch h.state {
	case StateStopped, StateClosed:
		return nil
	}

	var err error
	if h.state == StateStarted {
		if serr := h.capture.Stop(); serr != nil {
			err = fmt.Errorf("stop %s: %w", h, serr)
		}
	}
	h.settings[EndTimestampKey] = timestamp(time.Now())
	h.state = StateStopped
	slog.Debug("Device stopped", "device", h.String(), "name", h.name)
	return err
}

// Close releases a still running capture, closes it and writes the sidecar.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.state == StateStarted {
		slog.Warn("Releasing device that was not stopped", "device", h.String())
		errs = append(errs, h.stopLocked())
	}
	if err := h.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", h, err))
	}
	if err := WriteMetadata(h.MetadataPath(), h.settings); err != nil {
		errs = append(errs, err)
	}
	h.state = StateClosed
	return errors.Join(errs...)
}

func timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
