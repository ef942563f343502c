package audio

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeMiniaudio BackendType = "miniaudio"
	BackendTypeAuto      BackendType = "auto"
)

// Source is a capture endpoint exposed by a backend.
type Source struct {
	ID         string
	Name       string
	SampleRate int
	Channels   int
	Default    bool
}

// StreamConfig describes one capture stream written to OutputPath.
type StreamConfig struct {
	Source     string
	SampleRate int
	Channels   int
	OutputPath string
}

func (c StreamConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// Stream is an opened capture stream. Audio is only written between Start
// and Stop; Close releases the stream and finalizes the output file.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// AudioBackend defines the interface for audio backend implementations
type AudioBackend interface {
	// List available capture sources
	ListSources() ([]Source, error)

	// Open a capture stream; nothing is recorded until Start
	OpenStream(cfg StreamConfig) (Stream, error)

	// Get the backend type
	GetType() BackendType
}

var (
	factoriesMu sync.RWMutex
	factories   = map[BackendType]func() (AudioBackend, error){
		BackendTypePipeWire: func() (AudioBackend, error) { return NewPipeWireBackend(), nil },
	}
)

// Register makes a backend available to NewBackend. Backends needing cgo
// register themselves from their own package.
func Register(t BackendType, factory func() (AudioBackend, error)) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = factory
}

// NewBackend creates the backend selected by name ("", "auto", "pipewire", ...).
func NewBackend(name string) (AudioBackend, error) {
	backendType := determineBackend(name)

	factoriesMu.RLock()
	factory, ok := factories[backendType]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio backend %q is not available (available: %v)", backendType, GetAvailableBackends())
	}
	return factory()
}

// determineBackend resolves "auto" to miniaudio when it was compiled in and
// to PipeWire otherwise.
func determineBackend(name string) BackendType {
	switch BackendType(strings.ToLower(strings.TrimSpace(name))) {
	case BackendTypePipeWire:
		return BackendTypePipeWire
	case BackendTypeMiniaudio:
		return BackendTypeMiniaudio
	}

	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	if _, ok := factories[BackendTypeMiniaudio]; ok {
		return BackendTypeMiniaudio
	}
	return BackendTypePipeWire
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	backends := make([]BackendType, 0, len(factories))
	for t := range factories {
		backends = append(backends, t)
	}
	sort.Slice(backends, func(i, j int) bool { return backends[i] < backends[j] })
	return backends
}
