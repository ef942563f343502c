//go:build cgo

package miniaudio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/AcousticOdometry/recorder/internal/audio"
)

const chunkBuffer = 64

func init() {
	audio.Register(audio.BackendTypeMiniaudio, func() (audio.AudioBackend, error) {
		return New()
	})
}

// Backend captures from miniaudio devices and writes 16 bit WAV files.
type Backend struct {
	ctx *malgo.AllocatedContext
}

// New initializes a miniaudio context.
func New() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	return &Backend{ctx: ctx}, nil
}

// GetType returns the backend type
func (b *Backend) GetType() audio.BackendType {
	return audio.BackendTypeMiniaudio
}

// ListSources returns the capture devices, in the order miniaudio reports them.
func (b *Backend) ListSources() ([]audio.Source, error) {
	devices, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	sources := make([]audio.Source, 0, len(devices))
	for _, d := range devices {
		src := audio.Source{
			ID:         d.ID.String(),
			Name:       d.Name(),
			SampleRate: 48000,
			Channels:   1,
			Default:    d.IsDefault > 0,
		}
		if info, err := b.ctx.DeviceInfo(malgo.Capture, d.ID, malgo.Shared); err == nil {
			if info.MaxChannels > 0 {
				src.Channels = int(info.MaxChannels)
			}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// OpenStream initializes the capture device and creates the WAV file. The
// source is matched against device id, then name; empty means the default
// device.
func (b *Backend) OpenStream(cfg audio.StreamConfig) (audio.Stream, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.OutputPath == "" {
		return nil, fmt.Errorf("invalid stream config: %+v", cfg)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = uint32(cfg.Channels)
	config.SampleRate = uint32(cfg.SampleRate)

	if cfg.Source != "" {
		id, err := b.findDevice(cfg.Source)
		if err != nil {
			return nil, err
		}
		config.Capture.DeviceID = id.Pointer()
	}

	wave, err := audio.CreateWave(cfg.OutputPath, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}

	s := &stream{
		chunks: make(chan []byte, chunkBuffer),
		wave:   wave,
		done:   make(chan struct{}),
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := make([]byte, len(input))
			copy(chunk, input)
			select {
			case s.chunks <- chunk:
			default:
				slog.Warn("Dropping audio chunk, writer is behind", "output", cfg.OutputPath)
			}
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, config, callbacks)
	if err != nil {
		wave.Close()
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}
	s.device = device
	go s.drain()
	return s, nil
}

func (b *Backend) findDevice(source string) (*malgo.DeviceID, error) {
	devices, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	for i := range devices {
		if devices[i].ID.String() == source || devices[i].Name() == source {
			return &devices[i].ID, nil
		}
	}
	return nil, fmt.Errorf("source not found: %s", source)
}

type stream struct {
	device *malgo.Device
	chunks chan []byte
	wave   *audio.WaveWriter
	done   chan struct{}

	mu       sync.Mutex
	writeErr error
	stopped  bool
	closed   bool
}

func (s *stream) drain() {
	defer close(s.done)
	for chunk := range s.chunks {
		if err := s.wave.WritePCM16(chunk); err != nil {
			s.mu.Lock()
			if s.writeErr == nil {
				s.writeErr = err
			}
			s.mu.Unlock()
		}
	}
}

func (s *stream) Start() error {
	return s.device.Start()
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	return s.device.Stop()
}

// Close stops the device, flushes pending chunks and finalizes the file.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.stopped {
		s.stopped = true
		_ = s.device.Stop()
	}
	s.mu.Unlock()

	s.device.Uninit()
	close(s.chunks)
	<-s.done

	s.mu.Lock()
	writeErr := s.writeErr
	s.mu.Unlock()
	if err := s.wave.Close(); err != nil {
		return err
	}
	return writeErr
}
