package audio

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/AcousticOdometry/recorder/internal/proc"
)

const defaultSampleRate = 48000

// PipeWireBackend captures with pw-record, one process per stream.
type PipeWireBackend struct {
	pipewire *PipeWire
	command  string
}

// NewPipeWireBackend creates a new PipeWire backend
func NewPipeWireBackend() *PipeWireBackend {
	return &PipeWireBackend{pipewire: NewPipeWire(), command: "pw-record"}
}

// ListSources returns available PipeWire nodes
func (p *PipeWireBackend) ListSources() ([]Source, error) {
	return p.pipewire.ListNodes()
}

// OpenStream validates the stream; pw-record is only launched on Start.
func (p *PipeWireBackend) OpenStream(cfg StreamConfig) (Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		if err := p.pipewire.ValidateNode(cfg.Source); err != nil {
			return nil, err
		}
	}
	return &pipewireStream{command: p.command, cfg: cfg}, nil
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

type pipewireStream struct {
	command string
	cfg     StreamConfig

	mu      sync.Mutex
	process *proc.Process
}

func (s *pipewireStream) args() []string {
	args := []string{
		"--rate", strconv.Itoa(s.cfg.SampleRate),
		"--channels", strconv.Itoa(s.cfg.Channels),
		"--format", "s16",
	}
	if s.cfg.Source != "" {
		args = append(args, "--target", s.cfg.Source)
	}
	return append(args, s.cfg.OutputPath)
}

func (s *pipewireStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.process != nil {
		return fmt.Errorf("stream already started")
	}
	process, err := proc.Start(s.command, s.args(),
		"PIPEWIRE_QUANTUM=256/48000",
		"PIPEWIRE_LATENCY=256/48000",
	)
	if err != nil {
		return err
	}
	s.process = process
	slog.Info("PipeWire capture started", "source", s.cfg.Source, "output", s.cfg.OutputPath)
	return nil
}

func (s *pipewireStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.process == nil {
		return nil
	}
	err := s.process.Interrupt(proc.DefaultStopTimeout)
	s.process = nil
	return err
}

func (s *pipewireStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.process == nil {
		return nil
	}
	err := s.process.Kill()
	s.process = nil
	return err
}
