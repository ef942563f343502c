// Package recorder runs capture sessions: it builds the configured devices in
// a fresh session folder, fans start and stop out to them and releases them
// again, keeping at most one session alive per Recorder.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/metrics"
)

// DefaultNameLayout is the time layout of generated session names.
const DefaultNameLayout = "date_2006-01-02;time_15-04-05"

var (
	ErrNotSetup    = errors.New("recording not set up")
	ErrStartFailed = errors.New("recording failed to start")
	ErrInvalidName = errors.New("invalid session name")
)

// State represents the current session state
type State string

const (
	StateIdle      State = "IDLE"
	StateSetup     State = "SETUP"
	StateRecording State = "RECORDING"
)

// Session describes the live session.
type Session struct {
	Name      string    `json:"name"`
	Folder    string    `json:"folder"`
	Devices   []string  `json:"devices"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// Recorder owns the device set of the current session. All transitions are
// serialized; Wait never holds the lock.
type Recorder struct {
	registry *device.Registry
	root     string
	now      func() time.Time

	mu      sync.Mutex
	input   *config.Document
	working *config.Document
	state   State
	folder  string
	devices []device.Device
	started time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now, used for session names and durations.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates the root output folder and keeps a private copy of doc.
func New(doc *config.Document, registry *device.Registry, root string, opts ...Option) (*Recorder, error) {
	if doc == nil {
		doc = config.NewDocument()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}
	r := &Recorder{
		registry: registry,
		root:     root,
		now:      time.Now,
		input:    doc.Clone(),
		state:    StateIdle,
	}
	r.working = r.input.Clone()
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type setupOptions struct {
	keepConfig bool
}

// SetupOption configures a single Setup call.
type SetupOption func(*setupOptions)

// KeepConfig reuses the working document of the previous session instead of
// restoring it from the input document.
func KeepConfig() SetupOption {
	return func(o *setupOptions) { o.keepConfig = true }
}

// Setup prepares a new session named name, or after the current time when
// name is empty, and returns its folder. A session that is still held is
// released first since devices are exclusive.
func (r *Recorder) Setup(name string, opts ...SetupOption) (string, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		slog.Warn("Discarding previous session", "folder", r.folder, "state", r.state)
		if err := r.releaseLocked(); err != nil {
			slog.Warn("Errors while releasing previous session", "error", err)
		}
	}
	if !o.keepConfig {
		r.working = r.input.Clone()
	}

	folder, err := r.createFolder(strings.TrimSpace(name))
	if err != nil {
		metrics.IncSessionEvent(metrics.EventSetupFailed)
		return "", err
	}

	devices, err := r.working.Devices(r.registry, folder)
	if err != nil {
		// Only an untouched folder is removed, sidecars of failed devices stay.
		if rerr := os.Remove(folder); rerr != nil {
			slog.Debug("Session folder kept after failed setup", "folder", folder, "error", rerr)
		}
		metrics.IncSessionEvent(metrics.EventSetupFailed)
		return "", err
	}

	r.folder = folder
	r.devices = devices
	r.state = StateSetup
	metrics.IncSessionEvent(metrics.EventSetup)
	metrics.SetSessionDevices(len(devices))
	slog.Info("Recording set up", "folder", folder, "devices", len(devices))
	return folder, nil
}

func (r *Recorder) createFolder(name string) (string, error) {
	if name != "" {
		if err := validateName(name); err != nil {
			return "", err
		}
		folder := filepath.Join(r.root, name)
		if err := os.Mkdir(folder, 0o755); err != nil {
			return "", fmt.Errorf("failed to create session folder: %w", err)
		}
		return folder, nil
	}

	// Generated names get a suffix when two sessions start within a second.
	base := r.now().Format(DefaultNameLayout)
	for i := 1; ; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		folder := filepath.Join(r.root, candidate)
		err := os.Mkdir(folder, 0o755)
		if err == nil {
			return folder, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create session folder: %w", err)
		}
	}
}

func validateName(name string) error {
	if name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Start starts every device in order. Starting a recording session again is
// a no-op. If a device fails, the devices already started are stopped, the
// whole set is released and the session is gone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateIdle:
		return ErrNotSetup
	case StateRecording:
		slog.Debug("Recording already started", "folder", r.folder)
		return nil
	}

	for i, d := range r.devices {
		slog.Debug("Starting device", "class", d.Class(), "index", d.Index())
		err := d.Start()
		metrics.IncDeviceOperation(d.Class(), metrics.OpStart, err)
		if err != nil {
			slog.Error("Device failed to start, rolling back", "class", d.Class(), "index", d.Index(), "error", err)
			for j := i - 1; j >= 0; j-- {
				serr := r.devices[j].Stop()
				metrics.IncDeviceOperation(r.devices[j].Class(), metrics.OpStop, serr)
				if serr != nil {
					slog.Warn("Failed to stop device during rollback", "class", r.devices[j].Class(), "index", r.devices[j].Index(), "error", serr)
				}
			}
			if cerr := r.releaseLocked(); cerr != nil {
				slog.Warn("Errors while releasing devices", "error", cerr)
			}
			metrics.IncSessionEvent(metrics.EventStartFailed)
			return fmt.Errorf("%w: %s%s: %w", ErrStartFailed, d.Class(), d.Index(), err)
		}
	}

	r.state = StateRecording
	r.started = r.now()
	metrics.IncSessionEvent(metrics.EventStarted)
	metrics.SetRecording(true)
	slog.Info("Recording started", "folder", r.folder, "devices", len(r.devices))
	return nil
}

// Stop stops every device in order, releases them and returns the session
// folder. Stop errors do not interrupt the fan out; they are joined and
// returned together with the folder.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateIdle {
		return "", ErrNotSetup
	}

	var errs []error
	for _, d := range r.devices {
		slog.Debug("Stopping device", "class", d.Class(), "index", d.Index())
		err := d.Stop()
		metrics.IncDeviceOperation(d.Class(), metrics.OpStop, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if r.state == StateRecording {
		metrics.ObserveSessionDuration(r.now().Sub(r.started))
	}

	folder := r.folder
	if err := r.releaseLocked(); err != nil {
		errs = append(errs, err)
	}
	metrics.IncSessionEvent(metrics.EventStopped)
	slog.Info("Recording stopped", "folder", folder)
	return folder, errors.Join(errs...)
}

// releaseLocked closes every device, which flushes the sidecars, and clears
// the session.
func (r *Recorder) releaseLocked() error {
	var errs []error
	for i := len(r.devices) - 1; i >= 0; i-- {
		err := r.devices[i].Close()
		metrics.IncDeviceOperation(r.devices[i].Class(), metrics.OpClose, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	r.devices = nil
	r.folder = ""
	r.state = StateIdle
	r.started = time.Time{}
	metrics.SetRecording(false)
	metrics.SetSessionDevices(0)
	return errors.Join(errs...)
}

// Wait blocks until the waiter returns. It does not touch the session.
func (r *Recorder) Wait(ctx context.Context, w Waiter) error {
	return w.Wait(ctx)
}

// Record runs start, wait and stop on a session that was set up and returns
// its folder. Stop is attempted whatever the wait outcome; a cancelled
// context only ends the wait early.
func (r *Recorder) Record(ctx context.Context, w Waiter) (string, error) {
	if err := r.Start(); err != nil {
		return "", err
	}
	waitErr := r.Wait(ctx, w)
	if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
		slog.Info("Recording interrupted")
		waitErr = nil
	}
	folder, err := r.Stop()
	return folder, errors.Join(waitErr, err)
}

// Close releases a session that was never stopped. It is safe to call more
// than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateIdle {
		return nil
	}
	slog.Warn("Releasing session that was not stopped", "folder", r.folder)
	return r.releaseLocked()
}

// SetConfig replaces the input document used by the next Setup.
func (r *Recorder) SetConfig(doc *config.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input = doc.Clone()
}

// Root is the folder sessions are created in.
func (r *Recorder) Root() string {
	return r.root
}

// Status returns the current state and, unless idle, the session.
func (r *Recorder) Status() (State, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateIdle {
		return r.state, nil
	}
	s := &Session{
		Name:      filepath.Base(r.folder),
		Folder:    r.folder,
		StartTime: r.started,
	}
	for _, d := range r.devices {
		s.Devices = append(s.Devices, d.Class()+d.Index())
	}
	return r.state, s
}
