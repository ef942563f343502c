package realsense

import (
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/proc"
)

// DefaultRecordArgs is the argument template of rs-record. It cannot select
// a camera, so only one rig can record at a time with it.
var DefaultRecordArgs = []string{"-f", "{bag}", "-t", "{seconds}"}

// CLIBackend drives the librealsense command line tools. RecordArgs is a
// template where {bag}, {seconds} and {serial} are replaced for each capture.
// When it has no {serial} the recorder picks the camera itself, so a second
// rig is refused while one is open.
type CLIBackend struct {
	EnumerateCommand string
	RecordCommand    string
	RecordArgs       []string
	// MaxSeconds bounds a recording in case the stop signal never arrives.
	MaxSeconds int

	run      func(name string, args ...string) ([]byte, error)
	lookPath func(file string) (string, error)

	mu   sync.Mutex
	open map[string]bool
}

// NewCLIBackend returns a backend using rs-enumerate-devices and rs-record.
func NewCLIBackend(enumerate, record string, maxSeconds int) *CLIBackend {
	if enumerate == "" {
		enumerate = "rs-enumerate-devices"
	}
	if record == "" {
		record = "rs-record"
	}
	if maxSeconds <= 0 {
		maxSeconds = 3600
	}
	return &CLIBackend{
		EnumerateCommand: enumerate,
		RecordCommand:    record,
		RecordArgs:       DefaultRecordArgs,
		MaxSeconds:       maxSeconds,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
		lookPath: exec.LookPath,
		open:     make(map[string]bool),
	}
}

// defaultStreams is what rs-record enables on a D400 series camera.
func defaultStreams() map[string]any {
	return map[string]any{
		"Depth": map[string]any{"type": "depth", "format": "z16", "framerate": 30, "width": 640, "height": 480},
		"Color": map[string]any{"type": "color", "format": "rgb8", "framerate": 30, "width": 640, "height": 480},
	}
}

func (b *CLIBackend) Query() (map[string]device.Settings, error) {
	out, err := b.run(b.EnumerateCommand, "-s")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate realsense devices: %w", err)
	}
	return parseEnumerate(string(out)), nil
}

var columns = regexp.MustCompile(`\s{2,}`)

// parseEnumerate reads the short listing of rs-enumerate-devices:
//
//	Device Name                   Serial Number       Firmware Version
//	Intel RealSense D435          012345678901        05.12.07.150
func parseEnumerate(out string) map[string]device.Settings {
	found := make(map[string]device.Settings)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Device Name") {
			continue
		}
		fields := columns.Split(line, -1)
		if len(fields) < 2 {
			continue
		}
		serial := fields[1]
		found[serial] = device.Settings{
			"name":          fields[0],
			"serial_number": serial,
			"streams":       defaultStreams(),
		}
	}
	return found
}

func (b *CLIBackend) Open(rig Rig, bagPath string) (device.Capture, error) {
	if _, err := b.lookPath(b.RecordCommand); err != nil {
		return nil, fmt.Errorf("%s not available: %w", b.RecordCommand, err)
	}

	args := b.recordArgs(rig, bagPath)
	selectsSerial := false
	for _, a := range b.RecordArgs {
		if strings.Contains(a, "{serial}") {
			selectsSerial = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[rig.Serial] {
		return nil, fmt.Errorf("realsense %s is already open", rig.Serial)
	}
	if !selectsSerial && len(b.open) > 0 {
		return nil, fmt.Errorf("%s cannot select camera %s while another rig is open, add {serial} to realsense.record_args", b.RecordCommand, rig.Serial)
	}
	b.open[rig.Serial] = true

	return &cliCapture{
		command: b.RecordCommand,
		args:    args,
		serial:  rig.Serial,
		bag:     bagPath,
		release: func() {
			b.mu.Lock()
			delete(b.open, rig.Serial)
			b.mu.Unlock()
		},
	}, nil
}

func (b *CLIBackend) recordArgs(rig Rig, bagPath string) []string {
	r := strings.NewReplacer(
		"{bag}", bagPath,
		"{seconds}", strconv.Itoa(b.MaxSeconds),
		"{serial}", rig.Serial,
	)
	args := make([]string, len(b.RecordArgs))
	for i, a := range b.RecordArgs {
		args[i] = r.Replace(a)
	}
	return args
}

type cliCapture struct {
	command string
	args    []string
	serial  string
	bag     string
	release func()

	mu      sync.Mutex
	process *proc.Process
}

func (c *cliCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process != nil {
		return fmt.Errorf("capture already started")
	}
	p, err := proc.Start(c.command, c.args)
	if err != nil {
		return err
	}
	c.process = p
	slog.Info("RealSense capture started", "serial", c.serial, "bag", c.bag)
	return nil
}

func (c *cliCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process == nil {
		return nil
	}
	err := c.process.Interrupt(proc.DefaultStopTimeout)
	c.process = nil
	return err
}

func (c *cliCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.release != nil {
		c.release()
		c.release = nil
	}
	if c.process == nil {
		return nil
	}
	err := c.process.Kill()
	c.process = nil
	return err
}
