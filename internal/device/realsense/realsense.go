// Package realsense implements the depth camera rig device class. Each
// device records <output>/realsense<index>.bag.
package realsense

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cast"

	"github.com/AcousticOdometry/recorder/internal/device"
)

// ClassName is the registry key of this class.
const ClassName = "realsense"

const artifact = ".bag"

// Stream is one enabled sensor stream of a rig.
type Stream struct {
	Name      string
	Type      string
	Format    string
	Framerate int
	Width     int
	Height    int
}

// Rig is a validated device configuration.
type Rig struct {
	Serial  string
	Streams []Stream
}

// Backend talks to the camera runtime.
type Backend interface {
	// Query lists connected rigs keyed by serial number.
	Query() (map[string]device.Settings, error)

	// Open prepares a capture writing to bagPath. Nothing is recorded until
	// the capture is started.
	Open(rig Rig, bagPath string) (device.Capture, error)
}

// Class is the realsense device class.
type Class struct {
	backend Backend
}

// New returns a class driving the given backend.
func New(backend Backend) *Class {
	return &Class{backend: backend}
}

func (c *Class) Name() string { return ClassName }

func (c *Class) Find() (map[string]device.Settings, error) {
	return c.backend.Query()
}

func (c *Class) New(index, outputFolder string, settings device.Settings) (device.Device, error) {
	base, err := device.NewBase(ClassName, index, outputFolder, settings)
	if err != nil {
		return nil, err
	}
	rig, err := ParseRig(settings)
	if err != nil {
		return nil, err
	}

	h, err := device.Open(base, func() (device.Capture, error) {
		return c.backend.Open(rig, base.ArtifactPath(artifact))
	})
	if err != nil {
		return nil, fmt.Errorf("open realsense %s: %w", index, err)
	}
	return h, nil
}

// ParseRig validates serial_number and streams. Streams are returned sorted by
// name.
func ParseRig(settings device.Settings) (Rig, error) {
	var rig Rig
	serial, err := settings.String("serial_number")
	if err != nil {
		return rig, err
	}
	if serial == "" {
		return rig, fmt.Errorf("%w: %q is empty", device.ErrInvalidSetting, "serial_number")
	}
	rig.Serial = serial

	streams, err := settings.Map("streams")
	if err != nil {
		return rig, err
	}
	if len(streams) == 0 {
		return rig, fmt.Errorf("%w: no streams found in device", device.ErrMissingSetting)
	}

	names := make([]string, 0, len(streams))
	for name := range streams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := toSettings(streams[name])
		if err != nil {
			return rig, fmt.Errorf("stream %s: %w", name, err)
		}
		s, err := parseStream(name, raw)
		if err != nil {
			return rig, fmt.Errorf("stream %s: %w", name, err)
		}
		rig.Streams = append(rig.Streams, s)
	}
	return rig, nil
}

func toSettings(v any) (device.Settings, error) {
	if s, ok := v.(device.Settings); ok {
		return s, nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrInvalidSetting, err)
	}
	return device.Settings(m), nil
}

func parseStream(name string, raw device.Settings) (Stream, error) {
	s := Stream{Name: name}
	var err error
	if s.Type, err = raw.String("type"); err != nil {
		return s, err
	}
	if s.Format, err = raw.String("format"); err != nil {
		return s, err
	}
	if s.Framerate, err = raw.Int("framerate"); err != nil {
		return s, err
	}
	if raw.Has("width") != raw.Has("height") {
		return s, fmt.Errorf("%w: width and height must be set together", device.ErrInvalidSetting)
	}
	if raw.Has("width") {
		if s.Width, err = raw.Int("width"); err != nil {
			return s, err
		}
		if s.Height, err = raw.Int("height"); err != nil {
			return s, err
		}
	}
	return s, nil
}

// ShowResults prints each bag file with its size and sidecar.
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
		fmt.Fprintf(w, "%s: %d bytes\n", f, stat.Size())
		meta, err := os.ReadFile(f[:len(f)-len(artifact)] + ".yaml")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(meta))
	}
	return nil
}
