package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AcousticOdometry/recorder/internal/device"
)

// ConstructionError reports the device that could not be built.
type ConstructionError struct {
	Class    string
	Index    string
	Settings device.Settings
	Err      error
}

func (e *ConstructionError) Error() string {
	echo, err := yaml.Marshal(e.Settings)
	if err != nil {
		echo = []byte(fmt.Sprint(map[string]any(e.Settings)))
	}
	return fmt.Sprintf("could not create %s device %q with settings:\n%s%v",
		e.Class, e.Index, indent(string(echo)), e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "")
}

// Devices builds every configured device in document order, bound to
// outputFolder. All classes are resolved first so an unknown class constructs
// nothing. When a device fails, the ones already built are closed before the
// error is returned.
func (d *Document) Devices(registry *device.Registry, outputFolder string) ([]device.Device, error) {
	// Every class key must resolve, including keys without devices.
	resolved := make(map[string]device.Class)
	for _, name := range d.Classes() {
		c, err := registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		resolved[name] = c
	}

	entries := d.Entries()
	classes := make([]device.Class, len(entries))
	for i, e := range entries {
		classes[i] = resolved[e.Class]
	}

	devices := make([]device.Device, 0, len(entries))
	for i, e := range entries {
		slog.Debug("Creating device", "class", e.Class, "index", e.Index)
		dev, err := classes[i].New(e.Index, outputFolder, e.Settings.Clone())
		if err != nil {
			if cerr := CloseAll(devices); cerr != nil {
				slog.Warn("Failed to release devices after construction error", "error", cerr)
			}
			return nil, &ConstructionError{Class: e.Class, Index: e.Index, Settings: e.Settings, Err: err}
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// CloseAll closes devices in reverse order and joins the errors.
func CloseAll(devices []device.Device) error {
	var errs []error
	for i := len(devices) - 1; i >= 0; i-- {
		if err := devices[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
