// Package devicetest provides an in-memory device class for testing session
// orchestration without hardware.
package devicetest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/AcousticOdometry/recorder/internal/device"
)

// Artifact is the extension of the file a started fake device writes.
const Artifact = ".dat"

// Log records lifecycle events across all fake devices in call order.
type Log struct {
	mu      sync.Mutex
	entries []string
	live    int
}

func (l *Log) record(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the recorded events, e.g. "start microphone0".
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Live is the number of opened captures that were not closed yet.
func (l *Log) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// Class is a configurable fake device class.
type Class struct {
	ClassName string
	Required  []string
	Found     map[string]device.Settings

	// Failures keyed by config index.
	FailOpen  map[string]error
	FailStart map[string]error
	FailStop  map[string]error

	Events *Log
}

// New returns a fake class with a fresh event log.
func New(name string, required ...string) *Class {
	return &Class{ClassName: name, Required: required, Events: &Log{}}
}

func (c *Class) Name() string { return c.ClassName }

func (c *Class) Find() (map[string]device.Settings, error) {
	out := make(map[string]device.Settings, len(c.Found))
	for id, s := range c.Found {
		out[id] = s.Clone()
	}
	return out, nil
}

func (c *Class) New(index, outputFolder string, settings device.Settings) (device.Device, error) {
	base, err := device.NewBase(c.ClassName, index, outputFolder, settings)
	if err != nil {
		return nil, err
	}
	for _, key := range c.Required {
		if !settings.Has(key) {
			return nil, fmt.Errorf("%w: %q", device.ErrMissingSetting, key)
		}
	}
	h, err := device.Open(base, func() (device.Capture, error) {
		if err := c.FailOpen[index]; err != nil {
			return nil, err
		}
		c.Events.mu.Lock()
		c.Events.live++
		c.Events.mu.Unlock()
		c.Events.record("open %s", base)
		return &capture{class: c, base: base, index: index}, nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Class) ShowResults(w io.Writer, folder string) error {
	matches, err := filepath.Glob(filepath.Join(folder, c.ClassName+"*"+Artifact))
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintln(w, filepath.Base(m))
	}
	return nil
}

type capture struct {
	class *Class
	base  *device.Base
	index string
}

func (c *capture) Start() error {
	if err := c.class.FailStart[c.index]; err != nil {
		return err
	}
	c.class.Events.record("start %s", c.base)
	return os.WriteFile(c.base.ArtifactPath(Artifact), []byte(c.base.String()), 0o644)
}

func (c *capture) Stop() error {
	c.class.Events.record("stop %s", c.base)
	return c.class.FailStop[c.index]
}

func (c *capture) Close() error {
	c.class.Events.mu.Lock()
	c.class.Events.live--
	c.class.Events.mu.Unlock()
	c.class.Events.record("close %s", c.base)
	return nil
}
