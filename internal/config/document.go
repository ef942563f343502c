// Package config holds the application settings and the device configuration
// document, and turns the document into constructed devices.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/AcousticOdometry/recorder/internal/device"
)

// ErrNoDocument is returned when the configuration document is missing or
// empty.
var ErrNoDocument = errors.New("no device configuration found")

// Entry is one configured device.
type Entry struct {
	Class    string
	Index    string
	Settings device.Settings
}

type classEntry struct {
	name    string
	devices []Entry
}

// Document is the device configuration: class -> index -> settings. The order
// of the YAML source is kept and is the order devices are handled in.
type Document struct {
	classes []classEntry
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Load reads a document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist, run `config` first", ErrNoDocument, path)
		}
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrNoDocument
	}
	top := root.Content[0]
	if top.Kind == yaml.ScalarNode && top.Tag == "!!null" {
		return nil, ErrNoDocument
	}
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid configuration: line %d: expected a mapping of device classes", top.Line)
	}

	doc := &Document{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i], top.Content[i+1]
		if seen[key.Value] {
			return nil, fmt.Errorf("invalid configuration: line %d: duplicate class %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		entry, err := parseClass(key.Value, value)
		if err != nil {
			return nil, err
		}
		doc.classes = append(doc.classes, entry)
	}
	if doc.Len() == 0 {
		return nil, ErrNoDocument
	}
	return doc, nil
}

func parseClass(class string, node *yaml.Node) (classEntry, error) {
	entry := classEntry{name: class}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return entry, nil
	}
	if node.Kind != yaml.MappingNode {
		return entry, fmt.Errorf("invalid configuration: line %d: class %q must map device indexes to settings", node.Line, class)
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return entry, fmt.Errorf("invalid configuration: line %d: duplicate index %q in class %q", key.Line, key.Value, class)
		}
		seen[key.Value] = true

		settings := device.Settings{}
		if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
			if err := value.Decode(&settings); err != nil {
				return entry, fmt.Errorf("invalid configuration: %s %s: %w", class, key.Value, err)
			}
		}
		entry.devices = append(entry.devices, Entry{Class: class, Index: key.Value, Settings: settings})
	}
	return entry, nil
}

// Marshal encodes the document, keeping its order.
func (d *Document) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range d.classes {
		devices := &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range c.devices {
			value := &yaml.Node{}
			if err := value.Encode(e.Settings); err != nil {
				return nil, fmt.Errorf("encode %s %s: %w", c.name, e.Index, err)
			}
			devices.Content = append(devices.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.Index}, value)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: c.name},
			devices,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the document to path atomically.
func (d *Document) Save(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	slog.Debug("Configuration saved", "path", path, "devices", d.Len())
	return nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := &Document{classes: make([]classEntry, len(d.classes))}
	for i, c := range d.classes {
		out.classes[i] = classEntry{name: c.name, devices: make([]Entry, len(c.devices))}
		for j, e := range c.devices {
			out.classes[i].devices[j] = Entry{Class: e.Class, Index: e.Index, Settings: e.Settings.Clone()}
		}
	}
	return out
}

// Filter returns a copy holding only the given class, matched ignoring case.
// The result is empty when the class is not configured.
func (d *Document) Filter(class string) *Document {
	out := &Document{}
	for _, c := range d.Clone().classes {
		if strings.EqualFold(c.name, class) {
			out.classes = append(out.classes, c)
		}
	}
	return out
}

// Add sets the settings of class/index, appending it when new.
func (d *Document) Add(class, index string, settings device.Settings) {
	entry := Entry{Class: class, Index: index, Settings: settings.Clone()}
	for i := range d.classes {
		if d.classes[i].name != class {
			continue
		}
		for j := range d.classes[i].devices {
			if d.classes[i].devices[j].Index == index {
				d.classes[i].devices[j] = entry
				return
			}
		}
		d.classes[i].devices = append(d.classes[i].devices, entry)
		return
	}
	d.classes = append(d.classes, classEntry{name: class, devices: []Entry{entry}})
}

// Classes returns the configured class names in document order.
func (d *Document) Classes() []string {
	names := make([]string, len(d.classes))
	for i, c := range d.classes {
		names[i] = c.name
	}
	return names
}

// Entries returns copies of every configured device in document order.
func (d *Document) Entries() []Entry {
	var out []Entry
	for _, c := range d.Clone().classes {
		out = append(out, c.devices...)
	}
	return out
}

// Len is the number of configured devices.
func (d *Document) Len() int {
	n := 0
	for _, c := range d.classes {
		n += len(c.devices)
	}
	return n
}
