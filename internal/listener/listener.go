// Package listener exposes a recorder to remote callers so that several
// machines can be set up, started and stopped together.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AcousticOdometry/recorder/internal/recorder"
)

// ErrUnknownListener is returned by Lookup for an unregistered class.
var ErrUnknownListener = errors.New("unknown listener class")

// Controller is the part of a recorder a listener drives.
type Controller interface {
	Setup(name string, opts ...recorder.SetupOption) (string, error)
	Start() error
	Stop() (string, error)
}

// Listener serves remote commands until ctx is cancelled.
type Listener interface {
	Listen(ctx context.Context) error
}

// Options are shared by all listener classes.
type Options struct {
	Host string
	Port int
	// RateLimit is the number of requests per minute and client, 0 disables it.
	RateLimit int
}

// Class creates a listener bound to a controller.
type Class func(ctrl Controller, opts Options) Listener

var classes = map[string]Class{
	"localhost": func(ctrl Controller, opts Options) Listener { return NewLocalhost(ctrl, opts) },
}

// Names returns the registered listener classes, sorted.
func Names() []string {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a listener class by name, ignoring case.
func Lookup(name string) (Class, error) {
	if c, ok := classes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w %q, available options: [%s]", ErrUnknownListener, name, strings.Join(Names(), " "))
}
