package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/device/microphone"
	"github.com/AcousticOdometry/recorder/internal/play"
	"github.com/AcousticOdometry/recorder/internal/recorder"
)

const testDuration = 5 * time.Second

var testPlay bool

var testCmd = &cobra.Command{
	Use:   "test [device-class] [device-id]",
	Short: "Test device recording",
	Long: `Record a few seconds and summarize the results of every device class.

Without arguments every configured device is tested. With a device class only
the configured devices of that class are. With a class and a device id (see
'show') the discovered device is tested without any configuration file.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		out := cmd.OutOrStdout()

		var doc *config.Document
		switch len(args) {
		case 2:
			class, err := registry.Lookup(args[0])
			if err != nil {
				return err
			}
			doc, err = discoveredDocument(class, args[1])
			if err != nil {
				return err
			}
		default:
			var err error
			doc, err = loadDocument()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				class, err := registry.Lookup(args[0])
				if err != nil {
					return err
				}
				doc = doc.Filter(class.Name())
				if doc.Len() == 0 {
					fmt.Fprintf(out, "No device of class %s found in %s\n", class.Name(), settings.Config)
					return nil
				}
			}
		}

		rec, err := newRecorder(doc, registry)
		if err != nil {
			return err
		}
		defer rec.Close()

		if _, err := rec.Setup(""); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		folder, err := rec.Record(ctx, recorder.Timed{Duration: testDuration, Progress: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}

		for _, name := range doc.Classes() {
			class, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			if err := class.ShowResults(out, folder); err != nil {
				return fmt.Errorf("failed to summarize %s results: %w", name, err)
			}
			if testPlay && class.Name() == microphone.ClassName {
				if err := play.New(out).PlayFolder(folder, microphone.ClassName+"*.wav"); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	testCmd.Flags().BoolVar(&testPlay, "play", false, "play the recorded audio afterwards")
}

// discoveredDocument builds a one-device configuration from the discovery
// result of class.
func discoveredDocument(class device.Class, id string) (*config.Document, error) {
	found, err := class.Find()
	if err != nil {
		return nil, fmt.Errorf("failed to find %s devices: %w", class.Name(), err)
	}
	s, ok := found[id]
	if !ok {
		return nil, fmt.Errorf("invalid device id %q for class %s, available: %v", id, class.Name(), device.SortIDs(found))
	}
	doc := config.NewDocument()
	doc.Add(class.Name(), id, s)
	return doc, nil
}
