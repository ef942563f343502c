package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/device/microphone"
	"github.com/AcousticOdometry/recorder/internal/device/realsense"
	"github.com/AcousticOdometry/recorder/internal/recorder"
)

var (
	settings     *config.Settings
	settingsFile string
	verboseLevel int
	v            = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Synchronized recording from several capture devices",
	Long: `recorder captures data from several devices at once (microphones,
RealSense depth cameras) into one session folder per recording, with a
metadata file per device holding its settings and start/end timestamps.

Run 'recorder config' to create a device configuration, then 'recorder record'
to record locally or 'recorder listen' to be driven over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		var err error
		settings, err = config.LoadSettings(v, settingsFile)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		slog.Debug("Settings loaded", "config", settings.Config, "output", settings.Output, "audio_backend", settings.Audio.Backend)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "application settings file (yaml, toml or json)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=debug with backend tracing")
	rootCmd.PersistentFlags().String("config", "", "device configuration file, run `config` to generate one (default recorder.yaml)")
	rootCmd.PersistentFlags().String("output", "", "folder where recording sessions are stored (default recordings)")
	rootCmd.PersistentFlags().String("audio-backend", "", "audio backend: auto, pipewire or miniaudio")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = v.BindPFlag("audio.backend", rootCmd.PersistentFlags().Lookup("audio-backend"))

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(testCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	// Backend tracing (level 2)
	if level >= 2 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}

// newRegistry returns every device class this build knows about.
func newRegistry() *device.Registry {
	return device.NewRegistry(
		microphone.New(settings.Audio.Backend),
		realsense.New(rsBackend()),
	)
}

func rsBackend() *realsense.CLIBackend {
	b := realsense.NewCLIBackend(
		settings.RealSense.EnumerateCommand,
		settings.RealSense.RecordCommand,
		settings.RealSense.MaxSeconds,
	)
	if len(settings.RealSense.RecordArgs) > 0 {
		b.RecordArgs = settings.RealSense.RecordArgs
	}
	return b
}

func loadDocument() (*config.Document, error) {
	doc, err := config.Load(settings.Config)
	if err != nil {
		return nil, err
	}
	slog.Debug("Device configuration loaded", "path", settings.Config, "devices", doc.Len())
	return doc, nil
}

func newRecorder(doc *config.Document, registry *device.Registry) (*recorder.Recorder, error) {
	rec, err := recorder.New(doc, registry, settings.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	return rec, nil
}

// confirm asks a yes/no question on out and reads the answer from in. An
// empty answer picks def.
func confirm(in *bufio.Reader, out io.Writer, question string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(out, "%s %s: ", question, hint)
		line, err := in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch {
		case answer == "" && err != nil:
			return false
		case answer == "":
			return def
		case answer == "y" || answer == "yes":
			return true
		case answer == "n" || answer == "no":
			return false
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}
