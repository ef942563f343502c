package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the application configuration. It is distinct from the device
// configuration Document: it says where things are and how the tool runs.
type Settings struct {
	Config    string            `mapstructure:"config"`
	Output    string            `mapstructure:"output"`
	Audio     AudioSettings     `mapstructure:"audio"`
	RealSense RealSenseSettings `mapstructure:"realsense"`
	Listener  ListenerSettings  `mapstructure:"listener"`
}

type AudioSettings struct {
	Backend string `mapstructure:"backend"`
}

type RealSenseSettings struct {
	EnumerateCommand string `mapstructure:"enumerate_command"`
	RecordCommand    string `mapstructure:"record_command"`
	// RecordArgs is expanded per rig, {bag} {seconds} and {serial} are replaced.
	RecordArgs []string `mapstructure:"record_args"`
	MaxSeconds int      `mapstructure:"max_seconds"`
}

type ListenerSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RateLimit is the number of requests per minute and client, 0 disables.
	RateLimit int  `mapstructure:"rate_limit"`
	Watch     bool `mapstructure:"watch"`
}

// EnvPrefix prefixes environment overrides, e.g. RECORDER_LISTENER_PORT.
const EnvPrefix = "RECORDER"

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("config", "recorder.yaml")
	v.SetDefault("output", "recordings")
	v.SetDefault("audio.backend", "auto")
	v.SetDefault("realsense.enumerate_command", "rs-enumerate-devices")
	v.SetDefault("realsense.record_command", "rs-record")
	v.SetDefault("realsense.record_args", []string{"-f", "{bag}", "-t", "{seconds}"})
	v.SetDefault("realsense.max_seconds", 3600)
	v.SetDefault("listener.host", "")
	v.SetDefault("listener.port", 5000)
	v.SetDefault("listener.rate_limit", 0)
	v.SetDefault("listener.watch", false)
}

// LoadSettings reads the optional settings file and the environment into v
// and returns the validated result. Flags bound to v before the call take
// precedence over both.
func LoadSettings(v *viper.Viper, settingsFile string) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if settingsFile != "" {
		v.SetConfigFile(expandPath(settingsFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading settings file %s: %w", settingsFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling settings: %w", err)
	}
	s.Config = expandPath(s.Config)
	s.Output = expandPath(s.Output)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}
	return &s, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	if s.Config == "" {
		return fmt.Errorf("'config' is required")
	}
	if s.Output == "" {
		return fmt.Errorf("'output' is required")
	}
	switch strings.ToLower(s.Audio.Backend) {
	case "", "auto", "pipewire", "miniaudio":
	default:
		return fmt.Errorf("'audio.backend' must be auto, pipewire or miniaudio, got: %s", s.Audio.Backend)
	}
	if !slices.ContainsFunc(s.RealSense.RecordArgs, func(a string) bool { return strings.Contains(a, "{bag}") }) {
		return fmt.Errorf("'realsense.record_args' must contain {bag}, got: %v", s.RealSense.RecordArgs)
	}
	if s.RealSense.MaxSeconds < 0 {
		return fmt.Errorf("'realsense.max_seconds' must be >= 0, got: %d", s.RealSense.MaxSeconds)
	}
	if s.Listener.Port < 0 || s.Listener.Port > 65535 {
		return fmt.Errorf("'listener.port' must be between 0 and 65535, got: %d", s.Listener.Port)
	}
	if s.Listener.RateLimit < 0 {
		return fmt.Errorf("'listener.rate_limit' must be >= 0, got: %d", s.Listener.RateLimit)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
