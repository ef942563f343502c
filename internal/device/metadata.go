package device

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// WriteMetadata writes the device settings as a YAML sidecar. The file is
// replaced atomically so a crash never leaves a truncated document behind.
func WriteMetadata(path string, settings Settings) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending metadata file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			slog.Debug("Cleanup pending metadata file", "path", path, "error", err)
		}
	}()

	enc := yaml.NewEncoder(pendingFile)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("encode metadata %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode metadata %s: %w", path, err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace metadata %s: %w", path, err)
	}
	return nil
}

// ReadMetadata loads a sidecar written by WriteMetadata.
func ReadMetadata(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return s, nil
}
