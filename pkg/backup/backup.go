// Package backup writes a device's active configuration to disk before
// it is changed.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultDir is used when Options.DirPath is empty.
const DefaultDir = "backup"

// Options controls where a backup is written.
type Options struct {
	Filename string `yaml:"filename" toml:"filename" json:"filename,omitempty"`
	DirPath  string `yaml:"dir_path" toml:"dir_path" json:"dir_path,omitempty"`
}

// DefaultFilename returns <hostname>_config.<YYYY-MM-DD@HH:MM:SS>.
func DefaultFilename(hostname string, now time.Time) string {
	return fmt.Sprintf("%s_config.%s@%s", hostname,
		now.Format("2006-01-02"), now.Format("15:04:05"))
}

// Write stores contents according to opts and returns the absolute path
// of the file written. The directory is created if needed.
func Write(contents, hostname string, opts Options, now time.Time) (string, error) {
	dir := opts.DirPath
	if dir == "" {
		dir = DefaultDir
	}
	name := opts.Filename
	if name == "" {
		name = DefaultFilename(hostname, now)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("backup path: %w", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}
