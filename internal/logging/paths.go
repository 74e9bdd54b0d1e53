package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.contentsearch/logs, or a temp-dir fallback.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".contentsearch", "logs")
	}
	return filepath.Join(home, ".contentsearch", "logs")
}

// DefaultLogPath returns the service log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "contentsearch.log")
}
