// Package daemon serves the content search service over a Unix socket.
// A long-running daemon owns the data directory; the CLI and other local
// callers talk to it with one JSON-RPC request per connection.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/config"
)

// Config holds configuration for the daemon transport.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	PIDPath string

	// Timeout bounds one request, on both sides of the socket.
	Timeout time.Duration

	// FlushInterval is how often queued requests are applied.
	// Zero disables the periodic flush.
	FlushInterval time.Duration

	// QuietPeriod is how long after the last update a drain runs.
	// Zero disables update-driven drains.
	QuietPeriod time.Duration

	// InboxDir is the drop folder watched for request files. Empty disables it.
	InboxDir string
}

// ConfigFrom derives the daemon configuration from the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		SocketPath:    cfg.Server.SocketPath,
		PIDPath:       cfg.Server.PIDPath,
		Timeout:       cfg.ServerTimeout(),
		FlushInterval: cfg.FlushInterval(),
		QuietPeriod:   cfg.QuietPeriod(),
	}
	if cfg.Inbox.Enabled {
		c.InboxDir = cfg.Inbox.Dir
	}
	return c
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.FlushInterval < 0 || c.QuietPeriod < 0 {
		return fmt.Errorf("flush interval and quiet period must not be negative")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
