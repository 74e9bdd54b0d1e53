package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultIndexName is the named index used when a request names none.
const DefaultIndexName = "default"

// ProjectFileName is the per-deployment configuration file looked up by Load.
const ProjectFileName = "contentsearch.yaml"

// Config represents the complete service configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Indexes    IndexesConfig    `yaml:"indexes" json:"indexes"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Sanitize   SanitizeConfig   `yaml:"sanitize" json:"sanitize"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Inbox      InboxConfig      `yaml:"inbox" json:"inbox"`
}

// StorageConfig configures where indexes and the queue database live.
type StorageConfig struct {
	// DataDir holds one directory per named index plus state.db.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexesConfig configures the named indexes.
type IndexesConfig struct {
	// Default is the name used for requests and queries that name no index.
	Default string `yaml:"default" json:"default"`
	// Names are created at startup; others are created on first write.
	Names []string `yaml:"names" json:"names"`
}

// QueueConfig configures queue draining.
type QueueConfig struct {
	// Workers bounds how many named indexes drain concurrently.
	Workers int `yaml:"workers" json:"workers"`
	// FlushInterval is how often `serve` drains the queue. "0" disables the ticker.
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
	// QuietPeriod is how long `serve` waits after the last queued request
	// before draining. "0" drains only on the ticker.
	QuietPeriod string `yaml:"quiet_period" json:"quiet_period"`
}

// SearchConfig configures query execution.
type SearchConfig struct {
	// DisplayTextLength caps the display text returned in results (runes).
	DisplayTextLength int `yaml:"display_text_length" json:"display_text_length"`
	// MaxPageSize caps the page size a caller may ask for.
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`
	// RescoreWindow is the number of hits per index re-ranked with document boost.
	RescoreWindow int `yaml:"rescore_window" json:"rescore_window"`
	// MaxFuzzyExpansions caps the index terms a fuzzy query expands to.
	MaxFuzzyExpansions int `yaml:"max_fuzzy_expansions" json:"max_fuzzy_expansions"`
}

// ExtractionConfig configures the text-extraction collaborator.
type ExtractionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Timeout bounds a single extraction call.
	Timeout string `yaml:"timeout" json:"timeout"`
	// CacheSize is the number of extracted texts kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxBytes caps how much of a located resource is read.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// SanitizeConfig bounds inbound change requests.
type SanitizeConfig struct {
	MaxFieldLength int `yaml:"max_field_length" json:"max_field_length"`
	MaxListEntries int `yaml:"max_list_entries" json:"max_list_entries"`
	MaxIDLength    int `yaml:"max_id_length" json:"max_id_length"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

// InboxConfig configures drop-folder ingestion.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	home := homeDir()
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir: filepath.Join(home, "data"),
		},
		Indexes: IndexesConfig{
			Default: DefaultIndexName,
			Names:   []string{DefaultIndexName},
		},
		Queue: QueueConfig{
			Workers:       runtime.NumCPU(),
			FlushInterval: "30s",
			QuietPeriod:   "2s",
		},
		Search: SearchConfig{
			DisplayTextLength:  500,
			MaxPageSize:        1000,
			RescoreWindow:      1000,
			MaxFuzzyExpansions: 1024,
		},
		Extraction: ExtractionConfig{
			Enabled:   true,
			Timeout:   "10s",
			CacheSize: 256,
			MaxBytes:  32 << 20,
		},
		Sanitize: SanitizeConfig{
			MaxFieldLength: 1 << 20,
			MaxListEntries: 1000,
			MaxIDLength:    400,
		},
		Server: ServerConfig{
			SocketPath: filepath.Join(home, "contentsearch.sock"),
			PIDPath:    filepath.Join(home, "contentsearch.pid"),
			Timeout:    "30s",
			LogLevel:   "info",
		},
		Inbox: InboxConfig{
			Enabled: false,
			Dir:     filepath.Join(home, "inbox"),
		},
	}
}

// homeDir returns ~/.contentsearch, falling back to the temp directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".contentsearch")
	}
	return filepath.Join(home, ".contentsearch")
}

// GetUserConfigPath returns the path to the user configuration file.
//   - $XDG_CONFIG_HOME/contentsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/contentsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "contentsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "contentsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "contentsearch", "config.yaml")
}

// Load loads configuration for the given directory.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/contentsearch/config.yaml)
//  3. contentsearch.yaml (or .yml) in dir
//  4. Environment variables (CONTENTSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if err := cfg.loadFromDir(dir); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir loads contentsearch.yaml, falling back to contentsearch.yml.
func (c *Config) loadFromDir(dir string) error {
	yamlPath := filepath.Join(dir, ProjectFileName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := strings.TrimSuffix(yamlPath, ".yaml") + ".yml"
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML decodes a YAML file over c. Keys absent from the file keep their
// current value, so layering is a matter of decoding files in order.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CONTENTSEARCH_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONTENTSEARCH_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CONTENTSEARCH_DEFAULT_INDEX"); v != "" {
		c.Indexes.Default = v
	}
	if v := os.Getenv("CONTENTSEARCH_INDEXES"); v != "" {
		c.Indexes.Names = splitList(v)
	}
	if v := os.Getenv("CONTENTSEARCH_QUEUE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.Workers = n
		}
	}
	if v := os.Getenv("CONTENTSEARCH_FLUSH_INTERVAL"); v != "" {
		c.Queue.FlushInterval = v
	}
	if v := os.Getenv("CONTENTSEARCH_EXTRACTION_TIMEOUT"); v != "" {
		c.Extraction.Timeout = v
	}
	if v := os.Getenv("CONTENTSEARCH_EXTRACTION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Extraction.Enabled = b
		}
	}
	if v := os.Getenv("CONTENTSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CONTENTSEARCH_SOCKET"); v != "" {
		c.Server.SocketPath = v
	}
	if v := os.Getenv("CONTENTSEARCH_INBOX_DIR"); v != "" {
		c.Inbox.Dir = v
		c.Inbox.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Indexes.Default) == "" {
		return fmt.Errorf("indexes.default must not be empty")
	}
	for _, name := range c.Indexes.Names {
		if err := ValidateIndexName(name); err != nil {
			return fmt.Errorf("indexes.names: %w", err)
		}
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1, got %d", c.Queue.Workers)
	}
	if _, err := parseDuration(c.Queue.FlushInterval); err != nil {
		return fmt.Errorf("queue.flush_interval: %w", err)
	}
	if _, err := parseDuration(c.Queue.QuietPeriod); err != nil {
		return fmt.Errorf("queue.quiet_period: %w", err)
	}
	if c.Search.DisplayTextLength < 1 {
		return fmt.Errorf("search.display_text_length must be positive, got %d", c.Search.DisplayTextLength)
	}
	if c.Search.MaxPageSize < 1 {
		return fmt.Errorf("search.max_page_size must be positive, got %d", c.Search.MaxPageSize)
	}
	if c.Search.RescoreWindow < 0 {
		return fmt.Errorf("search.rescore_window must be non-negative, got %d", c.Search.RescoreWindow)
	}
	if d, err := parseDuration(c.Extraction.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("extraction.timeout must be a positive duration, got %q", c.Extraction.Timeout)
	}
	if c.Sanitize.MaxFieldLength < 1 || c.Sanitize.MaxListEntries < 1 || c.Sanitize.MaxIDLength < 1 {
		return fmt.Errorf("sanitize limits must be positive")
	}
	if _, err := parseDuration(c.Server.Timeout); err != nil {
		return fmt.Errorf("server.timeout: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// ValidateIndexName checks that name can be used as a directory name.
func ValidateIndexName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("index name must not be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("index name %q is not allowed", name)
	}
	return nil
}

// FlushInterval returns the parsed queue flush interval; zero disables flushing.
func (c *Config) FlushInterval() time.Duration {
	d, _ := parseDuration(c.Queue.FlushInterval)
	return d
}

// QuietPeriod returns the parsed post-update drain delay; zero disables it.
func (c *Config) QuietPeriod() time.Duration {
	d, _ := parseDuration(c.Queue.QuietPeriod)
	return d
}

// ExtractionTimeout returns the parsed extraction timeout.
func (c *Config) ExtractionTimeout() time.Duration {
	d, _ := parseDuration(c.Extraction.Timeout)
	return d
}

// ServerTimeout returns the parsed client/daemon timeout.
func (c *Config) ServerTimeout() time.Duration {
	d, _ := parseDuration(c.Server.Timeout)
	return d
}

// parseDuration accepts Go durations, with "" and "0" meaning zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
