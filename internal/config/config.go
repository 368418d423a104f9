package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	// SyncBackoffMS is the delay before a failed drain cycle is retried.
	SyncBackoffMS int `json:"sync_backoff_ms" yaml:"sync_backoff_ms"`

	// SyncMaxRetries bounds consecutive automatic retries. Beyond it the queue
	// reports a persistent failure but records are never dropped.
	SyncMaxRetries int `json:"sync_max_retries" yaml:"sync_max_retries"`

	// RemoteURL is the endpoint scans are POSTed to. Empty means no remote is
	// configured and every scan stays queued.
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`

	// RemoteTimeoutMS is the HTTP client timeout of the remote sink.
	RemoteTimeoutMS int `json:"remote_timeout_ms,omitempty" yaml:"remote_timeout_ms,omitempty"`

	// ConnectivityFile is watched for "online"/"offline" host notifications.
	// Empty disables the file signal (the process then starts online).
	ConnectivityFile string `json:"connectivity_file,omitempty" yaml:"connectivity_file,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// WebBind and WebPort configure the serve command's HTTP listener.
	WebBind string `json:"web_bind,omitempty" yaml:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty" yaml:"web_port,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// AllowedPaths is an allowlist of directories for queue import/export.
	// Paths outside <base>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" yaml:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncBackoffMS:   5000,
		SyncMaxRetries:  3,
		RemoteTimeoutMS: 15000,
		LogLevel:        "info",
		WebBind:         "127.0.0.1",
		WebPort:         8417,
	}
}

// SyncBackoff returns SyncBackoffMS as a duration.
func (c *Config) SyncBackoff() time.Duration {
	return time.Duration(c.SyncBackoffMS) * time.Millisecond
}

// RemoteTimeout returns RemoteTimeoutMS as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}

// BaseDir returns the data directory: $SNAPFOOD_HOME or ~/.snapfood.
func BaseDir() (string, error) {
	if custom := os.Getenv("SNAPFOOD_HOME"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".snapfood"), nil
}

// Load loads configuration from baseDir/config.yaml or baseDir/config.json.
// YAML wins when both exist. Returns default config if neither exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.snapfood.
func Load(baseDir string) (*Config, error) {
	yamlPath := filepath.Join(baseDir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return loadFile(yamlPath)
	}
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.SyncBackoffMS = pickInt(overlay.SyncBackoffMS, base.SyncBackoffMS)
	result.SyncMaxRetries = pickInt(overlay.SyncMaxRetries, base.SyncMaxRetries)
	result.RemoteTimeoutMS = pickInt(overlay.RemoteTimeoutMS, base.RemoteTimeoutMS)
	result.WebPort = pickInt(overlay.WebPort, base.WebPort)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.RemoteURL = pickString(overlay.RemoteURL, base.RemoteURL)
	result.ConnectivityFile = pickString(overlay.ConnectivityFile, base.ConnectivityFile)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.WebBind = pickString(overlay.WebBind, base.WebBind)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
