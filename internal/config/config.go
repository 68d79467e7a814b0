package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Service contains connection settings for the remote generation service.
type Service struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	APIKey         string `toml:"api_key"`
	UserAgent      string `toml:"user_agent"`
}

// Polling contains the bounded polling window used while views and the
// model are generated. Values are milliseconds.
type Polling struct {
	IntervalMS     int `toml:"interval_ms"`
	TimeoutMS      int `toml:"timeout_ms"`
	ModelTimeoutMS int `toml:"model_timeout_ms"`
}

// Paths contains output and state directories.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ModelReady     bool   `toml:"model_ready"`
	Errors         bool   `toml:"errors"`
}

// History controls the finished-run journal.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for banana3d.
//
// Configuration sections by subsystem:
//   - Service: generation service endpoint and credentials
//   - Polling: interval and timeouts for asynchronous generation
//   - Paths: exported artifacts and local state
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
//   - History: journal of finished runs
type Config struct {
	Service       Service       `toml:"service"`
	Polling       Polling       `toml:"polling"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("banana3d.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.Service.APIKey != "" {
		redacted.Service.APIKey = "********"
	}
	data, err := toml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// EnsureDirectories creates the state and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.OutputDir, c.LogDir(), c.SpoolDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogDir is where file logs are written. Empty when no state dir is set.
func (c *Config) LogDir() string {
	return c.stateSubpath("logs")
}

// SpoolDir holds materialized previews of live resource handles.
func (c *Config) SpoolDir() string {
	return c.stateSubpath("spool")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return c.stateSubpath("banana3d.lock")
}

// HistoryPath is the SQLite journal of finished runs.
func (c *Config) HistoryPath() string {
	return c.stateSubpath("history.db")
}

func (c *Config) stateSubpath(name string) string {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, name)
}

// PollInterval returns the delay between status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMS) * time.Millisecond
}

// PollTimeout returns the bound on a view polling session.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Polling.TimeoutMS) * time.Millisecond
}

// ModelTimeout returns the bound on a model generation request.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Polling.ModelTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout for the generation service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
