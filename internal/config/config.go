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

// History backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Server contains the HTTP listener settings.
type Server struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// WebSocket contains per-connection transport limits.
type WebSocket struct {
	MaxMessageSize   int64 `toml:"max_message_size"`
	SendBuffer       int   `toml:"send_buffer"`
	WriteWaitSeconds int   `toml:"write_wait_seconds"`
	PongWaitSeconds  int   `toml:"pong_wait_seconds"`
}

// RateLimit contains the inbound token bucket applied to each connection.
type RateLimit struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

// History selects the path history backend. RetentionHours of 0 keeps
// records for the life of the process.
type History struct {
	Backend                  string `toml:"backend"`
	RetentionHours           int    `toml:"retention_hours"`
	RetentionIntervalMinutes int    `toml:"retention_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for the server and CLI.
type Config struct {
	Server    Server    `toml:"server"`
	WebSocket WebSocket `toml:"websocket"`
	RateLimit RateLimit `toml:"rate_limit"`
	History   History   `toml:"history"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/readtrail/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults and environment overrides apply.
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

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("readtrail.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) applyEnv() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
	if addr := strings.TrimSpace(os.Getenv("READTRAIL_ADDR")); addr != "" {
		c.Server.Addr = addr
	}
	if backend := strings.TrimSpace(os.Getenv("READTRAIL_HISTORY_BACKEND")); backend != "" {
		c.History.Backend = backend
	}
	if level := strings.TrimSpace(os.Getenv("READTRAIL_LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("READTRAIL_LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
}

func (c *Config) WriteWait() time.Duration {
	return time.Duration(c.WebSocket.WriteWaitSeconds) * time.Second
}

func (c *Config) PongWait() time.Duration {
	return time.Duration(c.WebSocket.PongWaitSeconds) * time.Second
}

// RetentionEnabled reports whether saved history is pruned by age.
func (c *Config) RetentionEnabled() bool {
	return c.History.RetentionHours > 0
}

func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.History.RetentionHours) * time.Hour
}

func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.History.RetentionIntervalMinutes) * time.Minute
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
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

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
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
