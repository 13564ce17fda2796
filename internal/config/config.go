// ABOUTME: Configuration loading for the lorechat client.
// ABOUTME: TOML with environment variable expansion, defaults, and validation.

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend selects which repository implementation the client uses.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Config is the complete client configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Identity IdentityConfig `toml:"identity"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig points the client at the lore chat backend.
type ServerConfig struct {
	URL     string `toml:"url"`
	Timeout string `toml:"timeout"`
}

// StorageConfig selects the backend and locates the local database.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// IdentityConfig locates the device identity file. Empty means the default
// location under the user config dir.
type IdentityConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultPath returns the default config file location
// (~/.config/lorechat/config.toml on Linux), or empty when no user config
// directory can be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "lorechat", "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8000",
			Timeout: "30s",
		},
		Storage: StorageConfig{
			Backend: BackendRemote,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.Storage.Path = filepath.Join(dir, "lorechat", "lorechat.db")
	}
	return cfg
}

// Load reads config from the given path, expanding environment variables.
// A missing file yields the defaults rather than an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendRemote, BackendLocal:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q",
			BackendRemote, BackendLocal, c.Storage.Backend)
	}

	if c.Storage.Backend == BackendRemote {
		if c.Server.URL == "" {
			return fmt.Errorf("server.url is required for the remote backend")
		}
		if _, err := url.Parse(c.Server.URL); err != nil {
			return fmt.Errorf("server.url is not a valid URL: %w", err)
		}
	}
	if c.Storage.Backend == BackendLocal && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the local backend")
	}

	if c.Server.Timeout != "" {
		if _, err := time.ParseDuration(c.Server.Timeout); err != nil {
			return fmt.Errorf("server.timeout is not a valid duration: %w", err)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// RequestTimeout parses the server timeout, falling back to 30 seconds.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LogLevel maps the configured level onto slog's scale.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
