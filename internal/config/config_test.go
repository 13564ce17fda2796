// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers TOML loading, env var expansion, defaults, and validation.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://lore.example.com"
timeout = "10s"

[storage]
backend = "remote"

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://lore.example.com", cfg.Server.URL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, BackendRemote, cfg.Storage.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
	assert.Equal(t, BackendRemote, cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("LORECHAT_TEST_SERVER", "https://env.example.com")

	path := writeConfig(t, `
[server]
url = "${LORECHAT_TEST_SERVER}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Server.URL)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel())
}

func TestLoad_InvalidBackendRejected(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "carrier-pigeon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoad_InvalidTimeoutRejected(t *testing.T) {
	path := writeConfig(t, `
[server]
timeout = "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLoad_LocalBackendRequiresPath(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "local"
path = ""
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.path")
}

func TestLoad_InvalidLogLevelRejected(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestRequestTimeout_FallsBackOnGarbage(t *testing.T) {
	cfg := Default()
	cfg.Server.Timeout = ""
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
}
