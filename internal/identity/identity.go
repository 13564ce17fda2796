// ABOUTME: File-backed anonymous device identity for the chat client.
// ABOUTME: Generates a stable per-device token lazily and persists it under the user config dir.

package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrStorageUnavailable is returned when no persistent storage context
// exists for the device identity (e.g. no resolvable config directory).
var ErrStorageUnavailable = errors.New("identity storage unavailable")

// DefaultFileName is the file the identity token is stored in, relative to
// the application config directory.
const DefaultFileName = "device_id"

const appConfigDir = "lorechat"

// Provider manages the anonymous device identity token.
// The zero-value Provider has no storage context and yields empty identities.
type Provider struct {
	path   string
	logger *slog.Logger
}

// NewProvider creates a provider that stores the token at the given path.
// An empty path means no storage context; GetOrCreate then returns an empty
// identity and callers are expected to defer work that needs one.
func NewProvider(path string) *Provider {
	return &Provider{
		path:   path,
		logger: slog.Default().With("component", "identity"),
	}
}

// NewDefaultProvider stores the token under the user config directory
// (~/.config/lorechat/device_id on Linux). When no config directory can be
// resolved the provider degrades to the no-storage mode instead of failing.
func NewDefaultProvider() *Provider {
	dir, err := os.UserConfigDir()
	if err != nil {
		slog.Warn("no user config dir; device identity will not persist", "error", err)
		return NewProvider("")
	}
	return NewProvider(filepath.Join(dir, appConfigDir, DefaultFileName))
}

// GetOrCreate returns the persisted device identity, generating and
// persisting a fresh token on first use. Repeated calls return the same
// value until Clear. Without a storage context it returns an empty identity
// and no error; callers must treat empty as "identity not yet available".
func (p *Provider) GetOrCreate() (string, error) {
	if p.path == "" {
		return "", nil
	}

	data, err := os.ReadFile(p.path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
		// Empty file: fall through and regenerate.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading identity file: %w", err)
	}

	token := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("writing identity file: %w", err)
	}

	p.logger.Info("generated new device identity", "path", p.path)
	return token, nil
}

// Exists reports whether a persisted identity is currently present.
func (p *Provider) Exists() bool {
	if p.path == "" {
		return false
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) != ""
}

// Clear removes the persisted identity. The next GetOrCreate generates a
// fresh token. Returns ErrStorageUnavailable when there is no storage
// context to clear.
func (p *Provider) Clear() error {
	if p.path == "" {
		return ErrStorageUnavailable
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
