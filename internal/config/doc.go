// Package config handles configuration loading for the lorechat client.
//
// # Overview
//
// Configuration is loaded from a TOML file with environment variable
// expansion. A missing file yields built-in defaults, so the client works
// out of the box against a local backend.
//
// # Configuration File
//
// Default location: ~/.config/lorechat/config.toml (platform equivalent via
// os.UserConfigDir). Override with the -config flag.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR} syntax:
//
//	[server]
//	url = "${LORECHAT_SERVER}"
//
// # Sections
//
// Server:
//
//	[server]
//	url = "http://localhost:8000"  # lore chat backend
//	timeout = "30s"                # per-request timeout
//
// Storage backend selection:
//
//	[storage]
//	backend = "remote"  # "remote" (HTTP API) or "local" (sqlite, offline)
//	path = "~/.config/lorechat/lorechat.db"
//
// Device identity:
//
//	[identity]
//	path = ""  # empty = default under the user config dir
//
// Logging:
//
//	[logging]
//	level = "info"  # debug, info, warn, error
package config
