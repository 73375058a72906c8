// Package session resolves the daemon's data directory layout.
package session

import (
	"os"
	"path/filepath"
)

// EnvDataDir overrides the default data directory when set.
const EnvDataDir = "WACHAT_DATA_DIR"

// Dir returns the data directory, ~/.wachat by default.
func Dir() string {
	if d := os.Getenv(EnvDataDir); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wachat")
}

// ChatDBPath returns the app-owned chat snapshot database path.
func ChatDBPath() string {
	return filepath.Join(Dir(), "chats.db")
}

// ProviderDBPath returns the whatsmeow credential database path.
func ProviderDBPath() string {
	return filepath.Join(Dir(), "session.db")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(Dir(), "logs", "wachatd.log")
}

// EnsureDir creates the data directory tree with owner-only permissions.
func EnsureDir() error {
	for _, d := range []string{Dir(), filepath.Join(Dir(), "logs")} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
