package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration file (config.toml in the data
// directory). Zero values fall back to defaults at load time.
type Config struct {
	ListenAddr       string   `toml:"listen_addr"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	SendTimeoutSecs  int      `toml:"send_timeout_seconds"`
	SessionQueueSize int      `toml:"session_queue_size"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddr: ":3000",
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:4173",
		},
		SendTimeoutSecs:  30,
		SessionQueueSize: 64,
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = Default().ListenAddr
	}
	if cfg.SendTimeoutSecs <= 0 {
		cfg.SendTimeoutSecs = Default().SendTimeoutSecs
	}
	if cfg.SessionQueueSize <= 0 {
		cfg.SessionQueueSize = Default().SessionQueueSize
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
