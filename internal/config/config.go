package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/credstore"
	"github.com/benaskins/voiceauth/internal/keychain"
)

// Store backends.
const (
	BackendFile   = credstore.BackendFile
	BackendLibSQL = credstore.BackendLibSQL
	BackendMemory = credstore.BackendMemory
)

// Config holds persistent configuration loaded from ~/.voiceauth/config.yaml.
type Config struct {
	APIAddr   string             `yaml:"api_addr"`
	Store     StoreConfig        `yaml:"store"`
	Keychain  KeychainConfig     `yaml:"keychain"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	LogLevel  string             `yaml:"log_level"`
	Defaults  authconfig.Partial `yaml:"defaults"`
}

// StoreConfig selects where encrypted credentials are kept.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// KeychainConfig names the keystore service holding the vault key.
type KeychainConfig struct {
	Service string `yaml:"service"`
}

// RateLimitConfig bounds authentication launches.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// DefaultDir returns the state directory: ~/.voiceauth.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".voiceauth")
}

// DefaultPath returns the default config file path: ~/.voiceauth/config.yaml.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that have a fixed set of allowed forms.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "", BackendFile, BackendLibSQL, BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit: values must not be negative")
	}
	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// StoreBackend returns the configured backend, defaulting to file.
func (c *Config) StoreBackend() string {
	if c.Store.Backend == "" {
		return BackendFile
	}
	return c.Store.Backend
}

// StorePath returns the credential store location under dir unless one is
// configured.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.StoreBackend() {
	case BackendLibSQL:
		return "file:" + filepath.Join(dir, "credentials.db")
	case BackendMemory:
		return ""
	default:
		return filepath.Join(dir, "credentials.json")
	}
}

// KeychainService returns the keystore service name.
func (c *Config) KeychainService() string {
	if c.Keychain.Service == "" {
		return keychain.ServiceName
	}
	return c.Keychain.Service
}

// RateLimitOrDefault returns the launch rate limit, defaulting to one
// launch per second with a burst of three.
func (c *Config) RateLimitOrDefault() (perSecond float64, burst int) {
	perSecond, burst = c.RateLimit.PerSecond, c.RateLimit.Burst
	if perSecond == 0 {
		perSecond = 1
	}
	if burst == 0 {
		burst = 3
	}
	return perSecond, burst
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if c.LogLevel == "" || lvl.UnmarshalText([]byte(c.LogLevel)) != nil {
		return slog.LevelInfo
	}
	return lvl
}
