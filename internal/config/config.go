// Package config handles nitrix configuration loading, validation, and the
// small amount of state persisted between runs.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for nitrix.
type Config struct {
	// Account holds the homeserver and saved login.
	Account AccountConfig `yaml:"account" mapstructure:"account"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`

	// Sync controls the long-poll loop.
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Cache controls the local event cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// AccountConfig contains the login used for auto-login.
type AccountConfig struct {
	// Homeserver is the base URL, e.g. https://matrix.org.
	Homeserver string `yaml:"homeserver" mapstructure:"homeserver"`

	Username string `yaml:"username" mapstructure:"username"`

	// Password is stored in plain text, mode 0600.
	Password string `yaml:"password" mapstructure:"password"`

	// DeviceID is the display name given to new devices.
	DeviceID string `yaml:"device_id" mapstructure:"device_id"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is the log file path. The TUI owns stdout/stderr.
	File string `yaml:"file" mapstructure:"file"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// TimeFormat is the Go layout used for group timestamps.
	TimeFormat string `yaml:"time_format" mapstructure:"time_format"`
}

// SyncConfig contains sync loop settings.
type SyncConfig struct {
	// Timeout is the server-side long-poll timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RetryBackoff is the first delay after a failed sync.
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// CacheConfig contains event cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`
}

// NotificationsConfig contains desktop notification settings.
type NotificationsConfig struct {
	Desktop bool `yaml:"desktop" mapstructure:"desktop"`
}

// MetricsConfig contains the optional prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. 127.0.0.1:9464. Empty disables it.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Dir returns the nitrix config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nitrix")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "nitrix")
	}
	return filepath.Join(dir, "nitrix")
}

// DefaultConfigFile is where credentials are saved unless --config is used.
func DefaultConfigFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nitrix")
	}
	return filepath.Join(dir, "nitrix")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			DeviceID: "Nitrix",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(cacheDir(), "nitrix.log"),
		},
		TUI: TUIConfig{
			Theme:      "default",
			TimeFormat: "Mon 02, 03:04PM",
		},
		Sync: SyncConfig{
			Timeout:      30 * time.Second,
			RetryBackoff: 2 * time.Second,
			MaxBackoff:   time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(cacheDir(), "events.db"),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if hs := strings.TrimSpace(c.Account.Homeserver); hs != "" {
		if _, err := url.Parse(NormalizeHomeserver(hs)); err != nil {
			return fmt.Errorf("account.homeserver is not a valid URL: %w", err)
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast")
	}

	if c.Sync.Timeout < time.Second {
		return fmt.Errorf("sync.timeout must be at least 1s")
	}
	if c.Sync.RetryBackoff < 100*time.Millisecond {
		return fmt.Errorf("sync.retry_backoff must be at least 100ms")
	}
	if c.Sync.MaxBackoff < c.Sync.RetryBackoff {
		return fmt.Errorf("sync.max_backoff must not be less than sync.retry_backoff")
	}

	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}

	return nil
}

// HasCredentials reports whether enough is saved to log in without asking.
func (c *Config) HasCredentials() bool {
	return c.Credentials().Complete()
}

// Credentials returns the saved account fields.
func (c *Config) Credentials() Credentials {
	return Credentials{
		Homeserver: c.Account.Homeserver,
		Username:   c.Account.Username,
		Password:   c.Account.Password,
	}
}

// NormalizeHomeserver adds https:// to a bare host name.
func NormalizeHomeserver(hs string) string {
	hs = strings.TrimRight(strings.TrimSpace(hs), "/")
	if hs == "" {
		return ""
	}
	if !strings.Contains(hs, "://") {
		hs = "https://" + hs
	}
	return hs
}
