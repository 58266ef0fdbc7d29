package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)
	cfg.Account.Homeserver = NormalizeHomeserver(cfg.Account.Homeserver)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.Cache.Path = expandTilde(cfg.Cache.Path)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(Dir())
	v.AddConfigPath(".")

	v.SetEnvPrefix("NITRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Unmarshal only sees env vars for keys viper already knows about.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
}

var configKeys = []string{
	"account.homeserver",
	"account.username",
	"account.password",
	"account.device_id",
	"logging.level",
	"logging.format",
	"logging.file",
	"tui.theme",
	"tui.time_format",
	"sync.timeout",
	"sync.retry_backoff",
	"sync.max_backoff",
	"cache.enabled",
	"cache.path",
	"notifications.desktop",
	"metrics.addr",
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("account.homeserver", cfg.Account.Homeserver)
	v.SetDefault("account.username", cfg.Account.Username)
	v.SetDefault("account.password", cfg.Account.Password)
	v.SetDefault("account.device_id", cfg.Account.DeviceID)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)

	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.time_format", cfg.TUI.TimeFormat)

	v.SetDefault("sync.timeout", cfg.Sync.Timeout)
	v.SetDefault("sync.retry_backoff", cfg.Sync.RetryBackoff)
	v.SetDefault("sync.max_backoff", cfg.Sync.MaxBackoff)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)

	v.SetDefault("notifications.desktop", cfg.Notifications.Desktop)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// loadConfigFile reads the config file. A missing file is only an error when
// it was named explicitly.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(expandTilde(l.configFile))
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if l.configFile != "" && errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist yet is where `nitrix login`
			// will write.
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Used for CLI flag overrides.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for advanced use.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}
