package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Credentials are what auto-login needs.
type Credentials struct {
	Homeserver string
	Username   string
	Password   string
}

// Complete reports whether every field is set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Homeserver) != "" && strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// SaveCredentials merges the login into the config file at path, keeping any
// other settings already there. The file is written with mode 0600.
func SaveCredentials(path string, creds Credentials) error {
	v, err := readFile(path)
	if err != nil {
		return err
	}
	v.Set("account.homeserver", NormalizeHomeserver(creds.Homeserver))
	v.Set("account.username", creds.Username)
	v.Set("account.password", creds.Password)
	return writeFile(v, path)
}

// ClearCredentials removes the saved username and password. The homeserver
// is kept so the login screen can prefill it.
func ClearCredentials(path string) error {
	v, err := readFile(path)
	if err != nil {
		return err
	}
	if !v.IsSet("account.username") && !v.IsSet("account.password") {
		return nil
	}
	v.Set("account.username", "")
	v.Set("account.password", "")
	return writeFile(v, path)
}

func readFile(path string) (*viper.Viper, error) {
	if path == "" {
		path = DefaultConfigFile()
	}
	v := viper.New()
	v.SetConfigFile(expandTilde(path))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

func writeFile(v *viper.Viper, path string) error {
	if path == "" {
		path = DefaultConfigFile()
	}
	path = expandTilde(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config file: %w", err)
	}
	return nil
}
