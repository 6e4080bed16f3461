// Package config handles the XDG configuration directory, config.yaml and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskboard/internal/connectivity"
)

const (
	// AppName is the application directory name.
	AppName = "taskboard"

	// ConfigFile is the optional settings file in the config directory.
	ConfigFile = "config.yaml"

	// SessionFile holds the persisted session and offline replica.
	SessionFile = "session.json"

	// DefaultAPIURL is used when nothing else names a backend.
	DefaultAPIURL = "http://localhost:8001"

	// DefaultOfflineMode answers from local data when the backend is down.
	// Set offline_mode: off to surface network errors instead.
	DefaultOfflineMode = connectivity.ModeFallback

	// DefaultTimeout bounds each backend call.
	DefaultTimeout = 10 * time.Second

	EnvAPIURL      = "TASKBOARD_API_URL"
	EnvOfflineMode = "TASKBOARD_OFFLINE_MODE"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// APIURL is the backend base URL.
	APIURL string

	// OfflineMode selects how network failures are handled.
	OfflineMode connectivity.Mode

	// Timeout bounds each backend call.
	Timeout time.Duration

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool
}

type fileConfig struct {
	APIURL      string `yaml:"api_url"`
	OfflineMode string `yaml:"offline_mode"`
	Timeout     string `yaml:"timeout"`
}

// New creates a Config for configDir, or the default directory when empty.
// Settings come from defaults, then config.yaml, then the environment.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	c := &Config{
		Dir:         dir,
		APIURL:      DefaultAPIURL,
		OfflineMode: DefaultOfflineMode,
		Timeout:     DefaultTimeout,
	}
	if err := c.loadFile(); err != nil {
		return nil, err
	}
	if err := c.loadEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", c.ConfigPath(), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", c.ConfigPath(), err)
	}
	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.OfflineMode != "" {
		if err := c.SetOfflineMode(fc.OfflineMode); err != nil {
			return fmt.Errorf("%s: %w", c.ConfigPath(), err)
		}
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid timeout %q", c.ConfigPath(), fc.Timeout)
		}
		c.Timeout = d
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvOfflineMode); v != "" {
		if err := c.SetOfflineMode(v); err != nil {
			return fmt.Errorf("%s: %w", EnvOfflineMode, err)
		}
	}
	return nil
}

// SetOfflineMode parses and sets the offline mode.
func (c *Config) SetOfflineMode(s string) error {
	mode, err := connectivity.ParseMode(s)
	if err != nil {
		return err
	}
	c.OfflineMode = mode
	return nil
}

// ConfigPath returns the path to config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// SessionPath returns the path to the session store.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}
