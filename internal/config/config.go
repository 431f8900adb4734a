package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blelink/internal/ble/profile"
	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string          `yaml:"log_level"`
	Scan     ScanConfig      `yaml:"scan"`
	Connect  ConnectConfig   `yaml:"connect"`
	Payload  string          `yaml:"payload"` // default payload for send; empty sends the 0..19 filler
	Profiles []ProfileConfig `yaml:"profiles"`
	Hotkey   HotkeyConfig    `yaml:"hotkey"`
	Monitor  MonitorConfig   `yaml:"monitor"`
}

// ScanConfig holds scanning settings.
type ScanConfig struct {
	Services []string      `yaml:"services"` // only report peripherals advertising one of these
	Timeout  time.Duration `yaml:"timeout"`  // 0 scans until stopped
}

// ConnectConfig holds connection settings.
type ConnectConfig struct {
	Readiness         string `yaml:"readiness"` // "write" or "strict"
	WriteWithResponse bool   `yaml:"write_with_response"`
}

// ProfileConfig describes an extra peripheral family. Entries are matched
// after the built-in Bluno and Bean families.
type ProfileConfig struct {
	Match   string `yaml:"match"`
	Family  string `yaml:"family"`
	Service string `yaml:"service"`
	Write   string `yaml:"write"`
	Read    string `yaml:"read"`
}

// HotkeyConfig holds the global hotkey bindings.
type HotkeyConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Scan       []string `yaml:"scan"`
	Send       []string `yaml:"send"`
	Disconnect []string `yaml:"disconnect"`
}

// MonitorConfig holds the websocket event stream settings.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // empty disables the monitor
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blelink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Connect: ConnectConfig{
			Readiness:         "write",
			WriteWithResponse: true,
		},
		Hotkey: HotkeyConfig{
			Scan:       []string{"ctrl", "shift", "s"},
			Send:       []string{"ctrl", "shift", "b"},
			Disconnect: []string{"ctrl", "shift", "d"},
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the path written, or "" when a config was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	content := append([]byte("# blelink configuration\n"), data...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	for _, s := range c.Scan.Services {
		if !profile.ValidUUID(s) {
			return fmt.Errorf("scan.services: invalid UUID %q", s)
		}
	}
	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan.timeout must be >= 0, got %s", c.Scan.Timeout)
	}

	switch c.Connect.Readiness {
	case "write", "strict":
	default:
		return fmt.Errorf("connect.readiness must be \"write\" or \"strict\", got %q", c.Connect.Readiness)
	}

	if _, err := protocol.Parse(c.Payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	for i, p := range c.Profiles {
		if strings.TrimSpace(p.Match) == "" {
			return fmt.Errorf("profiles[%d].match must not be empty", i)
		}
		if err := p.Profile().Validate(); err != nil {
			return fmt.Errorf("profiles[%d]: %w", i, err)
		}
	}

	if c.Hotkey.Enabled {
		if len(c.Hotkey.Scan) == 0 || len(c.Hotkey.Send) == 0 || len(c.Hotkey.Disconnect) == 0 {
			return fmt.Errorf("hotkey bindings must not be empty when hotkey.enabled is set")
		}
	}

	return nil
}

// Profile converts the entry into a profile.Profile. The family defaults to
// the match string.
func (p ProfileConfig) Profile() profile.Profile {
	family := p.Family
	if family == "" {
		family = p.Match
	}
	return profile.Profile{
		Family:        family,
		ServiceUUID:   profile.NormalizeUUID(p.Service),
		WriteCharUUID: profile.NormalizeUUID(p.Write),
		ReadCharUUID:  normalizeOptional(p.Read),
	}
}

// Registry returns the built-in registry extended with the configured
// profiles.
func (c *Config) Registry() *profile.Registry {
	reg := profile.DefaultRegistry()
	for _, p := range c.Profiles {
		reg.Add(p.Match, p.Profile())
	}
	return reg
}

// ParseLogLevel maps a log_level string to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeOptional(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return profile.NormalizeUUID(s)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
