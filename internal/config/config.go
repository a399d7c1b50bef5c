// Package config handles loading and managing tagbox configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/wesm/tagbox/internal/mailbox"
)

// Config represents the tagbox configuration.
type Config struct {
	Data    DataConfig    `toml:"data"`
	Mailbox MailboxConfig `toml:"mailbox"`
	Index   IndexConfig   `toml:"index"`
	Server  ServerConfig  `toml:"server"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
	Mailbox string `toml:"mailbox"` // mailbox to open; empty opens every mailbox
}

// MailboxConfig holds the initial view settings.
type MailboxConfig struct {
	Sort          string `toml:"sort"`           // "desc" (newest first) or "asc"
	DefaultFilter string `toml:"default_filter"` // filter text applied on startup
}

// IndexConfig holds relation index maintenance settings.
type IndexConfig struct {
	RebuildSchedule string `toml:"rebuild_schedule"` // cron expression; empty disables
	WatchInterval   string `toml:"watch_interval"`   // Go duration, e.g. "2s"
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort     int      `toml:"api_port"`     // HTTP server port (default: 8080)
	BindAddr    string   `toml:"bind_addr"`    // listen address (default: 127.0.0.1)
	APIKey      string   `toml:"api_key"`      // API authentication key
	CORSOrigins []string `toml:"cors_origins"` // allowed browser origins
	RateLimit   float64  `toml:"rate_limit"`   // requests per second per client; 0 uses the default

	// AllowInsecure permits a non-loopback bind address without an API key.
	AllowInsecure bool `toml:"allow_insecure"`
}

// ValidateSecure refuses to expose the API beyond loopback without an API
// key unless AllowInsecure is set.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure || isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("refusing to bind %q without [server] api_key; set allow_insecure = true to override", s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// DefaultHome returns the default tagbox home directory.
// Respects TAGBOX_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("TAGBOX_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tagbox"
	}
	return filepath.Join(home, ".tagbox")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return defaultsAt(DefaultHome())
}

func defaultsAt(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
			Mailbox: "inbox",
		},
		Mailbox: MailboxConfig{
			Sort: "desc",
		},
		Index: IndexConfig{
			RebuildSchedule: "0 * * * *",
			WatchInterval:   "2s",
		},
		Server: ServerConfig{
			APIPort:  8080,
			BindAddr: "127.0.0.1",
		},
		configPath: filepath.Join(homeDir, "config.toml"),
	}
}

// Load reads the configuration.
//
// With an explicit path the file must exist, and the home directory and
// relative paths in it resolve against the file's directory. Otherwise
// config.toml is read from homeDir (or DefaultHome when homeDir is empty)
// and a missing file yields the defaults.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if explicit {
		path = expandPath(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if homeDir == "" {
			homeDir = filepath.Dir(path)
		}
	}
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := defaultsAt(homeDir)
	cfg.configPath = path

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, decodeError(err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	if explicit && cfg.Data.DataDir != "" && !filepath.IsAbs(cfg.Data.DataDir) {
		cfg.Data.DataDir = filepath.Join(filepath.Dir(path), cfg.Data.DataDir)
	}
	if cfg.Data.DataDir == "" {
		cfg.Data.DataDir = homeDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeError adds a hint for the most common TOML mistake: Windows paths
// in double-quoted strings.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w\n  hint: use forward slashes (C:/Users/...) or single quotes ('C:\\Users\\...') for Windows paths", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

// Validate checks values that the loaders cannot check by type alone.
func (c *Config) Validate() error {
	if _, err := c.SortDirection(); err != nil {
		return fmt.Errorf("[mailbox] sort: %w", err)
	}
	if _, err := c.WatchInterval(); err != nil {
		return fmt.Errorf("[index] watch_interval: %w", err)
	}
	if c.Server.APIPort < 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("[server] api_port %d out of range", c.Server.APIPort)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("[server] rate_limit must not be negative")
	}
	return nil
}

// SortDirection returns the configured initial sort direction.
func (c *Config) SortDirection() (mailbox.SortDirection, error) {
	return mailbox.ParseSortDirection(c.Mailbox.Sort)
}

// WatchInterval returns how often the store is polled for changes.
// Zero disables polling.
func (c *Config) WatchInterval() (time.Duration, error) {
	if c.Index.WatchInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Index.WatchInterval)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", d)
	}
	return d, nil
}

// DatabaseDSN returns the path to the SQLite database.
func (c *Config) DatabaseDSN() string {
	return filepath.Join(c.Data.DataDir, "tagbox.db")
}

// ConfigFilePath returns the path the configuration was (or would be)
// loaded from.
func (c *Config) ConfigFilePath() string {
	return c.configPath
}

// ListenAddr returns host:port for the HTTP API.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddr, c.Server.APIPort)
}

// Save writes the configuration to ConfigFilePath, creating the directory
// if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(c.configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
