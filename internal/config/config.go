// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	TorBox    TorBoxConfig    `toml:"torbox"`
	Storage   StorageConfig   `toml:"storage"`
	Library   LibraryConfig   `toml:"library"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Jellyfin  JellyfinConfig  `toml:"jellyfin"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Events    EventsConfig    `toml:"events"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

// AuthConfig holds the credentials download managers use against the qBittorrent API.
type AuthConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type TorBoxConfig struct {
	URL        string        `toml:"url"`
	APIKey     string        `toml:"api_key"`
	Timeout    time.Duration `toml:"timeout"`
	RetryDelay time.Duration `toml:"retry_delay"`
	// Retries is the number of extra attempts for reads. Unset means 2; an
	// explicit 0 disables retrying.
	Retries *int `toml:"retries"`
	// Permalinks builds requestdl redirect links for files that carry no stream URL.
	Permalinks *bool `toml:"permalinks"`
}

// RetryCount returns the configured retry count (default 2).
func (c TorBoxConfig) RetryCount() int {
	if c.Retries == nil {
		return 2
	}
	return *c.Retries
}

// PermalinksEnabled reports whether permalink generation is on (default true).
func (c TorBoxConfig) PermalinksEnabled() bool {
	return c.Permalinks == nil || *c.Permalinks
}

type StorageConfig struct {
	Dir string `toml:"dir"`
}

type LibraryConfig struct {
	TVRoot         string   `toml:"tv_root"`
	MoviesRoot     string   `toml:"movies_root"`
	TVCategory     string   `toml:"tv_category"`
	MoviesCategory string   `toml:"movies_category"`
	Extensions     []string `toml:"extensions"`
	PUID           int      `toml:"puid"`
	PGID           int      `toml:"pgid"`
}

type ReconcileConfig struct {
	MinInterval time.Duration `toml:"min_interval"`
	MaxInterval time.Duration `toml:"max_interval"`
	Factor      float64       `toml:"factor"`
	// Monotonic ignores upstream reports that would move a job backwards.
	Monotonic bool `toml:"monotonic"`
}

type JellyfinConfig struct {
	URL      string        `toml:"url"`
	APIKey   string        `toml:"api_key"`
	Debounce time.Duration `toml:"debounce"`
	// LocalPath and RemotePath translate library paths when Jellyfin sees
	// the media tree under a different prefix.
	LocalPath  string `toml:"local_path"`
	RemotePath string `toml:"remote_path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

type EventsConfig struct {
	Retention time.Duration `toml:"retention"`
}

// DefaultExtensions are the video extensions eligible for pointer files.
var DefaultExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".wmv"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file, applies environment overrides
// and validates the result. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}

		content, missing := substituteEnvVars(string(data))
		if len(missing) > 0 {
			return nil, &Error{Path: path, Missing: missing}
		}

		if _, err := toml.Decode(content, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	cfg.applyDefaults()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &Error{Path: path, Errors: errs}
	}

	return &cfg, nil
}

// LoadOrDefault is Load that treats a missing file as an empty one.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 6500
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "autostrm"
	}
	if c.Auth.Password == "" {
		c.Auth.Password = "autostrm"
	}
	if c.TorBox.URL == "" {
		c.TorBox.URL = "https://api.torbox.app"
	}
	if c.TorBox.Timeout == 0 {
		c.TorBox.Timeout = 30 * time.Second
	}
	if c.TorBox.RetryDelay == 0 {
		c.TorBox.RetryDelay = time.Second
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "/config"
	}
	if c.Library.TVRoot == "" {
		c.Library.TVRoot = "/data/media/tv"
	}
	if c.Library.MoviesRoot == "" {
		c.Library.MoviesRoot = "/data/media/movies"
	}
	if c.Library.TVCategory == "" {
		c.Library.TVCategory = "tv"
	}
	if c.Library.MoviesCategory == "" {
		c.Library.MoviesCategory = "movies"
	}
	if len(c.Library.Extensions) == 0 {
		c.Library.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if c.Reconcile.MinInterval == 0 {
		c.Reconcile.MinInterval = 5 * time.Second
	}
	if c.Reconcile.MaxInterval == 0 {
		c.Reconcile.MaxInterval = 60 * time.Second
	}
	if c.Reconcile.Factor == 0 {
		c.Reconcile.Factor = 1.5
	}
	if c.Jellyfin.Debounce == 0 {
		c.Jellyfin.Debounce = 30 * time.Second
	}
	if c.Events.Retention == 0 {
		c.Events.Retention = 30 * 24 * time.Hour
	}
}
