package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: %d out of range", c.Server.Port))
	}
	if !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		errs = append(errs, fmt.Sprintf("server.log_level: unknown level %q", c.Server.LogLevel))
	}

	if !validURL(c.TorBox.URL) {
		errs = append(errs, fmt.Sprintf("torbox.url: invalid URL %q", c.TorBox.URL))
	}
	if c.TorBox.Timeout < 0 {
		errs = append(errs, "torbox.timeout: must not be negative")
	}
	if c.TorBox.RetryCount() < 0 {
		errs = append(errs, "torbox.retries: must not be negative")
	}

	if c.Storage.Dir == "" {
		errs = append(errs, "storage.dir: required")
	}
	if c.Library.TVRoot == "" {
		errs = append(errs, "library.tv_root: required")
	}
	if c.Library.MoviesRoot == "" {
		errs = append(errs, "library.movies_root: required")
	}
	if c.Library.TVCategory == c.Library.MoviesCategory {
		errs = append(errs, "library: tv_category and movies_category must differ")
	}
	for _, ext := range c.Library.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("library.extensions: %q must start with a dot", ext))
		}
	}

	if c.Reconcile.MinInterval <= 0 {
		errs = append(errs, "reconcile.min_interval: must be positive")
	}
	if c.Reconcile.MaxInterval < c.Reconcile.MinInterval {
		errs = append(errs, "reconcile.max_interval: must be at least min_interval")
	}
	if c.Reconcile.Factor <= 1 {
		errs = append(errs, "reconcile.factor: must be greater than 1")
	}

	if c.Jellyfin.URL != "" {
		if !validURL(c.Jellyfin.URL) {
			errs = append(errs, fmt.Sprintf("jellyfin.url: invalid URL %q", c.Jellyfin.URL))
		}
		if c.Jellyfin.APIKey == "" {
			errs = append(errs, "jellyfin.api_key: required when jellyfin.url is set")
		}
	}
	if (c.Jellyfin.LocalPath == "") != (c.Jellyfin.RemotePath == "") {
		errs = append(errs, "jellyfin: local_path and remote_path must be set together")
	}

	return errs
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
