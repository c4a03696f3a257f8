package config

import (
	"os"
	"path/filepath"
)

// Discover returns the first config file that exists, or "" when none does.
// Order: $AUTOSTRM_CONFIG, ./config.toml, $XDG_CONFIG_HOME/autostrm/config.toml
// (or ~/.config/autostrm/config.toml), /etc/autostrm/config.toml.
func Discover() string {
	if p := os.Getenv("AUTOSTRM_CONFIG"); p != "" {
		return p
	}
	for _, p := range searchPaths() {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(xdgConfigHome(), "autostrm", "config.toml")
}

func searchPaths() []string {
	return []string{
		"config.toml",
		filepath.Join(xdgConfigHome(), "autostrm", "config.toml"),
		"/etc/autostrm/config.toml",
	}
}

func xdgConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config"
	}
	return filepath.Join(home, ".config")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
