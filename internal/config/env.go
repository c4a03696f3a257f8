package config

import (
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the environment variables honoured on top of the file.
// Unset variables leave the file value in place.
type envOverrides struct {
	Bind           string `envconfig:"AUTOSTRM_BIND"`
	Port           int    `envconfig:"AUTOSTRM_PORT"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	Username       string `envconfig:"AUTH_USERNAME"`
	Password       string `envconfig:"AUTH_PASSWORD"`
	TorBoxURL      string `envconfig:"TORBOX_BASE_URL"`
	TorBoxAPIKey   string `envconfig:"TORBOX_API_KEY"`
	TVRoot         string `envconfig:"MEDIA_TV_PATH"`
	MoviesRoot     string `envconfig:"MEDIA_MOVIES_PATH"`
	TVCategory     string `envconfig:"CATEGORY_TV"`
	MoviesCategory string `envconfig:"CATEGORY_MOVIES"`
	ConfigDir      string `envconfig:"CONFIG_DIR"`
	PUID           int    `envconfig:"PUID"`
	PGID           int    `envconfig:"PGID"`
	JellyfinURL    string `envconfig:"JELLYFIN_URL"`
	JellyfinAPIKey string `envconfig:"JELLYFIN_API_KEY"`
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	setString(&cfg.Server.Host, env.Bind)
	setInt(&cfg.Server.Port, env.Port)
	setString(&cfg.Server.LogLevel, env.LogLevel)
	setString(&cfg.Auth.Username, env.Username)
	setString(&cfg.Auth.Password, env.Password)
	setString(&cfg.TorBox.URL, env.TorBoxURL)
	setString(&cfg.TorBox.APIKey, env.TorBoxAPIKey)
	setString(&cfg.Library.TVRoot, env.TVRoot)
	setString(&cfg.Library.MoviesRoot, env.MoviesRoot)
	setString(&cfg.Library.TVCategory, env.TVCategory)
	setString(&cfg.Library.MoviesCategory, env.MoviesCategory)
	if env.ConfigDir != "" {
		cfg.Storage.Dir = filepath.Clean(env.ConfigDir)
	}
	setInt(&cfg.Library.PUID, env.PUID)
	setInt(&cfg.Library.PGID, env.PGID)
	setString(&cfg.Jellyfin.URL, env.JellyfinURL)
	setString(&cfg.Jellyfin.APIKey, env.JellyfinAPIKey)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
