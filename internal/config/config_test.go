package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Full(t *testing.T) {
	t.Setenv("TEST_TORBOX_KEY", "secret")
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 7000
log_level = "debug"

[torbox]
api_key = "${TEST_TORBOX_KEY}"
timeout = "10s"

[library]
tv_root = "/media/tv"
movies_root = "/media/movies"
tv_category = "sonarr"
movies_category = "radarr"

[reconcile]
min_interval = "2s"
max_interval = "30s"
factor = 2.0
monotonic = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "secret", cfg.TorBox.APIKey)
	assert.Equal(t, 10*time.Second, cfg.TorBox.Timeout)
	assert.Equal(t, "https://api.torbox.app", cfg.TorBox.URL)
	assert.Equal(t, "/media/tv", cfg.Library.TVRoot)
	assert.Equal(t, "sonarr", cfg.Library.TVCategory)
	assert.Equal(t, 2*time.Second, cfg.Reconcile.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.MaxInterval)
	assert.InDelta(t, 2.0, cfg.Reconcile.Factor, 1e-9)
	assert.True(t, cfg.Reconcile.Monotonic)
	assert.Equal(t, DefaultExtensions, cfg.Library.Extensions)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6500, cfg.Server.Port)
	assert.Equal(t, "/config", cfg.Storage.Dir)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.MinInterval)
	assert.Equal(t, 60*time.Second, cfg.Reconcile.MaxInterval)
	assert.InDelta(t, 1.5, cfg.Reconcile.Factor, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Jellyfin.Debounce)
	assert.True(t, cfg.TorBox.PermalinksEnabled())
}

func TestLoad_MissingEnvVars(t *testing.T) {
	path := writeConfig(t, `
[torbox]
api_key = "${AUTOSTRM_TEST_UNSET_A}"
url = "${AUTOSTRM_TEST_UNSET_B}"
`)

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"AUTOSTRM_TEST_UNSET_A", "AUTOSTRM_TEST_UNSET_B"}, cfgErr.Missing)
	assert.Contains(t, err.Error(), "AUTOSTRM_TEST_UNSET_A")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 70000

[reconcile]
min_interval = "10s"
max_interval = "5s"
factor = 0.5
`)

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Errors, 3)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 6500, cfg.Server.Port)
}

func TestLoad_PermalinksDisabled(t *testing.T) {
	path := writeConfig(t, "[torbox]\npermalinks = false\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.TorBox.PermalinksEnabled())
}

func TestLoad_Retries(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"unset uses default", "[torbox]\n", 2},
		{"explicit zero disables retries", "[torbox]\nretries = 0\n", 0},
		{"explicit value", "[torbox]\nretries = 5\n", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.TorBox.RetryCount())
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOSTRM_PORT", "8123")
	t.Setenv("TORBOX_API_KEY", "from-env")
	t.Setenv("MEDIA_TV_PATH", "/srv/tv")
	t.Setenv("CATEGORY_MOVIES", "films")
	t.Setenv("CONFIG_DIR", "/srv/state/")
	t.Setenv("PUID", "1001")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, `
[server]
port = 7000

[torbox]
api_key = "from-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.TorBox.APIKey)
	assert.Equal(t, "/srv/tv", cfg.Library.TVRoot)
	assert.Equal(t, "films", cfg.Library.MoviesCategory)
	assert.Equal(t, "/srv/state", cfg.Storage.Dir)
	assert.Equal(t, 1001, cfg.Library.PUID)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_EnvOverrideBadInt(t *testing.T) {
	t.Setenv("AUTOSTRM_PORT", "not-a-port")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	require.NoError(t, WriteDefault(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6500, cfg.Server.Port)
	assert.Equal(t, "autostrm", cfg.Auth.Password)

	err = WriteDefault(path, false)
	assert.ErrorIs(t, err, ErrExists)
	assert.NoError(t, WriteDefault(path, true))
}
