package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_EnvVar(t *testing.T) {
	t.Setenv("AUTOSTRM_CONFIG", "/custom/path.toml")
	assert.Equal(t, "/custom/path.toml", Discover())
}

func TestDiscover_XDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("AUTOSTRM_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	path := filepath.Join(xdg, "autostrm", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	assert.Equal(t, path, Discover())
}

func TestDiscover_CurrentDirFirst(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("AUTOSTRM_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	require.NoError(t, os.WriteFile("config.toml", []byte(""), 0o600))
	xdgPath := filepath.Join(xdg, "autostrm", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(xdgPath), 0o755))
	require.NoError(t, os.WriteFile(xdgPath, []byte(""), 0o600))

	assert.Equal(t, "config.toml", Discover())
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/autostrm/config.toml", DefaultPath())
}
