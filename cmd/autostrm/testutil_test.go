package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmunix/autostrm/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Library.TVRoot = "/data/tv"
	cfg.Library.MoviesRoot = "/data/movies"
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

// execute runs the root command with args against a config file rooted in a
// temp dir and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	content := "[storage]\ndir = \"" + filepath.ToSlash(filepath.Join(dir, "state")) + "\"\n" +
		"[library]\ntv_root = \"/data/tv\"\nmovies_root = \"/data/movies\"\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o600))

	t.Cleanup(func() {
		configPath = ""
		jsonOutput = false
		parseCategory, parseFile = "", ""
		listStates, listCategory, listQuery = nil, "", ""
		addName, addCategory = "", ""
		deletePurge = false
		configInitForce = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}
