package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryStore_SeedsDefaults(t *testing.T) {
	dir := t.TempDir()
	store := NewCategoryStore(dir, Categories{"tv": {SavePath: "/tv"}, "movies": {SavePath: "/movies"}}, testLogger())

	cats, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"movies", "tv"}, cats.Names())
	assert.FileExists(t, filepath.Join(dir, CategoriesFile))
}

func TestCategoryStore_ExistingFileWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CategoriesFile), []byte(`{"anime":{"savePath":"/anime","color":"red"}}`), 0o644))
	store := NewCategoryStore(dir, Categories{"tv": {SavePath: "/tv"}}, testLogger())

	ctx := context.Background()
	cats, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anime"}, cats.Names())

	require.NoError(t, store.Set(ctx, "anime", "/media/anime"))
	data, err := os.ReadFile(filepath.Join(dir, CategoriesFile))
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "/media/anime", raw["anime"]["savePath"])
	assert.Equal(t, "red", raw["anime"]["color"])
	assert.NotContains(t, raw, "tv")
}

func TestCategoryStore_SetEmptyName(t *testing.T) {
	store := NewCategoryStore(t.TempDir(), nil, testLogger())
	err := store.Set(context.Background(), " ", "/x")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
