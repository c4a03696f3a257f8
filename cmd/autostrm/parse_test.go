package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewPath(t *testing.T) {
	tests := []struct {
		name     string
		category string
		file     string
		wantCat  string
		naming   string
		want     string
	}{
		{"Show.Name.S01E02.1080p", "", "", "tv", "tv", "/data/tv/Show Name/Season 01/Show.Name.S01E02.1080p.strm"},
		{"Show.Name.Season.1.Complete", "tv", "Show.Name.S01E03.720p.mkv", "tv", "tv", "/data/tv/Show Name/Season 01/Show.Name.S01E03.strm"},
		{"The.Matrix.1999.1080p.BluRay", "", "", "movies", "movie", "/data/movies/The.Matrix (1999)/The.Matrix (1999).strm"},
		{"Movie Title (2020)", "radarr", "", "radarr", "movie", "/data/movies/Movie Title (2020)/Movie Title (2020).strm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := previewPath(testConfig(t), tt.name, tt.category, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCat, res.Category)
			assert.Equal(t, tt.naming, res.Naming)
			assert.Equal(t, filepath.FromSlash(tt.want), res.Path)
		})
	}
}

func TestPreviewPath_RejectsEscape(t *testing.T) {
	_, err := previewPath(testConfig(t), "..", "movies", "")
	assert.Error(t, err)
}

func TestParseCommand_JSON(t *testing.T) {
	out, err := execute(t, "parse", "--json", "Show.Name.S02E05.720p")
	require.NoError(t, err)

	var res ParseResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "tv", res.Category)
	assert.Equal(t, "/data/tv", res.Root)
	assert.Equal(t, filepath.FromSlash("/data/tv/Show Name/Season 02/Show.Name.S02E05.720p.strm"), res.Path)
}

func TestParseCommand_Text(t *testing.T) {
	out, err := execute(t, "parse", "--category", "movies", "Some_Home.Video")
	require.NoError(t, err)
	assert.Contains(t, out, "movies (movie naming)")
	assert.Contains(t, out, filepath.FromSlash("/data/movies/Some Home Video/Some Home Video.strm"))
}
