package strm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticCategories struct {
	cats jobs.Categories
	err  error
}

func (s staticCategories) Load(context.Context) (jobs.Categories, error) {
	return s.cats, s.err
}

func newTestMaterializer(t *testing.T, cats CategorySource) (*Materializer, string, string) {
	t.Helper()
	base := t.TempDir()
	tv := filepath.Join(base, "tv")
	movies := filepath.Join(base, "movies")
	layout := Layout{TVRoot: tv, MoviesRoot: movies, TVCategory: "tv"}
	m := NewMaterializer(layout, cats, Options{Extensions: []string{".mkv", ".mp4"}}, testLogger())
	return m, tv, movies
}

func testJob(name, category string) *jobs.Job {
	j := jobs.NewJob(name, category, jobs.InputMagnet, "magnet:?xt=urn:btih:abc", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	j.ID = "abc"
	return j
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestMaterializer_Episode(t *testing.T) {
	m, tv, _ := newTestMaterializer(t, nil)
	job := testJob("Show.Name.S01E02.1080p", "tv")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{
		{ID: "1", Path: "Show.Name.S01E02.1080p/episode.mkv", Size: 100, StreamURL: " https://cdn.example/stream/1 "},
	})
	require.NoError(t, err)

	want := filepath.Join(tv, "Show Name", "Season 01", "Show.Name.S01E02.1080p.strm")
	assert.Equal(t, []string{want}, paths)
	assert.Equal(t, "https://cdn.example/stream/1\n", readFile(t, want))
}

func TestMaterializer_Movie(t *testing.T) {
	m, _, movies := newTestMaterializer(t, nil)
	job := testJob("Movie Title (2020)", "movies")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{
		{ID: "1", Path: "movie.mkv", Size: 100, StreamURL: "https://cdn.example/movie"},
	})
	require.NoError(t, err)

	want := filepath.Join(movies, "Movie Title (2020)", "Movie Title (2020).strm")
	assert.Equal(t, []string{want}, paths)
	assert.Equal(t, "https://cdn.example/movie\n", readFile(t, want))
}

func TestMaterializer_Idempotent(t *testing.T) {
	m, _, movies := newTestMaterializer(t, nil)
	job := testJob("Movie Title (2020)", "movies")
	files := []upstream.File{{ID: "1", Path: "movie.mkv", StreamURL: "https://cdn.example/movie"}}

	first, err := m.Materialize(context.Background(), job, files)
	require.NoError(t, err)
	info1, err := os.Stat(first[0])
	require.NoError(t, err)

	second, err := m.Materialize(context.Background(), job, files)
	require.NoError(t, err)
	info2, err := os.Stat(second[0])
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, info1.ModTime(), info2.ModTime())

	entries, err := os.ReadDir(filepath.Join(movies, "Movie Title (2020)"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMaterializer_OverwritesChangedURL(t *testing.T) {
	m, _, _ := newTestMaterializer(t, nil)
	job := testJob("Movie Title (2020)", "movies")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{{Path: "a.mkv", StreamURL: "https://old"}})
	require.NoError(t, err)
	_, err = m.Materialize(context.Background(), job, []upstream.File{{Path: "a.mkv", StreamURL: "https://new"}})
	require.NoError(t, err)

	assert.Equal(t, "https://new\n", readFile(t, paths[0]))
}

func TestMaterializer_ExtensionFilter(t *testing.T) {
	m, tv, _ := newTestMaterializer(t, nil)
	job := testJob("Show.Name.Season.1", "tv")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{
		{ID: "1", Path: "Show.Name.S01E01.mkv", StreamURL: "https://cdn/1"},
		{ID: "2", Path: "Show.Name.S01E02.MP4", StreamURL: "https://cdn/2"},
		{ID: "3", Path: "Show.Name.S01E03.nfo", StreamURL: "https://cdn/3"},
		{ID: "4", Path: "Show.Name.S01E04.mkv", StreamURL: ""},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(tv, "Show Name", "Season 01", "Show.Name.S01E01.strm"),
		filepath.Join(tv, "Show Name", "Season 01", "Show.Name.S01E02.strm"),
	}, paths)
}

func TestMaterializer_LargestWinsOnCollision(t *testing.T) {
	m, _, _ := newTestMaterializer(t, nil)
	job := testJob("Movie Title (2020)", "movies")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{
		{ID: "1", Path: "sample.mkv", Size: 10, StreamURL: "https://cdn/sample"},
		{ID: "2", Path: "movie.mkv", Size: 5000, StreamURL: "https://cdn/movie"},
		{ID: "3", Path: "extra.mp4", Size: 20, StreamURL: "https://cdn/extra"},
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "https://cdn/movie\n", readFile(t, paths[0]))
}

func TestMaterializer_NoPlayableFiles(t *testing.T) {
	m, _, movies := newTestMaterializer(t, nil)
	job := testJob("Movie Title (2020)", "movies")

	_, err := m.Materialize(context.Background(), job, []upstream.File{
		{ID: "1", Path: "readme.txt", StreamURL: "https://cdn/readme"},
	})
	assert.ErrorIs(t, err, ErrMaterializationFailed)
	assert.ErrorIs(t, err, ErrNoPlayableFiles)

	_, statErr := os.Stat(movies)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMaterializer_CategoryOverride(t *testing.T) {
	custom := t.TempDir()
	m, _, _ := newTestMaterializer(t, staticCategories{cats: jobs.Categories{"docs": {SavePath: custom}}})
	job := testJob("Planet (2006)", "docs")

	paths, err := m.Materialize(context.Background(), job, []upstream.File{{Path: "p.mkv", StreamURL: "https://cdn/p"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(custom, "Planet (2006)", "Planet (2006).strm")}, paths)
}

func TestMaterializer_CategoryLoadError(t *testing.T) {
	m, _, _ := newTestMaterializer(t, staticCategories{err: errors.New("disk gone")})

	_, err := m.Materialize(context.Background(), testJob("X (2001)", "movies"), []upstream.File{{Path: "x.mkv", StreamURL: "https://cdn/x"}})
	assert.ErrorIs(t, err, ErrMaterializationFailed)
}

func TestMaterializer_Playable(t *testing.T) {
	m, _, _ := newTestMaterializer(t, nil)

	tests := []struct {
		name string
		file upstream.File
		want bool
	}{
		{"allowed extension", upstream.File{Path: "a.mkv", StreamURL: "u"}, true},
		{"uppercase extension", upstream.File{Path: "a.MKV", StreamURL: "u"}, true},
		{"disallowed extension", upstream.File{Path: "a.srt", StreamURL: "u"}, false},
		{"no extension", upstream.File{Path: "video", StreamURL: "u"}, true},
		{"no stream", upstream.File{Path: "a.mkv"}, false},
		{"extension from url", upstream.File{StreamURL: "https://cdn/a.mp4?token=1"}, true},
		{"bad extension from url", upstream.File{StreamURL: "https://cdn/a.iso#x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Playable(tt.file))
		})
	}
}

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Movie Title", "Movie Title"},
		{"AC/DC", "AC DC"},
		{`back\slash`, "back slash"},
		{"nul\x00byte", "nulbyte"},
		{"  spaced   out  ", "spaced out"},
		{"..", ""},
		{".", ""},
		{"Title: Sub?", "Title: Sub?"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeComponent(tt.in))
		})
	}
}
