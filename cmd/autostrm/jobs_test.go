package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/autostrm/internal/jobs"
)

func TestMatchID(t *testing.T) {
	list := []*jobs.Job{
		{ID: "abc123ff"},
		{ID: "abc456ff"},
		{ID: "def789ff"},
	}

	id, err := matchID(list, "abc123ff")
	require.NoError(t, err)
	assert.Equal(t, "abc123ff", id)

	id, err = matchID(list, "DEF")
	require.NoError(t, err)
	assert.Equal(t, "def789ff", id)

	_, err = matchID(list, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = matchID(list, "999")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	_, err = matchID(list, " ")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestCreateRequest_Magnet(t *testing.T) {
	cfg := testConfig(t)
	req, err := createRequest(cfg, "magnet:?xt=urn:btih:abc&dn=Show.S01E01.720p", "", "")
	require.NoError(t, err)
	assert.Equal(t, jobs.InputMagnet, req.Kind)
	assert.Equal(t, "Show.S01E01.720p", req.Name)
	assert.Equal(t, "tv", req.Category)
	assert.Empty(t, req.Torrent)
}

func TestCreateRequest_TorrentFile(t *testing.T) {
	cfg := testConfig(t)
	p := filepath.Join(t.TempDir(), "Film.2020.torrent")
	require.NoError(t, os.WriteFile(p, []byte("d4:infod4:name4:testee"), 0o600))

	req, err := createRequest(cfg, p, "", "")
	require.NoError(t, err)
	assert.Equal(t, jobs.InputTorrent, req.Kind)
	assert.Equal(t, "Film.2020.torrent", req.Name)
	assert.Equal(t, "movies", req.Category)
	assert.Equal(t, []byte("d4:infod4:name4:testee"), req.Torrent)
}

func TestCreateRequest_Overrides(t *testing.T) {
	cfg := testConfig(t)
	req, err := createRequest(cfg, "magnet:?xt=urn:btih:abc", "Custom Name", "anime")
	require.NoError(t, err)
	assert.Equal(t, "Custom Name", req.Name)
	assert.Equal(t, "anime", req.Category)
}

func TestCreateRequest_MissingFile(t *testing.T) {
	_, err := createRequest(testConfig(t), filepath.Join(t.TempDir(), "missing.torrent"), "", "")
	assert.Error(t, err)
}

func TestPrintJobs(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	list := []*jobs.Job{
		{ID: "0123456789abcdef", Name: "Show.S01E01", Category: "tv", State: jobs.StateDownloading, Progress: 0.5, Size: 2048, CreatedAt: now.Add(-10 * time.Minute)},
	}

	var buf bytes.Buffer
	printJobs(&buf, list, now)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID\tNAME\tCATEGORY\tSTATE\tPROGRESS\tSIZE\tADDED", lines[0])
	assert.Equal(t, "01234567\tShow.S01E01\ttv\tdownloading\t50%\t2.0 KB\t10m ago", lines[1])
}

func TestJobsListCommand_Empty(t *testing.T) {
	out, err := execute(t, "jobs", "list")
	require.NoError(t, err)
	assert.Equal(t, "No jobs.\n", out)
}

func TestJobsListCommand_JSONEmpty(t *testing.T) {
	out, err := execute(t, "jobs", "list", "--json")
	require.NoError(t, err)

	var got []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Empty(t, got)
}

func TestJobsListCommand_BadState(t *testing.T) {
	_, err := execute(t, "jobs", "list", "--state", "bogus")
	assert.Error(t, err)
}

func TestJobsDeleteCommand_UnknownID(t *testing.T) {
	_, err := execute(t, "jobs", "delete", "abc")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}
