package jobs

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vmunix/autostrm/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), testLogger())
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testJob(id, name string, state State, offset time.Duration) *Job {
	j := NewJob(name, "tv", InputMagnet, "magnet:?xt=urn:btih:"+id, baseTime.Add(offset))
	j.ID = id
	j.State = state
	j.TaskHandle = &upstream.Handle{Kind: upstream.KindTorrentID, Value: id}
	return j
}
