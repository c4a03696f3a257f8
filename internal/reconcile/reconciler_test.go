package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/strm"
	"github.com/vmunix/autostrm/internal/upstream"
	"github.com/vmunix/autostrm/internal/upstream/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// countingStore wraps a job store, counting writes and optionally running a
// hook right before the merge.
type countingStore struct {
	*jobs.Store
	updates      int
	beforeUpdate func()
}

func (s *countingStore) Update(ctx context.Context, fn func(*jobs.JobSet) (bool, error)) error {
	s.updates++
	if s.beforeUpdate != nil {
		s.beforeUpdate()
	}
	return s.Store.Update(ctx, fn)
}

type fixture struct {
	rec    *Reconciler
	store  *countingStore
	client *mocks.MockClient
	events <-chan events.Event
	tvRoot string
	movies string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := t.TempDir()

	store := &countingStore{Store: jobs.NewStore(filepath.Join(dir, "state"), testLogger())}
	client := mocks.NewMockClient(ctrl)
	bus := events.NewBus(nil, testLogger())
	t.Cleanup(func() { bus.Close() })

	tvRoot := filepath.Join(dir, "tv")
	movies := filepath.Join(dir, "movies")
	mat := strm.NewMaterializer(
		strm.Layout{TVRoot: tvRoot, MoviesRoot: movies, TVCategory: "tv"},
		nil,
		strm.Options{Extensions: []string{".mkv", ".mp4"}},
		testLogger(),
	)

	return &fixture{
		rec:    New(store, client, mat, bus, cfg, testLogger()),
		store:  store,
		client: client,
		events: bus.Subscribe(64),
		tvRoot: tvRoot,
		movies: movies,
	}
}

func (f *fixture) seed(t *testing.T, js ...*jobs.Job) {
	t.Helper()
	set := jobs.NewJobSet()
	for _, j := range js {
		set.Put(j)
	}
	require.NoError(t, f.store.Save(context.Background(), set))
}

func (f *fixture) get(t *testing.T, id string) *jobs.Job {
	t.Helper()
	set, err := f.store.Load(context.Background())
	require.NoError(t, err)
	j, ok := set.Get(id)
	require.True(t, ok)
	return j
}

func (f *fixture) drain() []string {
	var types []string
	for {
		select {
		case e := <-f.events:
			types = append(types, e.EventType())
		default:
			return types
		}
	}
}

func testJob(id, name, category string, state jobs.State, offset time.Duration) *jobs.Job {
	j := jobs.NewJob(name, category, jobs.InputMagnet, "magnet:?xt=urn:btih:"+id, baseTime.Add(offset))
	j.ID = id
	j.State = state
	j.TaskHandle = &upstream.Handle{Kind: upstream.KindTorrentID, Value: id}
	return j
}

func handle(id string) upstream.Handle {
	return upstream.Handle{Kind: upstream.KindTorrentID, Value: id}
}

func ptr[T any](v T) *T { return &v }

func TestPass_NoPolledJobs(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t,
		testJob("a", "Done", "movies", jobs.StateDone, 0),
		testJob("b", "Failed", "movies", jobs.StateError, time.Second),
		testJob("c", "Paused", "movies", jobs.StatePaused, 2*time.Second),
		testJob("d", "Gone", "movies", jobs.StateDeleted, 3*time.Second),
	)
	before, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{}, res)
	assert.Zero(t, f.store.updates)
	after, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.drain())
}

func TestPass_EmptyStore(t *testing.T) {
	f := newFixture(t, Config{})

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Zero(t, f.store.updates)

	_, statErr := os.Stat(f.store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestPass_MissingHandle(t *testing.T) {
	f := newFixture(t, Config{})
	j := testJob("a", "Orphan (2020)", "movies", jobs.StateQueued, 0)
	j.TaskHandle = nil
	f.seed(t, j)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got := f.get(t, "a")
	assert.Equal(t, jobs.StateError, got.State)
	assert.NotEmpty(t, got.Error)
	assert.Equal(t, []string{events.EventJobStateChanged, events.EventJobFailed}, f.drain())
}

func TestPass_MirrorsTelemetry(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateQueued, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).Return(&upstream.Status{
		State:         upstream.StateDownloading,
		Raw:           "downloading",
		Progress:      ptr(1.7),
		Size:          ptr(int64(4096)),
		DownloadSpeed: ptr(int64(100)),
		ETA:           ptr(int64(30)),
	}, nil)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed())

	got := f.get(t, "a")
	assert.Equal(t, jobs.StateDownloading, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, int64(100), got.DownloadSpeed)
	assert.Equal(t, int64(30), got.ETA)
	assert.Equal(t, []string{events.EventJobStateChanged}, f.drain())
}

func TestPass_TelemetryOnlyIsNotAStateChange(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).Return(&upstream.Status{
		State:    upstream.StateDownloading,
		Raw:      "downloading",
		Progress: ptr(0.4),
	}, nil)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0.4, f.get(t, "a").Progress)
	assert.Empty(t, f.drain())
}

func TestPass_AbsentTelemetryKeepsLastValues(t *testing.T) {
	f := newFixture(t, Config{})
	j := testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0)
	j.Progress = 0.5
	j.Size = 99
	f.seed(t, j)

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).Return(&upstream.Status{
		State: upstream.StateDownloading,
		Raw:   "downloading",
	}, nil)

	_, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.store.updates)

	got := f.get(t, "a")
	assert.Equal(t, 0.5, got.Progress)
	assert.Equal(t, int64(99), got.Size)
}

func TestPass_ReadyMaterializes(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Show.Name.S01E02.1080p", "tv", jobs.StateDownloading, 0))

	gomock.InOrder(
		f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).Return(&upstream.Status{
			State: upstream.StateReady, Raw: "cached", Progress: ptr(0.99),
		}, nil),
		f.client.EXPECT().ListFiles(gomock.Any(), handle("a")).Return([]upstream.File{
			{ID: "1", Path: "Show.Name.S01E02.1080p/ep.mkv", Size: 10, StreamURL: "https://cdn/1"},
			{ID: "2", Path: "Show.Name.S01E02.1080p/ep.nfo", Size: 1, StreamURL: "https://cdn/2"},
		}, nil),
	)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Materialized)
	assert.Equal(t, 2, res.Transitions)

	want := filepath.Join(f.tvRoot, "Show Name", "Season 01", "Show.Name.S01E02.1080p.strm")
	got := f.get(t, "a")
	assert.Equal(t, jobs.StateDone, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, []string{want}, got.Files)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/1\n", string(data))

	assert.Equal(t, []string{
		events.EventJobStateChanged,
		events.EventJobStateChanged,
		events.EventJobMaterialized,
	}, f.drain())
}

func TestPass_DoneIsNotPolledAgain(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateReady, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateReady, Raw: "completed"}, nil).Times(1)
	f.client.EXPECT().ListFiles(gomock.Any(), handle("a")).
		Return([]upstream.File{{Path: "m.mkv", StreamURL: "https://cdn/m"}}, nil).Times(1)

	_, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	_, err = f.rec.Pass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobs.StateDone, f.get(t, "a").State)
	assert.Equal(t, 1, f.store.updates)
}

func TestPass_NoPlayableFiles(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateProcessing, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateReady, Raw: "completed"}, nil)
	f.client.EXPECT().ListFiles(gomock.Any(), handle("a")).
		Return([]upstream.File{{Path: "readme.txt", StreamURL: "https://cdn/r"}}, nil)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got := f.get(t, "a")
	assert.Equal(t, jobs.StateError, got.State)
	assert.Contains(t, got.Error, strm.ErrNoPlayableFiles.Error())
	assert.Empty(t, got.Files)
}

func TestPass_ListFilesFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateReady, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateReady, Raw: "completed"}, nil)
	f.client.EXPECT().ListFiles(gomock.Any(), handle("a")).
		Return(nil, fmt.Errorf("listing: %w", upstream.ErrUnrecognizedResponse))

	_, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs.StateError, f.get(t, "a").State)
}

func TestPass_UpstreamError(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateError, Raw: "Failed (no seeds)"}, nil)

	_, err := f.rec.Pass(context.Background())
	require.NoError(t, err)

	got := f.get(t, "a")
	assert.Equal(t, jobs.StateError, got.State)
	assert.Contains(t, got.Error, "Failed (no seeds)")
	assert.Equal(t, []string{events.EventJobStateChanged, events.EventJobFailed}, f.drain())
}

func TestPass_SkipsUnavailableStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transient", fmt.Errorf("mylist: %w", upstream.ErrTransient)},
		{"not found", fmt.Errorf("mylist: %w", upstream.ErrNotFound)},
		{"unauthorized", fmt.Errorf("mylist: %w", upstream.ErrUnauthorized)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0))

			f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).Return(nil, tt.err)

			res, err := f.rec.Pass(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Polled)
			assert.False(t, res.Changed())
			assert.Zero(t, f.store.updates)
			assert.Equal(t, jobs.StateDownloading, f.get(t, "a").State)
		})
	}
}

func TestPass_UnrecognizedStateKeepsState(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0))

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateUnknown, Raw: "moonwalking", Progress: ptr(0.3)}, nil)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())

	got := f.get(t, "a")
	assert.Equal(t, jobs.StateDownloading, got.State)
	assert.Equal(t, 0.3, got.Progress)
}

func TestPass_Regression(t *testing.T) {
	tests := []struct {
		name      string
		monotonic bool
		want      jobs.State
	}{
		{"upstream authoritative", false, jobs.StateQueued},
		{"monotonic", true, jobs.StateProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Monotonic: tt.monotonic})
			f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateProcessing, 0))

			f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
				Return(&upstream.Status{State: upstream.StateQueued, Raw: "queued"}, nil)

			_, err := f.rec.Pass(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.get(t, "a").State)
		})
	}
}

func TestPass_KeepsConcurrentDelete(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t,
		testJob("a", "First (2020)", "movies", jobs.StateQueued, 0),
		testJob("b", "Second (2021)", "movies", jobs.StateQueued, time.Second),
	)

	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		Return(&upstream.Status{State: upstream.StateDownloading, Raw: "downloading"}, nil)
	f.client.EXPECT().QueryStatus(gomock.Any(), handle("b")).
		Return(&upstream.Status{State: upstream.StateDownloading, Raw: "downloading"}, nil)

	f.store.beforeUpdate = func() {
		f.store.beforeUpdate = nil
		err := f.store.Store.Update(context.Background(), func(set *jobs.JobSet) (bool, error) {
			j, _ := set.Get("a")
			j.State = jobs.StateDeleted
			j.DeletedAt = baseTime.Unix()
			return true, nil
		})
		require.NoError(t, err)
	}

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Updated)

	assert.Equal(t, jobs.StateDeleted, f.get(t, "a").State)
	assert.Equal(t, jobs.StateDownloading, f.get(t, "b").State)
	assert.Equal(t, []string{events.EventJobStateChanged}, f.drain())
}

func TestPass_SnapshotOrder(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t,
		testJob("late", "Late (2020)", "movies", jobs.StateQueued, time.Minute),
		testJob("early", "Early (2020)", "movies", jobs.StateQueued, 0),
	)

	gomock.InOrder(
		f.client.EXPECT().QueryStatus(gomock.Any(), handle("early")).
			Return(&upstream.Status{State: upstream.StateQueued, Raw: "queued"}, nil),
		f.client.EXPECT().QueryStatus(gomock.Any(), handle("late")).
			Return(&upstream.Status{State: upstream.StateQueued, Raw: "queued"}, nil),
	)

	res, err := f.rec.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Polled)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{MinInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Factor: 2})
	f.seed(t, testJob("a", "Movie (2020)", "movies", jobs.StateDownloading, 0))

	polled := make(chan struct{}, 100)
	f.client.EXPECT().QueryStatus(gomock.Any(), handle("a")).
		DoAndReturn(func(context.Context, upstream.Handle) (*upstream.Status, error) {
			polled <- struct{}{}
			return &upstream.Status{State: upstream.StateDownloading, Raw: "downloading"}, nil
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.rec.Run(ctx) }()

	for range 3 {
		select {
		case <-polled:
		case <-time.After(2 * time.Second):
			t.Fatal("reconciler did not poll")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
