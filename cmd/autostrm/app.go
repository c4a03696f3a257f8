package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmunix/autostrm/internal/config"
	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/strm"
	"github.com/vmunix/autostrm/internal/upstream"
)

const eventsFile = "events.db"

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

// loadConfig loads --config, or the discovered file. A missing file means
// defaults plus environment.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Discover()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// app bundles the components shared by the daemon and the local commands.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	store        *jobs.Store
	categories   *jobs.CategoryStore
	client       *upstream.TorBoxClient
	manager      *jobs.Manager
	materializer *strm.Materializer

	// history is only set by openLocal.
	history *events.EventLog
}

// newApp wires the stores, the upstream client and the materializer. The
// storage directory must already exist.
func newApp(cfg *config.Config, log *slog.Logger, bus events.Publisher) *app {
	store := jobs.NewStore(cfg.Storage.Dir, log)
	categories := jobs.NewCategoryStore(cfg.Storage.Dir, defaultCategories(cfg), log)
	client := upstream.NewTorBoxClient(cfg.TorBox.URL, cfg.TorBox.APIKey, upstream.TorBoxOptions{
		Timeout:    cfg.TorBox.Timeout,
		Retries:    cfg.TorBox.RetryCount(),
		RetryDelay: cfg.TorBox.RetryDelay,
		Permalinks: cfg.TorBox.PermalinksEnabled(),
	}, log)

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		categories: categories,
		client:     client,
		manager:    jobs.NewManager(store, categories, client, bus, log),
		materializer: strm.NewMaterializer(layoutFor(cfg), categories, strm.Options{
			Extensions: cfg.Library.Extensions,
			UID:        cfg.Library.PUID,
			GID:        cfg.Library.PGID,
		}, log),
	}
}

// openLocal builds an app for a one-shot command. Events it produces are
// recorded in the shared history; the returned func releases everything.
func openLocal(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(os.Stderr, "warn")

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create storage dir: %w", err)
	}
	eventLog, err := events.OpenEventLog(ctx, eventsPath(cfg))
	if err != nil {
		return nil, nil, err
	}
	bus := events.NewBus(eventLog, log)

	a := newApp(cfg, log, bus)
	a.history = eventLog
	return a, func() {
		_ = bus.Close()
		_ = eventLog.Close()
	}, nil
}

func eventsPath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.Dir, eventsFile)
}

func layoutFor(cfg *config.Config) strm.Layout {
	return strm.Layout{
		TVRoot:     cfg.Library.TVRoot,
		MoviesRoot: cfg.Library.MoviesRoot,
		TVCategory: cfg.Library.TVCategory,
	}
}

// defaultCategories seeds categories.json on first use.
func defaultCategories(cfg *config.Config) jobs.Categories {
	return jobs.Categories{
		cfg.Library.TVCategory:     {SavePath: cfg.Library.TVRoot},
		cfg.Library.MoviesCategory: {SavePath: cfg.Library.MoviesRoot},
	}
}
