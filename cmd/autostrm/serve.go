package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmunix/autostrm/internal/api/qbit"
	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/reconcile"
	"github.com/vmunix/autostrm/internal/refresh"
	"github.com/vmunix/autostrm/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	Long:  "Runs the reconcile loop, the qBittorrent-compatible API and, when configured, Jellyfin library refreshes.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	eventLog, err := events.OpenEventLog(ctx, eventsPath(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = eventLog.Close() }()

	bus := events.NewBus(eventLog, logger)
	defer func() { _ = bus.Close() }()

	a := newApp(cfg, logger, bus)

	reconciler := reconcile.New(a.store, a.client, a.materializer, bus, reconcile.Config{
		MinInterval: cfg.Reconcile.MinInterval,
		MaxInterval: cfg.Reconcile.MaxInterval,
		Factor:      cfg.Reconcile.Factor,
		Monotonic:   cfg.Reconcile.Monotonic,
	}, logger)
	components := []server.Component{reconciler}

	if cfg.Jellyfin.URL != "" {
		jf := refresh.NewClientWithPathMapping(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey,
			cfg.Jellyfin.LocalPath, cfg.Jellyfin.RemotePath, logger)
		components = append(components, refresh.NewRefresher(jf, bus, cfg.Jellyfin.Debounce, logger))
	} else {
		logger.Info("jellyfin not configured, library refresh disabled")
	}

	api := qbit.New(a.manager, a.materializer, qbit.Config{
		Username:       cfg.Auth.Username,
		Password:       cfg.Auth.Password,
		TVCategory:     cfg.Library.TVCategory,
		MoviesCategory: cfg.Library.MoviesCategory,
	}, logger)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	runner := server.NewRunner(server.Config{
		Addr:      addr,
		Retention: cfg.Events.Retention,
	}, server.NewHandler(logger, cfg.Metrics.Enabled, api), eventLog, logger, components...)

	logger.Info("autostrm starting",
		"version", version,
		"addr", addr,
		"storage", cfg.Storage.Dir,
		"tv_root", cfg.Library.TVRoot,
		"movies_root", cfg.Library.MoviesRoot,
		"metrics", cfg.Metrics.Enabled,
	)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("autostrm stopped")
	return nil
}
