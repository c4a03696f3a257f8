// Package server supervises the long-running daemon components.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = 24 * time.Hour
)

// Component is a background loop owned by the runner.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

// Pruner drops old history.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config for the daemon.
type Config struct {
	Addr      string
	Retention time.Duration
}

// Runner manages the daemon components.
type Runner struct {
	config     Config
	handler    http.Handler
	pruner     Pruner
	components []Component
	logger     *slog.Logger

	// listen is swapped in tests.
	listen func(network, addr string) (net.Listener, error)
}

// NewRunner creates a new runner. pruner may be nil.
func NewRunner(cfg Config, handler http.Handler, pruner Pruner, logger *slog.Logger, components ...Component) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		config:     cfg,
		handler:    handler,
		pruner:     pruner,
		components: components,
		logger:     logger.With("component", "runner"),
		listen:     net.Listen,
	}
}

// Run starts every component and the HTTP server.
// It blocks until the context is canceled or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	ln, err := r.listen("tcp", r.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.config.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, c := range r.components {
		g.Go(func() error {
			r.logger.Debug("component starting", "name", c.Name())
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", c.Name(), err)
			}
			return nil
		})
	}

	if r.pruner != nil && r.config.Retention > 0 {
		g.Go(func() error {
			r.pruneLoop(ctx)
			return nil
		})
	}

	srv := &http.Server{Handler: r.handler, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		r.logger.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (r *Runner) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Runner) prune(ctx context.Context) {
	n, err := r.pruner.Prune(ctx, r.config.Retention)
	if err != nil {
		r.logger.Error("event prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("events pruned", "count", n, "retention", r.config.Retention)
	}
}
