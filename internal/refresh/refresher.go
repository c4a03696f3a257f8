package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/vmunix/autostrm/internal/events"
)

// fullRefresh keys a pending refresh of every library.
const fullRefresh = ""

const defaultRetryDelay = 60 * time.Second

// Server is the media server API the refresher drives.
type Server interface {
	Libraries(ctx context.Context) ([]Library, error)
	RefreshLibrary(ctx context.Context, id string) error
	LibraryFor(libs []Library, path string) (string, bool)
}

// Subscriber is the part of the event bus the refresher listens on.
type Subscriber interface {
	Subscribe(bufferSize int, eventTypes ...string) <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Refresher turns materialization events into debounced library refreshes.
type Refresher struct {
	server     Server
	bus        Subscriber
	debounce   time.Duration
	retryDelay time.Duration
	log        *slog.Logger

	pending map[string]time.Time
}

// NewRefresher creates a refresher.
func NewRefresher(server Server, bus Subscriber, debounce time.Duration, log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{
		server:     server,
		bus:        bus,
		debounce:   debounce,
		retryDelay: defaultRetryDelay,
		log:        log.With("component", "refresher"),
		pending:    make(map[string]time.Time),
	}
}

// Name returns the component name.
func (r *Refresher) Name() string {
	return "refresher"
}

// Run listens for materializations until ctx is canceled. Refreshes still
// pending at shutdown are dropped.
func (r *Refresher) Run(ctx context.Context) error {
	ch := r.bus.Subscribe(64, events.EventJobMaterialized)
	defer r.bus.Unsubscribe(ch)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(r.pending) > 0 {
				r.log.Info("dropping pending refreshes", "count", len(r.pending))
			}
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if m, isMat := e.(*events.JobMaterialized); isMat {
				r.schedule(ctx, m)
			}
		case <-timer.C:
			r.flush(ctx)
		}

		if next, ok := r.nextDue(); ok {
			timer.Reset(max(time.Until(next), 0))
		} else {
			timer.Stop()
		}
	}
}

// schedule pushes back the refresh of every library touched by e.
func (r *Refresher) schedule(ctx context.Context, e *events.JobMaterialized) {
	due := time.Now().Add(r.debounce)

	libs, err := r.server.Libraries(ctx)
	if err != nil {
		r.log.Warn("listing libraries failed, scheduling full refresh", "error", err)
		r.pending[fullRefresh] = due
		return
	}

	paths := e.Paths
	if len(paths) == 0 && e.Root != "" {
		paths = []string{e.Root}
	}
	for _, p := range paths {
		id, ok := r.server.LibraryFor(libs, p)
		if !ok {
			id = fullRefresh
		}
		r.pending[id] = due
		r.log.Debug("refresh scheduled", "library", id, "path", p, "in", r.debounce)
	}
}

// flush refreshes every library whose debounce window has passed. Failures
// are retried after retryDelay.
func (r *Refresher) flush(ctx context.Context) {
	now := time.Now()
	for id, due := range r.pending {
		if now.Before(due) {
			continue
		}
		if err := r.server.RefreshLibrary(ctx, id); err != nil {
			r.log.Error("library refresh failed", "library", id, "error", err)
			r.pending[id] = now.Add(r.retryDelay)
			continue
		}
		r.log.Info("library refreshed", "library", id)
		delete(r.pending, id)
	}
}

func (r *Refresher) nextDue() (time.Time, bool) {
	var next time.Time
	for _, due := range r.pending {
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	return next, !next.IsZero()
}
