package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vmunix/autostrm/internal/metrics"
)

// Routes is anything that mounts handlers on a mux.
type Routes interface {
	RegisterRoutes(mux *http.ServeMux)
}

// NewHandler builds the daemon's HTTP handler: the given routes plus
// /healthz and, when enabled, /metrics, wrapped in request logging.
func NewHandler(log *slog.Logger, withMetrics bool, routes ...Routes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if withMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	for _, r := range routes {
		r.RegisterRoutes(mux)
	}
	return logRequests(mux, log)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 200 { // Only capture first WriteHeader call
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		log.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
