// Package qbit implements enough of the qBittorrent WebUI API v2 for Sonarr
// and Radarr to use autostrm as a download client.
package qbit

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/vmunix/autostrm/internal/jobs"
)

const (
	appVersion    = "v4.6.0"
	webAPIVersion = "2.8.19"
	sidCookie     = "SID"
	maxUpload     = 32 << 20
)

// Jobs is the control surface the API maps onto.
type Jobs interface {
	CreateJob(ctx context.Context, req jobs.CreateRequest) (*jobs.Job, error)
	ListJobs(ctx context.Context, f jobs.Filter) ([]*jobs.Job, error)
	DeleteJob(ctx context.Context, id string, purgeFiles bool) error
	PauseJob(ctx context.Context, id string) error
	ResumeJob(ctx context.Context, id string) error
	Categories(ctx context.Context) (jobs.Categories, error)
	SetCategory(ctx context.Context, name, savePath string) error
}

// Roots resolves the library root a category writes into.
type Roots interface {
	Root(ctx context.Context, category string) string
}

// Config holds API server configuration.
type Config struct {
	Username       string
	Password       string
	TVCategory     string
	MoviesCategory string
}

// Server serves the qBittorrent-compatible API.
type Server struct {
	jobs     Jobs
	roots    Roots
	cfg      Config
	sessions *sessions
	log      *slog.Logger
}

// New creates a new compatibility server.
func New(j Jobs, roots Roots, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		jobs:     j,
		roots:    roots,
		cfg:      cfg,
		sessions: newSessions(sessionTimeout),
		log:      log.With("component", "qbit"),
	}
}

// RegisterRoutes registers compatibility API routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v2/auth/login", s.login)
	mux.HandleFunc("POST /api/v2/auth/logout", s.logout)

	mux.HandleFunc("GET /api/v2/app/version", s.version)
	mux.HandleFunc("GET /api/v2/app/webapiVersion", s.webAPIVersion)
	mux.HandleFunc("GET /api/v2/app/buildInfo", s.buildInfo)
	mux.HandleFunc("GET /api/v2/app/defaultSavePath", s.defaultSavePath)
	mux.HandleFunc("GET /api/v2/app/preferences", s.preferences)

	mux.HandleFunc("GET /api/v2/torrents/categories", s.authMiddleware(s.listCategories))
	mux.HandleFunc("POST /api/v2/torrents/createCategory", s.authMiddleware(s.createCategory))
	mux.HandleFunc("POST /api/v2/torrents/editCategory", s.authMiddleware(s.createCategory))
	mux.HandleFunc("POST /api/v2/torrents/add", s.authMiddleware(s.addTorrents))
	mux.HandleFunc("GET /api/v2/torrents/info", s.authMiddleware(s.listTorrents))
	mux.HandleFunc("POST /api/v2/torrents/delete", s.authMiddleware(s.deleteTorrents))
	mux.HandleFunc("POST /api/v2/torrents/pause", s.authMiddleware(s.pauseTorrents))
	mux.HandleFunc("POST /api/v2/torrents/resume", s.authMiddleware(s.resumeTorrents))
	mux.HandleFunc("POST /api/v2/torrents/stop", s.authMiddleware(s.pauseTorrents))
	mux.HandleFunc("POST /api/v2/torrents/start", s.authMiddleware(s.resumeTorrents))

	mux.HandleFunc("GET /api/v2/sync/maindata", s.authMiddleware(s.mainData))
}

// authMiddleware requires a live SID cookie.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sidCookie)
		if err != nil || !s.sessions.valid(c.Value) {
			writeText(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue("username")
	pass := r.FormValue("password")

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) == 1
	if !userOK || !passOK {
		s.log.Warn("login rejected", "username", user, "remote", r.RemoteAddr)
		writeText(w, http.StatusForbidden, "Fails.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sidCookie,
		Value:    s.sessions.issue(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeText(w, http.StatusOK, "Ok.")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sidCookie); err == nil {
		s.sessions.revoke(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sidCookie, Value: "", Path: "/", MaxAge: -1})
	writeText(w, http.StatusOK, "Ok.")
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, appVersion)
}

func (s *Server) webAPIVersion(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, webAPIVersion)
}

func (s *Server) buildInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"qt":         "6.5.2",
		"libtorrent": "2.0.9.0",
		"boost":      "1.83.0",
		"openssl":    "3.1.2",
		"bitness":    64,
	})
}

func (s *Server) defaultSavePath(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, s.roots.Root(r.Context(), s.cfg.MoviesCategory))
}

func (s *Server) preferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locale":               "en_US",
		"save_path":            s.roots.Root(r.Context(), s.cfg.MoviesCategory),
		"save_path_enabled":    true,
		"temp_path_enabled":    false,
		"append_extension":     false,
		"autorun_enabled":      false,
		"use_https":            false,
		"web_ui_username":      s.cfg.Username,
		"web_ui_password_less": false,
		"queueing_enabled":     false,
		"max_ratio_enabled":    false,
		"max_seeding_time":     -1,
	})
}
