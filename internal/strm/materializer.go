package strm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/upstream"
)

// CategorySource supplies the persisted category mapping.
type CategorySource interface {
	Load(ctx context.Context) (jobs.Categories, error)
}

// Options configures a Materializer.
type Options struct {
	// Extensions is the lowercase video allow-list, dots included.
	Extensions []string
	// UID and GID own written files when non-zero. Failures are ignored.
	UID, GID int
}

// Materializer writes pointer files for ready jobs.
type Materializer struct {
	layout     Layout
	categories CategorySource
	extensions map[string]bool
	uid, gid   int
	log        *slog.Logger
}

// NewMaterializer creates a materializer. categories may be nil, in which
// case only the configured roots are used.
func NewMaterializer(layout Layout, categories CategorySource, opts Options, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Materializer{
		layout:     layout,
		categories: categories,
		extensions: exts,
		uid:        opts.UID,
		gid:        opts.GID,
		log:        log.With("component", "materializer"),
	}
}

// Layout returns the layout with the current category mapping applied.
func (m *Materializer) Layout(ctx context.Context) (Layout, error) {
	l := m.layout
	if m.categories == nil {
		return l, nil
	}
	cats, err := m.categories.Load(ctx)
	if err != nil {
		return l, fmt.Errorf("load categories: %w", err)
	}
	l.Categories = cats
	return l, nil
}

// Playable reports whether f can become a pointer file: it needs a stream
// reference, and an extension, when it has one, must be on the allow-list.
func (m *Materializer) Playable(f upstream.File) bool {
	if strings.TrimSpace(f.StreamURL) == "" {
		return false
	}
	ext := f.Ext()
	if f.Path == "" {
		ext = strings.ToLower(path.Ext(urlPath(f.StreamURL)))
	}
	return ext == "" || m.extensions[ext]
}

// Materialize writes one pointer file per playable file and returns the
// written paths. When several files map to the same path the largest wins.
// Files written before a failure are left in place.
func (m *Materializer) Materialize(ctx context.Context, job *jobs.Job, files []upstream.File) ([]string, error) {
	layout, err := m.Layout(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
	}

	chosen := make(map[string]upstream.File)
	var order []string
	for _, f := range files {
		if !m.Playable(f) {
			m.log.Debug("skipping file", "job", job.ID, "path", f.Path)
			continue
		}
		out, err := layout.OutputPath(job, f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
		}
		prev, seen := chosen[out]
		if !seen {
			order = append(order, out)
		}
		if !seen || f.Size > prev.Size {
			chosen[out] = f
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMaterializationFailed, ErrNoPlayableFiles)
	}

	written := make([]string, 0, len(order))
	for _, out := range order {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
		}
		if err := m.write(out, chosen[out].StreamURL); err != nil {
			return written, fmt.Errorf("%w: %w", ErrMaterializationFailed, err)
		}
		written = append(written, out)
	}

	m.log.Info("pointer files written", "job", job.ID, "name", job.Name, "count", len(written))
	return written, nil
}

// write puts "<url>\n" at path, overwriting any previous content. An
// identical existing file is left untouched.
func (m *Materializer) write(out, streamURL string) error {
	content := []byte(strings.TrimSpace(streamURL) + "\n")

	if existing, err := os.ReadFile(out); err == nil && bytes.Equal(existing, content) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(out, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	if m.uid != 0 || m.gid != 0 {
		if err := os.Lchown(out, m.uid, m.gid); err != nil {
			m.log.Debug("chown failed", "path", out, "error", err)
		}
	}
	return nil
}

// urlPath strips the query and fragment of a URL.
func urlPath(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

// Root returns the library root a category materializes into.
func (m *Materializer) Root(ctx context.Context, category string) string {
	l, err := m.Layout(ctx)
	if err != nil {
		m.log.Warn("using configured roots", "error", err)
	}
	return l.Root(category)
}
