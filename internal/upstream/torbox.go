package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmunix/autostrm/internal/metrics"
)

const (
	createPath        = "/v1/api/torrents/asynccreatetorrent"
	listPath          = "/v1/api/torrents/mylist"
	controlPath       = "/v1/api/torrents/controltorrent"
	requestDLPath     = "/v1/api/torrents/requestdl"
	queuedListPath    = "/v1/api/queued/getqueued"
	queuedControlPath = "/v1/api/queued/controlqueued"
)

var streamURLKeys = []string{"stream_url", "streamUrl", "url", "download_url", "link"}

// TorBoxOptions tunes the HTTP behaviour of the client.
type TorBoxOptions struct {
	Timeout    time.Duration
	Retries    int           // extra attempts for idempotent reads
	RetryDelay time.Duration // grows linearly with each attempt
	Permalinks bool          // build requestdl links for files without a stream URL
}

// TorBoxClient implements Client against the TorBox API.
type TorBoxClient struct {
	baseURL    string
	apiKey     string
	opts       TorBoxOptions
	httpClient *http.Client
	log        *slog.Logger
}

var _ Client = (*TorBoxClient)(nil)

// NewTorBoxClient creates a new TorBox client.
func NewTorBoxClient(baseURL, apiKey string, opts TorBoxOptions, log *slog.Logger) *TorBoxClient {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if apiKey == "" {
		log.Warn("torbox api key not set; upstream calls will fail")
	}
	return &TorBoxClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		opts:    opts,
		log:     log.With("component", "torbox"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Submit creates a torrent from a magnet URI or .torrent bytes.
func (c *TorBoxClient) Submit(ctx context.Context, sub Submission) (h Handle, err error) {
	defer func() { metrics.ObserveUpstream("submit", resultClass(err)) }()

	body, contentType, err := submissionForm(sub)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	c.log.Info("creating torrent", "name", sub.Name, "upload", len(sub.Torrent) > 0)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createPath, body)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	obj, err := decodeObject(resp)
	if err == nil {
		if ok, present := obj.boolean("success"); present && !ok {
			detail, _ := obj.str("detail", "error")
			return Handle{}, fmt.Errorf("%w: %s", ErrSubmissionFailed, detail)
		}
	}

	h, err = ExtractHandle(resp)
	if err != nil {
		c.log.Warn("could not determine task id from creation response", "body", truncate(resp, 500))
		return Handle{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	c.log.Debug("torrent created", "handle", h.String())
	return h, nil
}

// QueryStatus fetches the current state of the task behind h.
func (c *TorBoxClient) QueryStatus(ctx context.Context, h Handle) (st *Status, err error) {
	defer func() { metrics.ObserveUpstream("status", resultClass(err)) }()

	item, err := c.findItem(ctx, h)
	if errors.Is(err, ErrNotFound) && h.Kind == KindQueuedID {
		return c.queuedStatus(ctx, h)
	}
	if err != nil {
		return nil, err
	}
	return statusFromItem(item), nil
}

// ListFiles returns the files of a finished task with their playback links.
func (c *TorBoxClient) ListFiles(ctx context.Context, h Handle) (files []File, err error) {
	defer func() { metrics.ObserveUpstream("files", resultClass(err)) }()

	item, err := c.findItem(ctx, h)
	if err != nil {
		return nil, err
	}

	torrentID, _ := item.str("id", "torrent_id", "torrentId")
	raw, _ := item["files"].([]any)
	for _, it := range toObjects(raw) {
		f := File{}
		f.ID, _ = it.str("id", "file_id")
		f.Path, _ = it.str("name", "path", "short_name")
		if size := it.integer("size"); size != nil {
			f.Size = *size
		}
		f.StreamURL, _ = it.str(streamURLKeys...)
		if f.StreamURL == "" && c.opts.Permalinks && torrentID != "" && f.ID != "" {
			f.StreamURL = c.permalink(torrentID, f.ID)
		}
		files = append(files, f)
	}
	return files, nil
}

// Cancel deletes the task on the service. Hashes are resolved to torrent ids
// through the listing first. Failures are logged and reported as false.
func (c *TorBoxClient) Cancel(ctx context.Context, h Handle) (ok bool) {
	defer func() {
		result := "ok"
		if !ok {
			result = "error"
		}
		metrics.ObserveUpstream("cancel", result)
	}()

	var (
		path    = controlPath
		payload = map[string]any{"operation": "delete"}
	)

	switch h.Kind {
	case KindTorrentID:
		payload["torrent_id"] = jsonID(h.Value)
	case KindQueuedID:
		// A task promoted out of the queue is only reachable by its hash.
		if id, found := c.promotedID(ctx, h); found {
			payload["torrent_id"] = jsonID(id)
			break
		}
		path = queuedControlPath
		payload["queued_id"] = jsonID(h.Value)
	case KindHash:
		item, err := c.findItem(ctx, h)
		if err != nil {
			c.log.Warn("cancel could not resolve hash", "hash", h.Value, "error", err)
			return false
		}
		id, found := item.str("id", "torrent_id")
		if !found {
			c.log.Warn("cancel could not resolve hash", "hash", h.Value)
			return false
		}
		payload["torrent_id"] = jsonID(id)
	default:
		c.log.Warn("cancel with unusable handle", "handle", h.String())
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		c.log.Error("cancel failed", "handle", h.String(), "error", err)
		return false
	}
	c.log.Debug("task cancelled", "handle", h.String())
	return true
}

// findItem locates the listing entry for h. Torrent ids are fetched directly;
// other handles require scanning the full listing.
func (c *TorBoxClient) findItem(ctx context.Context, h Handle) (object, error) {
	params := url.Values{"bypass_cache": {"true"}}
	if h.Kind == KindTorrentID {
		params.Set("id", h.Value)
	}

	body, err := c.get(ctx, listPath, params)
	if err != nil {
		return nil, err
	}
	list, err := items(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}

	for _, it := range list {
		if matches(it, h) {
			return it, nil
		}
	}
	// A direct id lookup may return an item without echoing the id back.
	if h.Kind == KindTorrentID && len(list) == 1 {
		if _, hasID := list[0].str(torrentIDKeys...); !hasID {
			return list[0], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", h, ErrNotFound)
}

// promotedID returns the torrent id of a queued task that has since been
// moved into the main listing.
func (c *TorBoxClient) promotedID(ctx context.Context, h Handle) (string, bool) {
	if h.Hash == "" {
		return "", false
	}
	item, err := c.findItem(ctx, h)
	if err != nil {
		return "", false
	}
	return item.str("id", "torrent_id")
}

// queuedStatus looks a task up in the service's queue, where torrents wait
// before they are assigned a torrent id.
func (c *TorBoxClient) queuedStatus(ctx context.Context, h Handle) (*Status, error) {
	body, err := c.get(ctx, queuedListPath, url.Values{"id": {h.Value}, "bypass_cache": {"true"}})
	if err != nil {
		return nil, err
	}
	list, err := items(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}
	for _, it := range list {
		if id, ok := it.str("id", "queued_id"); ok && id == h.Value {
			return &Status{State: StateQueued, Raw: "queued"}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", h, ErrNotFound)
}

// matches reports whether a listing item is the task behind h. A queue
// handle also matches on its remembered hash.
func matches(it object, h Handle) bool {
	switch h.Kind {
	case KindTorrentID:
		id, ok := it.str(torrentIDKeys...)
		return ok && id == h.Value
	case KindQueuedID:
		if id, ok := it.str(queuedIDKeys...); ok && id == h.Value {
			return true
		}
		return h.Hash != "" && hashMatches(it, h.Hash)
	case KindHash:
		return hashMatches(it, h.Value)
	}
	return false
}

func hashMatches(it object, hash string) bool {
	v, ok := it.str(hashKeys...)
	return ok && strings.EqualFold(v, hash)
}

func statusFromItem(it object) *Status {
	raw, _ := it.str("download_state", "status", "state")
	st, ok := NormalizeState(raw)
	if !ok {
		finished, _ := it.boolean("download_finished")
		present, _ := it.boolean("download_present")
		if finished && present {
			st = StateReady
		}
	}
	return &Status{
		State:         st,
		Raw:           raw,
		Progress:      it.number("progress"),
		Size:          it.integer("size"),
		DownloadSpeed: it.integer("download_speed", "dlspeed"),
		UploadSpeed:   it.integer("upload_speed", "upspeed"),
		ETA:           it.integer("eta"),
	}
}

func (c *TorBoxClient) permalink(torrentID, fileID string) string {
	q := url.Values{
		"token":      {c.apiKey},
		"torrent_id": {torrentID},
		"file_id":    {fileID},
		"redirect":   {"true"},
	}
	return c.baseURL + requestDLPath + "?" + q.Encode()
}

// get performs an idempotent GET, retrying transient failures with a
// linearly growing delay.
func (c *TorBoxClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.opts.RetryDelay
			c.log.Debug("retrying request", "path", path, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		body, err := c.do(req)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// do sends the request with auth headers and classifies the response.
func (c *TorBoxClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("HTTP %d for %s: %s", resp.StatusCode, req.URL.Path, truncate(body, 200))
	}
}

func submissionForm(sub Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	switch {
	case len(sub.Torrent) > 0:
		part, err := w.CreateFormFile("file", "upload.torrent")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(sub.Torrent); err != nil {
			return nil, "", err
		}
	case sub.Magnet != "":
		if err := w.WriteField("magnet", sub.Magnet); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", errors.New("submission needs a magnet or torrent file")
	}

	if sub.Name != "" {
		if err := w.WriteField("name", sub.Name); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// jsonID sends numeric ids as numbers, which the control endpoints expect.
func jsonID(v string) any {
	if isDigits(v) {
		return json.Number(v)
	}
	return v
}

func resultClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
