// Package refresh tells the media server to rescan libraries after pointer
// files have been written.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRefreshFailed is returned when the media server rejects a refresh.
var ErrRefreshFailed = errors.New("library refresh failed")

// Library is one Jellyfin virtual folder.
type Library struct {
	ID             string   `json:"ItemId"`
	Name           string   `json:"Name"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

// Client interacts with the Jellyfin HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	remotePath string // path prefix as seen by Jellyfin
	localPath  string // corresponding local path
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Jellyfin client.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	return NewClientWithPathMapping(baseURL, apiKey, "", "", log)
}

// NewClientWithPathMapping creates a Jellyfin client with path translation.
// localPath is the path on this machine, remotePath is how Jellyfin sees it.
func NewClientWithPathMapping(baseURL, apiKey, localPath, remotePath string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		localPath:  localPath,
		remotePath: remotePath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With("component", "jellyfin"),
	}
}

// TranslateToRemote converts a local path to the path Jellyfin expects.
func (c *Client) TranslateToRemote(path string) string {
	if c.localPath == "" || c.remotePath == "" {
		return path
	}
	if strings.HasPrefix(path, c.localPath) {
		return c.remotePath + path[len(c.localPath):]
	}
	return path
}

// Libraries returns all virtual folders.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Library/VirtualFolders", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var libs []Library
	if err := json.NewDecoder(resp.Body).Decode(&libs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return libs, nil
}

// RefreshLibrary starts a scan of one library, or of everything when id is
// empty.
func (c *Client) RefreshLibrary(ctx context.Context, id string) error {
	u := c.baseURL + "/Library/Refresh"
	if id != "" {
		u += "?" + url.Values{"Ids": {id}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	c.log.Debug("refresh triggered", "library", id, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Emby-Token", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrRefreshFailed, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

// LibraryFor returns the id of the library whose location most specifically
// contains path, after translation to Jellyfin's view.
func (c *Client) LibraryFor(libs []Library, path string) (string, bool) {
	remote := c.TranslateToRemote(path)
	best, bestLen := "", -1
	for _, lib := range libs {
		for _, loc := range lib.Locations {
			loc = strings.TrimRight(loc, "/")
			if loc == "" || (remote != loc && !strings.HasPrefix(remote, loc+"/")) {
				continue
			}
			if len(loc) > bestLen {
				best, bestLen = lib.ID, len(loc)
			}
		}
	}
	return best, bestLen >= 0
}
