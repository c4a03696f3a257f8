// Package upstream talks to the debrid service that does the actual fetching.
package upstream

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// State is the closed set of upstream states. The zero value means the
// service reported something outside the known vocabulary.
type State string

const (
	StateUnknown     State = ""
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateReady       State = "ready"
	StateError       State = "error"
)

// Status is a single observation of an upstream task. Telemetry fields are
// nil when the service did not report them.
type Status struct {
	State         State
	Raw           string
	Progress      *float64
	Size          *int64
	DownloadSpeed *int64
	UploadSpeed   *int64
	ETA           *int64
}

// Recognized reports whether the raw status mapped into the closed set.
func (s *Status) Recognized() bool {
	return s.State != StateUnknown
}

// Check returns ErrUnrecognizedState, naming the raw value, when the status
// did not map into the closed set.
func (s *Status) Check() error {
	if s.Recognized() {
		return nil
	}
	return fmt.Errorf("%q: %w", s.Raw, ErrUnrecognizedState)
}

// File is one produced output of a finished task.
type File struct {
	ID        string
	Path      string
	Size      int64
	StreamURL string
}

// Ext returns the lowercased extension of the file path, including the dot.
func (f File) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// Submission is a new task: either a magnet URI or raw .torrent bytes.
type Submission struct {
	Magnet  string
	Torrent []byte
	Name    string
}

// Client is the contract the rest of the system needs from the debrid service.
type Client interface {
	// Submit creates a task and returns its handle.
	Submit(ctx context.Context, sub Submission) (Handle, error)
	// QueryStatus returns the current status. Errors wrap ErrTransient or ErrNotFound.
	QueryStatus(ctx context.Context, h Handle) (*Status, error)
	// ListFiles returns the produced files of a ready task.
	ListFiles(ctx context.Context, h Handle) ([]File, error)
	// Cancel asks the service to drop the task. It reports whether that succeeded.
	Cancel(ctx context.Context, h Handle) bool
}

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/vmunix/autostrm/internal/upstream Client
