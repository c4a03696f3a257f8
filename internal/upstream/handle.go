package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HandleKind says which identifier the service gave us for a task.
type HandleKind string

const (
	KindTorrentID HandleKind = "torrent_id"
	KindQueuedID  HandleKind = "queued_id"
	KindHash      HandleKind = "hash"
)

// Handle is an opaque reference to a task on the service. Hash is kept
// alongside a torrent or queue id when the service reported one, so the task
// can still be found after it leaves the queue.
type Handle struct {
	Kind  HandleKind `json:"kind"`
	Value string     `json:"value"`
	Hash  string     `json:"hash,omitempty"`
}

func (h Handle) String() string {
	return string(h.Kind) + ":" + h.Value
}

// IsZero reports whether the handle is empty.
func (h Handle) IsZero() bool {
	return h.Value == ""
}

// HandleFromScalar classifies a bare identifier: all digits is a torrent id,
// 16 to 64 hex characters a hash, anything else a queue id.
func HandleFromScalar(s string) Handle {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Handle{}
	case isDigits(s):
		return Handle{Kind: KindTorrentID, Value: s}
	case isHexHash(s):
		return Handle{Kind: KindHash, Value: strings.ToLower(s)}
	default:
		return Handle{Kind: KindQueuedID, Value: s}
	}
}

// UnmarshalJSON accepts the object form as well as bare numbers and strings
// written by older state files.
func (h *Handle) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = Handle{}
		return nil
	}

	switch data[0] {
	case '{':
		type plain Handle
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*h = Handle(p)
		if h.Kind == "" {
			*h = HandleFromScalar(h.Value)
		}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = HandleFromScalar(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode handle: %w", err)
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return fmt.Errorf("decode handle: non-integer id %s", n)
		}
		*h = Handle{Kind: KindTorrentID, Value: n.String()}
		return nil
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isHexHash(s string) bool {
	if len(s) < 16 || len(s) > 64 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
