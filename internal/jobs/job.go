// Package jobs holds the job model, its persisted store and the operations
// clients use to create and manage jobs.
package jobs

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/vmunix/autostrm/internal/upstream"
)

// Job is one submission tracked from upload to materialized pointer files.
type Job struct {
	ID            string           `json:"hash"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	InputKind     InputKind        `json:"input_type"`
	InputValue    string           `json:"input_value"`
	TaskHandle    *upstream.Handle `json:"torbox_task_id"`
	State         State            `json:"state"`
	Progress      float64          `json:"progress"`
	Size          int64            `json:"size"`
	DownloadSpeed int64            `json:"dlspeed"`
	UploadSpeed   int64            `json:"upspeed"`
	ETA           int64            `json:"eta"`
	AddedOn       int64            `json:"added_on"`
	CreatedAt     time.Time        `json:"created_at"`
	DeletedAt     int64            `json:"deleted_at,omitempty"`
	Error         string           `json:"error,omitempty"`
	Files         []string         `json:"files,omitempty"`

	// extra holds keys this version does not know about.
	extra map[string]json.RawMessage
}

// knownJobKeys are the JSON keys owned by Job's fields.
var knownJobKeys = map[string]bool{
	"hash": true, "name": true, "category": true, "input_type": true,
	"input_value": true, "torbox_task_id": true, "state": true, "progress": true,
	"size": true, "dlspeed": true, "upspeed": true, "eta": true, "added_on": true,
	"created_at": true, "deleted_at": true, "error": true, "files": true,
}

// NewJob returns a queued job with no handle yet.
func NewJob(name, category string, kind InputKind, value string, now time.Time) *Job {
	return &Job{
		Name:       name,
		Category:   category,
		InputKind:  kind,
		InputValue: value,
		State:      StateQueued,
		ETA:        -1,
		AddedOn:    now.Unix(),
		CreatedAt:  now.UTC(),
	}
}

// DeriveID returns the SHA-1 job id for the given inputs. attempt is only
// non-zero when an earlier derivation collided.
func DeriveID(name, category string, kind InputKind, createdAt time.Time, attempt int) string {
	seed := fmt.Sprintf("%s-%s-%d-%s", name, category, createdAt.UnixNano(), kind)
	if attempt > 0 {
		seed = fmt.Sprintf("%s-%d", seed, attempt)
	}
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ClampProgress limits p to [0, 1].
func ClampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// SetProgress stores p clamped to [0, 1].
func (j *Job) SetProgress(p float64) {
	j.Progress = ClampProgress(p)
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.TaskHandle != nil {
		h := *j.TaskHandle
		c.TaskHandle = &h
	}
	c.Files = slices.Clone(j.Files)
	c.extra = maps.Clone(j.extra)
	return &c
}

type jobJSON Job

// MarshalJSON writes the known fields followed by any preserved unknown keys.
func (j *Job) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*jobJSON)(j))
	if err != nil {
		return nil, err
	}
	if len(j.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range j.extra {
		if !knownJobKeys[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads a job, keeping unknown keys and tolerating records
// written before created_at existed.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded jobJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*j = Job(decoded)
	j.Progress = ClampProgress(j.Progress)
	if j.State == "" {
		j.State = StateQueued
	}
	if j.CreatedAt.IsZero() && j.AddedOn > 0 {
		j.CreatedAt = time.Unix(j.AddedOn, 0).UTC()
	}
	if j.TaskHandle != nil && j.TaskHandle.IsZero() {
		j.TaskHandle = nil
	}

	for k, v := range raw {
		if knownJobKeys[k] {
			continue
		}
		if j.extra == nil {
			j.extra = make(map[string]json.RawMessage)
		}
		j.extra[k] = v
	}
	return nil
}
