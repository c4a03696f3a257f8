package jobs

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// JobSet is the whole persisted collection of jobs.
type JobSet struct {
	Jobs map[string]*Job

	// extra holds top-level keys other than "jobs".
	extra map[string]json.RawMessage
}

// NewJobSet returns an empty set.
func NewJobSet() *JobSet {
	return &JobSet{Jobs: make(map[string]*Job)}
}

// Get returns the job with the given id.
func (s *JobSet) Get(id string) (*Job, bool) {
	j, ok := s.Jobs[id]
	return j, ok
}

// Put inserts or replaces a job.
func (s *JobSet) Put(j *Job) {
	s.Jobs[j.ID] = j
}

// Len returns the number of jobs, deleted ones included.
func (s *JobSet) Len() int {
	return len(s.Jobs)
}

// Ordered returns the jobs sorted by creation time, then id.
func (s *JobSet) Ordered() []*Job {
	out := slices.Collect(maps.Values(s.Jobs))
	slices.SortFunc(out, func(a, b *Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Clone returns a deep copy of the set.
func (s *JobSet) Clone() *JobSet {
	c := &JobSet{
		Jobs:  make(map[string]*Job, len(s.Jobs)),
		extra: maps.Clone(s.extra),
	}
	for id, j := range s.Jobs {
		c.Jobs[id] = j.Clone()
	}
	return c
}

// MarshalJSON writes {"jobs": {...}} plus preserved top-level keys.
func (s *JobSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+1)
	for k, v := range s.extra {
		out[k] = v
	}
	jobs := s.Jobs
	if jobs == nil {
		jobs = map[string]*Job{}
	}
	out["jobs"] = jobs
	return json.Marshal(out)
}

// UnmarshalJSON reads the persisted form. Jobs missing an id inside the
// record take it from their map key.
func (s *JobSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Jobs = make(map[string]*Job)
	if js, ok := raw["jobs"]; ok && string(js) != "null" {
		var jobs map[string]*Job
		if err := json.Unmarshal(js, &jobs); err != nil {
			return err
		}
		for key, j := range jobs {
			if j == nil {
				continue
			}
			if j.ID == "" {
				j.ID = key
			}
			s.Jobs[j.ID] = j
		}
	}
	delete(raw, "jobs")
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}
