package jobs

import (
	"context"
	"log/slog"
	"path/filepath"
)

// StateFile is the name of the persisted job set inside the state directory.
const StateFile = "state.json"

// Store persists the job set as one JSON document. Every read returns the
// whole collection and every write replaces it.
type Store struct {
	file *jsonFile
	log  *slog.Logger
}

// NewStore creates a store backed by dir/state.json.
func NewStore(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		file: newJSONFile(filepath.Join(dir, StateFile)),
		log:  log.With("component", "store"),
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.file.path
}

// Load returns a snapshot of the job set. A missing file is an empty set.
func (s *Store) Load(ctx context.Context) (*JobSet, error) {
	set := NewJobSet()
	err := s.file.with(ctx, false, func() error {
		_, err := s.file.read(set)
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Save replaces the persisted job set.
func (s *Store) Save(ctx context.Context, set *JobSet) error {
	return s.file.with(ctx, true, func() error {
		return s.file.write(set)
	})
}

// Update loads the set, applies fn and persists the result when fn reports
// a change, all inside one critical section.
func (s *Store) Update(ctx context.Context, fn func(*JobSet) (bool, error)) error {
	return s.file.with(ctx, true, func() error {
		set := NewJobSet()
		if _, err := s.file.read(set); err != nil {
			return err
		}
		changed, err := fn(set)
		if err != nil || !changed {
			return err
		}
		s.log.Debug("saving job set", "jobs", set.Len())
		return s.file.write(set)
	})
}
