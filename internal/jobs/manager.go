package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/metrics"
	"github.com/vmunix/autostrm/internal/upstream"
)

// fuzzyThreshold is the Jaro-Winkler similarity a name needs to match a query.
const fuzzyThreshold = 0.80

// maxIDAttempts bounds id re-derivation on collision.
const maxIDAttempts = 16

var nameTokens = regexp.MustCompile(`[ ._\-\[\]()]+`)

// CreateRequest describes a new submission. Exactly one of Magnet or Torrent
// carries the payload, matching Kind.
type CreateRequest struct {
	Name     string
	Category string
	Kind     InputKind
	Magnet   string
	Torrent  []byte
}

// Filter narrows ListJobs. Zero values match everything.
type Filter struct {
	States   []State
	Category string
	Query    string
}

// Manager is the control surface over the job store and the upstream client.
type Manager struct {
	store      *Store
	categories *CategoryStore
	client     upstream.Client
	bus        events.Publisher
	now        func() time.Time
	log        *slog.Logger
}

// NewManager creates a manager. bus may be nil.
func NewManager(store *Store, categories *CategoryStore, client upstream.Client, bus events.Publisher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:      store,
		categories: categories,
		client:     client,
		bus:        bus,
		now:        time.Now,
		log:        log.With("component", "jobs"),
	}
}

// CreateJob submits req upstream and records the job. When submission fails
// the job is still stored, in the error state, and returned together with an
// error wrapping upstream.ErrSubmissionFailed.
func (m *Manager) CreateJob(ctx context.Context, req CreateRequest) (*Job, error) {
	sub := upstream.Submission{Name: req.Name}
	switch req.Kind {
	case InputMagnet:
		if strings.TrimSpace(req.Magnet) == "" {
			return nil, fmt.Errorf("%w: magnet is empty", ErrInvalidInput)
		}
		sub.Magnet = strings.TrimSpace(req.Magnet)
		if sub.Name == "" {
			sub.Name = MagnetDisplayName(sub.Magnet)
		}
	case InputTorrent:
		if len(req.Torrent) == 0 {
			return nil, fmt.Errorf("%w: torrent file is empty", ErrInvalidInput)
		}
		sub.Torrent = req.Torrent
		if sub.Name == "" {
			sub.Name = "torrent.torrent"
		}
	default:
		return nil, fmt.Errorf("%w: unknown input kind %q", ErrInvalidInput, req.Kind)
	}

	job := NewJob(sub.Name, req.Category, req.Kind, sub.Magnet, m.now())

	handle, submitErr := m.client.Submit(ctx, sub)
	if submitErr != nil {
		if !errors.Is(submitErr, upstream.ErrSubmissionFailed) {
			submitErr = fmt.Errorf("%w: %w", upstream.ErrSubmissionFailed, submitErr)
		}
		job.State = StateError
		job.Error = submitErr.Error()
	} else {
		job.TaskHandle = &handle
	}

	err := m.store.Update(ctx, func(set *JobSet) (bool, error) {
		for attempt := 0; attempt < maxIDAttempts; attempt++ {
			id := DeriveID(job.Name, job.Category, job.InputKind, job.CreatedAt, attempt)
			if _, taken := set.Get(id); !taken {
				job.ID = id
				set.Put(job)
				return true, nil
			}
		}
		return false, fmt.Errorf("could not derive a unique id for %q", job.Name)
	})
	if err != nil {
		if submitErr == nil {
			// The upstream task exists but we cannot track it.
			m.client.Cancel(context.WithoutCancel(ctx), handle)
		}
		return nil, fmt.Errorf("store job: %w", err)
	}

	metrics.IncTransition(string(job.State))
	created := &events.JobCreated{
		BaseEvent: events.ForJob(events.EventJobCreated, job.ID),
		Name:      job.Name,
		Category:  job.Category,
		Input:     string(job.InputKind),
	}
	if job.TaskHandle != nil {
		created.Handle = job.TaskHandle.String()
	}
	m.publish(ctx, created)

	if submitErr != nil {
		m.log.Error("submission failed", "job", job.ID, "name", job.Name, "error", submitErr)
		m.publish(ctx, &events.JobFailed{
			BaseEvent: events.ForJob(events.EventJobFailed, job.ID),
			Reason:    job.Error,
		})
		return job, submitErr
	}

	m.log.Info("job created", "job", job.ID, "name", job.Name, "category", job.Category, "handle", job.TaskHandle.String())
	return job, nil
}

// GetJob returns one job by id.
func (m *Manager) GetJob(ctx context.Context, id string) (*Job, error) {
	set, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	j, ok := set.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return j, nil
}

// ListJobs returns the jobs matching f in creation order, deleted jobs included.
func (m *Manager) ListJobs(ctx context.Context, f Filter) ([]*Job, error) {
	set, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	var out []*Job
	for _, j := range set.Ordered() {
		if f.matches(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f Filter) matches(j *Job) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, j.State) {
		return false
	}
	if f.Category != "" && f.Category != j.Category {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		return fuzzyMatch(q, j.Name)
	}
	return true
}

// fuzzyMatch accepts substring matches. Otherwise every query token must
// match the name: tokens with digits (episode tags, years) as substrings,
// word tokens by Jaro-Winkler similarity against a name token.
func fuzzyMatch(query, name string) bool {
	q := strings.ToLower(query)
	n := strings.ToLower(name)
	if strings.Contains(n, q) {
		return true
	}

	nameToks := nameTokens.Split(n, -1)
	for _, qt := range nameTokens.Split(q, -1) {
		if qt == "" {
			continue
		}
		if strings.Contains(n, qt) {
			continue
		}
		if strings.ContainsAny(qt, "0123456789") || !similarToAny(qt, nameToks) {
			return false
		}
	}
	return true
}

func similarToAny(tok string, candidates []string) bool {
	for _, c := range candidates {
		if c != "" && edlib.JaroWinklerSimilarity(tok, c) >= fuzzyThreshold {
			return true
		}
	}
	return false
}

// DeleteJob cancels the upstream task on a best-effort basis and marks the
// job deleted. The record itself is kept. purgeFiles is passed on to event
// subscribers only.
func (m *Manager) DeleteJob(ctx context.Context, id string, purgeFiles bool) error {
	current, err := m.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if current.State == StateDeleted {
		return nil
	}

	cancelled := false
	if current.TaskHandle != nil {
		cancelled = m.client.Cancel(ctx, *current.TaskHandle)
		if !cancelled {
			m.log.Warn("upstream cancel failed", "job", id, "handle", current.TaskHandle.String())
		}
	}

	var from State
	err = m.store.Update(ctx, func(set *JobSet) (bool, error) {
		j, ok := set.Get(id)
		if !ok {
			return false, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if j.State == StateDeleted {
			return false, nil
		}
		from = j.State
		j.State = StateDeleted
		j.DeletedAt = m.now().Unix()
		return true, nil
	})
	if err != nil {
		return err
	}
	if from == "" {
		return nil
	}

	m.log.Info("job deleted", "job", id, "from", from, "purge_files", purgeFiles, "cancelled", cancelled)
	m.recordTransition(ctx, id, from, StateDeleted, current.Progress)
	m.publish(ctx, &events.JobDeleted{
		BaseEvent:  events.ForJob(events.EventJobDeleted, id),
		PurgeFiles: purgeFiles,
		Cancelled:  cancelled,
	})
	return nil
}

// PauseJob stops the reconciler from polling a job.
func (m *Manager) PauseJob(ctx context.Context, id string) error {
	return m.setState(ctx, id, StatePaused, func(from State) bool {
		return from.Polled()
	})
}

// ResumeJob returns a paused job to the queue.
func (m *Manager) ResumeJob(ctx context.Context, id string) error {
	return m.setState(ctx, id, StateQueued, func(from State) bool {
		return from == StatePaused
	})
}

func (m *Manager) setState(ctx context.Context, id string, to State, allowed func(State) bool) error {
	var (
		from     State
		progress float64
	)
	err := m.store.Update(ctx, func(set *JobSet) (bool, error) {
		j, ok := set.Get(id)
		if !ok {
			return false, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if j.State == to {
			return false, nil
		}
		if !allowed(j.State) || !j.State.CanTransitionTo(to) {
			return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, j.State, to)
		}
		from = j.State
		progress = j.Progress
		j.State = to
		return true, nil
	})
	if err != nil || from == "" {
		return err
	}

	m.log.Info("job state changed", "job", id, "from", from, "to", to)
	m.recordTransition(ctx, id, from, to, progress)
	return nil
}

// Categories returns the persisted category mapping.
func (m *Manager) Categories(ctx context.Context) (Categories, error) {
	return m.categories.Load(ctx)
}

// SetCategory creates or updates a category.
func (m *Manager) SetCategory(ctx context.Context, name, savePath string) error {
	if err := m.categories.Set(ctx, name, savePath); err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	m.log.Info("category saved", "category", name, "save_path", savePath)
	return nil
}

func (m *Manager) recordTransition(ctx context.Context, id string, from, to State, progress float64) {
	metrics.IncTransition(string(to))
	m.publish(ctx, StateChanged(id, from, to, progress))
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, e); err != nil {
		m.log.Warn("publish failed", "type", e.EventType(), "error", err)
	}
}

// StateChanged builds the event recorded for a transition.
func StateChanged(id string, from, to State, progress float64) *events.JobStateChanged {
	return &events.JobStateChanged{
		BaseEvent: events.ForJob(events.EventJobStateChanged, id),
		From:      string(from),
		To:        string(to),
		Progress:  progress,
	}
}
