// Package reconcile drives jobs from submission to materialized pointer
// files by polling the upstream service on an adaptive schedule.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmunix/autostrm/internal/events"
	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/metrics"
	"github.com/vmunix/autostrm/internal/upstream"
)

// Store is the part of the job store the loop needs.
type Store interface {
	Load(ctx context.Context) (*jobs.JobSet, error)
	Update(ctx context.Context, fn func(*jobs.JobSet) (bool, error)) error
}

// Materializer writes pointer files for a ready job.
type Materializer interface {
	Materialize(ctx context.Context, job *jobs.Job, files []upstream.File) ([]string, error)
	Root(ctx context.Context, category string) string
}

// Config tunes the loop.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Factor      float64
	// Monotonic ignores upstream reports that would move a job backwards
	// through queued, downloading, processing and ready.
	Monotonic bool
}

// Result summarises one pass.
type Result struct {
	Polled       int
	Updated      int
	Transitions  int
	Materialized int
	Failed       int
	Skipped      int
}

// Changed reports whether any job changed state during the pass.
func (r Result) Changed() bool {
	return r.Transitions > 0
}

// Reconciler runs reconciliation passes.
type Reconciler struct {
	store        Store
	client       upstream.Client
	materializer Materializer
	bus          events.Publisher
	cfg          Config
	log          *slog.Logger
}

// New creates a reconciler. bus may be nil.
func New(store Store, client upstream.Client, materializer Materializer, bus events.Publisher, cfg Config, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:        store,
		client:       client,
		materializer: materializer,
		bus:          bus,
		cfg:          cfg,
		log:          log.With("component", "reconciler"),
	}
}

// Name returns the component name.
func (r *Reconciler) Name() string {
	return "reconciler"
}

// Run passes immediately and then on the adaptive interval until ctx is
// canceled. A pass in flight when ctx is canceled runs to completion.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := NewBackoff(r.cfg.MinInterval, r.cfg.MaxInterval, r.cfg.Factor)
	r.log.Info("reconciler started", "min_interval", backoff.Min, "max_interval", backoff.Max, "factor", backoff.Factor)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		res, err := r.Pass(context.WithoutCancel(ctx))
		metrics.ObservePass(time.Since(start), err)

		var wait time.Duration
		if err != nil {
			r.log.Error("reconcile pass failed", "error", err)
			wait = backoff.Next(false)
		} else {
			wait = backoff.Next(res.Changed())
		}
		metrics.SetInterval(wait)

		if res.Polled > 0 || err != nil {
			r.log.Debug("reconcile pass finished",
				"polled", res.Polled,
				"transitions", res.Transitions,
				"materialized", res.Materialized,
				"failed", res.Failed,
				"next", wait)
		}
		timer.Reset(wait)
	}
}

// outcome is what happened to one job during a pass.
type outcome struct {
	job          *jobs.Job
	from         jobs.State
	transitions  []jobs.State
	materialized []string
	failure      string
}

// Pass runs one reconciliation pass. Per-job failures are recorded on the
// jobs; only store failures are returned.
func (r *Reconciler) Pass(ctx context.Context) (Result, error) {
	var res Result

	set, err := r.store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load jobs: %w", err)
	}

	var changed []*outcome
	for _, snap := range set.Ordered() {
		if !snap.State.Polled() {
			continue
		}
		res.Polled++

		o := &outcome{job: snap.Clone(), from: snap.State}
		if r.reconcileJob(ctx, o) {
			changed = append(changed, o)
		}
	}

	if len(changed) == 0 {
		r.updateGauges(set)
		return res, nil
	}

	var applied []*outcome
	err = r.store.Update(ctx, func(current *jobs.JobSet) (bool, error) {
		applied = applied[:0]
		for _, o := range changed {
			stored, ok := current.Get(o.job.ID)
			if !ok || stored.State != o.from {
				continue
			}
			current.Put(o.job)
			applied = append(applied, o)
		}
		r.updateGauges(current)
		return len(applied) > 0, nil
	})
	if err != nil {
		return res, fmt.Errorf("save jobs: %w", err)
	}

	res.Skipped = len(changed) - len(applied)
	for _, o := range applied {
		res.Updated++
		res.Transitions += len(o.transitions)
		if o.materialized != nil {
			res.Materialized++
		}
		if o.failure != "" {
			res.Failed++
		}
		r.emit(ctx, o)
	}
	if res.Skipped > 0 {
		r.log.Debug("kept concurrently modified jobs", "count", res.Skipped)
	}
	return res, nil
}

// reconcileJob advances one job and reports whether its record changed.
func (r *Reconciler) reconcileJob(ctx context.Context, o *outcome) bool {
	j := o.job
	if j.TaskHandle == nil || j.TaskHandle.IsZero() {
		r.fail(o, "no upstream task handle")
		return true
	}

	status, err := r.client.QueryStatus(ctx, *j.TaskHandle)
	if err != nil {
		if errors.Is(err, upstream.ErrTransient) || errors.Is(err, upstream.ErrNotFound) {
			r.log.Debug("status unavailable", "job", j.ID, "error", err)
		} else {
			r.log.Warn("status query failed", "job", j.ID, "error", err)
		}
		return false
	}

	modified := mirror(j, status)

	if err := status.Check(); err != nil {
		r.log.Warn("keeping job state", "job", j.ID, "error", err)
	} else if to := jobState(status.State); to != j.State {
		switch {
		case to == jobs.StateError:
			r.fail(o, fmt.Sprintf("upstream reported %q", status.Raw))
			return true
		case r.cfg.Monotonic && rank(to) < rank(j.State):
			r.log.Debug("ignoring regression", "job", j.ID, "from", j.State, "to", to)
		case j.State.CanTransitionTo(to):
			r.transition(o, to)
			modified = true
		}
	}

	if j.State == jobs.StateReady {
		r.materialize(ctx, o)
		return true
	}
	return modified
}

// materialize lists the produced files and writes pointer files, moving the
// job to done or error.
func (r *Reconciler) materialize(ctx context.Context, o *outcome) {
	j := o.job

	files, err := r.client.ListFiles(ctx, *j.TaskHandle)
	if err != nil {
		r.fail(o, fmt.Sprintf("list files: %v", err))
		return
	}

	paths, err := r.materializer.Materialize(ctx, j, files)
	if err != nil {
		r.fail(o, err.Error())
		return
	}

	j.Files = paths
	j.Error = ""
	j.SetProgress(1)
	o.materialized = paths
	r.transition(o, jobs.StateDone)
}

func (r *Reconciler) transition(o *outcome, to jobs.State) {
	o.job.State = to
	o.transitions = append(o.transitions, to)
}

func (r *Reconciler) fail(o *outcome, reason string) {
	o.job.Error = reason
	o.failure = reason
	r.transition(o, jobs.StateError)
}

// emit publishes the events and metrics for an applied outcome.
func (r *Reconciler) emit(ctx context.Context, o *outcome) {
	j := o.job
	from := o.from
	for _, to := range o.transitions {
		r.log.Info("job state changed", "job", j.ID, "name", j.Name, "from", from, "to", to)
		metrics.IncTransition(string(to))
		r.publish(ctx, jobs.StateChanged(j.ID, from, to, j.Progress))
		from = to
	}

	if o.materialized != nil {
		r.publish(ctx, &events.JobMaterialized{
			BaseEvent: events.ForJob(events.EventJobMaterialized, j.ID),
			Category:  j.Category,
			Root:      r.materializer.Root(ctx, j.Category),
			Paths:     o.materialized,
		})
	}
	if o.failure != "" {
		r.log.Warn("job failed", "job", j.ID, "name", j.Name, "reason", o.failure)
		r.publish(ctx, &events.JobFailed{
			BaseEvent: events.ForJob(events.EventJobFailed, j.ID),
			Reason:    o.failure,
		})
	}
}

func (r *Reconciler) publish(ctx context.Context, e events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, e); err != nil {
		r.log.Error("failed to publish event", "type", e.EventType(), "error", err)
	}
}

func (r *Reconciler) updateGauges(set *jobs.JobSet) {
	counts := make(map[string]int, len(jobs.AllStates))
	for _, j := range set.Ordered() {
		counts[string(j.State)]++
	}
	states := make([]string, len(jobs.AllStates))
	for i, s := range jobs.AllStates {
		states[i] = string(s)
	}
	metrics.SetJobCounts(counts, states)
}

// mirror copies reported telemetry onto j and reports whether anything moved.
// Absent fields keep their last known values.
func mirror(j *jobs.Job, s *upstream.Status) bool {
	before := *j
	if s.Progress != nil {
		j.SetProgress(*s.Progress)
	}
	if s.Size != nil {
		j.Size = *s.Size
	}
	if s.DownloadSpeed != nil {
		j.DownloadSpeed = *s.DownloadSpeed
	}
	if s.UploadSpeed != nil {
		j.UploadSpeed = *s.UploadSpeed
	}
	if s.ETA != nil {
		j.ETA = *s.ETA
	}
	return j.Progress != before.Progress ||
		j.Size != before.Size ||
		j.DownloadSpeed != before.DownloadSpeed ||
		j.UploadSpeed != before.UploadSpeed ||
		j.ETA != before.ETA
}

func jobState(s upstream.State) jobs.State {
	switch s {
	case upstream.StateQueued:
		return jobs.StateQueued
	case upstream.StateDownloading:
		return jobs.StateDownloading
	case upstream.StateProcessing:
		return jobs.StateProcessing
	case upstream.StateReady:
		return jobs.StateReady
	default:
		return jobs.StateError
	}
}

// rank orders the polled states for regression checks.
func rank(s jobs.State) int {
	switch s {
	case jobs.StateQueued:
		return 0
	case jobs.StateDownloading:
		return 1
	case jobs.StateProcessing:
		return 2
	case jobs.StateReady:
		return 3
	default:
		return -1
	}
}
