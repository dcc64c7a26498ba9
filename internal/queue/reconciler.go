package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/task"
)

// Historian receives tasks that just reached a terminal state.
type Historian interface {
	AppendTask(t task.Task) error
}

// Snapshotter persists the task set so a restart can warm-start the store
// before the engine is reachable. Single-task changes go through Save and
// Delete; resyncs replace the snapshot wholesale with SaveAll.
type Snapshotter interface {
	Save(t task.Task) error
	Delete(id uuid.UUID) error
	SaveAll(tasks []task.Task) error
}

// Reconciler drains the engine's event feed and folds each event into the
// store. Per-task event order is trusted as received, so the last acted-on
// event wins; the one rule layered on top is that a terminal state is
// never overturned by a non-terminal event.
type Reconciler struct {
	store   *Store
	client  engine.Client
	history Historian
	repo    Snapshotter

	statsMu     sync.RWMutex
	cachedStats *task.QueueStats
}

// NewReconciler wires a reconciler. history and repo may be nil; the
// corresponding side effects are skipped.
func NewReconciler(store *Store, client engine.Client, history Historian, repo Snapshotter) *Reconciler {
	return &Reconciler{
		store:   store,
		client:  client,
		history: history,
		repo:    repo,
	}
}

// Run opens the engine event feed and applies events until the feed closes
// or ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	events, err := r.client.Events(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				logger.Infof("Engine event feed closed")
				return nil
			}
			r.Apply(ctx, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Apply folds one event into the store.
func (r *Reconciler) Apply(ctx context.Context, ev engine.Event) {
	switch e := ev.(type) {
	case engine.Added:
		// No payload; the authoritative task set comes from the engine.
		r.Refresh(ctx)

	case engine.Started:
		r.patch(e.TaskID, func(t *task.Task) {
			if t.State.Terminal() {
				return
			}
			t.State = task.StateDownloading
			if t.StartedAt.IsZero() {
				t.StartedAt = now()
			}
		})

	case engine.Progress:
		// Progress for a finished task is stale; drop it so terminal
		// records keep their final byte counts.
		r.store.Patch(e.TaskID, func(t *task.Task) {
			if t.State.Terminal() {
				return
			}
			if t.State == task.StateQueued {
				t.State = task.StateDownloading
			}
			t.ApplyProgress(e.DownloadedBytes, e.TotalBytes, e.SpeedBPS)
		})

	case engine.Completed:
		r.finish(e.TaskID, task.StateCompleted, "")

	case engine.Failed:
		r.finish(e.TaskID, task.StateFailed, e.Reason)

	case engine.Cancelled:
		r.finish(e.TaskID, task.StateCancelled, "")

	case engine.Paused:
		r.patch(e.TaskID, func(t *task.Task) {
			if t.State.Terminal() {
				return
			}
			t.State = task.StatePaused
			t.Progress.SpeedBPS = 0
			t.Progress.ETASeconds = 0
		})

	case engine.Resumed:
		// Resuming re-enters the admission queue; the engine signals
		// Started separately once a slot frees.
		r.patch(e.TaskID, func(t *task.Task) {
			if t.State.Terminal() {
				return
			}
			t.State = task.StateQueued
		})

	case engine.Extracting:
		r.patch(e.TaskID, func(t *task.Task) {
			if t.State.Terminal() {
				return
			}
			t.State = task.StateExtracting
		})

	case engine.Extracted:
		// Extraction rearranges files on the engine side; resync rather
		// than guess at the outcome.
		r.Refresh(ctx)

	case engine.QueueSnapshot:
		r.setCachedStats(e.Stats)
	}
}

// finish moves a task into a terminal state. Racing terminal events
// overwrite each other in arrival order; history gets exactly one record,
// on the first transition out of a live state.
func (r *Reconciler) finish(id uuid.UUID, state task.State, reason string) {
	var recorded task.Task
	wasLive := false

	changed := r.store.Patch(id, func(t *task.Task) {
		wasLive = !t.State.Terminal()

		t.State = state
		t.Error = reason
		t.CompletedAt = now()
		t.Progress.SpeedBPS = 0
		t.Progress.ETASeconds = 0

		if state == task.StateCompleted && t.Progress.TotalBytes > 0 {
			t.Progress.DownloadedBytes = t.Progress.TotalBytes
			t.Progress.Percent = 100
		}

		recorded = *t
	})

	if !changed {
		return
	}

	if wasLive && r.history != nil {
		if err := r.history.AppendTask(recorded); err != nil {
			logger.Errorf("Failed to record %s in history: %v", recorded.Name, err)
		}
	}

	r.persistTask(recorded)
}

// patch applies fn to one task and mirrors the updated record into the
// snapshot when something changed.
func (r *Reconciler) patch(id uuid.UUID, fn func(*task.Task)) {
	var updated task.Task

	changed := r.store.Patch(id, func(t *task.Task) {
		fn(t)
		updated = *t
	})
	if changed {
		r.persistTask(updated)
	}
}

// Refresh replaces the store with the engine's authoritative task list.
func (r *Reconciler) Refresh(ctx context.Context) {
	tasks, err := r.client.ListTasks(ctx)
	if err != nil {
		logger.Warnf("Failed to refresh task list from engine: %v", err)
		return
	}

	r.store.ReplaceAll(tasks)
	r.persist()
}

// CachedStats returns the engine's last queue snapshot, if one arrived.
func (r *Reconciler) CachedStats() (task.QueueStats, bool) {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()

	if r.cachedStats == nil {
		return task.QueueStats{}, false
	}

	return *r.cachedStats, true
}

// setCachedStats replaces the cached aggregates wholesale. Snapshots are
// not merged; each one supersedes the previous.
func (r *Reconciler) setCachedStats(s task.QueueStats) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	r.cachedStats = &s
}

// now is swappable in tests.
var now = time.Now

// persist writes the whole task set to the snapshot store, best effort.
func (r *Reconciler) persist() {
	if r.repo == nil {
		return
	}

	if err := r.repo.SaveAll(r.store.All()); err != nil {
		logger.Errorf("Failed to persist queue snapshot: %v", err)
	}
}

// persistTask writes one task record to the snapshot store, best effort.
func (r *Reconciler) persistTask(t task.Task) {
	if r.repo == nil {
		return
	}

	if err := r.repo.Save(t); err != nil {
		logger.Errorf("Failed to persist task %s: %v", t.ID, err)
	}
}
