package queue

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/task"
)

// batchWorkers bounds the fan-out of multi-id commands against the engine.
const batchWorkers = 8

// Manager is the command dispatcher: it validates requests, forwards
// commands to the engine, and applies the local side effects that must not
// wait for the event feed (removals, requeues, bulk cleanups).
type Manager struct {
	store      *Store
	client     engine.Client
	reconciler *Reconciler
	repo       Snapshotter
}

// NewManager wires a dispatcher over the shared store and engine client.
// repo may be nil, in which case local mutations are not mirrored into the
// snapshot.
func NewManager(store *Store, client engine.Client, reconciler *Reconciler, repo Snapshotter) *Manager {
	return &Manager{
		store:      store,
		client:     client,
		reconciler: reconciler,
		repo:       repo,
	}
}

// Add validates and submits a new download. The engine assigns queue
// placement; the store resynchronizes immediately so the caller sees the
// new task without waiting for the Added event.
func (m *Manager) Add(ctx context.Context, req task.Request) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}
	req.Normalize()

	id, err := m.client.Add(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	logger.Infof("Added download %s (%s)", req.Name, id)
	m.reconciler.Refresh(ctx)

	return id, nil
}

// Pause asks the engine to suspend a task. The state change lands through
// the event feed.
func (m *Manager) Pause(ctx context.Context, id uuid.UUID) error {
	return m.client.Pause(ctx, id)
}

// Resume asks the engine to put a paused task back into the admission
// queue.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) error {
	return m.client.Resume(ctx, id)
}

// Cancel asks the engine to abort a task. Cancelling is terminal; the
// task stays visible until removed or cleared.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.client.Cancel(ctx, id)
}

// Remove deletes a task in any state. The local record is dropped as soon
// as the engine acknowledges, so a stale entry never lingers between the
// ack and the next resync.
func (m *Manager) Remove(ctx context.Context, id uuid.UUID) error {
	if err := m.client.Remove(ctx, id); err != nil {
		return err
	}

	m.store.Remove(id)
	m.forget(id)
	return nil
}

// Retry requeues a task for another attempt. Works from any state; the
// retry counter on the local record is bumped immediately.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) error {
	if err := m.client.Retry(ctx, id); err != nil {
		return err
	}

	m.patch(id, func(t *task.Task) {
		t.Requeue()
	})

	return nil
}

// SetPriority reorders a task within the admission queue. Higher values
// admit first.
func (m *Manager) SetPriority(ctx context.Context, id uuid.UUID, priority int) error {
	if err := m.client.SetPriority(ctx, id, priority); err != nil {
		return err
	}

	m.patch(id, func(t *task.Task) {
		t.Priority = priority
	})

	return nil
}

// PauseAll suspends every pausable task. The returned count is the number
// the engine actually paused, not the queue length.
func (m *Manager) PauseAll(ctx context.Context) (int, error) {
	return m.bulk(ctx, "pause", m.client.PauseAll)
}

// ResumeAll requeues every paused task.
func (m *Manager) ResumeAll(ctx context.Context) (int, error) {
	return m.bulk(ctx, "resume", m.client.ResumeAll)
}

// CancelAll aborts every live task.
func (m *Manager) CancelAll(ctx context.Context) (int, error) {
	return m.bulk(ctx, "cancel", m.client.CancelAll)
}

// bulk runs one queue-wide engine command and resynchronizes. Overlapping
// bulk commands race at the engine; whichever acknowledgement lands last
// dictates the state the refresh observes.
func (m *Manager) bulk(ctx context.Context, verb string, fn func(context.Context) (int, error)) (int, error) {
	count, err := fn(ctx)
	if err != nil {
		return 0, err
	}

	logger.Infof("Engine acknowledged bulk %s of %d tasks", verb, count)
	m.reconciler.Refresh(ctx)

	return count, nil
}

// ClearFinished removes every terminal task. Local terminal records are
// swept on acknowledgement rather than waiting for a resync.
func (m *Manager) ClearFinished(ctx context.Context) (int, error) {
	count, err := m.client.ClearFinished(ctx)
	if err != nil {
		return 0, err
	}

	for _, t := range m.store.All() {
		if t.State.Terminal() {
			m.store.Remove(t.ID)
			m.forget(t.ID)
		}
	}

	return count, nil
}

// RetryFailed requeues every failed task.
func (m *Manager) RetryFailed(ctx context.Context) (int, error) {
	count, err := m.client.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}

	for _, t := range m.store.All() {
		if t.State == task.StateFailed {
			m.patch(t.ID, func(t *task.Task) {
				t.Requeue()
			})
		}
	}

	return count, nil
}

// PauseMany pauses the given tasks, or the current selection when ids is
// empty.
func (m *Manager) PauseMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	return m.batch(ctx, ids, m.client.Pause)
}

// ResumeMany resumes the given tasks, or the current selection when ids is
// empty.
func (m *Manager) ResumeMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	return m.batch(ctx, ids, m.client.Resume)
}

// CancelMany cancels the given tasks, or the current selection when ids is
// empty.
func (m *Manager) CancelMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	return m.batch(ctx, ids, m.client.Cancel)
}

// RemoveMany removes the given tasks, or the current selection when ids is
// empty. Acknowledged removals are dropped from the store as they land.
func (m *Manager) RemoveMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	return m.batch(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		if err := m.client.Remove(ctx, id); err != nil {
			return err
		}
		m.store.Remove(id)
		m.forget(id)
		return nil
	})
}

// RetryMany requeues the given tasks, or the current selection when ids is
// empty.
func (m *Manager) RetryMany(ctx context.Context, ids []uuid.UUID) (int, error) {
	return m.batch(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		if err := m.client.Retry(ctx, id); err != nil {
			return err
		}
		m.patch(id, func(t *task.Task) {
			t.Requeue()
		})
		return nil
	})
}

// batch fans one per-task command out over a bounded worker group. Tasks
// the engine no longer knows are skipped, not failed: a batch built from a
// stale view should act on whatever still exists. Any other error aborts
// the batch.
func (m *Manager) batch(ctx context.Context, ids []uuid.UUID, fn func(context.Context, uuid.UUID) error) (int, error) {
	if len(ids) == 0 {
		ids = m.store.SelectedIDs()
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var acted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)

	for _, id := range ids {
		g.Go(func() error {
			err := fn(gctx, id)
			if errors.Is(err, engine.ErrTaskNotFound) {
				logger.Debugf("Skipping %s: engine no longer tracks it", id)
				return nil
			}
			if err != nil {
				return err
			}

			acted.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(acted.Load()), err
	}

	return int(acted.Load()), nil
}

// patch applies fn to one task and mirrors the updated record into the
// snapshot, best effort.
func (m *Manager) patch(id uuid.UUID, fn func(*task.Task)) {
	var updated task.Task

	changed := m.store.Patch(id, func(t *task.Task) {
		fn(t)
		updated = *t
	})
	if !changed || m.repo == nil {
		return
	}

	if err := m.repo.Save(updated); err != nil {
		logger.Warnf("Failed to persist task %s to snapshot: %v", id, err)
	}
}

// forget drops one task from the snapshot, best effort. Missing records
// are fine; the task may never have been snapshotted.
func (m *Manager) forget(id uuid.UUID) {
	if m.repo == nil {
		return
	}

	if err := m.repo.Delete(id); err != nil {
		logger.Debugf("Could not drop %s from snapshot: %v", id, err)
	}
}

// Tasks returns the current local view, oldest first.
func (m *Manager) Tasks() []task.Task {
	return m.store.All()
}

// Task returns one task by id.
func (m *Manager) Task(id uuid.UUID) (task.Task, error) {
	t, ok := m.store.Get(id)
	if !ok {
		return task.Task{}, engine.ErrTaskNotFound
	}

	return t, nil
}

// Stats returns queue-wide aggregates: the engine's last snapshot when one
// has arrived, otherwise a local computation over the store.
func (m *Manager) Stats() task.QueueStats {
	if s, ok := m.reconciler.CachedStats(); ok {
		return s
	}

	return ComputeStats(m.store.All())
}

// Select records the working selection used by batch commands without an
// explicit id list.
func (m *Manager) Select(ids ...uuid.UUID) {
	m.store.Select(ids...)
}

// ClearSelection empties the working selection.
func (m *Manager) ClearSelection() {
	m.store.ClearSelection()
}
