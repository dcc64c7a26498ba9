// Package enginetest provides an in-memory engine.Client so the core can
// be tested without a live transfer engine. The fake mirrors the engine's
// command semantics: bulk counts reflect the tasks actually acted on, and
// unknown ids fail with engine.ErrTaskNotFound.
package enginetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/task"
)

// Fake is a scriptable engine. Zero value is not usable; call New.
type Fake struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]task.Task
	order []uuid.UUID

	speedLimit    int64
	maxConcurrent int

	statsValue    task.QueueStats
	checksumValue string
	verifyValue   bool

	// failures maps method name to the error that method should return.
	failures map[string]error

	events chan engine.Event
}

// New creates an empty fake engine with a buffered event channel.
func New() *Fake {
	return &Fake{
		tasks:         make(map[uuid.UUID]task.Task),
		maxConcurrent: 3,
		failures:      make(map[string]error),
		events:        make(chan engine.Event, 64),
	}
}

// FailWith makes the named method return err until cleared with nil.
func (f *Fake) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.failures, method)
	} else {
		f.failures[method] = err
	}
}

// Seed inserts a task directly, bypassing Add.
func (f *Fake) Seed(t task.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.tasks[t.ID]; !ok {
		f.order = append(f.order, t.ID)
	}
	f.tasks[t.ID] = t
}

// Emit pushes an event into the feed returned by Events.
func (f *Fake) Emit(ev engine.Event) {
	f.events <- ev
}

// CloseEvents ends the event feed.
func (f *Fake) CloseEvents() {
	close(f.events)
}

// SetStats fixes the value returned by Stats.
func (f *Fake) SetStats(s task.QueueStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsValue = s
}

// SetChecksum fixes the values returned by CalculateChecksum and
// VerifyFile.
func (f *Fake) SetChecksum(sum string, valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checksumValue = sum
	f.verifyValue = valid
}

// TaskState reports the fake's current state for an id, for assertions.
func (f *Fake) TaskState(id uuid.UUID) (task.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	return t.State, ok
}

func (f *Fake) fail(method string) error {
	return f.failures[method]
}

func (f *Fake) Add(_ context.Context, req task.Request) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("add"); err != nil {
		return uuid.Nil, err
	}

	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}
	req.Normalize()

	t := task.Task{
		ID:               uuid.New(),
		URL:              req.URL,
		Destination:      req.Destination,
		Name:             req.Name,
		Provider:         req.Provider,
		Priority:         req.Priority,
		ExpectedChecksum: req.ExpectedChecksum,
		State:            task.StateQueued,
		CreatedAt:        time.Now(),
		SupportsResume:   true,
	}

	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)

	return t.ID, nil
}

func (f *Fake) Pause(_ context.Context, id uuid.UUID) error {
	return f.patch("pause", id, func(t *task.Task) {
		if t.State == task.StateQueued || t.State == task.StateDownloading {
			t.State = task.StatePaused
		}
	})
}

func (f *Fake) Resume(_ context.Context, id uuid.UUID) error {
	return f.patch("resume", id, func(t *task.Task) {
		if t.State == task.StatePaused {
			t.State = task.StateQueued
		}
	})
}

func (f *Fake) Cancel(_ context.Context, id uuid.UUID) error {
	return f.patch("cancel", id, func(t *task.Task) {
		if !t.State.Terminal() {
			t.State = task.StateCancelled
		}
	})
}

func (f *Fake) Retry(_ context.Context, id uuid.UUID) error {
	return f.patch("retry", id, func(t *task.Task) {
		t.Requeue()
	})
}

func (f *Fake) patch(method string, id uuid.UUID, fn func(*task.Task)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail(method); err != nil {
		return err
	}

	t, ok := f.tasks[id]
	if !ok {
		return engine.ErrTaskNotFound
	}

	fn(&t)
	f.tasks[id] = t

	return nil
}

func (f *Fake) Remove(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("remove"); err != nil {
		return err
	}

	if _, ok := f.tasks[id]; !ok {
		return engine.ErrTaskNotFound
	}

	delete(f.tasks, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}

	return nil
}

func (f *Fake) PauseAll(_ context.Context) (int, error) {
	return f.bulk("pauseAll", func(t *task.Task) bool {
		if t.State == task.StateQueued || t.State == task.StateDownloading {
			t.State = task.StatePaused
			return true
		}
		return false
	})
}

func (f *Fake) ResumeAll(_ context.Context) (int, error) {
	return f.bulk("resumeAll", func(t *task.Task) bool {
		if t.State == task.StatePaused {
			t.State = task.StateQueued
			return true
		}
		return false
	})
}

func (f *Fake) CancelAll(_ context.Context) (int, error) {
	return f.bulk("cancelAll", func(t *task.Task) bool {
		if !t.State.Terminal() {
			t.State = task.StateCancelled
			return true
		}
		return false
	})
}

func (f *Fake) RetryFailed(_ context.Context) (int, error) {
	return f.bulk("retryFailed", func(t *task.Task) bool {
		if t.State == task.StateFailed {
			t.Requeue()
			return true
		}
		return false
	})
}

func (f *Fake) bulk(method string, fn func(*task.Task) bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail(method); err != nil {
		return 0, err
	}

	count := 0
	for id, t := range f.tasks {
		if fn(&t) {
			f.tasks[id] = t
			count++
		}
	}

	return count, nil
}

func (f *Fake) ClearFinished(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("clearFinished"); err != nil {
		return 0, err
	}

	count := 0
	kept := f.order[:0]

	for _, id := range f.order {
		if f.tasks[id].State.Terminal() {
			delete(f.tasks, id)
			count++
		} else {
			kept = append(kept, id)
		}
	}
	f.order = kept

	return count, nil
}

func (f *Fake) SetPriority(_ context.Context, id uuid.UUID, priority int) error {
	return f.patch("setPriority", id, func(t *task.Task) {
		t.Priority = priority
	})
}

func (f *Fake) SetSpeedLimit(_ context.Context, bytesPerSec int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("setSpeedLimit"); err != nil {
		return err
	}

	f.speedLimit = bytesPerSec
	return nil
}

func (f *Fake) SetMaxConcurrent(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("setMaxConcurrent"); err != nil {
		return err
	}

	f.maxConcurrent = n
	return nil
}

func (f *Fake) SpeedLimit(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("getSpeedLimit"); err != nil {
		return 0, err
	}

	return f.speedLimit, nil
}

func (f *Fake) MaxConcurrent(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("getMaxConcurrent"); err != nil {
		return 0, err
	}

	return f.maxConcurrent, nil
}

func (f *Fake) VerifyFile(_ context.Context, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("verifyFile"); err != nil {
		return false, err
	}

	return f.verifyValue, nil
}

func (f *Fake) CalculateChecksum(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("calculateChecksum"); err != nil {
		return "", err
	}

	return f.checksumValue, nil
}

func (f *Fake) ListTasks(_ context.Context) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("listTasks"); err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(f.order))
	for _, id := range f.order {
		tasks = append(tasks, f.tasks[id])
	}

	return tasks, nil
}

func (f *Fake) Stats(_ context.Context) (task.QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("getStats"); err != nil {
		return task.QueueStats{}, err
	}

	return f.statsValue, nil
}

func (f *Fake) Events(_ context.Context) (<-chan engine.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("events"); err != nil {
		return nil, err
	}

	return f.events, nil
}
