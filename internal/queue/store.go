// Package queue holds the authoritative local model of the download
// queue: the task record store, the event reconciler that applies engine
// events to it, and the command dispatcher that drives the engine.
//
// Only the reconciler and the dispatcher write to the store; every other
// consumer reads. All writes go through the store's mutex, which is the
// single exclusive-access path that keeps terminal states final.
package queue

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/task"
)

// Store is the in-memory task record store. Tasks move in and out by
// value, so no caller ever holds a reference into the map.
type Store struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]task.Task
	selected map[uuid.UUID]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tasks:    make(map[uuid.UUID]task.Task),
		selected: make(map[uuid.UUID]struct{}),
	}
}

// Upsert inserts or replaces a task.
func (s *Store) Upsert(t task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[t.ID] = t
}

// Patch applies fn to the stored task. Unknown ids are a no-op: late or
// duplicate events for removed tasks must not resurrect them.
func (s *Store) Patch(id uuid.UUID, fn func(*task.Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false
	}

	fn(&t)
	s.tasks[id] = t

	return true
}

// Remove deletes a task and drops it from the selection.
func (s *Store) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false
	}

	delete(s.tasks, id)
	delete(s.selected, id)

	return true
}

// Get returns a copy of the task.
func (s *Store) Get(id uuid.UUID) (task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	return t, ok
}

// All returns a snapshot of every task, oldest first (creation time, then
// id for a stable order on ties).
func (s *Store) All() []task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})

	return tasks
}

// Len returns the number of tracked tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}

// ReplaceAll swaps in the engine's authoritative task set. Selection
// entries for ids that disappeared are dropped.
func (s *Store) ReplaceAll(tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[uuid.UUID]task.Task, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}

	for id := range s.selected {
		if _, ok := s.tasks[id]; !ok {
			delete(s.selected, id)
		}
	}
}

// Select replaces the selected-id set used by batch commands when no
// explicit id list is given. Unknown ids are ignored.
func (s *Store) Select(ids ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.tasks[id]; ok {
			s.selected[id] = struct{}{}
		}
	}
}

// ClearSelection empties the selected-id set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[uuid.UUID]struct{})
}

// SelectedIDs returns the current selection.
func (s *Store) SelectedIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}

	return ids
}
