package engine

import (
	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/task"
)

// Event is the closed set of notifications the engine emits. The marker
// method keeps the union sealed so the reconciler's type switch stays
// exhaustive. Delivery is in-order per task; cross-task interleaving is
// unconstrained.
type Event interface {
	isEvent()
}

// Added signals that the engine's task set changed. It carries no payload;
// consumers resynchronize with ListTasks instead of trusting partial data.
type Added struct{}

// Started signals a task left the admission queue and began transferring.
type Started struct {
	TaskID uuid.UUID
}

// Progress reports transfer advancement for an active task.
type Progress struct {
	TaskID          uuid.UUID
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBPS        int64
}

// Completed signals a task finished successfully.
type Completed struct {
	TaskID uuid.UUID
}

// Failed signals a transfer failure; recoverable only through an explicit
// retry.
type Failed struct {
	TaskID uuid.UUID
	Reason string
}

// Paused signals the engine suspended a task.
type Paused struct {
	TaskID uuid.UUID
}

// Resumed signals a paused task re-entered the admission queue. The engine
// decides when a slot frees, so this is not a transition to Downloading.
type Resumed struct {
	TaskID uuid.UUID
}

// Cancelled signals a task was cancelled.
type Cancelled struct {
	TaskID uuid.UUID
}

// Extracting signals post-download archive expansion began.
type Extracting struct {
	TaskID uuid.UUID
}

// Extracted signals archive expansion finished; terminal bookkeeping is
// engine-owned at that point, so consumers resynchronize.
type Extracted struct {
	TaskID uuid.UUID
}

// QueueSnapshot carries the engine's authoritative queue-wide aggregates.
type QueueSnapshot struct {
	Stats task.QueueStats
}

func (Added) isEvent()         {}
func (Started) isEvent()       {}
func (Progress) isEvent()      {}
func (Completed) isEvent()     {}
func (Failed) isEvent()        {}
func (Paused) isEvent()        {}
func (Resumed) isEvent()       {}
func (Cancelled) isEvent()     {}
func (Extracting) isEvent()    {}
func (Extracted) isEvent()     {}
func (QueueSnapshot) isEvent() {}
