// Package engine defines the contract with the external transfer engine:
// the command channel, the event feed, and the errors commands can fail
// with. The core never opens network connections for task bytes itself;
// everything goes through a Client.
package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/task"
)

var (
	// ErrUnavailable is returned when the engine cannot be reached.
	// Commands fail fast and the local store is left unchanged.
	ErrUnavailable = errors.New("transfer engine unavailable")

	// ErrTaskNotFound is returned when a command references an id the
	// engine no longer tracks. Bulk operations treat it as a benign
	// no-op; single-task operations surface it.
	ErrTaskNotFound = errors.New("task not found")
)

// Client is the command channel to the transfer engine. Every call is a
// request/acknowledgement round trip; completion order across concurrent
// calls is not guaranteed to match issue order, and an in-flight command
// cannot be cancelled once sent.
type Client interface {
	// Add submits a new transfer and returns the engine-assigned id.
	Add(ctx context.Context, req task.Request) (uuid.UUID, error)

	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID) error

	// Bulk commands return the number of tasks the engine actually
	// acted on.
	PauseAll(ctx context.Context) (int, error)
	ResumeAll(ctx context.Context) (int, error)
	CancelAll(ctx context.Context) (int, error)
	ClearFinished(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) (int, error)

	SetPriority(ctx context.Context, id uuid.UUID, priority int) error

	SetSpeedLimit(ctx context.Context, bytesPerSec int64) error
	SetMaxConcurrent(ctx context.Context, n int) error
	SpeedLimit(ctx context.Context) (int64, error)
	MaxConcurrent(ctx context.Context) (int, error)

	// VerifyFile asks the engine to check a finished file against a
	// checksum; CalculateChecksum computes one. Both are engine-owned
	// disk work, transported here untouched.
	VerifyFile(ctx context.Context, path, checksum string) (bool, error)
	CalculateChecksum(ctx context.Context, path string) (string, error)

	// ListTasks returns the engine's authoritative task set.
	ListTasks(ctx context.Context) ([]task.Task, error)

	// Stats returns the engine's queue-wide aggregates, which may cover
	// tasks the core has not fetched yet.
	Stats(ctx context.Context) (task.QueueStats, error)

	// Events opens the asynchronous event feed. The channel closes when
	// ctx ends or the engine goes away.
	Events(ctx context.Context) (<-chan Event, error)
}
