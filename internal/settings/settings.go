// Package settings owns the two queue-wide tunables, speed limit and
// concurrency, and keeps the engine and the saved configuration in
// agreement about them.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/logger"
)

// ErrInvalidSetting is returned for out-of-range values.
var ErrInvalidSetting = errors.New("invalid setting")

// Persister saves accepted settings so they survive restarts.
type Persister func(speedLimitBPS int64, maxConcurrent int) error

// Controller mediates settings changes. A change is pushed to the engine
// first and committed locally only on acknowledgement, so the local view
// never claims a limit the engine is not enforcing.
type Controller struct {
	mu      sync.Mutex
	client  engine.Client
	persist Persister

	speedLimitBPS int64
	maxConcurrent int
}

// NewController creates a controller seeded with the configured values.
// persist may be nil.
func NewController(client engine.Client, speedLimitBPS int64, maxConcurrent int, persist Persister) *Controller {
	if speedLimitBPS < 0 {
		speedLimitBPS = 0
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Controller{
		client:        client,
		persist:       persist,
		speedLimitBPS: speedLimitBPS,
		maxConcurrent: maxConcurrent,
	}
}

// SpeedLimit returns the committed limit in bytes per second; 0 means
// unlimited.
func (c *Controller) SpeedLimit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.speedLimitBPS
}

// MaxConcurrent returns the committed concurrency cap.
func (c *Controller) MaxConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.maxConcurrent
}

// SetSpeedLimit applies a new speed limit. 0 lifts the limit entirely;
// negative values are rejected.
func (c *Controller) SetSpeedLimit(ctx context.Context, bytesPerSec int64) error {
	if bytesPerSec < 0 {
		return fmt.Errorf("%w: speed limit must not be negative", ErrInvalidSetting)
	}

	if err := c.client.SetSpeedLimit(ctx, bytesPerSec); err != nil {
		return err
	}

	c.mu.Lock()
	c.speedLimitBPS = bytesPerSec
	c.mu.Unlock()

	c.save()
	return nil
}

// SetMaxConcurrent applies a new concurrency cap. Values below 1 are
// clamped to 1 rather than rejected: zero concurrency would silently stall
// the whole queue.
func (c *Controller) SetMaxConcurrent(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}

	if err := c.client.SetMaxConcurrent(ctx, n); err != nil {
		return err
	}

	c.mu.Lock()
	c.maxConcurrent = n
	c.mu.Unlock()

	c.save()
	return nil
}

// Apply pushes the committed settings to the engine. Called at startup and
// after a reconnect, when the engine may have reverted to its own
// defaults.
func (c *Controller) Apply(ctx context.Context) error {
	c.mu.Lock()
	speed, concurrent := c.speedLimitBPS, c.maxConcurrent
	c.mu.Unlock()

	if err := c.client.SetSpeedLimit(ctx, speed); err != nil {
		return fmt.Errorf("failed to apply speed limit: %w", err)
	}

	if err := c.client.SetMaxConcurrent(ctx, concurrent); err != nil {
		return fmt.Errorf("failed to apply concurrency cap: %w", err)
	}

	return nil
}

// Sync adopts the engine's current settings as the committed values. Used
// when the engine is the source of truth, e.g. attaching to one that was
// already running.
func (c *Controller) Sync(ctx context.Context) error {
	speed, err := c.client.SpeedLimit(ctx)
	if err != nil {
		return fmt.Errorf("failed to read speed limit: %w", err)
	}

	concurrent, err := c.client.MaxConcurrent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read concurrency cap: %w", err)
	}

	if concurrent < 1 {
		concurrent = 1
	}

	c.mu.Lock()
	c.speedLimitBPS = speed
	c.maxConcurrent = concurrent
	c.mu.Unlock()

	c.save()
	return nil
}

func (c *Controller) save() {
	if c.persist == nil {
		return
	}

	c.mu.Lock()
	speed, concurrent := c.speedLimitBPS, c.maxConcurrent
	c.mu.Unlock()

	if err := c.persist(speed, concurrent); err != nil {
		logger.Errorf("Failed to persist settings: %v", err)
	}
}
