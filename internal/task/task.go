package task

import (
	"time"

	"github.com/google/uuid"
)

// Progress tracks how far along a transfer is. TotalBytes <= 0 means the
// engine has not reported a size; ETASeconds == 0 means no estimate.
type Progress struct {
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes,omitempty"`
	Percent         float64 `json:"percent"`
	SpeedBPS        int64   `json:"speedBytesPerSec"`
	ETASeconds      int64   `json:"etaSeconds,omitempty"`
}

// Task is one requested transfer with its own lifecycle state. Instances
// are owned by the queue store and passed around by value.
type Task struct {
	ID               uuid.UUID `json:"id"`
	URL              string    `json:"url"`
	Destination      string    `json:"destination"`
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Progress         Progress  `json:"progress"`
	Error            string    `json:"error,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
	CompletedAt      time.Time `json:"completedAt,omitempty"`
	Retries          int       `json:"retries"`
	Priority         int       `json:"priority"`
	ExpectedChecksum string    `json:"expectedChecksum,omitempty"`
	SupportsResume   bool      `json:"supportsResume"`
}

// ApplyProgress folds a progress report into the task, recomputing the
// derived percent and ETA. Downloaded is clamped to the total when the
// total is known, which keeps percent inside [0, 100].
func (t *Task) ApplyProgress(downloaded, total, speedBPS int64) {
	if downloaded < 0 {
		downloaded = 0
	}

	if total > 0 && downloaded > total {
		downloaded = total
	}

	t.Progress.DownloadedBytes = downloaded
	t.Progress.TotalBytes = total
	t.Progress.SpeedBPS = speedBPS

	if total > 0 {
		t.Progress.Percent = float64(downloaded) / float64(total) * 100
	} else {
		t.Progress.Percent = 0
	}

	t.Progress.ETASeconds = 0
	if speedBPS > 0 && total > 0 {
		if remaining := total - downloaded; remaining > 0 {
			t.Progress.ETASeconds = remaining / speedBPS
		}
	}
}

// Requeue resets a task for another attempt: back into the admission
// queue, retry counter bumped, failure reason cleared. Transfer progress
// is reset so a fresh attempt reports from zero.
func (t *Task) Requeue() {
	t.State = StateQueued
	t.Retries++
	t.Error = ""
	t.CompletedAt = time.Time{}
	t.Progress.Percent = 0
	t.Progress.SpeedBPS = 0
	t.Progress.ETASeconds = 0
	t.Progress.DownloadedBytes = 0
}
