package task_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/task"
)

func TestStateTerminal(t *testing.T) {
	testCases := []struct {
		state    task.State
		terminal bool
	}{
		{task.StateQueued, false},
		{task.StateDownloading, false},
		{task.StatePaused, false},
		{task.StateExtracting, false},
		{task.StateCompleted, true},
		{task.StateFailed, true},
		{task.StateCancelled, true},
	}

	for _, tc := range testCases {
		t.Run(tc.state.String(), func(t *testing.T) {
			assert.Equal(t, tc.terminal, tc.state.Terminal())
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	states := []task.State{
		task.StateQueued, task.StateDownloading, task.StatePaused,
		task.StateCompleted, task.StateFailed, task.StateCancelled,
		task.StateExtracting,
	}

	for _, s := range states {
		parsed, err := task.ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := task.ParseState("Bogus")
	assert.Error(t, err)
}

func TestStateJSON(t *testing.T) {
	b, err := json.Marshal(task.StateDownloading)
	require.NoError(t, err)
	assert.Equal(t, `"Downloading"`, string(b))

	var s task.State
	require.NoError(t, json.Unmarshal([]byte(`"Paused"`), &s))
	assert.Equal(t, task.StatePaused, s)
}

func TestApplyProgress(t *testing.T) {
	testCases := []struct {
		name        string
		downloaded  int64
		total       int64
		speed       int64
		wantPercent float64
		wantBytes   int64
		wantETA     int64
	}{
		{
			name:        "half done",
			downloaded:  512,
			total:       1024,
			speed:       256,
			wantPercent: 50,
			wantBytes:   512,
			wantETA:     2,
		},
		{
			name:        "unknown total",
			downloaded:  512,
			total:       0,
			speed:       256,
			wantPercent: 0,
			wantBytes:   512,
			wantETA:     0,
		},
		{
			name:        "downloaded clamped to total",
			downloaded:  2048,
			total:       1024,
			speed:       256,
			wantPercent: 100,
			wantBytes:   1024,
			wantETA:     0,
		},
		{
			name:        "negative downloaded clamped to zero",
			downloaded:  -10,
			total:       1024,
			speed:       0,
			wantPercent: 0,
			wantBytes:   0,
			wantETA:     0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var tk task.Task
			tk.ApplyProgress(tc.downloaded, tc.total, tc.speed)

			assert.InDelta(t, tc.wantPercent, tk.Progress.Percent, 0.001)
			assert.Equal(t, tc.wantBytes, tk.Progress.DownloadedBytes)
			assert.Equal(t, tc.wantETA, tk.Progress.ETASeconds)
			assert.Equal(t, tc.speed, tk.Progress.SpeedBPS)
		})
	}
}

func TestRequeue(t *testing.T) {
	tk := task.Task{
		State:   task.StateFailed,
		Error:   "connection reset",
		Retries: 1,
	}
	tk.ApplyProgress(700, 1000, 100)

	tk.Requeue()

	assert.Equal(t, task.StateQueued, tk.State)
	assert.Equal(t, 2, tk.Retries)
	assert.Empty(t, tk.Error)
	assert.Zero(t, tk.Progress.DownloadedBytes)
	assert.Zero(t, tk.Progress.Percent)
	assert.True(t, tk.CompletedAt.IsZero())
}

func TestRequestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		req     task.Request
		wantErr bool
	}{
		{
			name: "valid",
			req:  task.Request{URL: "https://example.com/file.iso", Destination: "/downloads"},
		},
		{
			name:    "missing url",
			req:     task.Request{Destination: "/downloads"},
			wantErr: true,
		},
		{
			name:    "relative url",
			req:     task.Request{URL: "file.iso", Destination: "/downloads"},
			wantErr: true,
		},
		{
			name:    "missing destination",
			req:     task.Request{URL: "https://example.com/file.iso"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, task.ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRequestNormalize(t *testing.T) {
	req := task.Request{URL: "https://example.com/files/ubuntu.iso", Destination: "/downloads"}
	req.Normalize()

	assert.Equal(t, "ubuntu.iso", req.Name)
	assert.Equal(t, task.DefaultPriority, req.Priority)

	// Explicit values survive.
	req = task.Request{URL: "https://example.com/a.bin", Destination: "/d", Name: "custom", Priority: 9}
	req.Normalize()

	assert.Equal(t, "custom", req.Name)
	assert.Equal(t, 9, req.Priority)
}

func TestNameFromURL(t *testing.T) {
	assert.Equal(t, "file.tar.gz", task.NameFromURL("https://mirror.example.com/pub/file.tar.gz"))
	assert.Equal(t, "mirror.example.com", task.NameFromURL("https://mirror.example.com/"))
}

func TestQueueStatsTotal(t *testing.T) {
	s := task.QueueStats{Queued: 2, Downloading: 1, Completed: 3, Failed: 1}
	assert.Equal(t, 7, s.Total())
}
