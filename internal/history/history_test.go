package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/history"
	"github.com/fetchq/fetchq/internal/task"
)

func setup(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func record(name, url, state string) history.Record {
	return history.Record{
		ID:          ksuid.New().String(),
		TaskID:      uuid.New().String(),
		Name:        name,
		URL:         url,
		Destination: "/downloads",
		State:       state,
		TotalBytes:  1024,
		CompletedAt: time.Now(),
	}
}

func TestAppendAndList(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	first := record("first.iso", "https://example.com/first.iso", "Completed")
	first.Checksum = "9e107d9d372bb6826bd81d3542a419d6"
	first.DurationSeconds = 42
	first.AverageSpeedBPS = 2048
	second := record("second.iso", "https://example.com/second.iso", "Failed")

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "second.iso", records[0].Name)
	assert.Equal(t, "first.iso", records[1].Name)

	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", records[1].Checksum)
	assert.Equal(t, int64(42), records[1].DurationSeconds)
	assert.Equal(t, int64(2048), records[1].AverageSpeedBPS)
}

func TestListLimit(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, record("x.iso", "https://example.com/x.iso", "Completed")))
	}

	records, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSearchCaseInsensitive(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record("Ubuntu-24.04.iso", "https://releases.ubuntu.com/noble/Ubuntu-24.04.iso", "Completed")))
	require.NoError(t, store.Append(ctx, record("debian.iso", "https://cdimage.debian.org/debian.iso", "Completed")))

	for _, query := range []string{"ubuntu", "UBUNTU", "Ubuntu"} {
		records, err := store.Search(ctx, query)
		require.NoError(t, err)
		require.Len(t, records, 1, "query %q", query)
		assert.Equal(t, "Ubuntu-24.04.iso", records[0].Name)
	}
}

func TestSearchMatchesURL(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record("file.bin", "https://mirror.example.com/pub/file.bin", "Completed")))

	records, err := store.Search(ctx, "mirror.example")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = store.Search(ctx, "nomatch")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRemove(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	rec := record("a.iso", "https://example.com/a.iso", "Completed")
	require.NoError(t, store.Append(ctx, rec))

	removed, err := store.Remove(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestClearOlderThan(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	old := record("old.iso", "https://example.com/old.iso", "Completed")
	old.CompletedAt = time.Now().AddDate(0, 0, -30)
	recent := record("recent.iso", "https://example.com/recent.iso", "Completed")

	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, recent))

	count, err := store.Clear(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent.iso", records[0].Name)
}

func TestClearAll(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record("a.iso", "https://example.com/a.iso", "Completed")))
	require.NoError(t, store.Append(ctx, record("b.iso", "https://example.com/b.iso", "Failed")))

	count, err := store.Clear(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRetentionSweepDisabled(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	old := record("old.iso", "https://example.com/old.iso", "Completed")
	old.CompletedAt = time.Now().AddDate(0, 0, -365)
	require.NoError(t, store.Append(ctx, old))

	// Zero or negative retention disables pruning; it must never drain
	// the whole log. Returns immediately when disabled.
	store.RunRetentionSweep(ctx, 0, time.Hour)
	store.RunRetentionSweep(ctx, -30, time.Hour)

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRetentionSweepPrunesAtStart(t *testing.T) {
	store := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	old := record("old.iso", "https://example.com/old.iso", "Completed")
	old.CompletedAt = time.Now().AddDate(0, 0, -30)
	recent := record("recent.iso", "https://example.com/recent.iso", "Completed")

	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, recent))

	go store.RunRetentionSweep(ctx, 7, time.Hour)

	// The first sweep happens right away, not after the first tick.
	require.Eventually(t, func() bool {
		records, err := store.List(ctx, 0)
		return err == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent.iso", records[0].Name)
}

func TestStats(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	speeds := map[string]int64{"a.iso": 1000, "b.iso": 2000, "c.iso": 3000}
	for _, name := range []string{"a.iso", "b.iso", "c.iso"} {
		rec := record(name, "https://example.com/"+name, "Completed")
		rec.AverageSpeedBPS = speeds[name]
		require.NoError(t, store.Append(ctx, rec))
	}
	require.NoError(t, store.Append(ctx, record("d.iso", "https://example.com/d.iso", "Failed")))
	require.NoError(t, store.Append(ctx, record("e.iso", "https://example.com/e.iso", "Cancelled")))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, int64(5*1024), stats.TotalBytes)

	// Mean over all five records, the two zero-speed ones included.
	assert.Equal(t, int64(1200), stats.AverageSpeedBPS)

	// 3 completed out of 5 records overall.
	assert.InDelta(t, 60, stats.SuccessRate, 0.001)
}

func TestRecordFromTask(t *testing.T) {
	completedAt := time.Now()

	tk := task.Task{
		ID:               uuid.New(),
		URL:              "https://example.com/a.iso",
		Destination:      "/downloads",
		Name:             "a.iso",
		State:            task.StateFailed,
		Error:            "connection reset",
		Retries:          2,
		ExpectedChecksum: "0f343b0931126a20f133d67c2b018a3b",
		StartedAt:        completedAt.Add(-100 * time.Second),
		CompletedAt:      completedAt,
	}
	tk.Progress.DownloadedBytes = 409600
	tk.Progress.TotalBytes = 1 << 20

	rec := history.RecordFromTask(tk)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, tk.ID.String(), rec.TaskID)
	assert.Equal(t, "a.iso", rec.Name)
	assert.Equal(t, "Failed", rec.State)
	assert.Equal(t, int64(1<<20), rec.TotalBytes)
	assert.Equal(t, "connection reset", rec.Error)
	assert.Equal(t, 2, rec.Retries)
	assert.Equal(t, "0f343b0931126a20f133d67c2b018a3b", rec.Checksum)
	assert.Equal(t, tk.StartedAt, rec.StartedAt)
	assert.Equal(t, completedAt, rec.CompletedAt)

	// 409600 bytes over the 100 seconds between start and completion.
	assert.Equal(t, int64(100), rec.DurationSeconds)
	assert.Equal(t, int64(4096), rec.AverageSpeedBPS)
}

func TestRecordFromTaskNeverStarted(t *testing.T) {
	tk := task.Task{
		ID:          uuid.New(),
		URL:         "https://example.com/a.iso",
		Name:        "a.iso",
		State:       task.StateCancelled,
		CompletedAt: time.Now(),
	}

	rec := history.RecordFromTask(tk)

	assert.True(t, rec.StartedAt.IsZero())
	assert.Zero(t, rec.DurationSeconds)
	assert.Zero(t, rec.AverageSpeedBPS)
}
