package queue

import "github.com/fetchq/fetchq/internal/task"

// ComputeStats derives queue-wide aggregates from a task snapshot. Tasks
// with unknown total size are excluded from both byte sums, so the overall
// percentage only reflects sized transfers. Aggregate speed sums the
// per-task rates of active transfers.
func ComputeStats(tasks []task.Task) task.QueueStats {
	var stats task.QueueStats

	for _, t := range tasks {
		switch t.State {
		case task.StateQueued:
			stats.Queued++
		case task.StateDownloading:
			stats.Downloading++
		case task.StatePaused:
			stats.Paused++
		case task.StateCompleted:
			stats.Completed++
		case task.StateFailed:
			stats.Failed++
		case task.StateCancelled:
			stats.Cancelled++
		case task.StateExtracting:
			stats.Extracting++
		}

		if t.Progress.TotalBytes > 0 {
			stats.TotalBytes += t.Progress.TotalBytes
			stats.DownloadedBytes += t.Progress.DownloadedBytes
		}

		if t.State == task.StateDownloading {
			stats.SpeedBPS += t.Progress.SpeedBPS
		}
	}

	if stats.TotalBytes > 0 {
		stats.OverallProgress = float64(stats.DownloadedBytes) / float64(stats.TotalBytes) * 100
		if stats.OverallProgress > 100 {
			stats.OverallProgress = 100
		}
	}

	return stats
}
