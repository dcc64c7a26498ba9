package task

// QueueStats is a derived view over the task set. Byte totals only count
// tasks whose total size is known, so unknown sizes cannot skew the
// overall percentage.
type QueueStats struct {
	Queued      int `json:"queued"`
	Downloading int `json:"downloading"`
	Paused      int `json:"paused"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`
	Extracting  int `json:"extracting"`

	TotalBytes      int64   `json:"totalBytes"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	OverallProgress float64 `json:"overallProgressPercent"`
	SpeedBPS        int64   `json:"speedBytesPerSec"`
}

// Total is the number of tasks counted in the per-state buckets.
func (s QueueStats) Total() int {
	return s.Queued + s.Downloading + s.Paused + s.Completed + s.Failed + s.Cancelled + s.Extracting
}
