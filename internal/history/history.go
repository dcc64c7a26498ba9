// Package history keeps a durable log of finished downloads in sqlite.
// Records are append-only from the queue's point of view; users prune them
// explicitly or by age.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"

	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id               TEXT PRIMARY KEY,
	task_id          TEXT NOT NULL,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	destination      TEXT NOT NULL,
	state            TEXT NOT NULL,
	total_bytes      INTEGER NOT NULL DEFAULT 0,
	checksum         TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL DEFAULT '',
	retries          INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	avg_speed_bps    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_history_completed_at ON history(completed_at);
`

// Record is one finished download. IDs are ksuids: unique, URL-safe, and
// roughly time-ordered, which makes them stable tiebreakers when several
// downloads finish in the same instant.
type Record struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"taskId"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Destination     string    `json:"destination"`
	State           string    `json:"state"`
	TotalBytes      int64     `json:"totalBytes"`
	Checksum        string    `json:"checksum,omitempty"`
	Error           string    `json:"error,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Retries         int       `json:"retries"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
	AverageSpeedBPS int64     `json:"averageSpeedBytesPerSec"`
}

// Stats summarizes the whole log.
type Stats struct {
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Cancelled       int     `json:"cancelled"`
	TotalBytes      int64   `json:"totalBytes"`
	AverageSpeedBPS int64   `json:"averageSpeedBytesPerSec"`
	SuccessRate     float64 `json:"successRatePercent"`
}

// Store is the sqlite-backed history log.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordFromTask builds a history record for a task that just finished,
// deriving the elapsed time and average throughput from the task's own
// timestamps and byte counters.
func RecordFromTask(t task.Task) Record {
	completedAt := t.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	var duration int64
	if !t.StartedAt.IsZero() && completedAt.After(t.StartedAt) {
		duration = int64(completedAt.Sub(t.StartedAt) / time.Second)
	}

	var avgSpeed int64
	if duration > 0 {
		avgSpeed = t.Progress.DownloadedBytes / duration
	}

	return Record{
		ID:              ksuid.New().String(),
		TaskID:          t.ID.String(),
		Name:            t.Name,
		URL:             t.URL,
		Destination:     t.Destination,
		State:           t.State.String(),
		TotalBytes:      t.Progress.TotalBytes,
		Checksum:        t.ExpectedChecksum,
		Error:           t.Error,
		Provider:        t.Provider,
		Retries:         t.Retries,
		StartedAt:       t.StartedAt,
		CompletedAt:     completedAt,
		DurationSeconds: duration,
		AverageSpeedBPS: avgSpeed,
	}
}

// AppendTask records a finished task. This is the hook the reconciler
// calls on every transition into a terminal state.
func (s *Store) AppendTask(t task.Task) error {
	return s.Append(context.Background(), RecordFromTask(t))
}

// Append inserts a record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, task_id, name, url, destination, state, total_bytes, checksum, error, provider, retries, started_at, completed_at, duration_seconds, avg_speed_bps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.Name, rec.URL, rec.Destination, rec.State,
		rec.TotalBytes, rec.Checksum, rec.Error, rec.Provider, rec.Retries,
		rec.StartedAt, rec.CompletedAt, rec.DurationSeconds, rec.AverageSpeedBPS,
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	return nil
}

// List returns records newest first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, task_id, name, url, destination, state, total_bytes, checksum, error, provider, retries, started_at, completed_at, duration_seconds, avg_speed_bps
		FROM history ORDER BY completed_at DESC, id DESC`

	var rows *sql.Rows
	var err error

	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Search returns records whose name or URL contains the query,
// case-insensitively, newest first.
func (s *Store) Search(ctx context.Context, query string) ([]Record, error) {
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, name, url, destination, state, total_bytes, checksum, error, provider, retries, started_at, completed_at, duration_seconds, avg_speed_bps
		FROM history
		WHERE name LIKE ? COLLATE NOCASE OR url LIKE ? COLLATE NOCASE
		ORDER BY completed_at DESC, id DESC`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record

	for rows.Next() {
		var rec Record

		err := rows.Scan(
			&rec.ID, &rec.TaskID, &rec.Name, &rec.URL, &rec.Destination, &rec.State,
			&rec.TotalBytes, &rec.Checksum, &rec.Error, &rec.Provider, &rec.Retries,
			&rec.StartedAt, &rec.CompletedAt, &rec.DurationSeconds, &rec.AverageSpeedBPS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return records, nil
}

// Remove deletes one record. The boolean reports whether it existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove history record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count removed records: %w", err)
	}

	return n > 0, nil
}

// Clear deletes records older than the given number of days and returns
// how many were removed. olderThanDays <= 0 clears everything.
func (s *Store) Clear(ctx context.Context, olderThanDays int) (int, error) {
	var res sql.Result
	var err error

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		res, err = s.db.ExecContext(ctx, `DELETE FROM history WHERE completed_at < ?`, cutoff)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM history`)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared records: %w", err)
	}

	return int(n), nil
}

// RunRetentionSweep prunes records older than days, once right away and
// then every interval until ctx ends. days <= 0 means retention is
// disabled and nothing is ever pruned.
func (s *Store) RunRetentionSweep(ctx context.Context, days int, interval time.Duration) {
	if days <= 0 {
		return
	}

	sweep := func() {
		n, err := s.Clear(ctx, days)
		if err != nil {
			logger.Warnf("History retention sweep failed: %v", err)
		} else if n > 0 {
			logger.Infof("Pruned %d history records older than %d days", n, days)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Stats aggregates the whole log. The success rate is the share of all
// records that completed; the average speed is the mean over records.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_bytes), 0),
			COALESCE(CAST(AVG(avg_speed_bps) AS INTEGER), 0)
		FROM history`,
		task.StateCompleted.String(), task.StateFailed.String(), task.StateCancelled.String(),
	).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Cancelled, &stats.TotalBytes, &stats.AverageSpeedBPS)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate history: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100
	}

	return stats, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
