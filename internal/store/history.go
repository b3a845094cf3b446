package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/monitor"
)

// AddMonitoringHistory inserts one per-item decision row.
func (s *Store) AddMonitoringHistory(ctx context.Context, entry *monitor.MonitoringEntry) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_history (task_id, media_type, movie_id, series_id, episode_ids,
			title, outcome, reason, message, releases_found, grabbed_release, is_upgrade,
			old_score, new_score, queue_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TaskID, entry.MediaType, entry.MovieID, entry.SeriesID,
		marshalJSON(entry.EpisodeIDs, "[]"), entry.Title, entry.Outcome, entry.Reason,
		entry.Message, entry.ReleasesFound, entry.GrabbedRelease, entry.IsUpgrade,
		entry.OldScore, entry.NewScore, entry.QueueItemID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting monitoring history: %w", err)
	}
	entry.ID, err = result.LastInsertId()
	return err
}

// AddTaskHistory inserts one task run summary.
func (s *Store) AddTaskHistory(ctx context.Context, run *monitor.TaskRun) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history (task_id, started_at, duration_ms, items_considered,
			items_searched, grabbed, rejected, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.TaskID, run.StartedAt, run.Duration.Milliseconds(), run.ItemsConsidered,
		run.ItemsSearched, run.Grabbed, run.Rejected, run.Errors,
	)
	if err != nil {
		return fmt.Errorf("inserting task history: %w", err)
	}
	run.ID, err = result.LastInsertId()
	return err
}

// PruneTaskHistory deletes summaries and their per-item rows older than
// the cutoff.
func (s *Store) PruneTaskHistory(ctx context.Context, before time.Time) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM monitoring_history WHERE created_at < ?`, before); err != nil {
		return 0, fmt.Errorf("pruning monitoring history: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE started_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("pruning task history: %w", err)
	}
	return result.RowsAffected()
}

// ListTaskHistory returns the most recent runs for one task.
func (s *Store) ListTaskHistory(ctx context.Context, taskID string, limit int) ([]*monitor.TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, started_at, duration_ms, items_considered, items_searched,
			grabbed, rejected, errors
		FROM task_history WHERE task_id = ? ORDER BY started_at DESC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing task history: %w", err)
	}
	defer rows.Close()

	var runs []*monitor.TaskRun
	for rows.Next() {
		var run monitor.TaskRun
		var durationMs int64
		if err := rows.Scan(
			&run.ID, &run.TaskID, &run.StartedAt, &durationMs, &run.ItemsConsidered,
			&run.ItemsSearched, &run.Grabbed, &run.Rejected, &run.Errors,
		); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ListMonitoringHistory returns the most recent per-item rows for one
// task.
func (s *Store) ListMonitoringHistory(ctx context.Context, taskID string, limit int) ([]*monitor.MonitoringEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, media_type, movie_id, series_id, episode_ids, title, outcome,
			reason, message, releases_found, grabbed_release, is_upgrade, old_score,
			new_score, queue_item_id, created_at
		FROM monitoring_history WHERE task_id = ? ORDER BY created_at DESC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing monitoring history: %w", err)
	}
	defer rows.Close()

	var entries []*monitor.MonitoringEntry
	for rows.Next() {
		var entry monitor.MonitoringEntry
		var episodeIDs string
		if err := rows.Scan(
			&entry.ID, &entry.TaskID, &entry.MediaType, &entry.MovieID, &entry.SeriesID,
			&episodeIDs, &entry.Title, &entry.Outcome, &entry.Reason, &entry.Message,
			&entry.ReleasesFound, &entry.GrabbedRelease, &entry.IsUpgrade, &entry.OldScore,
			&entry.NewScore, &entry.QueueItemID, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.EpisodeIDs = unmarshalIDs(episodeIDs)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
