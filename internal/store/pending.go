package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/scoring"
)

const pendingColumns = `id, media_type, movie_id, series_id, episode_ids, title, info_hash,
	download_url, indexer_id, indexer_name, protocol, size, score, status, reason, added_at, process_at`

// ReplaceWaiting atomically supersedes any waiting release for the same
// content and inserts the new one, so at most one waiting release
// exists per content item.
func (s *Store) ReplaceWaiting(ctx context.Context, release *download.PendingRelease) (*download.PendingRelease, error) {
	var superseded *download.PendingRelease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+pendingColumns+` FROM pending_releases
			 WHERE status = ? AND media_type = ? AND movie_id = ? AND series_id = ? AND episode_ids = ?`,
			download.PendingStatusWaiting, release.MediaType, release.MovieID, release.SeriesID,
			marshalJSON(release.EpisodeIDs, "[]"))
		existing, err := scanPending(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if existing != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE pending_releases SET status = ? WHERE id = ?`,
				download.PendingStatusSuperseded, existing.ID); err != nil {
				return fmt.Errorf("superseding pending release: %w", err)
			}
			existing.Status = download.PendingStatusSuperseded
			superseded = existing
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO pending_releases (media_type, movie_id, series_id, episode_ids, title,
				info_hash, download_url, indexer_id, indexer_name, protocol, size, score,
				status, reason, added_at, process_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			release.MediaType, release.MovieID, release.SeriesID,
			marshalJSON(release.EpisodeIDs, "[]"), release.Title, release.InfoHash,
			release.DownloadURL, release.IndexerID, release.IndexerName, release.Protocol,
			release.Size, release.Score, release.Status, release.Reason, release.AddedAt,
			release.ProcessAt,
		)
		if err != nil {
			return fmt.Errorf("inserting pending release: %w", err)
		}
		release.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// GetWaitingFor returns the waiting release for a content item, if any.
func (s *Store) GetWaitingFor(ctx context.Context, mediaType scoring.MediaType, movieID, seriesID int64, episodeIDs []int64) (*download.PendingRelease, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_releases
		 WHERE status = ? AND media_type = ? AND movie_id = ? AND series_id = ? AND episode_ids = ?`,
		download.PendingStatusWaiting, mediaType, movieID, seriesID, marshalJSON(episodeIDs, "[]"))
	release, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return release, err
}

// ListDue returns waiting releases whose delay window has passed.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*download.PendingRelease, error) {
	return s.queryPending(ctx,
		`SELECT `+pendingColumns+` FROM pending_releases
		 WHERE status = ? AND process_at <= ? ORDER BY process_at LIMIT ?`,
		download.PendingStatusWaiting, now, limit)
}

// ListWaiting returns every waiting release.
func (s *Store) ListWaiting(ctx context.Context) ([]*download.PendingRelease, error) {
	return s.queryPending(ctx,
		`SELECT `+pendingColumns+` FROM pending_releases
		 WHERE status = ? ORDER BY process_at`,
		download.PendingStatusWaiting)
}

// SetStatus moves a pending release to a terminal state.
func (s *Store) SetStatus(ctx context.Context, id int64, status download.PendingStatus, reason string) error {
	query := `UPDATE pending_releases SET status = ? WHERE id = ?`
	args := []any{status, id}
	if reason != "" {
		query = `UPDATE pending_releases SET status = ?, reason = ? WHERE id = ?`
		args = []any{status, reason, id}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating pending release: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("pending release %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryPending(ctx context.Context, query string, args ...any) ([]*download.PendingRelease, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending releases: %w", err)
	}
	defer rows.Close()

	var releases []*download.PendingRelease
	for rows.Next() {
		release, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, release)
	}
	return releases, rows.Err()
}

func scanPending(row rowScanner) (*download.PendingRelease, error) {
	var release download.PendingRelease
	var episodeIDs string
	err := row.Scan(
		&release.ID, &release.MediaType, &release.MovieID, &release.SeriesID, &episodeIDs,
		&release.Title, &release.InfoHash, &release.DownloadURL, &release.IndexerID,
		&release.IndexerName, &release.Protocol, &release.Size, &release.Score,
		&release.Status, &release.Reason, &release.AddedAt, &release.ProcessAt,
	)
	if err != nil {
		return nil, err
	}
	release.EpisodeIDs = unmarshalIDs(episodeIDs)
	return &release, nil
}
