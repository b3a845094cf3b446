package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
)

// AddBlocklistEntry inserts a blocklist entry.
func (s *Store) AddBlocklistEntry(ctx context.Context, entry *download.BlocklistEntry) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO blocklist (media_type, movie_id, series_id, episode_ids, title, info_hash,
			indexer_id, reason, message, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.MediaType, entry.MovieID, entry.SeriesID, marshalJSON(entry.EpisodeIDs, "[]"),
		entry.Title, entry.InfoHash, entry.IndexerID, entry.Reason, entry.Message,
		entry.CreatedAt, nullableTime(entry.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting blocklist entry: %w", err)
	}
	entry.ID, err = result.LastInsertId()
	return err
}

// IsBlocklisted reports whether a live entry matches the release by
// info hash, or by exact title within the same content link.
func (s *Store) IsBlocklisted(ctx context.Context, query decisioning.BlocklistQuery) (bool, error) {
	now := time.Now()

	if query.InfoHash != "" {
		// The content link keeps a hash blocked for one movie or series
		// from blocking the same release elsewhere.
		var count int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM blocklist
			WHERE info_hash = ? AND movie_id = ? AND series_id = ?
			  AND (expires_at IS NULL OR expires_at > ?)`,
			query.InfoHash, query.MovieID, query.SeriesID, now,
		).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("checking blocklist by hash: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blocklist
		WHERE title = ? AND movie_id = ? AND series_id = ?
		  AND (expires_at IS NULL OR expires_at > ?)`,
		query.Title, query.MovieID, query.SeriesID, now,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking blocklist by title: %w", err)
	}
	return count > 0, nil
}

// DeleteExpiredBlocklistEntries prunes entries whose TTL has passed.
func (s *Store) DeleteExpiredBlocklistEntries(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM blocklist WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("pruning blocklist: %w", err)
	}
	return result.RowsAffected()
}

// ListBlocklist returns every entry, newest first.
func (s *Store) ListBlocklist(ctx context.Context) ([]*download.BlocklistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_type, movie_id, series_id, episode_ids, title, info_hash, indexer_id,
			reason, message, created_at, expires_at
		FROM blocklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing blocklist: %w", err)
	}
	defer rows.Close()

	var entries []*download.BlocklistEntry
	for rows.Next() {
		var entry download.BlocklistEntry
		var episodeIDs string
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&entry.ID, &entry.MediaType, &entry.MovieID, &entry.SeriesID, &episodeIDs,
			&entry.Title, &entry.InfoHash, &entry.IndexerID, &entry.Reason, &entry.Message,
			&entry.CreatedAt, &expiresAt,
		); err != nil {
			return nil, err
		}
		entry.EpisodeIDs = unmarshalIDs(episodeIDs)
		entry.ExpiresAt = timePtr(expiresAt)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DeleteBlocklistEntry removes one entry by id.
func (s *Store) DeleteBlocklistEntry(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocklist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting blocklist entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("blocklist entry %d: %w", id, ErrNotFound)
	}
	return nil
}
