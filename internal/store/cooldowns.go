package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/scoring"
)

// cooldownEpisodeID picks the identity column for an item's cooldown
// row. Multi-episode grabs key on the first episode.
func cooldownEpisodeID(item decisioning.Item) int64 {
	if len(item.EpisodeIDs) > 0 {
		return item.EpisodeIDs[0]
	}
	return 0
}

// NextSearchAt returns when the item may next be searched, if a
// cooldown row exists.
func (s *Store) NextSearchAt(ctx context.Context, item decisioning.Item) (time.Time, bool, error) {
	var next time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT next_search_at FROM search_cooldowns
		WHERE media_type = ? AND movie_id = ? AND series_id = ? AND episode_id = ?`,
		item.MediaType, item.MovieID, item.SeriesID, cooldownEpisodeID(item),
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading search cooldown: %w", err)
	}
	return next, true, nil
}

// SetNextSearch upserts the item's cooldown.
func (s *Store) SetNextSearch(ctx context.Context, item decisioning.Item, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_cooldowns (media_type, movie_id, series_id, episode_id, next_search_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (media_type, movie_id, series_id, episode_id)
		DO UPDATE SET next_search_at = excluded.next_search_at`,
		item.MediaType, item.MovieID, item.SeriesID, cooldownEpisodeID(item), next,
	)
	if err != nil {
		return fmt.Errorf("setting search cooldown: %w", err)
	}
	return nil
}

// ClearCooldown removes an item's cooldown, making it searchable now.
func (s *Store) ClearCooldown(ctx context.Context, mediaType scoring.MediaType, movieID, seriesID, episodeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM search_cooldowns
		WHERE media_type = ? AND movie_id = ? AND series_id = ? AND episode_id = ?`,
		mediaType, movieID, seriesID, episodeID,
	)
	if err != nil {
		return fmt.Errorf("clearing search cooldown: %w", err)
	}
	return nil
}
