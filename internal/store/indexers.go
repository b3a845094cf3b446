package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/indexer/types"
)

const indexerColumns = `id, name, definition_id, base_url, protocol, privacy, priority,
	enabled, auto_search_enabled, supports_movies, supports_tv, supports_search,
	supports_rss, categories, settings, created_at, updated_at`

// CreateIndexer inserts an indexer definition and returns its id.
func (s *Store) CreateIndexer(ctx context.Context, def *types.IndexerDefinition) (int64, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO indexers (name, definition_id, base_url, protocol, privacy, priority,
			enabled, auto_search_enabled, supports_movies, supports_tv, supports_search,
			supports_rss, categories, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.Name, def.DefinitionID, def.BaseURL, def.Protocol, def.Privacy, def.Priority,
		def.Enabled, def.AutoSearchEnabled, def.SupportsMovies, def.SupportsTV,
		def.SupportsSearch, def.SupportsRSS, marshalJSON(def.Categories, "[]"),
		marshalJSON(def.Settings, "{}"), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting indexer: %w", err)
	}
	def.ID, err = result.LastInsertId()
	def.CreatedAt = now
	def.UpdatedAt = now
	return def.ID, err
}

// UpdateIndexer rewrites an indexer definition.
func (s *Store) UpdateIndexer(ctx context.Context, def *types.IndexerDefinition) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE indexers SET name = ?, definition_id = ?, base_url = ?, protocol = ?,
			privacy = ?, priority = ?, enabled = ?, auto_search_enabled = ?,
			supports_movies = ?, supports_tv = ?, supports_search = ?, supports_rss = ?,
			categories = ?, settings = ?, updated_at = ?
		WHERE id = ?`,
		def.Name, def.DefinitionID, def.BaseURL, def.Protocol, def.Privacy, def.Priority,
		def.Enabled, def.AutoSearchEnabled, def.SupportsMovies, def.SupportsTV,
		def.SupportsSearch, def.SupportsRSS, marshalJSON(def.Categories, "[]"),
		marshalJSON(def.Settings, "{}"), time.Now(), def.ID,
	)
	if err != nil {
		return fmt.Errorf("updating indexer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("indexer %d: %w", def.ID, ErrNotFound)
	}
	return nil
}

// GetIndexer loads one indexer definition.
func (s *Store) GetIndexer(ctx context.Context, id int64) (*types.IndexerDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+indexerColumns+` FROM indexers WHERE id = ?`, id)
	def, err := scanIndexer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("indexer %d: %w", id, ErrNotFound)
	}
	return def, err
}

// ListIndexers returns every configured indexer.
func (s *Store) ListIndexers(ctx context.Context) ([]*types.IndexerDefinition, error) {
	return s.queryIndexers(ctx, `SELECT `+indexerColumns+` FROM indexers ORDER BY priority, id`)
}

// ListEnabledIndexers returns indexers eligible for searching.
func (s *Store) ListEnabledIndexers(ctx context.Context) ([]*types.IndexerDefinition, error) {
	return s.queryIndexers(ctx,
		`SELECT `+indexerColumns+` FROM indexers WHERE enabled = 1 ORDER BY priority, id`)
}

// DeleteIndexer removes an indexer; its status row cascades.
func (s *Store) DeleteIndexer(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM indexers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting indexer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("indexer %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryIndexers(ctx context.Context, query string, args ...any) ([]*types.IndexerDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying indexers: %w", err)
	}
	defer rows.Close()

	var defs []*types.IndexerDefinition
	for rows.Next() {
		def, err := scanIndexer(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanIndexer(row rowScanner) (*types.IndexerDefinition, error) {
	var def types.IndexerDefinition
	var categories, settings string
	err := row.Scan(
		&def.ID, &def.Name, &def.DefinitionID, &def.BaseURL, &def.Protocol, &def.Privacy,
		&def.Priority, &def.Enabled, &def.AutoSearchEnabled, &def.SupportsMovies,
		&def.SupportsTV, &def.SupportsSearch, &def.SupportsRSS, &categories, &settings,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &def.Categories); err != nil {
		return nil, fmt.Errorf("indexer %q categories: %w", def.Name, err)
	}
	if err := json.Unmarshal([]byte(settings), &def.Settings); err != nil {
		return nil, fmt.Errorf("indexer %q settings: %w", def.Name, err)
	}
	return &def, nil
}

// SaveIndexerStatus upserts the health row for one indexer.
func (s *Store) SaveIndexerStatus(ctx context.Context, status types.IndexerStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_status (indexer_id, escalation_level, initial_failure,
			most_recent_failure, disabled_till, last_rss_sync)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (indexer_id) DO UPDATE SET
			escalation_level = excluded.escalation_level,
			initial_failure = excluded.initial_failure,
			most_recent_failure = excluded.most_recent_failure,
			disabled_till = excluded.disabled_till,
			last_rss_sync = excluded.last_rss_sync`,
		status.IndexerID, status.EscalationLevel, nullableTime(status.InitialFailure),
		nullableTime(status.MostRecentFailure), nullableTime(status.DisabledTill),
		nullableTime(status.LastRssSync),
	)
	if err != nil {
		return fmt.Errorf("saving indexer status: %w", err)
	}
	return nil
}

// LoadIndexerStatuses returns every persisted health row.
func (s *Store) LoadIndexerStatuses(ctx context.Context) ([]types.IndexerStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT indexer_id, escalation_level, initial_failure, most_recent_failure,
			disabled_till, last_rss_sync
		FROM indexer_status`)
	if err != nil {
		return nil, fmt.Errorf("loading indexer statuses: %w", err)
	}
	defer rows.Close()

	var statuses []types.IndexerStatus
	for rows.Next() {
		var status types.IndexerStatus
		var initial, recent, disabled, rssSync sql.NullTime
		if err := rows.Scan(&status.IndexerID, &status.EscalationLevel, &initial,
			&recent, &disabled, &rssSync); err != nil {
			return nil, err
		}
		status.InitialFailure = timePtr(initial)
		status.MostRecentFailure = timePtr(recent)
		status.DisabledTill = timePtr(disabled)
		status.LastRssSync = timePtr(rssSync)
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}
