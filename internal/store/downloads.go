package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cinephage/cinephage/internal/download"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const downloadColumns = `id, media_type, movie_id, series_id, episode_ids, title, info_hash,
	download_url, indexer_id, indexer_name, protocol, size, score, status, client_id,
	client_name, import_attempts, error_message, progress, download_speed, upload_speed,
	eta, ratio, grabbed_at, completed_at, imported_at, updated_at`

// CreateDownload inserts a download record and returns its id.
func (s *Store) CreateDownload(ctx context.Context, record *download.Record) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (media_type, movie_id, series_id, episode_ids, title, info_hash,
			download_url, indexer_id, indexer_name, protocol, size, score, status, client_id,
			client_name, import_attempts, error_message, progress, download_speed, upload_speed,
			eta, ratio, grabbed_at, completed_at, imported_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.MediaType, record.MovieID, record.SeriesID, marshalJSON(record.EpisodeIDs, "[]"),
		record.Title, record.InfoHash, record.DownloadURL, record.IndexerID, record.IndexerName,
		record.Protocol, record.Size, record.Score, record.Status, record.ClientID,
		record.ClientName, record.ImportAttempts, record.ErrorMessage, record.Progress,
		record.DownloadSpeed, record.UploadSpeed, record.ETA, record.Ratio, record.GrabbedAt,
		nullableTime(record.CompletedAt), nullableTime(record.ImportedAt), record.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting download: %w", err)
	}
	return result.LastInsertId()
}

// UpdateDownload rewrites a download record's mutable fields.
func (s *Store) UpdateDownload(ctx context.Context, record *download.Record) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE downloads
		SET status = ?, client_id = ?, client_name = ?, import_attempts = ?, error_message = ?,
			progress = ?, download_speed = ?, upload_speed = ?, eta = ?, ratio = ?,
			completed_at = ?, imported_at = ?, updated_at = ?
		WHERE id = ?`,
		record.Status, record.ClientID, record.ClientName, record.ImportAttempts,
		record.ErrorMessage, record.Progress, record.DownloadSpeed, record.UploadSpeed,
		record.ETA, record.Ratio, nullableTime(record.CompletedAt), nullableTime(record.ImportedAt),
		record.UpdatedAt, record.ID,
	)
	if err != nil {
		return fmt.Errorf("updating download: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("download %d: %w", record.ID, ErrNotFound)
	}
	return nil
}

// GetDownload loads one download record.
func (s *Store) GetDownload(ctx context.Context, id int64) (*download.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
	record, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("download %d: %w", id, ErrNotFound)
	}
	return record, err
}

// ListActiveDownloads returns records that still need queue polling.
func (s *Store) ListActiveDownloads(ctx context.Context) ([]*download.Record, error) {
	return s.queryDownloads(ctx,
		`SELECT `+downloadColumns+` FROM downloads
		 WHERE status NOT IN (?, ?) ORDER BY id`,
		download.StatusImported, download.StatusFailed)
}

// ListDownloadsByStatus returns records in one state.
func (s *Store) ListDownloadsByStatus(ctx context.Context, status download.Status) ([]*download.Record, error) {
	return s.queryDownloads(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE status = ? ORDER BY id`, status)
}

// ListClientIDs returns the client-side ids of every record for the
// named client regardless of status, for the orphan sweep.
func (s *Store) ListClientIDs(ctx context.Context, clientName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id FROM downloads WHERE client_name = ? AND client_id != ''`, clientName)
	if err != nil {
		return nil, fmt.Errorf("listing client ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) queryDownloads(ctx context.Context, query string, args ...any) ([]*download.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying downloads: %w", err)
	}
	defer rows.Close()

	var records []*download.Record
	for rows.Next() {
		record, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*download.Record, error) {
	var record download.Record
	var episodeIDs string
	var completedAt, importedAt sql.NullTime
	err := row.Scan(
		&record.ID, &record.MediaType, &record.MovieID, &record.SeriesID, &episodeIDs,
		&record.Title, &record.InfoHash, &record.DownloadURL, &record.IndexerID,
		&record.IndexerName, &record.Protocol, &record.Size, &record.Score, &record.Status,
		&record.ClientID, &record.ClientName, &record.ImportAttempts, &record.ErrorMessage,
		&record.Progress, &record.DownloadSpeed, &record.UploadSpeed, &record.ETA, &record.Ratio,
		&record.GrabbedAt, &completedAt, &importedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.EpisodeIDs = unmarshalIDs(episodeIDs)
	record.CompletedAt = timePtr(completedAt)
	record.ImportedAt = timePtr(importedAt)
	return &record, nil
}
