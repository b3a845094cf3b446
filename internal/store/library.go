package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/scoring"
)

// Movie is a library movie row.
type Movie struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Year        int        `json:"year"`
	TmdbID      int64      `json:"tmdbId,omitempty"`
	ImdbID      string     `json:"imdbId,omitempty"`
	ProfileID   int64      `json:"profileId"`
	Monitored   bool       `json:"monitored"`
	HasFile     bool       `json:"hasFile"`
	FilePath    string     `json:"filePath,omitempty"`
	FileTitle   string     `json:"fileTitle,omitempty"`
	FileScore   int        `json:"fileScore"`
	FileSize    int64      `json:"fileSize"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	AddedAt     time.Time  `json:"addedAt"`
}

// Series is a library series row.
type Series struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Year      int       `json:"year"`
	TmdbID    int64     `json:"tmdbId,omitempty"`
	TvdbID    int64     `json:"tvdbId,omitempty"`
	ImdbID    string    `json:"imdbId,omitempty"`
	ProfileID int64     `json:"profileId"`
	Monitored bool      `json:"monitored"`
	AddedAt   time.Time `json:"addedAt"`
}

// Episode is a library episode row.
type Episode struct {
	ID            int64      `json:"id"`
	SeriesID      int64      `json:"seriesId"`
	SeasonNumber  int        `json:"seasonNumber"`
	EpisodeNumber int        `json:"episodeNumber"`
	Title         string     `json:"title,omitempty"`
	AirDate       *time.Time `json:"airDate,omitempty"`
	Monitored     bool       `json:"monitored"`
	HasFile       bool       `json:"hasFile"`
	FilePath      string     `json:"filePath,omitempty"`
	FileTitle     string     `json:"fileTitle,omitempty"`
	FileScore     int        `json:"fileScore"`
	FileSize      int64      `json:"fileSize"`
}

// CreateMovie inserts a movie and returns its id.
func (s *Store) CreateMovie(ctx context.Context, movie *Movie) (int64, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO movies (title, year, tmdb_id, imdb_id, profile_id, monitored, release_date, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movie.Title, movie.Year, movie.TmdbID, movie.ImdbID, movie.ProfileID, movie.Monitored,
		nullableTime(movie.ReleaseDate), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting movie: %w", err)
	}
	movie.ID, err = result.LastInsertId()
	movie.AddedAt = now
	return movie.ID, err
}

// GetMovie loads one movie.
func (s *Store) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, year, tmdb_id, imdb_id, profile_id, monitored, has_file,
			file_path, file_title, file_score, file_size, release_date, added_at
		FROM movies WHERE id = ?`, id)

	var movie Movie
	var releaseDate sql.NullTime
	err := row.Scan(
		&movie.ID, &movie.Title, &movie.Year, &movie.TmdbID, &movie.ImdbID, &movie.ProfileID,
		&movie.Monitored, &movie.HasFile, &movie.FilePath, &movie.FileTitle, &movie.FileScore,
		&movie.FileSize, &releaseDate, &movie.AddedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("movie %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	movie.ReleaseDate = timePtr(releaseDate)
	return &movie, nil
}

// SetMovieFile records the imported file for a movie.
func (s *Store) SetMovieFile(ctx context.Context, id int64, path, releaseTitle string, score int, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE movies SET has_file = 1, file_path = ?, file_title = ?, file_score = ?,
			file_size = ?, updated_at = ? WHERE id = ?`,
		path, releaseTitle, score, size, time.Now(), id)
	if err != nil {
		return fmt.Errorf("setting movie file: %w", err)
	}
	return nil
}

// SetMovieMonitored toggles monitoring for a movie.
func (s *Store) SetMovieMonitored(ctx context.Context, id int64, monitored bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE movies SET monitored = ?, updated_at = ? WHERE id = ?`, monitored, time.Now(), id)
	if err != nil {
		return fmt.Errorf("setting movie monitored: %w", err)
	}
	return nil
}

// CreateSeries inserts a series and returns its id.
func (s *Store) CreateSeries(ctx context.Context, series *Series) (int64, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO series (title, year, tmdb_id, tvdb_id, imdb_id, profile_id, monitored, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		series.Title, series.Year, series.TmdbID, series.TvdbID, series.ImdbID,
		series.ProfileID, series.Monitored, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting series: %w", err)
	}
	series.ID, err = result.LastInsertId()
	series.AddedAt = now
	return series.ID, err
}

// GetSeries loads one series.
func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, year, tmdb_id, tvdb_id, imdb_id, profile_id, monitored, added_at
		FROM series WHERE id = ?`, id)

	var series Series
	err := row.Scan(
		&series.ID, &series.Title, &series.Year, &series.TmdbID, &series.TvdbID,
		&series.ImdbID, &series.ProfileID, &series.Monitored, &series.AddedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &series, nil
}

// GetEpisode loads one episode.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, series_id, season_number, episode_number, title, air_date, monitored,
			has_file, file_path, file_title, file_score, file_size
		FROM episodes WHERE id = ?`, id)

	var episode Episode
	var airDate sql.NullTime
	err := row.Scan(
		&episode.ID, &episode.SeriesID, &episode.SeasonNumber, &episode.EpisodeNumber,
		&episode.Title, &airDate, &episode.Monitored, &episode.HasFile, &episode.FilePath,
		&episode.FileTitle, &episode.FileScore, &episode.FileSize,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	episode.AirDate = timePtr(airDate)
	return &episode, nil
}

// CreateSeason inserts a season row.
func (s *Store) CreateSeason(ctx context.Context, seriesID int64, seasonNumber int, monitored bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seasons (series_id, season_number, monitored) VALUES (?, ?, ?)
		ON CONFLICT (series_id, season_number) DO UPDATE SET monitored = excluded.monitored`,
		seriesID, seasonNumber, monitored)
	if err != nil {
		return fmt.Errorf("inserting season: %w", err)
	}
	return nil
}

// CreateEpisode inserts an episode and returns its id.
func (s *Store) CreateEpisode(ctx context.Context, episode *Episode) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (series_id, season_number, episode_number, title, air_date, monitored)
		VALUES (?, ?, ?, ?, ?, ?)`,
		episode.SeriesID, episode.SeasonNumber, episode.EpisodeNumber, episode.Title,
		nullableTime(episode.AirDate), episode.Monitored,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting episode: %w", err)
	}
	episode.ID, err = result.LastInsertId()
	return episode.ID, err
}

// SetEpisodeFile records the imported file for an episode.
func (s *Store) SetEpisodeFile(ctx context.Context, id int64, path, releaseTitle string, score int, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodes SET has_file = 1, file_path = ?, file_title = ?, file_score = ?, file_size = ?
		WHERE id = ?`,
		path, releaseTitle, score, size, id)
	if err != nil {
		return fmt.Errorf("setting episode file: %w", err)
	}
	return nil
}

// ContentState reports the library standing of the content behind a
// download. For TV the monitored cascade applies: an episode counts as
// monitored only when its series and season are monitored too, and
// HasFile is true only when every targeted episode has a file.
func (s *Store) ContentState(ctx context.Context, mediaType scoring.MediaType, movieID, seriesID int64, episodeIDs []int64) (download.ContentState, error) {
	if mediaType == scoring.MediaTypeMovie {
		row := s.db.QueryRowContext(ctx,
			`SELECT monitored, has_file FROM movies WHERE id = ?`, movieID)
		var state download.ContentState
		err := row.Scan(&state.Monitored, &state.HasFile)
		if errors.Is(err, sql.ErrNoRows) {
			return download.ContentState{}, nil
		}
		if err != nil {
			return download.ContentState{}, fmt.Errorf("checking movie state: %w", err)
		}
		state.Exists = true
		return state, nil
	}

	if len(episodeIDs) == 0 {
		row := s.db.QueryRowContext(ctx,
			`SELECT monitored FROM series WHERE id = ?`, seriesID)
		var state download.ContentState
		err := row.Scan(&state.Monitored)
		if errors.Is(err, sql.ErrNoRows) {
			return download.ContentState{}, nil
		}
		if err != nil {
			return download.ContentState{}, fmt.Errorf("checking series state: %w", err)
		}
		state.Exists = true
		return state, nil
	}

	state := download.ContentState{Exists: true, HasFile: true}
	for _, episodeID := range episodeIDs {
		row := s.db.QueryRowContext(ctx, `
			SELECT e.monitored AND sr.monitored AND COALESCE(sn.monitored, 1), e.has_file
			FROM episodes e
			JOIN series sr ON sr.id = e.series_id
			LEFT JOIN seasons sn ON sn.series_id = e.series_id AND sn.season_number = e.season_number
			WHERE e.id = ? AND e.series_id = ?`, episodeID, seriesID)
		var monitored, hasFile bool
		err := row.Scan(&monitored, &hasFile)
		if errors.Is(err, sql.ErrNoRows) {
			return download.ContentState{}, nil
		}
		if err != nil {
			return download.ContentState{}, fmt.Errorf("checking episode state: %w", err)
		}
		if monitored {
			state.Monitored = true
		}
		if !hasFile {
			state.HasFile = false
		}
	}
	return state, nil
}

// ListMissing returns monitored items without a file whose release or
// air date has passed, movies first, oldest first.
func (s *Store) ListMissing(ctx context.Context, limit int) ([]decisioning.Item, error) {
	now := time.Now()

	items, err := s.queryMovieItems(ctx, `
		SELECT id, title, year, tmdb_id, imdb_id, profile_id, monitored, has_file,
			file_title, file_score
		FROM movies
		WHERE monitored = 1 AND has_file = 0
		  AND (release_date IS NULL OR release_date <= ?)
		ORDER BY added_at LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}

	remaining := limit - len(items)
	if remaining <= 0 {
		return items, nil
	}

	episodes, err := s.queryEpisodeItems(ctx, `
		SELECT `+episodeItemColumns+`
		FROM episodes e
		JOIN series sr ON sr.id = e.series_id
		LEFT JOIN seasons sn ON sn.series_id = e.series_id AND sn.season_number = e.season_number
		WHERE e.monitored = 1 AND sr.monitored = 1 AND COALESCE(sn.monitored, 1) = 1
		  AND e.has_file = 0 AND e.air_date IS NOT NULL AND e.air_date <= ?
		ORDER BY e.air_date LIMIT ?`, now, remaining)
	if err != nil {
		return nil, err
	}
	return append(items, episodes...), nil
}

// ListUpgradable returns monitored items with a file under a profile
// that allows upgrades. With cutoffUnmetOnly, only items whose file
// score is below the profile cutoff qualify.
func (s *Store) ListUpgradable(ctx context.Context, cutoffUnmetOnly bool, limit int) ([]decisioning.Item, error) {
	cutoffClause := ""
	if cutoffUnmetOnly {
		cutoffClause = " AND p.upgrade_until_score > 0 AND file_score_ref < p.upgrade_until_score"
	}

	movieQuery := `
		SELECT m.id, m.title, m.year, m.tmdb_id, m.imdb_id, m.profile_id, m.monitored,
			m.has_file, m.file_title, m.file_score
		FROM movies m
		JOIN scoring_profiles p ON p.id = m.profile_id
		WHERE m.monitored = 1 AND m.has_file = 1 AND p.upgrades_allowed = 1` +
		replaceFileScoreRef(cutoffClause, "m.file_score") + `
		ORDER BY m.file_score LIMIT ?`
	items, err := s.queryMovieItems(ctx, movieQuery, limit)
	if err != nil {
		return nil, err
	}

	remaining := limit - len(items)
	if remaining <= 0 {
		return items, nil
	}

	episodeQuery := `
		SELECT ` + episodeItemColumns + `
		FROM episodes e
		JOIN series sr ON sr.id = e.series_id
		LEFT JOIN seasons sn ON sn.series_id = e.series_id AND sn.season_number = e.season_number
		JOIN scoring_profiles p ON p.id = sr.profile_id
		WHERE e.monitored = 1 AND sr.monitored = 1 AND COALESCE(sn.monitored, 1) = 1
		  AND e.has_file = 1 AND p.upgrades_allowed = 1` +
		replaceFileScoreRef(cutoffClause, "e.file_score") + `
		ORDER BY e.file_score LIMIT ?`
	episodes, err := s.queryEpisodeItems(ctx, episodeQuery, remaining)
	if err != nil {
		return nil, err
	}
	return append(items, episodes...), nil
}

// ListRecentlyAired returns monitored episodes without a file that
// aired inside the window.
func (s *Store) ListRecentlyAired(ctx context.Context, since, until time.Time, limit int) ([]decisioning.Item, error) {
	return s.queryEpisodeItems(ctx, `
		SELECT `+episodeItemColumns+`
		FROM episodes e
		JOIN series sr ON sr.id = e.series_id
		LEFT JOIN seasons sn ON sn.series_id = e.series_id AND sn.season_number = e.season_number
		WHERE e.monitored = 1 AND sr.monitored = 1 AND COALESCE(sn.monitored, 1) = 1
		  AND e.has_file = 0 AND e.air_date > ? AND e.air_date <= ?
		ORDER BY e.air_date LIMIT ?`, since, until, limit)
}

const episodeItemColumns = `e.id, e.series_id, e.season_number, e.episode_number, e.air_date,
	e.monitored, e.has_file, e.file_title, e.file_score,
	sr.title, sr.year, sr.tmdb_id, sr.imdb_id, sr.profile_id, sr.monitored,
	COALESCE(sn.monitored, 1)`

func (s *Store) queryMovieItems(ctx context.Context, query string, args ...any) ([]decisioning.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying movie items: %w", err)
	}
	defer rows.Close()

	var items []decisioning.Item
	for rows.Next() {
		var item decisioning.Item
		if err := rows.Scan(
			&item.MovieID, &item.Title, &item.Year, &item.TmdbID, &item.ImdbID,
			&item.ProfileID, &item.Monitored, &item.HasFile, &item.ExistingTitle,
			&item.ExistingScore,
		); err != nil {
			return nil, err
		}
		item.MediaType = scoring.MediaTypeMovie
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) queryEpisodeItems(ctx context.Context, query string, args ...any) ([]decisioning.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying episode items: %w", err)
	}
	defer rows.Close()

	var items []decisioning.Item
	for rows.Next() {
		var item decisioning.Item
		var episodeID int64
		var airDate sql.NullTime
		var seriesTitle string
		if err := rows.Scan(
			&episodeID, &item.SeriesID, &item.SeasonNumber, &item.EpisodeNumber, &airDate,
			&item.Monitored, &item.HasFile, &item.ExistingTitle, &item.ExistingScore,
			&seriesTitle, &item.Year, &item.TmdbID, &item.ImdbID, &item.ProfileID,
			&item.SeriesMonitored, &item.SeasonMonitored,
		); err != nil {
			return nil, err
		}
		item.MediaType = scoring.MediaTypeTV
		item.EpisodeIDs = []int64{episodeID}
		item.Title = seriesTitle
		item.AirDate = timePtr(airDate)
		items = append(items, item)
	}
	return items, rows.Err()
}

// replaceFileScoreRef substitutes the table-qualified file score column
// into the shared cutoff clause.
func replaceFileScoreRef(clause, column string) string {
	return strings.ReplaceAll(clause, "file_score_ref", column)
}
