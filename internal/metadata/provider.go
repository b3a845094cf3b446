// Package metadata defines the provider abstraction for movie and
// series metadata lookups.
package metadata

import "context"

// Provider defines the interface for metadata providers.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// IsConfigured returns true if the provider has required configuration.
	IsConfigured() bool

	// SearchMovies searches for movies, optionally filtered by year.
	SearchMovies(ctx context.Context, query string, year int) ([]MovieResult, error)

	// GetMovie gets movie details by provider id.
	GetMovie(ctx context.Context, id int64) (*MovieResult, error)

	// SearchSeries searches for TV series.
	SearchSeries(ctx context.Context, query string) ([]SeriesResult, error)

	// GetSeries gets series details by provider id.
	GetSeries(ctx context.Context, id int64) (*SeriesResult, error)

	// GetSeason returns one season with its episodes.
	GetSeason(ctx context.Context, seriesID int64, seasonNumber int) (*SeasonResult, error)

	// GetExternalIDs resolves cross-provider ids for a movie or series.
	GetExternalIDs(ctx context.Context, mediaType string, id int64) (*ExternalIDs, error)
}

// MovieResult represents a movie from a metadata provider.
type MovieResult struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Year        int      `json:"year"`
	Overview    string   `json:"overview,omitempty"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	ImdbID      string   `json:"imdbId,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Runtime     int      `json:"runtime,omitempty"`
}

// SeriesResult represents a TV series from a metadata provider.
type SeriesResult struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Year          int      `json:"year"`
	Overview      string   `json:"overview,omitempty"`
	ImdbID        string   `json:"imdbId,omitempty"`
	TvdbID        int64    `json:"tvdbId,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Status        string   `json:"status,omitempty"`
	SeasonNumbers []int    `json:"seasonNumbers,omitempty"`
}

// SeasonResult represents a TV season with episodes.
type SeasonResult struct {
	SeasonNumber int             `json:"seasonNumber"`
	Name         string          `json:"name"`
	AirDate      string          `json:"airDate,omitempty"`
	Episodes     []EpisodeResult `json:"episodes,omitempty"`
}

// EpisodeResult represents a TV episode.
type EpisodeResult struct {
	EpisodeNumber int    `json:"episodeNumber"`
	SeasonNumber  int    `json:"seasonNumber"`
	Title         string `json:"title"`
	AirDate       string `json:"airDate,omitempty"`
	Runtime       int    `json:"runtime,omitempty"`
}

// ExternalIDs links one item across metadata providers.
type ExternalIDs struct {
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int64  `json:"tmdbId,omitempty"`
	TvdbID int64  `json:"tvdbId,omitempty"`
}
