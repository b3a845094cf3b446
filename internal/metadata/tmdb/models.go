package tmdb

import (
	"strconv"

	"github.com/cinephage/cinephage/internal/metadata"
)

type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

type genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type movieResult struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	ReleaseDate string `json:"release_date"`
}

func (m movieResult) normalize() metadata.MovieResult {
	return metadata.MovieResult{
		ID:          m.ID,
		Title:       m.Title,
		Year:        yearOf(m.ReleaseDate),
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
	}
}

type searchMoviesResponse struct {
	Page         int           `json:"page"`
	Results      []movieResult `json:"results"`
	TotalResults int           `json:"total_results"`
}

type movieDetails struct {
	movieResult
	ImdbID  string  `json:"imdb_id"`
	Runtime int     `json:"runtime"`
	Genres  []genre `json:"genres"`
}

type seriesResult struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	FirstAirDate string `json:"first_air_date"`
}

func (s seriesResult) normalize() metadata.SeriesResult {
	return metadata.SeriesResult{
		ID:       s.ID,
		Title:    s.Name,
		Year:     yearOf(s.FirstAirDate),
		Overview: s.Overview,
	}
}

type searchSeriesResponse struct {
	Page         int            `json:"page"`
	Results      []seriesResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

type seasonSummary struct {
	SeasonNumber int `json:"season_number"`
	EpisodeCount int `json:"episode_count"`
}

type seriesDetails struct {
	seriesResult
	Status  string          `json:"status"`
	Genres  []genre         `json:"genres"`
	Seasons []seasonSummary `json:"seasons"`
}

type episodeDetails struct {
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
	Name          string `json:"name"`
	AirDate       string `json:"air_date"`
	Runtime       int    `json:"runtime"`
}

type seasonDetails struct {
	SeasonNumber int              `json:"season_number"`
	Name         string           `json:"name"`
	AirDate      string           `json:"air_date"`
	Episodes     []episodeDetails `json:"episodes"`
}

type externalIDsResponse struct {
	ImdbID string `json:"imdb_id"`
	TvdbID int64  `json:"tvdb_id"`
}

// yearOf extracts the year from a TMDB date string (YYYY-MM-DD).
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
