// Package mock provides a canned metadata provider for developer mode
// and tests.
package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/cinephage/cinephage/internal/metadata"
)

// Provider is a metadata provider backed by fixed fixtures.
type Provider struct{}

// NewProvider creates a mock metadata provider.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string       { return "mock" }
func (p *Provider) IsConfigured() bool { return true }

var mockMovies = []metadata.MovieResult{
	{ID: 27205, Title: "Inception", Year: 2010, ImdbID: "tt1375666", Runtime: 148,
		ReleaseDate: "2010-07-16", Genres: []string{"Action", "Science Fiction"}},
	{ID: 157336, Title: "Interstellar", Year: 2014, ImdbID: "tt0816692", Runtime: 169,
		ReleaseDate: "2014-11-07", Genres: []string{"Adventure", "Drama"}},
	{ID: 603, Title: "The Matrix", Year: 1999, ImdbID: "tt0133093", Runtime: 136,
		ReleaseDate: "1999-03-31", Genres: []string{"Action", "Science Fiction"}},
}

var mockSeries = []metadata.SeriesResult{
	{ID: 1396, Title: "Breaking Bad", Year: 2008, ImdbID: "tt0903747", TvdbID: 81189,
		Status: "Ended", SeasonNumbers: []int{1, 2, 3, 4, 5}},
	{ID: 82856, Title: "The Mandalorian", Year: 2019, ImdbID: "tt8111088", TvdbID: 361753,
		Status: "Returning Series", SeasonNumbers: []int{1, 2, 3}},
}

func (p *Provider) SearchMovies(_ context.Context, query string, year int) ([]metadata.MovieResult, error) {
	query = strings.ToLower(query)
	var results []metadata.MovieResult
	for _, movie := range mockMovies {
		if strings.Contains(strings.ToLower(movie.Title), query) {
			if year == 0 || movie.Year == year {
				results = append(results, movie)
			}
		}
	}
	return results, nil
}

func (p *Provider) GetMovie(_ context.Context, id int64) (*metadata.MovieResult, error) {
	for _, movie := range mockMovies {
		if movie.ID == id {
			found := movie
			return &found, nil
		}
	}
	return nil, fmt.Errorf("movie %d not found", id)
}

func (p *Provider) SearchSeries(_ context.Context, query string) ([]metadata.SeriesResult, error) {
	query = strings.ToLower(query)
	var results []metadata.SeriesResult
	for _, series := range mockSeries {
		if strings.Contains(strings.ToLower(series.Title), query) {
			results = append(results, series)
		}
	}
	return results, nil
}

func (p *Provider) GetSeries(_ context.Context, id int64) (*metadata.SeriesResult, error) {
	for _, series := range mockSeries {
		if series.ID == id {
			found := series
			return &found, nil
		}
	}
	return nil, fmt.Errorf("series %d not found", id)
}

func (p *Provider) GetSeason(_ context.Context, _ int64, seasonNumber int) (*metadata.SeasonResult, error) {
	season := &metadata.SeasonResult{
		SeasonNumber: seasonNumber,
		Name:         fmt.Sprintf("Season %d", seasonNumber),
	}
	for i := 1; i <= 8; i++ {
		season.Episodes = append(season.Episodes, metadata.EpisodeResult{
			EpisodeNumber: i,
			SeasonNumber:  seasonNumber,
			Title:         fmt.Sprintf("Episode %d", i),
			AirDate:       fmt.Sprintf("2024-01-%02d", i),
			Runtime:       45,
		})
	}
	return season, nil
}

func (p *Provider) GetExternalIDs(_ context.Context, mediaType string, id int64) (*metadata.ExternalIDs, error) {
	if mediaType == "tv" {
		for _, series := range mockSeries {
			if series.ID == id {
				return &metadata.ExternalIDs{ImdbID: series.ImdbID, TmdbID: id, TvdbID: series.TvdbID}, nil
			}
		}
		return nil, fmt.Errorf("series %d not found", id)
	}
	for _, movie := range mockMovies {
		if movie.ID == id {
			return &metadata.ExternalIDs{ImdbID: movie.ImdbID, TmdbID: id}, nil
		}
	}
	return nil, fmt.Errorf("movie %d not found", id)
}
