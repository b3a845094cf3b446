// Package tmdb implements the metadata provider against the TMDB API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/metadata"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// Config holds the TMDB client settings.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.themoviedb.org/3"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Test verifies connectivity with a configuration request.
func (c *Client) Test(ctx context.Context) error {
	if !c.IsConfigured() {
		return ErrAPIKeyMissing
	}
	var result struct {
		Images struct {
			BaseURL string `json:"base_url"`
		} `json:"images"`
	}
	return c.doRequest(ctx, "/configuration", url.Values{}, &result)
}

// SearchMovies searches for movies by query with optional year filter.
func (c *Client) SearchMovies(ctx context.Context, query string, year int) ([]metadata.MovieResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var response searchMoviesResponse
	if err := c.doRequest(ctx, "/search/movie", params, &response); err != nil {
		return nil, err
	}

	results := make([]metadata.MovieResult, 0, len(response.Results))
	for _, movie := range response.Results {
		results = append(results, movie.normalize())
	}
	return results, nil
}

// GetMovie gets movie details by TMDB id.
func (c *Client) GetMovie(ctx context.Context, id int64) (*metadata.MovieResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var details movieDetails
	if err := c.doRequest(ctx, fmt.Sprintf("/movie/%d", id), url.Values{}, &details); err != nil {
		return nil, err
	}
	result := details.movieResult.normalize()
	result.ImdbID = details.ImdbID
	result.Runtime = details.Runtime
	for _, genre := range details.Genres {
		result.Genres = append(result.Genres, genre.Name)
	}
	return &result, nil
}

// SearchSeries searches for TV series.
func (c *Client) SearchSeries(ctx context.Context, query string) ([]metadata.SeriesResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")

	var response searchSeriesResponse
	if err := c.doRequest(ctx, "/search/tv", params, &response); err != nil {
		return nil, err
	}

	results := make([]metadata.SeriesResult, 0, len(response.Results))
	for _, series := range response.Results {
		results = append(results, series.normalize())
	}
	return results, nil
}

// GetSeries gets series details by TMDB id.
func (c *Client) GetSeries(ctx context.Context, id int64) (*metadata.SeriesResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var details seriesDetails
	if err := c.doRequest(ctx, fmt.Sprintf("/tv/%d", id), url.Values{}, &details); err != nil {
		return nil, err
	}
	result := details.seriesResult.normalize()
	result.Status = details.Status
	for _, genre := range details.Genres {
		result.Genres = append(result.Genres, genre.Name)
	}
	for _, season := range details.Seasons {
		if season.SeasonNumber > 0 {
			result.SeasonNumbers = append(result.SeasonNumbers, season.SeasonNumber)
		}
	}
	return &result, nil
}

// GetSeason returns one season with its episodes.
func (c *Client) GetSeason(ctx context.Context, seriesID int64, seasonNumber int) (*metadata.SeasonResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var details seasonDetails
	endpoint := fmt.Sprintf("/tv/%d/season/%d", seriesID, seasonNumber)
	if err := c.doRequest(ctx, endpoint, url.Values{}, &details); err != nil {
		return nil, err
	}

	result := &metadata.SeasonResult{
		SeasonNumber: details.SeasonNumber,
		Name:         details.Name,
		AirDate:      details.AirDate,
	}
	for _, episode := range details.Episodes {
		result.Episodes = append(result.Episodes, metadata.EpisodeResult{
			EpisodeNumber: episode.EpisodeNumber,
			SeasonNumber:  episode.SeasonNumber,
			Title:         episode.Name,
			AirDate:       episode.AirDate,
			Runtime:       episode.Runtime,
		})
	}
	return result, nil
}

// GetExternalIDs resolves cross-provider ids for a movie or series.
func (c *Client) GetExternalIDs(ctx context.Context, mediaType string, id int64) (*metadata.ExternalIDs, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("/movie/%d/external_ids", id)
	if mediaType == "tv" {
		endpoint = fmt.Sprintf("/tv/%d/external_ids", id)
	}

	var response externalIDsResponse
	if err := c.doRequest(ctx, endpoint, url.Values{}, &response); err != nil {
		return nil, err
	}
	return &metadata.ExternalIDs{
		ImdbID: response.ImdbID,
		TmdbID: id,
		TvdbID: response.TvdbID,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.config.BaseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
