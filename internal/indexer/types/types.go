// Package types contains shared type definitions for indexer packages.
package types

import (
	"context"
	"time"

	"github.com/cinephage/cinephage/internal/scoring"
)

// Privacy represents indexer privacy level.
type Privacy string

const (
	PrivacyPublic      Privacy = "public"
	PrivacySemiPrivate Privacy = "semi-private"
	PrivacyPrivate     Privacy = "private"
)

// SearchType selects the search operation an indexer should perform.
type SearchType string

const (
	SearchTypeQuery SearchType = "search"
	SearchTypeMovie SearchType = "movie"
	SearchTypeTV    SearchType = "tvsearch"
	SearchTypeRSS   SearchType = "rss"
)

// IndexerDefinition represents a configured indexer instance.
type IndexerDefinition struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	DefinitionID string           `json:"definitionId"`
	BaseURL      string           `json:"baseUrl"`
	Categories   []int            `json:"categories"`
	Protocol     scoring.Protocol `json:"protocol"`
	Privacy      Privacy          `json:"privacy"`

	SupportsMovies bool `json:"supportsMovies"`
	SupportsTV     bool `json:"supportsTV"`
	SupportsSearch bool `json:"supportsSearch"`
	SupportsRSS    bool `json:"supportsRss"`

	// Priority breaks ranking ties between releases with equal scores.
	// Lower values win.
	Priority          int  `json:"priority"`
	Enabled           bool `json:"enabled"`
	AutoSearchEnabled bool `json:"autoSearchEnabled"`

	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"createdAt,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

// SearchCriteria defines search parameters passed to every indexer in a
// fan-out. Identifier fields are optional; indexers use what they support.
type SearchCriteria struct {
	Query      string     `json:"query,omitempty"`
	Type       SearchType `json:"type"`
	Categories []int      `json:"categories,omitempty"`

	// Movie-specific
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int64  `json:"tmdbId,omitempty"`
	Year   int    `json:"year,omitempty"`

	// TV-specific
	TvdbID  int64 `json:"tvdbId,omitempty"`
	Season  int   `json:"season,omitempty"`
	Episode int   `json:"episode,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ReleaseInfo represents a single search result from an indexer.
type ReleaseInfo struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DownloadURL string    `json:"downloadUrl"`
	InfoURL     string    `json:"infoUrl,omitempty"`
	Size        int64     `json:"size"`
	PublishDate time.Time `json:"publishDate"`
	Categories  []int     `json:"categories"`

	IndexerID       int64            `json:"indexerId"`
	IndexerName     string           `json:"indexer"`
	IndexerPriority int              `json:"indexerPriority,omitempty"`
	Protocol        scoring.Protocol `json:"protocol"`

	// DuplicateIndexers lists the other indexers that carried the same
	// release, filled in during deduplication.
	DuplicateIndexers []string `json:"duplicateIndexers,omitempty"`

	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int64  `json:"tmdbId,omitempty"`
	TvdbID int64  `json:"tvdbId,omitempty"`

	// Torrent-specific; zero for usenet releases.
	Seeders              int     `json:"seeders,omitempty"`
	Leechers             int     `json:"leechers,omitempty"`
	InfoHash             string  `json:"infoHash,omitempty"`
	MagnetURL            string  `json:"magnetUrl,omitempty"`
	DownloadVolumeFactor float64 `json:"downloadVolumeFactor,omitempty"`
	UploadVolumeFactor   float64 `json:"uploadVolumeFactor,omitempty"`

	// Usenet-specific.
	Grabs int `json:"grabs,omitempty"`
}

// Age returns how long ago the release was published.
func (r *ReleaseInfo) Age(now time.Time) time.Duration {
	if r.PublishDate.IsZero() {
		return 0
	}
	return now.Sub(r.PublishDate)
}

// Capabilities describes what an indexer supports.
type Capabilities struct {
	SupportsMovies      bool              `json:"supportsMovies"`
	SupportsTV          bool              `json:"supportsTV"`
	SupportsSearch      bool              `json:"supportsSearch"`
	SupportsRSS         bool              `json:"supportsRss"`
	SearchParams        []string          `json:"searchParams"`
	TvSearchParams      []string          `json:"tvSearchParams"`
	MovieSearchParams   []string          `json:"movieSearchParams"`
	Categories          []CategoryMapping `json:"categories"`
	MaxResultsPerSearch int               `json:"maxResultsPerSearch"`
}

// CategoryMapping maps indexer categories to standard Newznab categories.
type CategoryMapping struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Indexer is the provider abstraction the search orchestrator fans out to.
type Indexer interface {
	Name() string
	Definition() *IndexerDefinition
	Capabilities() *Capabilities
	Test(ctx context.Context) error
	Search(ctx context.Context, criteria SearchCriteria) ([]ReleaseInfo, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// IndexerStatus tracks the health of an indexer across searches.
type IndexerStatus struct {
	IndexerID         int64      `json:"indexerId"`
	InitialFailure    *time.Time `json:"initialFailure,omitempty"`
	MostRecentFailure *time.Time `json:"mostRecentFailure,omitempty"`
	EscalationLevel   int        `json:"escalationLevel"`
	DisabledTill      *time.Time `json:"disabledTill,omitempty"`
	LastRssSync       *time.Time `json:"lastRssSync,omitempty"`
}

// IsDisabled reports whether the indexer is currently backed off.
func (s *IndexerStatus) IsDisabled(now time.Time) bool {
	return s.DisabledTill != nil && now.Before(*s.DisabledTill)
}
