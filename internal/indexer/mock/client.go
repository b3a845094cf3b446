// Package mock provides a deterministic in-memory indexer used in tests
// and development mode. Releases are generated from a small catalog so
// searches return stable, parseable titles with no network access.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cinephage/cinephage/internal/indexer/types"
	"github.com/cinephage/cinephage/internal/scoring"
)

// Client implements types.Indexer against generated data.
type Client struct {
	def *types.IndexerDefinition

	mu sync.Mutex
	// failWith, when set, is returned by the next Search calls.
	failWith error
	// latency is added to every Search call.
	latency time.Duration

	movieReleases map[int64][]types.ReleaseInfo
	tvReleases    map[int64][]types.ReleaseInfo
}

var _ types.Indexer = (*Client)(nil)

// NewClient creates a mock indexer backed by the builtin catalog.
func NewClient(def *types.IndexerDefinition) *Client {
	return &Client{
		def:           def,
		movieReleases: buildMovieReleases(),
		tvReleases:    buildTVReleases(),
	}
}

// NewDefinition returns a ready-to-use definition for a mock indexer.
func NewDefinition(id int64, name string, priority int) *types.IndexerDefinition {
	return &types.IndexerDefinition{
		ID:                id,
		Name:              name,
		DefinitionID:      "mock",
		BaseURL:           "https://mockindexer.example",
		Categories:        []int{2000, 5000},
		Protocol:          scoring.ProtocolTorrent,
		Privacy:           types.PrivacyPublic,
		SupportsMovies:    true,
		SupportsTV:        true,
		SupportsSearch:    true,
		SupportsRSS:       true,
		Priority:          priority,
		Enabled:           true,
		AutoSearchEnabled: true,
	}
}

func (c *Client) Name() string { return c.def.Name }

func (c *Client) Definition() *types.IndexerDefinition { return c.def }

func (c *Client) Capabilities() *types.Capabilities {
	return &types.Capabilities{
		SupportsMovies:      true,
		SupportsTV:          true,
		SupportsSearch:      true,
		SupportsRSS:         true,
		SearchParams:        []string{"q"},
		TvSearchParams:      []string{"q", "tvdbid", "season", "ep"},
		MovieSearchParams:   []string{"q", "tmdbid", "imdbid"},
		MaxResultsPerSearch: 100,
	}
}

func (c *Client) Test(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failWith
}

// FailWith makes subsequent searches return err. Pass nil to recover.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// SetLatency adds a fixed delay to every search.
func (c *Client) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

func (c *Client) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.ReleaseInfo, error) {
	c.mu.Lock()
	failWith, latency := c.failWith, c.latency
	c.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failWith != nil {
		return nil, failWith
	}

	var results []types.ReleaseInfo
	switch criteria.Type {
	case types.SearchTypeMovie:
		results = c.searchMovies(criteria)
	case types.SearchTypeTV:
		results = c.searchTV(criteria)
	default:
		results = append(c.searchMovies(criteria), c.searchTV(criteria)...)
	}

	for i := range results {
		results[i].IndexerID = c.def.ID
		results[i].IndexerName = c.def.Name
		results[i].IndexerPriority = c.def.Priority
		results[i].Protocol = c.def.Protocol
	}
	if criteria.Limit > 0 && len(results) > criteria.Limit {
		results = results[:criteria.Limit]
	}
	return results, nil
}

func (c *Client) searchMovies(criteria types.SearchCriteria) []types.ReleaseInfo {
	if criteria.TmdbID != 0 {
		return c.movieReleases[criteria.TmdbID]
	}
	return filterByQuery(c.movieReleases, criteria.Query)
}

func (c *Client) searchTV(criteria types.SearchCriteria) []types.ReleaseInfo {
	var candidates []types.ReleaseInfo
	if criteria.TvdbID != 0 {
		candidates = c.tvReleases[criteria.TvdbID]
	} else {
		candidates = filterByQuery(c.tvReleases, criteria.Query)
	}
	if criteria.Season == 0 {
		return candidates
	}

	season := strings.ToLower(seasonToken(criteria.Season))
	var filtered []types.ReleaseInfo
	for _, r := range candidates {
		if strings.Contains(strings.ToLower(r.Title), season) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func filterByQuery(byID map[int64][]types.ReleaseInfo, query string) []types.ReleaseInfo {
	if query == "" {
		var all []types.ReleaseInfo
		for _, releases := range byID {
			all = append(all, releases...)
		}
		return all
	}
	needle := normalizeQuery(query)
	var matched []types.ReleaseInfo
	for _, releases := range byID {
		for _, r := range releases {
			if strings.Contains(normalizeQuery(r.Title), needle) {
				matched = append(matched, r)
			}
		}
	}
	return matched
}

func normalizeQuery(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer(".", " ", "_", " ", "-", " ")
	return strings.Join(strings.Fields(replacer.Replace(s)), " ")
}

func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	// A minimal bencoded shell, enough for clients that only hash it.
	return []byte("d4:infod4:name4:mockee"), nil
}
