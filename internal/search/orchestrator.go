// Package search fans queries out to configured indexers and turns the
// raw responses into a deduplicated, scored, ranked candidate list.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/indexer/types"
	"github.com/cinephage/cinephage/internal/scoring"
	"github.com/cinephage/cinephage/internal/search/ratelimit"
)

// MaxConcurrentSearches caps the indexer fan-out per search.
const MaxConcurrentSearches = 8

// perIndexerTimeout bounds one indexer's search within the fan-out.
const perIndexerTimeout = 60 * time.Second

// transientAttempts is how many times a retryable indexer error is
// retried before the indexer is marked failed for this search.
const transientAttempts = 2

// FailedProvider describes one indexer that errored during a search.
type FailedProvider struct {
	IndexerID   int64           `json:"indexerId"`
	IndexerName string          `json:"indexerName"`
	Kind        types.ErrorKind `json:"kind,omitempty"`
	Error       string          `json:"error"`
}

// Result is the aggregate outcome of one fan-out.
type Result struct {
	Releases        []ScoredRelease  `json:"releases"`
	TotalFound      int              `json:"totalFound"`
	IndexersQueried int              `json:"indexersQueried"`
	FromCache       int              `json:"fromCache"`
	FailedProviders []FailedProvider `json:"failedProviders,omitempty"`
	Elapsed         time.Duration    `json:"elapsed"`
}

// Options adjusts one search call.
type Options struct {
	// AutoSearch restricts the fan-out to indexers with automatic
	// searching enabled; interactive searches use every enabled indexer.
	AutoSearch bool
	// Profile scores results when set. Unscored searches return releases
	// ranked by seeders and recency only.
	Profile *scoring.Profile
	// MediaType selects which indexers can serve the query.
	MediaType scoring.MediaType
	// BypassCache forces fresh indexer queries.
	BypassCache bool
}

// Orchestrator coordinates indexer selection, rate limiting, caching,
// and aggregation for one logical search.
type Orchestrator struct {
	scorer  *scoring.Scorer
	limiter *ratelimit.Limiter
	cache   *ResultCache
	health  *HealthTracker
	logger  zerolog.Logger

	mu          sync.RWMutex
	indexers    map[int64]types.Indexer
	concurrency int
}

// NewOrchestrator wires the orchestrator's collaborators together.
func NewOrchestrator(scorer *scoring.Scorer, limiter *ratelimit.Limiter, cache *ResultCache, health *HealthTracker, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		scorer:      scorer,
		limiter:     limiter,
		cache:       cache,
		health:      health,
		logger:      logger.With().Str("component", "search").Logger(),
		indexers:    make(map[int64]types.Indexer),
		concurrency: MaxConcurrentSearches,
	}
}

// SetConcurrency overrides the per-search fan-out cap. Values below one
// are ignored.
func (o *Orchestrator) SetConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// Register adds or replaces an indexer and drops its cached results.
func (o *Orchestrator) Register(indexer types.Indexer) {
	def := indexer.Definition()
	o.mu.Lock()
	o.indexers[def.ID] = indexer
	o.mu.Unlock()
	o.cache.Invalidate(def.ID)
}

// Unregister removes an indexer and drops its cached results.
func (o *Orchestrator) Unregister(indexerID int64) {
	o.mu.Lock()
	delete(o.indexers, indexerID)
	o.mu.Unlock()
	o.cache.Invalidate(indexerID)
}

// Indexers returns the registered indexers.
func (o *Orchestrator) Indexers() []types.Indexer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	indexers := make([]types.Indexer, 0, len(o.indexers))
	for _, idx := range o.indexers {
		indexers = append(indexers, idx)
	}
	return indexers
}

// selectIndexers picks the indexers eligible for this search.
func (o *Orchestrator) selectIndexers(opts Options) []types.Indexer {
	var selected []types.Indexer
	for _, idx := range o.Indexers() {
		def := idx.Definition()
		if !def.Enabled || !def.SupportsSearch {
			continue
		}
		if opts.AutoSearch && !def.AutoSearchEnabled {
			continue
		}
		switch opts.MediaType {
		case scoring.MediaTypeMovie:
			if !def.SupportsMovies {
				continue
			}
		case scoring.MediaTypeTV:
			if !def.SupportsTV {
				continue
			}
		}
		if o.health.IsDisabled(def.ID) {
			o.logger.Debug().
				Int64("indexerId", def.ID).
				Str("indexer", def.Name).
				Msg("Skipping disabled indexer")
			continue
		}
		selected = append(selected, idx)
	}
	return selected
}

type indexerResult struct {
	indexer   types.Indexer
	releases  []types.ReleaseInfo
	fromCache bool
	err       error
}

// Search fans the criteria out to the eligible indexers and aggregates
// the results. One indexer failing never fails the search; its error is
// reported in FailedProviders.
func (o *Orchestrator) Search(ctx context.Context, criteria types.SearchCriteria, opts Options) (*Result, error) {
	started := time.Now()

	selected := o.selectIndexers(opts)
	if len(selected) == 0 {
		o.logger.Warn().Str("query", criteria.Query).Msg("No eligible indexers for search")
		return &Result{Elapsed: time.Since(started)}, nil
	}

	results := make(chan indexerResult, len(selected))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for _, idx := range selected {
		wg.Add(1)
		go func(idx types.Indexer) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- indexerResult{indexer: idx, err: ctx.Err()}
				return
			}
			releases, fromCache, err := o.searchOne(ctx, idx, criteria, opts)
			results <- indexerResult{indexer: idx, releases: releases, fromCache: fromCache, err: err}
		}(idx)
	}
	wg.Wait()
	close(results)

	return o.aggregate(results, criteria, opts, started), nil
}

// searchOne queries a single indexer, consulting the cache and charging
// the rate limiter only for live requests.
func (o *Orchestrator) searchOne(ctx context.Context, idx types.Indexer, criteria types.SearchCriteria, opts Options) ([]types.ReleaseInfo, bool, error) {
	def := idx.Definition()
	key := CacheKey(def.ID, criteria)

	if !opts.BypassCache {
		if releases, ok := o.cache.Get(key); ok {
			o.logger.Debug().
				Str("indexer", def.Name).
				Int("results", len(releases)).
				Msg("Serving search from cache")
			return releases, true, nil
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, perIndexerTimeout)
	defer cancel()

	indexerKey := fmt.Sprint(def.ID)
	hostKey := ratelimit.HostKey(def.BaseURL)

	var releases []types.ReleaseInfo
	err := retry.Do(
		func() error {
			if err := o.limiter.Wait(searchCtx, indexerKey, hostKey); err != nil {
				return err
			}
			var searchErr error
			releases, searchErr = idx.Search(searchCtx, criteria)
			return searchErr
		},
		retry.Attempts(transientAttempts),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return searchCtx.Err() == nil && types.IsRetryable(err)
		}),
	)
	if err != nil {
		o.health.RecordFailure(ctx, def.ID, err)
		return nil, false, err
	}

	o.health.RecordSuccess(ctx, def.ID)
	o.cache.Put(key, releases)
	return releases, false, nil
}

// aggregate merges per-indexer outcomes into the final ranked result.
func (o *Orchestrator) aggregate(results <-chan indexerResult, criteria types.SearchCriteria, opts Options, started time.Time) *Result {
	var all []types.ReleaseInfo
	var failed []FailedProvider
	queried, fromCache := 0, 0

	for res := range results {
		def := res.indexer.Definition()
		if res.err != nil {
			failed = append(failed, FailedProvider{
				IndexerID:   def.ID,
				IndexerName: def.Name,
				Kind:        types.Kind(res.err),
				Error:       res.err.Error(),
			})
			continue
		}
		queried++
		if res.fromCache {
			fromCache++
		}
		all = append(all, res.releases...)
	}

	totalFound := len(all)
	deduplicated := Deduplicate(all)

	scored := make([]ScoredRelease, 0, len(deduplicated))
	for _, release := range deduplicated {
		entry := ScoredRelease{Release: release}
		if opts.Profile != nil {
			entry.Score = o.scorer.Score(release.Title, opts.Profile, scoring.Context{
				MediaType: opts.MediaType,
				SizeBytes: release.Size,
			})
		}
		scored = append(scored, entry)
	}
	Rank(scored)

	o.logger.Info().
		Str("query", criteria.Query).
		Str("type", string(criteria.Type)).
		Int("totalFound", totalFound).
		Int("afterDedup", len(deduplicated)).
		Int("indexersQueried", queried).
		Int("fromCache", fromCache).
		Int("failed", len(failed)).
		Dur("elapsed", time.Since(started)).
		Msg("Search complete")

	return &Result{
		Releases:        scored,
		TotalFound:      totalFound,
		IndexersQueried: queried,
		FromCache:       fromCache,
		FailedProviders: failed,
		Elapsed:         time.Since(started),
	}
}
