package search

import (
	"container/list"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cinephage/cinephage/internal/indexer/types"
)

// CacheConfig controls the search result cache.
type CacheConfig struct {
	MaxEntries int
	// ResultTTL applies to searches that returned at least one release.
	ResultTTL time.Duration
	// EmptyTTL applies to empty result sets, so a transiently quiet
	// indexer is retried sooner.
	EmptyTTL time.Duration
}

// DefaultCacheConfig returns the standard cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 256,
		ResultTTL:  5 * time.Minute,
		EmptyTTL:   time.Minute,
	}
}

type cacheEntry struct {
	key       string
	releases  []types.ReleaseInfo
	expiresAt time.Time
}

// ResultCache is an LRU cache over whole per-indexer search result sets.
type ResultCache struct {
	config CacheConfig

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element

	now func() time.Time
}

// NewResultCache creates an empty cache.
func NewResultCache(config CacheConfig) *ResultCache {
	return &ResultCache{
		config:  config,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// CacheKey builds a stable key from an indexer and its search criteria.
func CacheKey(indexerID int64, criteria types.SearchCriteria) string {
	categories := make([]string, 0, len(criteria.Categories))
	for _, c := range criteria.Categories {
		categories = append(categories, fmt.Sprint(c))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d|%s|%s|%s|%d|%d|%s|%d|%d|%d",
		indexerID, criteria.Type, strings.ToLower(criteria.Query), criteria.ImdbID,
		criteria.TmdbID, criteria.TvdbID, strings.Join(categories, ","),
		criteria.Season, criteria.Episode, criteria.Year)
}

// Get returns the cached result set for a key, if present and fresh.
func (c *ResultCache) Get(key string) ([]types.ReleaseInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)

	// Callers mutate result slices during enrichment; hand out a copy.
	releases := make([]types.ReleaseInfo, len(entry.releases))
	copy(releases, entry.releases)
	return releases, true
}

// Put stores a result set under the TTL matching its emptiness.
func (c *ResultCache) Put(key string, releases []types.ReleaseInfo) {
	ttl := c.config.ResultTTL
	if len(releases) == 0 {
		ttl = c.config.EmptyTTL
	}
	if ttl <= 0 {
		return
	}

	stored := make([]types.ReleaseInfo, len(releases))
	copy(stored, releases)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.releases = stored
		entry.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:       key,
		releases:  stored,
		expiresAt: c.now().Add(ttl),
	})
	c.entries[key] = elem

	for c.config.MaxEntries > 0 && c.order.Len() > c.config.MaxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Invalidate drops every entry for an indexer, used after its settings
// change.
func (c *ResultCache) Invalidate(indexerID int64) {
	prefix := fmt.Sprintf("%d|", indexerID)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(elem)
			delete(c.entries, key)
		}
	}
}

// Sweep removes expired entries. Run periodically so empty-result
// entries do not pin memory for the full LRU lifetime.
func (c *ResultCache) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.entries {
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.order.Remove(elem)
			delete(c.entries, key)
		}
	}
}

// Len returns the number of live entries, counting expired ones until
// the next sweep.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
