package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cinephage/cinephage/internal/indexer/types"
	"github.com/cinephage/cinephage/internal/scoring"
)

var titleNormalizePattern = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeTitle reduces a release title to a comparison key: lowercase
// alphanumerics with separators collapsed.
func normalizeTitle(title string) string {
	return titleNormalizePattern.ReplaceAllString(strings.ToLower(title), "")
}

// sizeTolerance is the relative size difference under which two releases
// with the same normalized title are considered the same payload.
const sizeTolerance = 0.01

func sizesMatch(a, b int64) bool {
	if a == b {
		return true
	}
	if a == 0 || b == 0 {
		return false
	}
	larger, smaller := a, b
	if smaller > larger {
		larger, smaller = smaller, larger
	}
	return float64(larger-smaller) <= float64(larger)*sizeTolerance
}

// preferOver reports whether a should replace b as the kept duplicate.
// Between usenet copies the earliest posting wins; between torrent
// copies the best seeded one. Indexer priority breaks ties.
func preferOver(a, b types.ReleaseInfo) bool {
	if a.Protocol == scoring.ProtocolUsenet && b.Protocol == scoring.ProtocolUsenet {
		if !a.PublishDate.Equal(b.PublishDate) {
			return a.PublishDate.Before(b.PublishDate)
		}
	} else if a.Seeders != b.Seeders {
		return a.Seeders > b.Seeders
	}
	return a.IndexerPriority < b.IndexerPriority
}

// merge keeps the preferred copy of two duplicates and folds the other
// indexer's name into its duplicate set, so the union of indexers that
// carried the release survives deduplication.
func merge(kept, dup types.ReleaseInfo) types.ReleaseInfo {
	preferred, other := kept, dup
	if preferOver(dup, kept) {
		preferred, other = dup, kept
	}

	seen := map[string]struct{}{preferred.IndexerName: {}}
	names := preferred.DuplicateIndexers
	for _, name := range names {
		seen[name] = struct{}{}
	}
	for _, name := range append([]string{other.IndexerName}, other.DuplicateIndexers...) {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	preferred.DuplicateIndexers = names
	return preferred
}

// Deduplicate collapses releases that carry the same info hash, or the
// same normalized title with sizes within one percent. The preferred
// copy is kept with the other copies' indexers merged in.
func Deduplicate(releases []types.ReleaseInfo) []types.ReleaseInfo {
	if len(releases) <= 1 {
		return releases
	}

	result := make([]types.ReleaseInfo, 0, len(releases))
	byHash := make(map[string]int)
	byTitle := make(map[string][]int)

	for _, release := range releases {
		if hash := strings.ToLower(release.InfoHash); hash != "" {
			if idx, ok := byHash[hash]; ok {
				result[idx] = merge(result[idx], release)
				continue
			}
		}

		key := normalizeTitle(release.Title)
		duplicate := false
		for _, idx := range byTitle[key] {
			if sizesMatch(release.Size, result[idx].Size) {
				result[idx] = merge(result[idx], release)
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		idx := len(result)
		result = append(result, release)
		if hash := strings.ToLower(release.InfoHash); hash != "" {
			byHash[hash] = idx
		}
		byTitle[key] = append(byTitle[key], idx)
	}
	return result
}

// ScoredRelease pairs a release with its profile score.
type ScoredRelease struct {
	Release types.ReleaseInfo `json:"release"`
	Score   scoring.Result    `json:"score"`
}

// Rank orders scored releases best first: non-banned before banned,
// higher score, more seeders, higher indexer priority, newer publish
// date. The sort is stable so equal releases keep indexer order.
func Rank(releases []ScoredRelease) {
	sort.SliceStable(releases, func(i, j int) bool {
		a, b := releases[i], releases[j]
		if a.Score.IsBanned != b.Score.IsBanned {
			return !a.Score.IsBanned
		}
		if a.Score.SortScore() != b.Score.SortScore() {
			return a.Score.SortScore() > b.Score.SortScore()
		}
		if a.Release.Seeders != b.Release.Seeders {
			return a.Release.Seeders > b.Release.Seeders
		}
		if a.Release.IndexerPriority != b.Release.IndexerPriority {
			return a.Release.IndexerPriority < b.Release.IndexerPriority
		}
		return a.Release.PublishDate.After(b.Release.PublishDate)
	})
}
