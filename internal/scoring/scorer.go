package scoring

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/release"
)

const (
	bytesPerGb = float64(1 << 30)
	bytesPerMb = float64(1 << 20)
)

// Scorer computes release scores under a profile using a format registry.
type Scorer struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewScorer creates a scorer backed by the given registry.
func NewScorer(registry *Registry, logger zerolog.Logger) *Scorer {
	return &Scorer{
		registry: registry,
		logger:   logger.With().Str("component", "scorer").Logger(),
	}
}

// Score parses a release title once, evaluates every registered format
// against it, and sums matched-format scores under the profile. Malformed
// titles never fail; they degrade to unknown attributes and a zero score.
func (s *Scorer) Score(title string, profile *Profile, ctx Context) Result {
	attrs := release.Parse(title)
	return s.scoreParsed(title, attrs, profile, ctx)
}

func (s *Scorer) scoreParsed(title string, attrs release.Attributes, profile *Profile, ctx Context) Result {
	result := Result{
		Breakdown:  make(map[Category]int),
		Attributes: attrs,
	}

	for _, format := range s.registry.Formats() {
		if !format.Matches(&attrs, title) {
			continue
		}

		// Missing profile entries contribute zero; the format's default
		// score is informational only.
		score := profile.FormatScores[format.ID]

		result.MatchedFormats = append(result.MatchedFormats, MatchedFormat{
			FormatID: format.ID,
			Name:     format.Name,
			Category: format.Category,
			Score:    score,
		})
		result.Breakdown[format.Category] += score
		result.TotalScore += score

		if format.Category == CategoryBanned {
			result.IsBanned = true
			result.BannedReasons = append(result.BannedReasons, format.Name)
		}
	}

	if ctx.MediaType == MediaTypeTV {
		bonus := packBonus(&attrs, profile, ctx)
		if bonus != 0 {
			result.Breakdown[CategoryEnhancement] += bonus
			result.TotalScore += bonus
		}
	}

	// A pack detected in the title is judged like a caller-declared one,
	// so a whole season is never sized as a single episode.
	sizeCtx := ctx
	if attrs.IsSeasonPack {
		sizeCtx.IsSeasonPack = true
	}
	result.SizeRejected, result.SizeRejectionReason = sizeVerdict(profile, sizeCtx)
	result.MeetsMinimum = !result.IsBanned && !result.SizeRejected &&
		result.TotalScore >= profile.MinScore

	return result
}

// packBonus adds the profile's season-pack preference bonus. Complete
// series ranks above multi-season packs, which rank above single seasons;
// individual episodes get nothing.
func packBonus(attrs *release.Attributes, profile *Profile, ctx Context) int {
	pref := profile.PackPreference
	if !pref.Enabled {
		return 0
	}
	if !attrs.IsSeasonPack && !ctx.IsSeasonPack {
		return 0
	}

	switch {
	case attrs.IsCompleteSeries:
		return pref.CompleteSeriesBonus
	case attrs.SeasonCount >= 2:
		return pref.MultiSeasonBonus
	default:
		return pref.SingleSeasonBonus
	}
}

// sizeVerdict checks the release size against the profile's window. Bounds
// are inclusive. Season packs are judged on their per-episode average; an
// unknown episode count skips the check entirely.
func sizeVerdict(profile *Profile, ctx Context) (bool, string) {
	if ctx.SizeBytes <= 0 {
		return false, ""
	}

	switch ctx.MediaType {
	case MediaTypeMovie:
		sizeGb := float64(ctx.SizeBytes) / bytesPerGb
		if profile.MovieMinSizeGb > 0 && sizeGb < profile.MovieMinSizeGb {
			return true, fmt.Sprintf("%.2f GB below minimum %.2f GB", sizeGb, profile.MovieMinSizeGb)
		}
		if profile.MovieMaxSizeGb > 0 && sizeGb > profile.MovieMaxSizeGb {
			return true, fmt.Sprintf("%.2f GB above maximum %.2f GB", sizeGb, profile.MovieMaxSizeGb)
		}

	case MediaTypeTV:
		sizeMb := float64(ctx.SizeBytes) / bytesPerMb
		if ctx.IsSeasonPack {
			if ctx.EpisodeCount <= 0 {
				return false, ""
			}
			sizeMb /= float64(ctx.EpisodeCount)
		}
		if profile.EpisodeMinSizeMb > 0 && sizeMb < profile.EpisodeMinSizeMb {
			return true, fmt.Sprintf("%.0f MB per episode below minimum %.0f MB", sizeMb, profile.EpisodeMinSizeMb)
		}
		if profile.EpisodeMaxSizeMb > 0 && sizeMb > profile.EpisodeMaxSizeMb {
			return true, fmt.Sprintf("%.0f MB per episode above maximum %.0f MB", sizeMb, profile.EpisodeMaxSizeMb)
		}
	}

	return false, ""
}

// CheckSize applies the profile's size window without a full score. Used
// as a standalone filter where scoring has not run.
func CheckSize(profile *Profile, ctx Context) (rejected bool, reason string) {
	return sizeVerdict(profile, ctx)
}

// UpgradeOptions tunes an upgrade comparison.
type UpgradeOptions struct {
	// MinImprovement is the score delta a candidate must beat. Values
	// below 1 are clamped to 1 so equal scores never upgrade.
	MinImprovement int
	CandidateSize  int64
	MediaType      MediaType
}

// UpgradeResult reports the outcome of comparing an existing file against
// a candidate release.
type UpgradeResult struct {
	IsUpgrade   bool   `json:"isUpgrade"`
	Existing    Result `json:"existing"`
	Candidate   Result `json:"candidate"`
	Improvement int    `json:"improvement"`
}

// IsUpgrade scores both titles under the profile and reports whether the
// candidate improves on the existing file by at least the required margin.
// Banned or size-rejected candidates never upgrade.
func (s *Scorer) IsUpgrade(existingTitle, candidateTitle string, profile *Profile, opts UpgradeOptions) UpgradeResult {
	mediaType := opts.MediaType
	if mediaType == "" {
		mediaType = MediaTypeMovie
	}

	existing := s.Score(existingTitle, profile, Context{MediaType: mediaType})
	candidate := s.Score(candidateTitle, profile, Context{
		MediaType: mediaType,
		SizeBytes: opts.CandidateSize,
	})

	minImprovement := opts.MinImprovement
	if minImprovement < 1 {
		minImprovement = 1
	}

	improvement := candidate.TotalScore - existing.TotalScore
	isUpgrade := !candidate.IsBanned && !candidate.SizeRejected &&
		improvement >= minImprovement

	return UpgradeResult{
		IsUpgrade:   isUpgrade,
		Existing:    existing,
		Candidate:   candidate,
		Improvement: improvement,
	}
}
