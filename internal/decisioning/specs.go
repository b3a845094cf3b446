package decisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/cinephage/cinephage/internal/scoring"
)

// MovieMonitoredSpec rejects unmonitored movies.
type MovieMonitoredSpec struct{}

func (MovieMonitoredSpec) Name() string { return "movie-monitored" }

func (MovieMonitoredSpec) IsSatisfied(ctx *EvalContext) Decision {
	if !ctx.Item.Monitored {
		return Reject(ReasonNotMonitored, "movie is not monitored")
	}
	return Accept()
}

// EpisodeMonitoredSpec enforces the cascading invariant: an episode is
// monitored iff series, season, and episode are all monitored.
type EpisodeMonitoredSpec struct{}

func (EpisodeMonitoredSpec) Name() string { return "episode-monitored" }

func (EpisodeMonitoredSpec) IsSatisfied(ctx *EvalContext) Decision {
	item := ctx.Item
	switch {
	case !item.SeriesMonitored:
		return Reject(ReasonNotMonitored, "series is not monitored")
	case !item.SeasonMonitored:
		return Reject(ReasonNotMonitored, fmt.Sprintf("season %d is not monitored", item.SeasonNumber))
	case !item.Monitored:
		return Reject(ReasonNotMonitored, "episode is not monitored")
	}
	return Accept()
}

// MonitoredSpec dispatches to the movie or episode variant by media type.
type MonitoredSpec struct{}

func (MonitoredSpec) Name() string { return "monitored" }

func (MonitoredSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Item.MediaType == scoring.MediaTypeTV {
		return EpisodeMonitoredSpec{}.IsSatisfied(ctx)
	}
	return MovieMonitoredSpec{}.IsSatisfied(ctx)
}

// MissingContentSpec accepts items that have no file yet.
type MissingContentSpec struct{}

func (MissingContentSpec) Name() string { return "missing-content" }

func (MissingContentSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Item.HasFile {
		return Reject(ReasonNoReleaseCandidate, "item already has a file")
	}
	return Accept()
}

// NewEpisodeSpec accepts episodes that aired within the window ending now.
type NewEpisodeSpec struct {
	Window time.Duration
}

func (NewEpisodeSpec) Name() string { return "new-episode" }

func (s NewEpisodeSpec) IsSatisfied(ctx *EvalContext) Decision {
	airDate := ctx.Item.AirDate
	if airDate == nil {
		return Reject(ReasonNoReleaseCandidate, "episode has no air date")
	}
	now := ctx.Clock()
	if airDate.After(now) {
		return Reject(ReasonNoReleaseCandidate, "episode has not aired yet")
	}
	if airDate.Before(now.Add(-s.Window)) {
		return Reject(ReasonNoReleaseCandidate, "episode aired outside the window")
	}
	return Accept()
}

// CutoffUnmetSpec decides whether an upgrade search should be initiated at
// all. It never judges a found release; the cutoff only stops searches.
type CutoffUnmetSpec struct{}

func (CutoffUnmetSpec) Name() string { return "cutoff-unmet" }

func (CutoffUnmetSpec) IsSatisfied(ctx *EvalContext) Decision {
	profile := ctx.Profile
	if profile == nil {
		return Reject(ReasonNoProfile, "no scoring profile assigned")
	}
	if !profile.UpgradesAllowed {
		return Reject(ReasonUpgradesNotAllowed, "profile does not allow upgrades")
	}
	if profile.HasCutoff() && ctx.Item.ExistingScore >= profile.UpgradeUntilScore {
		return Reject(ReasonAlreadyAtCutoff, fmt.Sprintf(
			"existing score %d already meets cutoff %d",
			ctx.Item.ExistingScore, profile.UpgradeUntilScore))
	}
	return Accept()
}

// ReplacementSpec is the shared-pipeline form of the upgrade check: an
// item without a file accepts any candidate, an item with a file only
// accepts an upgrade.
type ReplacementSpec struct {
	Scorer *scoring.Scorer
}

func (ReplacementSpec) Name() string { return "replacement" }

func (s ReplacementSpec) IsSatisfied(ctx *EvalContext) Decision {
	if !ctx.Item.HasFile {
		return Accept()
	}
	return UpgradeableSpec{Scorer: s.Scorer}.IsSatisfied(ctx)
}

// UpgradeableSpec accepts a candidate that improves on the existing file.
// A candidate scoring past the cutoff is still accepted; the cutoff stops
// initiating searches, never rejects a better release already found.
type UpgradeableSpec struct {
	Scorer *scoring.Scorer
}

func (UpgradeableSpec) Name() string { return "upgradeable" }

func (s UpgradeableSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Profile == nil {
		return Reject(ReasonNoProfile, "no scoring profile assigned")
	}
	if !ctx.Item.HasFile || ctx.Item.ExistingTitle == "" {
		return Reject(ReasonNoExistingFile, "no existing file to upgrade")
	}
	if ctx.Release == nil {
		return Reject(ReasonNoReleaseCandidate, "no release candidate")
	}
	if !ctx.Profile.UpgradesAllowed {
		return Reject(ReasonUpgradesNotAllowed, "profile does not allow upgrades")
	}

	mediaType := ctx.Item.MediaType
	if mediaType == "" {
		mediaType = scoring.MediaTypeMovie
	}
	result := s.Scorer.IsUpgrade(ctx.Item.ExistingTitle, ctx.Release.Title, ctx.Profile, scoring.UpgradeOptions{
		MinImprovement: ctx.Profile.MinScoreIncrement,
		CandidateSize:  ctx.Release.Size,
		MediaType:      mediaType,
	})
	if result.IsUpgrade {
		return Accept()
	}

	if result.Improvement <= 0 {
		return Reject(ReasonQualityNotBetter, fmt.Sprintf(
			"candidate scores %d, existing %d",
			result.Candidate.TotalScore, result.Existing.TotalScore))
	}
	return Reject(ReasonImprovementTooSmall, fmt.Sprintf(
		"improvement %d below required %d",
		result.Improvement, ctx.Profile.MinScoreIncrement))
}

// BlocklistChecker answers whether a release identity plus content link is
// currently blocklisted.
type BlocklistChecker interface {
	IsBlocklisted(ctx context.Context, query BlocklistQuery) (bool, error)
}

// BlocklistQuery identifies a release and the content it is linked to.
type BlocklistQuery struct {
	Title      string
	InfoHash   string
	MovieID    int64
	SeriesID   int64
	EpisodeIDs []int64
}

// BlocklistSpec rejects releases with a live blocklist entry matching by
// info hash (primary) or exact title (fallback) and content link.
type BlocklistSpec struct {
	Checker BlocklistChecker
}

func (BlocklistSpec) Name() string { return "blocklist" }

func (s BlocklistSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Release == nil {
		return Accept()
	}
	blocked, err := s.Checker.IsBlocklisted(ctx.Context(), BlocklistQuery{
		Title:      ctx.Release.Title,
		InfoHash:   ctx.Release.InfoHash,
		MovieID:    ctx.Item.MovieID,
		SeriesID:   ctx.Item.SeriesID,
		EpisodeIDs: ctx.Item.EpisodeIDs,
	})
	if err != nil {
		// A broken blocklist store must not let blocked releases through.
		return Reject(ReasonBlocklisted, fmt.Sprintf("blocklist check failed: %v", err))
	}
	if blocked {
		return Reject(ReasonBlocklisted, "release is blocklisted")
	}
	return Accept()
}

// CooldownChecker reports when an item may next be searched.
type CooldownChecker interface {
	NextSearchAt(ctx context.Context, item Item) (time.Time, bool, error)
}

// SearchCooldownSpec rejects items whose per-item search cooldown has not
// elapsed.
type SearchCooldownSpec struct {
	Checker CooldownChecker
}

func (SearchCooldownSpec) Name() string { return "search-cooldown" }

func (s SearchCooldownSpec) IsSatisfied(ctx *EvalContext) Decision {
	next, ok, err := s.Checker.NextSearchAt(ctx.Context(), ctx.Item)
	if err != nil || !ok {
		return Accept()
	}
	if ctx.Clock().Before(next) {
		return Reject(ReasonCooldownActive, fmt.Sprintf("next search at %s", next.Format(time.RFC3339)))
	}
	return Accept()
}

// ProtocolAllowedSpec rejects protocols the profile does not allow.
type ProtocolAllowedSpec struct{}

func (ProtocolAllowedSpec) Name() string { return "protocol-allowed" }

func (ProtocolAllowedSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Profile == nil {
		return Reject(ReasonNoProfile, "no scoring profile assigned")
	}
	if ctx.Release == nil {
		return Accept()
	}
	if !ctx.Profile.AllowsProtocol(ctx.Release.Protocol) {
		return Reject(ReasonProtocolNotAllowed, fmt.Sprintf(
			"protocol %q not allowed by profile %q", ctx.Release.Protocol, ctx.Profile.Name))
	}
	return Accept()
}

// SizeSpec mirrors the scorer's size check, used as a standalone filter
// where a full score is unavailable.
type SizeSpec struct{}

func (SizeSpec) Name() string { return "size" }

func (SizeSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Profile == nil || ctx.Release == nil {
		return Accept()
	}

	mediaType := ctx.Item.MediaType
	if mediaType == "" {
		mediaType = scoring.MediaTypeMovie
	}
	attrs := ctx.Release.Score.Attributes
	// Episode count is unknown at this layer; season packs skip the
	// average-size check here and rely on the scorer's verdict.
	rejected, reason := scoring.CheckSize(ctx.Profile, scoring.Context{
		MediaType:    mediaType,
		SizeBytes:    ctx.Release.Size,
		IsSeasonPack: attrs.IsSeasonPack,
	})
	if rejected {
		return Reject(ReasonSizeRejected, reason)
	}
	return Accept()
}

// MinScoreSpec rejects scored releases that fail the profile's floor, or
// that were size-rejected during scoring.
type MinScoreSpec struct{}

func (MinScoreSpec) Name() string { return "min-score" }

func (MinScoreSpec) IsSatisfied(ctx *EvalContext) Decision {
	if ctx.Profile == nil {
		return Reject(ReasonNoProfile, "no scoring profile assigned")
	}
	if ctx.Release == nil {
		return Reject(ReasonNoReleaseCandidate, "no release candidate")
	}
	score := ctx.Release.Score
	if score.IsBanned {
		return Reject(ReasonBelowMinScore, fmt.Sprintf("release is banned: %v", score.BannedReasons))
	}
	if score.SizeRejected {
		return Reject(ReasonSizeRejected, score.SizeRejectionReason)
	}
	if score.TotalScore < ctx.Profile.MinScore {
		return Reject(ReasonBelowMinScore, fmt.Sprintf(
			"score %d below profile minimum %d", score.TotalScore, ctx.Profile.MinScore))
	}
	return Accept()
}
