package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/release"
)

func newTestScorer(t *testing.T) (*Scorer, *Registry) {
	t.Helper()
	registry, err := NewRegistry(zerolog.Nop())
	require.NoError(t, err)
	return NewScorer(registry, zerolog.Nop()), registry
}

func bestProfile(t *testing.T, registry *Registry) *Profile {
	t.Helper()
	profile, ok := registry.ProfileByName("Best")
	require.True(t, ok)
	return profile
}

func TestScore_WebDLBeatsCam(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	webdl := scorer.Score("Movie.2024.1080p.WEB-DL.DDP5.1-GROUP", profile, Context{
		MediaType: MediaTypeMovie,
		SizeBytes: 4 << 30,
	})
	cam := scorer.Score("Movie.2024.1080p.CAM-GROUP", profile, Context{
		MediaType: MediaTypeMovie,
		SizeBytes: 3 << 30, // inside the size window; bannedness alone must reject
	})

	assert.True(t, webdl.MeetsMinimum)
	assert.False(t, webdl.IsBanned)
	assert.Greater(t, webdl.TotalScore, 0)

	assert.True(t, cam.IsBanned)
	assert.False(t, cam.MeetsMinimum)
	assert.Contains(t, cam.BannedReasons, "CAM")
	assert.Equal(t, BannedScore, cam.SortScore())
	assert.Greater(t, webdl.SortScore(), cam.SortScore())
}

func TestScore_BreakdownPerCategory(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	result := scorer.Score("Movie.2024.2160p.BluRay.REMUX.TrueHD.Atmos.HDR10-FraMeSToR", profile, Context{
		MediaType: MediaTypeMovie,
	})

	assert.Equal(t, 5000, result.Breakdown[CategoryResolution])
	assert.Equal(t, 7000, result.Breakdown[CategoryEnhancement])
	assert.Equal(t, 2000+1200, result.Breakdown[CategoryAudio])
	assert.Equal(t, 600, result.Breakdown[CategoryHDR])
	assert.Equal(t, 1500, result.Breakdown[CategoryReleaseGroupTier])

	var total int
	for _, score := range result.Breakdown {
		total += score
	}
	assert.Equal(t, total, result.TotalScore)
}

func TestScore_MissingFormatScoreContributesZero(t *testing.T) {
	scorer, _ := newTestScorer(t)

	// Profile with no score assignments at all.
	profile := &Profile{ID: 99, Name: "empty", FormatScores: map[int64]int{}}
	result := scorer.Score("Movie.2024.1080p.WEB-DL-GROUP", profile, Context{MediaType: MediaTypeMovie})

	assert.Equal(t, 0, result.TotalScore)
	assert.NotEmpty(t, result.MatchedFormats, "formats still match, they just score zero")
}

func TestScore_Monotonicity(t *testing.T) {
	scorer, registry := newTestScorer(t)
	base := bestProfile(t, registry)

	title := "Movie.2024.1080p.WEB-DL.DDP5.1-GROUP"
	before := scorer.Score(title, base, Context{MediaType: MediaTypeMovie})

	// Adding a positive mapping for a matched format never decreases the
	// total; a negative mapping never increases it.
	higher := cloneProfile(base)
	higher.FormatScores[FormatIDDDPlus] = base.FormatScores[FormatIDDDPlus] + 500
	assert.GreaterOrEqual(t, scorer.Score(title, higher, Context{MediaType: MediaTypeMovie}).TotalScore, before.TotalScore)

	lower := cloneProfile(base)
	lower.FormatScores[FormatIDDDPlus] = base.FormatScores[FormatIDDDPlus] - 500
	assert.LessOrEqual(t, scorer.Score(title, lower, Context{MediaType: MediaTypeMovie}).TotalScore, before.TotalScore)
}

func TestScore_SizeWindows(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	tests := []struct {
		name         string
		ctx          Context
		wantRejected bool
	}{
		{
			name:         "movie inside window",
			ctx:          Context{MediaType: MediaTypeMovie, SizeBytes: 10 << 30},
			wantRejected: false,
		},
		{
			name:         "movie below minimum",
			ctx:          Context{MediaType: MediaTypeMovie, SizeBytes: 100 << 20},
			wantRejected: true,
		},
		{
			name:         "movie exactly at minimum bound is inclusive",
			ctx:          Context{MediaType: MediaTypeMovie, SizeBytes: 1 << 30},
			wantRejected: false,
		},
		{
			name:         "episode inside window",
			ctx:          Context{MediaType: MediaTypeTV, SizeBytes: 500 << 20},
			wantRejected: false,
		},
		{
			name:         "episode above maximum",
			ctx:          Context{MediaType: MediaTypeTV, SizeBytes: 20 << 30},
			wantRejected: true,
		},
		{
			name: "season pack averaged per episode",
			ctx: Context{
				MediaType:    MediaTypeTV,
				SizeBytes:    20 << 30,
				IsSeasonPack: true,
				EpisodeCount: 10, // 2 GB per episode, inside window
			},
			wantRejected: false,
		},
		{
			name: "season pack with unknown episode count skips the check",
			ctx: Context{
				MediaType:    MediaTypeTV,
				SizeBytes:    500 << 30,
				IsSeasonPack: true,
				EpisodeCount: 0,
			},
			wantRejected: false,
		},
		{
			name:         "zero size skips the check",
			ctx:          Context{MediaType: MediaTypeMovie, SizeBytes: 0},
			wantRejected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score("Movie.2024.1080p.WEB-DL-GROUP", profile, tt.ctx)
			assert.Equal(t, tt.wantRejected, result.SizeRejected)
			if tt.wantRejected {
				assert.NotEmpty(t, result.SizeRejectionReason)
				assert.False(t, result.MeetsMinimum)
			}
		})
	}
}

func TestScore_ParsedPackSizedPerEpisode(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	// The caller never declared a pack; the title says so. 20 GB would
	// fail as one episode but passes averaged over the season.
	pack := scorer.Score("Show.S01.1080p.WEB-DL-GRP", profile, Context{
		MediaType:    MediaTypeTV,
		SizeBytes:    20 << 30,
		EpisodeCount: 10,
	})
	assert.False(t, pack.SizeRejected)

	// With the episode count unknown the check is skipped entirely.
	unknown := scorer.Score("Show.S01.1080p.WEB-DL-GRP", profile, Context{
		MediaType: MediaTypeTV,
		SizeBytes: 500 << 30,
	})
	assert.False(t, unknown.SizeRejected)

	// A plain episode of the same size is still rejected.
	episode := scorer.Score("Show.S01E01.1080p.WEB-DL-GRP", profile, Context{
		MediaType: MediaTypeTV,
		SizeBytes: 20 << 30,
	})
	assert.True(t, episode.SizeRejected)
}

func TestIsUpgrade_SeasonPackCandidateNotSizeRejected(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	result := scorer.IsUpgrade("Show.S01.720p.WEB-DL-GRP", "Show.S01.2160p.BluRay.REMUX-GRP", profile, UpgradeOptions{
		MediaType:     MediaTypeTV,
		CandidateSize: 200 << 30,
	})
	assert.False(t, result.Candidate.SizeRejected)
	assert.True(t, result.IsUpgrade)
}

func TestScore_PackBonus(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	episode := scorer.Score("Show.S01E01.1080p.WEB-DL-GRP", profile, Context{MediaType: MediaTypeTV})
	single := scorer.Score("Show.S01.1080p.WEB-DL-GRP", profile, Context{MediaType: MediaTypeTV})
	multi := scorer.Score("Show.S01-S03.1080p.WEB-DL-GRP", profile, Context{MediaType: MediaTypeTV})
	complete := scorer.Score("Show.S01-S05.COMPLETE.1080p.WEB-DL-GRP", profile, Context{MediaType: MediaTypeTV})

	assert.Equal(t, episode.TotalScore+300, single.TotalScore)
	assert.Equal(t, episode.TotalScore+600, multi.TotalScore)
	assert.Equal(t, episode.TotalScore+1000, complete.TotalScore)

	// Disabled preference adds nothing.
	flat := cloneProfile(profile)
	flat.PackPreference.Enabled = false
	assert.Equal(t,
		scorer.Score("Show.S01E01.1080p.WEB-DL-GRP", flat, Context{MediaType: MediaTypeTV}).TotalScore,
		scorer.Score("Show.S01.1080p.WEB-DL-GRP", flat, Context{MediaType: MediaTypeTV}).TotalScore)
}

func TestIsUpgrade(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	existing := "Movie.2024.1080p.WEB-DL-GROUP"
	candidate := "Movie.2024.2160p.UHD.BluRay.REMUX.TrueHD.Atmos-GROUP"

	result := scorer.IsUpgrade(existing, candidate, profile, UpgradeOptions{MinImprovement: 100})
	assert.True(t, result.IsUpgrade)
	assert.Greater(t, result.Improvement, 0)

	// Antisymmetry: the reverse comparison must not be an upgrade.
	reverse := scorer.IsUpgrade(candidate, existing, profile, UpgradeOptions{MinImprovement: 100})
	assert.False(t, reverse.IsUpgrade)
	assert.Equal(t, -result.Improvement, reverse.Improvement)
}

func TestIsUpgrade_EqualScoreNeverUpgrades(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	title := "Movie.2024.1080p.WEB-DL-GROUP"
	result := scorer.IsUpgrade(title, title, profile, UpgradeOptions{MinImprovement: 0})
	assert.False(t, result.IsUpgrade)
	assert.Equal(t, 0, result.Improvement)
}

func TestIsUpgrade_BannedCandidateNeverUpgrades(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	// Even with an absurdly negative existing score, a banned candidate
	// must not upgrade.
	result := scorer.IsUpgrade("Movie.2024.480p.CAM-X", "Movie.2024.1080p.TS-GROUP", profile, UpgradeOptions{})
	assert.False(t, result.IsUpgrade)
	assert.True(t, result.Candidate.IsBanned)
}

func TestIsUpgrade_MinImprovementRespected(t *testing.T) {
	scorer, registry := newTestScorer(t)
	profile := bestProfile(t, registry)

	existing := "Movie.2024.1080p.WEB-DL-GROUP"
	candidate := "Movie.2024.1080p.WEB-DL.PROPER-GROUP" // +100 only

	assert.True(t, scorer.IsUpgrade(existing, candidate, profile, UpgradeOptions{MinImprovement: 100}).IsUpgrade)
	assert.False(t, scorer.IsUpgrade(existing, candidate, profile, UpgradeOptions{MinImprovement: 101}).IsUpgrade)
}

func TestRegistry_ReloadRejectsInvalid(t *testing.T) {
	registry, err := NewRegistry(zerolog.Nop())
	require.NoError(t, err)
	before := len(registry.Formats())

	bad := []*Format{{
		ID: 5000, Name: "broken", Category: "nonsense",
		Conditions: []Condition{{Type: ConditionReleaseTitle, Pattern: "x"}},
	}}
	err = registry.Reload(bad, BuiltinProfiles())
	require.Error(t, err)

	// Previous set stays active after a failed reload.
	assert.Len(t, registry.Formats(), before)
}

func TestRegistry_ReloadRejectsBadPattern(t *testing.T) {
	registry, err := NewRegistry(zerolog.Nop())
	require.NoError(t, err)

	bad := []*Format{{
		ID: 5001, Name: "badpattern", Category: CategoryOther,
		Conditions: []Condition{{Type: ConditionReleaseTitle, Pattern: "(unclosed"}},
	}}
	assert.Error(t, registry.Reload(bad, BuiltinProfiles()))
}

func TestFormat_MatchSemantics(t *testing.T) {
	attrs := release.Parse("Movie.2024.1080p.WEB-DL-GROUP")

	format := &Format{
		ID: 1, Name: "test", Category: CategoryOther,
		Conditions: []Condition{
			{Type: ConditionResolution, Required: true, Resolution: release.Resolution1080p},
			{Type: ConditionSource, Source: release.SourceWebDL},
			{Type: ConditionSource, Source: release.SourceBluRay},
		},
	}
	require.NoError(t, format.Compile())

	// Required matches, one of the optional conditions matches.
	assert.True(t, format.Matches(&attrs, "Movie.2024.1080p.WEB-DL-GROUP"))

	// Required fails.
	attrs720 := release.Parse("Movie.2024.720p.WEB-DL-GROUP")
	assert.False(t, format.Matches(&attrs720, "Movie.2024.720p.WEB-DL-GROUP"))

	// No optional condition matches.
	attrsHDTV := release.Parse("Movie.2024.1080p.HDTV-GROUP")
	assert.False(t, format.Matches(&attrsHDTV, "Movie.2024.1080p.HDTV-GROUP"))
}

func TestFormat_NegateInvertsRawResultOnly(t *testing.T) {
	// A negated condition that is satisfied still counts as matched.
	format := &Format{
		ID: 2, Name: "not-cam", Category: CategoryOther,
		Conditions: []Condition{
			{Type: ConditionSource, Required: true, Negate: true, Source: release.SourceCAM},
		},
	}
	require.NoError(t, format.Compile())

	webdl := release.Parse("Movie.2024.1080p.WEB-DL-GROUP")
	assert.True(t, format.Matches(&webdl, "Movie.2024.1080p.WEB-DL-GROUP"))

	cam := release.Parse("Movie.2024.CAM-GROUP")
	assert.False(t, format.Matches(&cam, "Movie.2024.CAM-GROUP"))
}

func TestCondition_UnknownTypeRejectedAtLoad(t *testing.T) {
	c := Condition{Type: "frame_rate", Pattern: "60"}
	assert.Error(t, c.Compile())
}

func cloneProfile(p *Profile) *Profile {
	clone := *p
	clone.FormatScores = make(map[int64]int, len(p.FormatScores))
	for id, score := range p.FormatScores {
		clone.FormatScores[id] = score
	}
	return &clone
}
