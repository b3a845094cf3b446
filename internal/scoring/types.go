// Package scoring evaluates releases against custom formats and scoring
// profiles.
package scoring

import (
	"fmt"
	"regexp"

	"github.com/cinephage/cinephage/internal/release"
)

// BannedScore is the sort score assigned to banned releases. The numeric
// total is still reported for diagnostics.
const BannedScore = -999999

// Category classifies a custom format for breakdown reporting.
type Category string

const (
	CategoryResolution       Category = "resolution"
	CategoryReleaseGroupTier Category = "release_group_tier"
	CategoryAudio            Category = "audio"
	CategoryHDR              Category = "hdr"
	CategoryStreaming        Category = "streaming"
	CategoryMicro            Category = "micro"
	CategoryLowQuality       Category = "low_quality"
	CategoryBanned           Category = "banned"
	CategoryEnhancement      Category = "enhancement"
	CategoryCodec            Category = "codec"
	CategoryOther            Category = "other"
)

var validCategories = map[Category]bool{
	CategoryResolution: true, CategoryReleaseGroupTier: true, CategoryAudio: true,
	CategoryHDR: true, CategoryStreaming: true, CategoryMicro: true,
	CategoryLowQuality: true, CategoryBanned: true, CategoryEnhancement: true,
	CategoryCodec: true, CategoryOther: true,
}

// ConditionType is the discriminator of a format condition.
type ConditionType string

const (
	ConditionResolution   ConditionType = "resolution"
	ConditionSource       ConditionType = "source"
	ConditionReleaseTitle ConditionType = "release_title"
	ConditionReleaseGroup ConditionType = "release_group"
)

// Condition is a single predicate inside a custom format. Resolution and
// source conditions compare against parsed values; release_title and
// release_group conditions apply a regex to the raw title or detected group.
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type"`
	Required bool          `json:"required" yaml:"required"`
	Negate   bool          `json:"negate" yaml:"negate"`

	Resolution release.Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Source     release.Source     `json:"source,omitempty" yaml:"source,omitempty"`
	Pattern    string             `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

// Compile validates the condition and compiles its pattern. Unknown types
// are rejected here, at load time, never at match time.
func (c *Condition) Compile() error {
	switch c.Type {
	case ConditionResolution:
		if c.Resolution == "" {
			return fmt.Errorf("resolution condition requires a resolution literal")
		}
	case ConditionSource:
		if c.Source == "" {
			return fmt.Errorf("source condition requires a source literal")
		}
	case ConditionReleaseTitle, ConditionReleaseGroup:
		if c.Pattern == "" {
			return fmt.Errorf("%s condition requires a pattern", c.Type)
		}
		re, err := regexp.Compile("(?i)" + c.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", c.Pattern, err)
		}
		c.re = re
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// matches evaluates the raw condition against parsed attributes and the raw
// title, before negation is applied.
func (c *Condition) matches(attrs *release.Attributes, title string) bool {
	switch c.Type {
	case ConditionResolution:
		return attrs.Resolution == c.Resolution
	case ConditionSource:
		return attrs.Source == c.Source
	case ConditionReleaseTitle:
		return c.re.MatchString(title)
	case ConditionReleaseGroup:
		return attrs.ReleaseGroup != "" && c.re.MatchString(attrs.ReleaseGroup)
	default:
		return false
	}
}

// Format is a named scoring rule over parsed release attributes.
type Format struct {
	ID           int64       `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	Category     Category    `json:"category" yaml:"category"`
	DefaultScore int         `json:"defaultScore" yaml:"defaultScore"`
	Conditions   []Condition `json:"conditions" yaml:"conditions"`
}

// Compile validates the format and compiles every condition.
func (f *Format) Compile() error {
	if !validCategories[f.Category] {
		return fmt.Errorf("format %q: unknown category %q", f.Name, f.Category)
	}
	if len(f.Conditions) == 0 {
		return fmt.Errorf("format %q: no conditions", f.Name)
	}
	for i := range f.Conditions {
		if err := f.Conditions[i].Compile(); err != nil {
			return fmt.Errorf("format %q: %w", f.Name, err)
		}
	}
	return nil
}

// Matches reports whether the format applies to a release. Every required
// condition must match (after negation), and at least one non-required
// condition must match when any exist. A negated condition that is
// satisfied still counts as matched.
func (f *Format) Matches(attrs *release.Attributes, title string) bool {
	optionalSeen := false
	optionalMatched := false

	for i := range f.Conditions {
		c := &f.Conditions[i]
		matched := c.matches(attrs, title)
		if c.Negate {
			matched = !matched
		}

		if c.Required {
			if !matched {
				return false
			}
			continue
		}

		optionalSeen = true
		if matched {
			optionalMatched = true
		}
	}

	if optionalSeen && !optionalMatched {
		return false
	}
	return true
}

// PackPreference configures season-pack bonuses for a profile.
type PackPreference struct {
	Enabled                  bool `json:"enabled"`
	CompleteSeriesBonus      int  `json:"completeSeriesBonus"`
	MultiSeasonBonus         int  `json:"multiSeasonBonus"`
	SingleSeasonBonus        int  `json:"singleSeasonBonus"`
	MinWantedEpisodesPercent int  `json:"minWantedEpisodesPercent"`
}

// Protocol is a download protocol a profile can allow.
type Protocol string

const (
	ProtocolTorrent   Protocol = "torrent"
	ProtocolUsenet    Protocol = "usenet"
	ProtocolStreaming Protocol = "streaming"
)

// Profile is a named collection of per-format score assignments plus
// thresholds. Profiles have no hierarchy; base profiles are immutable
// built-ins whose scores may be overridden per user profile.
type Profile struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	UpgradesAllowed   bool   `json:"upgradesAllowed"`
	MinScore          int    `json:"minScore"`
	UpgradeUntilScore int    `json:"upgradeUntilScore"` // <=0 means no cutoff
	MinScoreIncrement int    `json:"minScoreIncrement"`

	MovieMinSizeGb   float64 `json:"movieMinSizeGb"`
	MovieMaxSizeGb   float64 `json:"movieMaxSizeGb"`
	EpisodeMinSizeMb float64 `json:"episodeMinSizeMb"`
	EpisodeMaxSizeMb float64 `json:"episodeMaxSizeMb"`

	PackPreference   PackPreference  `json:"packPreference"`
	AllowedProtocols []Protocol      `json:"allowedProtocols"`
	FormatScores     map[int64]int   `json:"formatScores"`
}

// HasCutoff reports whether the profile defines an upgrade cutoff.
func (p *Profile) HasCutoff() bool {
	return p.UpgradeUntilScore > 0
}

// AllowsProtocol reports whether the profile permits the given protocol.
func (p *Profile) AllowsProtocol(protocol Protocol) bool {
	for _, allowed := range p.AllowedProtocols {
		if allowed == protocol {
			return true
		}
	}
	return false
}

// MatchedFormat records one format that applied to a release.
type MatchedFormat struct {
	FormatID int64    `json:"formatId"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Score    int      `json:"score"`
}

// Result is the outcome of scoring a single release title under a profile.
type Result struct {
	TotalScore          int                `json:"totalScore"`
	Breakdown           map[Category]int   `json:"breakdown"`
	MatchedFormats      []MatchedFormat    `json:"matchedFormats"`
	MeetsMinimum        bool               `json:"meetsMinimum"`
	IsBanned            bool               `json:"isBanned"`
	BannedReasons       []string           `json:"bannedReasons,omitempty"`
	SizeRejected        bool               `json:"sizeRejected"`
	SizeRejectionReason string             `json:"sizeRejectionReason,omitempty"`
	Attributes          release.Attributes `json:"attributes"`
}

// SortScore returns the score used for ranking. Banned releases always
// sort below everything else.
func (r *Result) SortScore() int {
	if r.IsBanned {
		return BannedScore
	}
	return r.TotalScore
}

// MediaType distinguishes movie and TV scoring contexts.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Context carries per-release scoring inputs that are not derivable from
// the title.
type Context struct {
	MediaType    MediaType
	SizeBytes    int64
	IsSeasonPack bool
	// EpisodeCount is the number of episodes a season pack contains.
	// Zero means unknown; size checks are skipped in that case.
	EpisodeCount int
}
