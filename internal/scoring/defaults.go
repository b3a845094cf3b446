package scoring

import "github.com/cinephage/cinephage/internal/release"

// Built-in format and profile ids occupy the range below 1000; user-defined
// rows start above it.
const (
	FormatID2160p int64 = iota + 1
	FormatID1080p
	FormatID720p
	FormatID480p
	FormatIDRemux
	FormatIDBluRay
	FormatIDWebDL
	FormatIDWebRip
	FormatIDHDTV
	FormatIDCam
	FormatIDTelesync
	FormatIDScreener
	FormatIDDVHDR10Plus
	FormatIDDV
	FormatIDHDR10Plus
	FormatIDHDR10
	FormatIDHDR
	FormatIDTrueHD
	FormatIDDTSHDMA
	FormatIDDTSX
	FormatIDAtmos
	FormatIDDDPlus
	FormatIDFLAC
	FormatIDNetflix
	FormatIDAmazon
	FormatIDX265
	FormatIDX264
	FormatIDMicroGroup
	FormatIDTierOneGroup
	FormatIDRepack
	FormatIDProper
	FormatID3D
)

const (
	ProfileIDBest int64 = iota + 1
	ProfileIDEfficient
	ProfileIDMicro
)

func resolutionFormat(id int64, name string, res release.Resolution) *Format {
	return &Format{
		ID: id, Name: name, Category: CategoryResolution,
		Conditions: []Condition{{Type: ConditionResolution, Required: true, Resolution: res}},
	}
}

func sourceFormat(id int64, name string, category Category, src release.Source) *Format {
	return &Format{
		ID: id, Name: name, Category: category,
		Conditions: []Condition{{Type: ConditionSource, Required: true, Source: src}},
	}
}

func titleFormat(id int64, name string, category Category, pattern string) *Format {
	return &Format{
		ID: id, Name: name, Category: category,
		Conditions: []Condition{{Type: ConditionReleaseTitle, Required: true, Pattern: pattern}},
	}
}

func groupFormat(id int64, name string, category Category, pattern string) *Format {
	return &Format{
		ID: id, Name: name, Category: category,
		Conditions: []Condition{{Type: ConditionReleaseGroup, Required: true, Pattern: pattern}},
	}
}

// BuiltinFormats returns the built-in custom format set. Callers receive
// fresh values; built-ins are never mutated in place.
func BuiltinFormats() []*Format {
	return []*Format{
		resolutionFormat(FormatID2160p, "2160p", release.Resolution2160p),
		resolutionFormat(FormatID1080p, "1080p", release.Resolution1080p),
		resolutionFormat(FormatID720p, "720p", release.Resolution720p),
		resolutionFormat(FormatID480p, "480p", release.Resolution480p),

		titleFormat(FormatIDRemux, "Remux", CategoryEnhancement, `\bremux\b`),
		sourceFormat(FormatIDBluRay, "BluRay", CategoryOther, release.SourceBluRay),
		sourceFormat(FormatIDWebDL, "WEB-DL", CategoryOther, release.SourceWebDL),
		sourceFormat(FormatIDWebRip, "WEBRip", CategoryOther, release.SourceWebRip),
		sourceFormat(FormatIDHDTV, "HDTV", CategoryOther, release.SourceHDTV),

		sourceFormat(FormatIDCam, "CAM", CategoryBanned, release.SourceCAM),
		sourceFormat(FormatIDTelesync, "Telesync", CategoryBanned, release.SourceTS),
		sourceFormat(FormatIDScreener, "Screener", CategoryBanned, release.SourceSCR),

		{
			ID: FormatIDDVHDR10Plus, Name: "DV HDR10+", Category: CategoryHDR,
			Conditions: []Condition{
				{Type: ConditionReleaseTitle, Required: true, Pattern: `\b(?:dolby[\s._-]?vision|dovi|dv)\b`},
				{Type: ConditionReleaseTitle, Required: true, Pattern: `hdr10(?:\+|[\s._-]?plus)`},
			},
		},
		{
			ID: FormatIDDV, Name: "DV", Category: CategoryHDR,
			Conditions: []Condition{
				{Type: ConditionReleaseTitle, Required: true, Pattern: `\b(?:dolby[\s._-]?vision|dovi|dv)\b`},
				{Type: ConditionReleaseTitle, Required: true, Negate: true, Pattern: `hdr10(?:\+|[\s._-]?plus)`},
			},
		},
		{
			ID: FormatIDHDR10Plus, Name: "HDR10+", Category: CategoryHDR,
			Conditions: []Condition{
				{Type: ConditionReleaseTitle, Required: true, Pattern: `hdr10(?:\+|[\s._-]?plus)`},
				{Type: ConditionReleaseTitle, Required: true, Negate: true, Pattern: `\b(?:dolby[\s._-]?vision|dovi|dv)\b`},
			},
		},
		{
			ID: FormatIDHDR10, Name: "HDR10", Category: CategoryHDR,
			Conditions: []Condition{
				{Type: ConditionReleaseTitle, Required: true, Pattern: `\bhdr10\b`},
				{Type: ConditionReleaseTitle, Required: true, Negate: true, Pattern: `hdr10(?:\+|[\s._-]?plus)`},
			},
		},
		{
			ID: FormatIDHDR, Name: "HDR", Category: CategoryHDR,
			Conditions: []Condition{
				{Type: ConditionReleaseTitle, Required: true, Pattern: `\bhdr\b`},
			},
		},

		titleFormat(FormatIDTrueHD, "TrueHD", CategoryAudio, `\btrue[\s._-]?hd\b`),
		titleFormat(FormatIDDTSHDMA, "DTS-HD MA", CategoryAudio, `\bdts[\s._-]?hd[\s._-]?ma\b`),
		titleFormat(FormatIDDTSX, "DTS-X", CategoryAudio, `\bdts[\s._-]?x\b`),
		titleFormat(FormatIDAtmos, "Atmos", CategoryAudio, `\batmos\b`),
		titleFormat(FormatIDDDPlus, "DD+", CategoryAudio, `\b(?:ddp[0-9]?\b|dd\+|eac3\b)`),
		titleFormat(FormatIDFLAC, "FLAC", CategoryAudio, `\bflac\b`),

		titleFormat(FormatIDNetflix, "Netflix", CategoryStreaming, `\bnf\b`),
		titleFormat(FormatIDAmazon, "Amazon", CategoryStreaming, `\bamzn\b`),

		titleFormat(FormatIDX265, "x265", CategoryCodec, `\b(?:x265|h[\s._-]?265|hevc)\b`),
		titleFormat(FormatIDX264, "x264", CategoryCodec, `\b(?:x264|h[\s._-]?264|avc)\b`),

		groupFormat(FormatIDMicroGroup, "Micro Encode Group", CategoryMicro,
			`^(?:YIFY|YTS(?:\.[A-Z]+)?|PSA|GalaxyRG|TGx)$`),
		groupFormat(FormatIDTierOneGroup, "Tier 1 Group", CategoryReleaseGroupTier,
			`^(?:FraMeSToR|CtrlHD|DON|EbP|NTb|FLUX|CMRG)$`),

		titleFormat(FormatIDRepack, "Repack", CategoryEnhancement, `\b(?:repack|rerip)\b`),
		titleFormat(FormatIDProper, "Proper", CategoryEnhancement, `\bproper\b`),
		titleFormat(FormatID3D, "3D", CategoryLowQuality, `\b(?:3d|sbs|h[\s._-]?ou)\b`),
	}
}

// BuiltinProfiles returns the immutable base profiles. User profiles are
// created from these by overriding individual format scores.
func BuiltinProfiles() []*Profile {
	return []*Profile{
		{
			ID:                ProfileIDBest,
			Name:              "Best",
			UpgradesAllowed:   true,
			MinScore:          0,
			UpgradeUntilScore: 0,
			MinScoreIncrement: 100,
			MovieMinSizeGb:    1,
			MovieMaxSizeGb:    90,
			EpisodeMinSizeMb:  100,
			EpisodeMaxSizeMb:  8000,
			PackPreference: PackPreference{
				Enabled:                  true,
				CompleteSeriesBonus:      1000,
				MultiSeasonBonus:         600,
				SingleSeasonBonus:        300,
				MinWantedEpisodesPercent: 60,
			},
			AllowedProtocols: []Protocol{ProtocolTorrent, ProtocolUsenet},
			FormatScores: map[int64]int{
				FormatID2160p:        5000,
				FormatID1080p:        3000,
				FormatID720p:         1000,
				FormatID480p:         -500,
				FormatIDRemux:        7000,
				FormatIDBluRay:       2500,
				FormatIDWebDL:        1500,
				FormatIDWebRip:       800,
				FormatIDHDTV:         300,
				FormatIDCam:          -10000,
				FormatIDTelesync:     -10000,
				FormatIDScreener:     -10000,
				FormatIDDVHDR10Plus:  1200,
				FormatIDDV:           1000,
				FormatIDHDR10Plus:    800,
				FormatIDHDR10:        600,
				FormatIDHDR:          400,
				FormatIDTrueHD:       2000,
				FormatIDDTSHDMA:      2000,
				FormatIDDTSX:         2200,
				FormatIDAtmos:        1200,
				FormatIDDDPlus:       600,
				FormatIDFLAC:         300,
				FormatIDNetflix:      100,
				FormatIDAmazon:       100,
				FormatIDTierOneGroup: 1500,
				FormatIDMicroGroup:   -3000,
				FormatIDRepack:       100,
				FormatIDProper:       100,
				FormatID3D:           -2000,
			},
		},
		{
			ID:                ProfileIDEfficient,
			Name:              "Efficient",
			UpgradesAllowed:   true,
			MinScore:          0,
			UpgradeUntilScore: 8000,
			MinScoreIncrement: 200,
			MovieMinSizeGb:    0.7,
			MovieMaxSizeGb:    25,
			EpisodeMinSizeMb:  80,
			EpisodeMaxSizeMb:  3000,
			PackPreference: PackPreference{
				Enabled:                  true,
				CompleteSeriesBonus:      800,
				MultiSeasonBonus:         500,
				SingleSeasonBonus:        250,
				MinWantedEpisodesPercent: 60,
			},
			AllowedProtocols: []Protocol{ProtocolTorrent, ProtocolUsenet},
			FormatScores: map[int64]int{
				FormatID2160p:        2000,
				FormatID1080p:        3000,
				FormatID720p:         1500,
				FormatID480p:         -500,
				FormatIDRemux:        -2000,
				FormatIDBluRay:       1500,
				FormatIDWebDL:        2500,
				FormatIDWebRip:       1200,
				FormatIDHDTV:         400,
				FormatIDCam:          -10000,
				FormatIDTelesync:     -10000,
				FormatIDScreener:     -10000,
				FormatIDDVHDR10Plus:  500,
				FormatIDDV:           400,
				FormatIDHDR10Plus:    350,
				FormatIDHDR10:        300,
				FormatIDHDR:          200,
				FormatIDDDPlus:       500,
				FormatIDX265:         1000,
				FormatIDTierOneGroup: 800,
				FormatIDMicroGroup:   -1500,
				FormatIDRepack:       100,
				FormatIDProper:       100,
				FormatID3D:           -2000,
			},
		},
		{
			ID:                ProfileIDMicro,
			Name:              "Micro",
			UpgradesAllowed:   true,
			MinScore:          0,
			UpgradeUntilScore: 5000,
			MinScoreIncrement: 300,
			MovieMinSizeGb:    0.3,
			MovieMaxSizeGb:    6,
			EpisodeMinSizeMb:  40,
			EpisodeMaxSizeMb:  700,
			PackPreference: PackPreference{
				Enabled:                  true,
				CompleteSeriesBonus:      500,
				MultiSeasonBonus:         300,
				SingleSeasonBonus:        150,
				MinWantedEpisodesPercent: 50,
			},
			AllowedProtocols: []Protocol{ProtocolTorrent, ProtocolUsenet},
			FormatScores: map[int64]int{
				FormatID2160p:      500,
				FormatID1080p:      3000,
				FormatID720p:       2000,
				FormatID480p:       200,
				FormatIDRemux:      -5000,
				FormatIDWebDL:      1500,
				FormatIDWebRip:     1200,
				FormatIDHDTV:       500,
				FormatIDCam:        -10000,
				FormatIDTelesync:   -10000,
				FormatIDScreener:   -10000,
				FormatIDX265:       2000,
				FormatIDMicroGroup: 2000,
				FormatIDRepack:     100,
				FormatIDProper:     100,
				FormatID3D:         -2000,
			},
		},
	}
}
