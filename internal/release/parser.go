// Package release parses quality attributes out of release titles.
package release

import (
	"regexp"
	"strconv"
	"strings"
)

// Resolution is the detected video resolution of a release.
type Resolution string

const (
	Resolution2160p   Resolution = "2160p"
	Resolution1080p   Resolution = "1080p"
	Resolution720p    Resolution = "720p"
	Resolution480p    Resolution = "480p"
	ResolutionUnknown Resolution = "unknown"
)

// Source is the detected media source of a release.
type Source string

const (
	SourceBluRay  Source = "bluray"
	SourceWebDL   Source = "webdl"
	SourceWebRip  Source = "webrip"
	SourceHDTV    Source = "hdtv"
	SourceHDRip   Source = "hdrip"
	SourceDVDRip  Source = "dvdrip"
	SourceDVD     Source = "dvd"
	SourceCAM     Source = "cam"
	SourceTS      Source = "ts"
	SourceSCR     Source = "scr"
	SourcePDTV    Source = "pdtv"
	SourceDSR     Source = "dsr"
	SourceR5      Source = "r5"
	SourceUnknown Source = "unknown"
)

// HDRFormat is the detected HDR format, ordered most to least specific.
type HDRFormat string

const (
	HDRDVHDR10Plus HDRFormat = "DV HDR10+"
	HDRDV          HDRFormat = "DV"
	HDR10Plus      HDRFormat = "HDR10+"
	HDR10          HDRFormat = "HDR10"
	HDRGeneric     HDRFormat = "HDR"
	HDRHLG         HDRFormat = "HLG"
	HDRPQ          HDRFormat = "PQ"
	HDRNone        HDRFormat = "SDR"
)

// AudioInfo describes the detected audio track.
type AudioInfo struct {
	Codec    string `json:"codec,omitempty"`    // "TrueHD", "DTS-HD MA", "DD+", ...
	Channels string `json:"channels,omitempty"` // "7.1", "5.1", "2.0"
	Atmos    bool   `json:"atmos,omitempty"`
}

// Attributes is the parsed view of a release title. It is derived purely
// from the title string and is safe to serialize and re-parse.
type Attributes struct {
	Title            string     `json:"title"`
	Year             int        `json:"year,omitempty"`
	Resolution       Resolution `json:"resolution"`
	Source           Source     `json:"source"`
	Codec            string     `json:"codec,omitempty"`
	HDR              HDRFormat  `json:"hdr"`
	Audio            AudioInfo  `json:"audio"`
	ReleaseGroup     string     `json:"releaseGroup,omitempty"`
	StreamingService string     `json:"streamingService,omitempty"`
	Edition          string     `json:"edition,omitempty"`
	Languages        []string   `json:"languages,omitempty"`

	IsRemux  bool `json:"isRemux,omitempty"`
	IsRepack bool `json:"isRepack,omitempty"`
	IsProper bool `json:"isProper,omitempty"`
	Is3D     bool `json:"is3d,omitempty"`

	// TV fields
	IsTV             bool  `json:"isTv,omitempty"`
	IsSeasonPack     bool  `json:"isSeasonPack,omitempty"`
	IsCompleteSeries bool  `json:"isCompleteSeries,omitempty"`
	SeasonCount      int   `json:"seasonCount,omitempty"`
	Seasons          []int `json:"seasons,omitempty"`
	Episodes         []int `json:"episodes,omitempty"`
	AbsoluteEpisode  int   `json:"absoluteEpisode,omitempty"`
}

// Regex patterns. All are compiled once and shared; matching is
// case-insensitive and anchored on token boundaries so markers never match
// inside unrelated words (x264 must not match "foox264bar").
var (
	// TV patterns
	tvPatternSE          = regexp.MustCompile(`(?i)\b[Ss](\d{1,2})[Ee](\d{1,3})(?:[-+Ee](\d{1,3}))?\b`)
	tvPatternX           = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	tvPatternSeasonRange = regexp.MustCompile(`(?i)\b[Ss](\d{1,2})-[Ss]?(\d{1,2})\b`)
	tvPatternSeasonOnly  = regexp.MustCompile(`(?i)\b[Ss](\d{1,2})\b`)
	tvPatternSeasonWord  = regexp.MustCompile(`(?i)\bseason[\s._-]*(\d{1,2})\b`)
	tvPatternComplete    = regexp.MustCompile(`(?i)\b(?:complete[\s._-]*(?:series|collection)?|full[\s._-]+series)\b`)
	// Anime-style absolute numbering: "Show - 123 (1080p)"
	tvPatternAbsolute = regexp.MustCompile(`\s-\s(\d{2,4})\b`)

	// Resolution patterns; explicit markers first, then inference tokens.
	resolutionPatterns = []struct {
		resolution Resolution
		pattern    *regexp.Regexp
	}{
		{Resolution2160p, regexp.MustCompile(`(?i)\b2160p\b`)},
		{Resolution1080p, regexp.MustCompile(`(?i)\b1080[pi]\b`)},
		{Resolution720p, regexp.MustCompile(`(?i)\b720p\b`)},
		{Resolution480p, regexp.MustCompile(`(?i)\b480p\b`)},
	}
	resolutionInference = []struct {
		resolution Resolution
		pattern    *regexp.Regexp
	}{
		{Resolution2160p, regexp.MustCompile(`(?i)\b(?:4k|uhd)\b`)},
		{Resolution720p, regexp.MustCompile(`(?i)\bhd\b`)},
		{Resolution480p, regexp.MustCompile(`(?i)\bsd\b`)},
	}

	// Source patterns, checked in order. Longest / most specific wins.
	sourcePatterns = []struct {
		source  Source
		pattern *regexp.Regexp
	}{
		{SourceWebDL, regexp.MustCompile(`(?i)\bweb[\s._-]?dl\b`)},
		{SourceWebRip, regexp.MustCompile(`(?i)\bweb[\s._-]?rip\b`)},
		{SourceBluRay, regexp.MustCompile(`(?i)\b(?:blu[\s._-]?ray|bd[\s._-]?rip|br[\s._-]?rip|bd[\s._-]?remux)\b`)},
		{SourceHDTV, regexp.MustCompile(`(?i)\bhdtv\b`)},
		{SourceHDRip, regexp.MustCompile(`(?i)\bhd[\s._-]?rip\b`)},
		{SourceDVDRip, regexp.MustCompile(`(?i)\bdvd[\s._-]?rip\b`)},
		{SourceDVD, regexp.MustCompile(`(?i)\bdvd\b`)},
		{SourceCAM, regexp.MustCompile(`(?i)\b(?:cam|hd[\s._-]?cam|camrip)\b`)},
		{SourceTS, regexp.MustCompile(`(?i)\b(?:ts|telesync|hd[\s._-]?ts)\b`)},
		{SourceSCR, regexp.MustCompile(`(?i)\b(?:scr|screener|dvdscr|bdscr)\b`)},
		{SourcePDTV, regexp.MustCompile(`(?i)\bpdtv\b`)},
		{SourceDSR, regexp.MustCompile(`(?i)\bdsr\b`)},
		{SourceR5, regexp.MustCompile(`(?i)\br5\b`)},
		// Bare "WEB" falls back to WEB-DL when nothing more specific matched.
		{SourceWebDL, regexp.MustCompile(`(?i)\bweb\b`)},
	}

	// Codec patterns mapped to canonical names. Most specific first so
	// "x265" is not shadowed by a looser pattern.
	codecPatterns = []struct {
		codec   string
		pattern *regexp.Regexp
	}{
		{"x265", regexp.MustCompile(`(?i)\b(?:x265|h[\s._-]?265|hevc)\b`)},
		{"x264", regexp.MustCompile(`(?i)\b(?:x264|h[\s._-]?264|avc)\b`)},
		{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
		{"VP9", regexp.MustCompile(`(?i)\bvp9\b`)},
		{"XviD", regexp.MustCompile(`(?i)\bxvid\b`)},
		{"DivX", regexp.MustCompile(`(?i)\bdivx\b`)},
		{"MPEG2", regexp.MustCompile(`(?i)\bmpeg[\s._-]?2\b`)},
	}

	// HDR patterns in priority order (most specific first).
	hdrDVPattern       = regexp.MustCompile(`(?i)\b(?:dolby[\s._-]?vision|dovi|dv)\b`)
	hdr10PlusPattern   = regexp.MustCompile(`(?i)\bhdr10(?:\+|[\s._-]?plus)`)
	hdr10Pattern       = regexp.MustCompile(`(?i)\bhdr10\b`)
	hdrGenericPattern  = regexp.MustCompile(`(?i)\bhdr\b`)
	hdrHLGPattern      = regexp.MustCompile(`(?i)\bhlg\b`)
	hdrPQPattern       = regexp.MustCompile(`(?i)\bpq\b`)
	sdrExplicitPattern = regexp.MustCompile(`(?i)\bsdr\b`)

	// Audio codec patterns, most specific first.
	audioPatterns = []struct {
		codec   string
		pattern *regexp.Regexp
	}{
		{"DTS-HD MA", regexp.MustCompile(`(?i)\bdts[\s._-]?hd[\s._-]?ma\b`)},
		{"DTS-HD", regexp.MustCompile(`(?i)\bdts[\s._-]?hd\b`)},
		{"DTS-X", regexp.MustCompile(`(?i)\bdts[\s._-]?x\b`)},
		{"TrueHD", regexp.MustCompile(`(?i)\btrue[\s._-]?hd\b`)},
		{"DD+", regexp.MustCompile(`(?i)\b(?:ddp[0-9]?\b|dd\+|e[\s._-]?ac[\s._-]?3\b|eac3\b)`)},
		{"DD", regexp.MustCompile(`(?i)\b(?:dd[0-9]?|ac[\s._-]?3)\b`)},
		{"DTS", regexp.MustCompile(`(?i)\bdts\b`)},
		{"FLAC", regexp.MustCompile(`(?i)\bflac\b`)},
		{"AAC", regexp.MustCompile(`(?i)\baac\b`)},
		{"Opus", regexp.MustCompile(`(?i)\bopus\b`)},
		{"MP3", regexp.MustCompile(`(?i)\bmp3\b`)},
		{"PCM", regexp.MustCompile(`(?i)\b(?:pcm|lpcm)\b`)},
	}
	audioChannelsPattern = regexp.MustCompile(`([1-9])\.([01])\b`)
	atmosPattern         = regexp.MustCompile(`(?i)\batmos\b`)

	// Streaming service tags.
	streamingPatterns = []struct {
		service string
		pattern *regexp.Regexp
	}{
		{"Netflix", regexp.MustCompile(`(?i)\bnf\b`)},
		{"Amazon", regexp.MustCompile(`(?i)\b(?:amzn|amazon)\b`)},
		{"Disney+", regexp.MustCompile(`(?i)\bdsnp\b`)},
		{"Max", regexp.MustCompile(`(?i)\b(?:hmax|max)\b`)},
		{"Apple TV+", regexp.MustCompile(`(?i)\batvp\b`)},
		{"Hulu", regexp.MustCompile(`(?i)\bhulu\b`)},
		{"Peacock", regexp.MustCompile(`(?i)\bpcok\b`)},
		{"Paramount+", regexp.MustCompile(`(?i)\bpmtp\b`)},
		{"Crunchyroll", regexp.MustCompile(`(?i)\bcr\b`)},
		{"iTunes", regexp.MustCompile(`(?i)\bit\b`)},
	}

	// Edition markers.
	editionPatterns = []struct {
		edition string
		pattern *regexp.Regexp
	}{
		{"Director's Cut", regexp.MustCompile(`(?i)\b(?:directors?[\s._-]?cut|dc)\b`)},
		{"Extended", regexp.MustCompile(`(?i)\bextended\b`)},
		{"Unrated", regexp.MustCompile(`(?i)\bunrated\b`)},
		{"Theatrical", regexp.MustCompile(`(?i)\btheatrical\b`)},
		{"IMAX", regexp.MustCompile(`(?i)\bimax\b`)},
		{"Remastered", regexp.MustCompile(`(?i)\bremaster(?:ed)?\b`)},
		{"Criterion", regexp.MustCompile(`(?i)\bcriterion\b`)},
		{"Open Matte", regexp.MustCompile(`(?i)\bopen[\s._-]?matte\b`)},
	}

	// Language tags. English is the implicit default and never recorded.
	languagePatterns = []struct {
		language string
		pattern  *regexp.Regexp
	}{
		{"French", regexp.MustCompile(`(?i)\b(?:french|fre|vff|vfq|truefrench)\b`)},
		{"German", regexp.MustCompile(`(?i)\b(?:german|ger)\b`)},
		{"Italian", regexp.MustCompile(`(?i)\b(?:italian|ita)\b`)},
		{"Spanish", regexp.MustCompile(`(?i)\b(?:spanish|castellano|esp)\b`)},
		{"Portuguese", regexp.MustCompile(`(?i)\b(?:portuguese|legendado)\b`)},
		{"Russian", regexp.MustCompile(`(?i)\b(?:russian|rus)\b`)},
		{"Japanese", regexp.MustCompile(`(?i)\b(?:japanese|jpn)\b`)},
		{"Korean", regexp.MustCompile(`(?i)\b(?:korean|kor)\b`)},
		{"Hindi", regexp.MustCompile(`(?i)\bhindi\b`)},
		{"Multi", regexp.MustCompile(`(?i)\b(?:multi|dual[\s._-]?audio)\b`)},
		{"VOSTFR", regexp.MustCompile(`(?i)\bvostfr\b`)},
	}

	// Flag patterns.
	remuxPattern  = regexp.MustCompile(`(?i)\bremux\b`)
	repackPattern = regexp.MustCompile(`(?i)\b(?:repack|rerip)\b`)
	properPattern = regexp.MustCompile(`(?i)\bproper\b`)
	threeDPattern = regexp.MustCompile(`(?i)\b(?:3d|sbs|half[\s._-]?sbs|h[\s._-]?ou)\b`)

	yearPattern         = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	releaseGroupPattern = regexp.MustCompile(`-\s*([A-Za-z0-9][A-Za-z0-9._]*?)(?:\.[a-z0-9]{2,4})?\s*$`)
	separatorPattern    = regexp.MustCompile(`[\s._]+`)
	fileExtPattern      = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|m2ts|ts|wmv|mov)$`)
)

// Parse extracts quality attributes from a release title. It never fails:
// unrecognized markers degrade to unknown values.
func Parse(title string) Attributes {
	attrs := Attributes{
		Resolution: ResolutionUnknown,
		Source:     SourceUnknown,
		HDR:        HDRNone,
	}
	if strings.TrimSpace(title) == "" {
		return attrs
	}

	name := fileExtPattern.ReplaceAllString(title, "")

	parseTV(name, &attrs)
	parseTitleAndYear(name, &attrs)

	attrs.Resolution = detectResolution(name)
	attrs.Source = detectSource(name)
	attrs.Codec = detectCodec(name)
	attrs.HDR = detectHDR(name)
	attrs.Audio = detectAudio(name)
	attrs.ReleaseGroup = detectReleaseGroup(name)
	attrs.StreamingService = detectStreaming(name)
	attrs.Edition = detectEdition(name)
	attrs.Languages = detectLanguages(name)

	attrs.IsRemux = remuxPattern.MatchString(name)
	attrs.IsRepack = repackPattern.MatchString(name)
	attrs.IsProper = properPattern.MatchString(name)
	attrs.Is3D = threeDPattern.MatchString(name)

	// A remux with no explicit source is a disc source.
	if attrs.IsRemux && attrs.Source == SourceUnknown {
		attrs.Source = SourceBluRay
	}

	return attrs
}

func parseTV(name string, attrs *Attributes) {
	// Multi-episode / single-episode: SxxEyy, SxxEyy-yy, SxxEyy+yy, SxxEyyEzz
	if match := tvPatternSE.FindStringSubmatch(name); match != nil {
		attrs.IsTV = true
		season, _ := strconv.Atoi(match[1])
		first, _ := strconv.Atoi(match[2])
		attrs.Seasons = []int{season}
		attrs.SeasonCount = 1
		attrs.Episodes = []int{first}
		if match[3] != "" {
			last, _ := strconv.Atoi(match[3])
			for ep := first + 1; ep <= last; ep++ {
				attrs.Episodes = append(attrs.Episodes, ep)
			}
		}
		return
	}

	if match := tvPatternX.FindStringSubmatch(name); match != nil {
		attrs.IsTV = true
		season, _ := strconv.Atoi(match[1])
		episode, _ := strconv.Atoi(match[2])
		attrs.Seasons = []int{season}
		attrs.SeasonCount = 1
		attrs.Episodes = []int{episode}
		return
	}

	// Multi-season pack: S01-S03
	if match := tvPatternSeasonRange.FindStringSubmatch(name); match != nil {
		attrs.IsTV = true
		attrs.IsSeasonPack = true
		first, _ := strconv.Atoi(match[1])
		last, _ := strconv.Atoi(match[2])
		if last >= first {
			for s := first; s <= last; s++ {
				attrs.Seasons = append(attrs.Seasons, s)
			}
			attrs.SeasonCount = last - first + 1
		}
		if attrs.SeasonCount >= 2 {
			attrs.IsCompleteSeries = tvPatternComplete.MatchString(name)
		}
		return
	}

	// Season pack: season named without any episode numbers.
	if match := tvPatternSeasonOnly.FindStringSubmatch(name); match != nil {
		attrs.IsTV = true
		attrs.IsSeasonPack = true
		season, _ := strconv.Atoi(match[1])
		attrs.Seasons = []int{season}
		attrs.SeasonCount = 1
		return
	}
	if match := tvPatternSeasonWord.FindStringSubmatch(name); match != nil {
		attrs.IsTV = true
		attrs.IsSeasonPack = true
		season, _ := strconv.Atoi(match[1])
		attrs.Seasons = []int{season}
		attrs.SeasonCount = 1
		return
	}

	// Complete series with no season markers at all.
	if tvPatternComplete.MatchString(name) {
		attrs.IsTV = true
		attrs.IsSeasonPack = true
		attrs.IsCompleteSeries = true
		return
	}

	// Anime-style absolute episode numbering.
	if match := tvPatternAbsolute.FindStringSubmatch(name); match != nil {
		if abs, err := strconv.Atoi(match[1]); err == nil && abs < 2000 {
			attrs.IsTV = true
			attrs.AbsoluteEpisode = abs
		}
	}
}

func parseTitleAndYear(name string, attrs *Attributes) {
	// The title is everything before the first structural marker
	// (year, season/episode, resolution).
	cut := len(name)
	for _, loc := range [][]int{
		yearPattern.FindStringIndex(name),
		tvPatternSE.FindStringIndex(name),
		tvPatternX.FindStringIndex(name),
		tvPatternSeasonRange.FindStringIndex(name),
		tvPatternSeasonOnly.FindStringIndex(name),
		tvPatternSeasonWord.FindStringIndex(name),
		resolutionPatterns[0].pattern.FindStringIndex(name),
		resolutionPatterns[1].pattern.FindStringIndex(name),
		resolutionPatterns[2].pattern.FindStringIndex(name),
		resolutionPatterns[3].pattern.FindStringIndex(name),
	} {
		if loc != nil && loc[0] < cut && loc[0] > 0 {
			cut = loc[0]
		}
	}

	if match := yearPattern.FindStringSubmatch(name); match != nil {
		attrs.Year, _ = strconv.Atoi(match[1])
	}

	title := name[:cut]
	title = strings.Trim(title, " ._-([")
	title = separatorPattern.ReplaceAllString(title, " ")
	attrs.Title = strings.TrimSpace(title)
}

func detectResolution(name string) Resolution {
	for _, entry := range resolutionPatterns {
		if entry.pattern.MatchString(name) {
			return entry.resolution
		}
	}
	for _, entry := range resolutionInference {
		if entry.pattern.MatchString(name) {
			return entry.resolution
		}
	}
	return ResolutionUnknown
}

func detectSource(name string) Source {
	for _, entry := range sourcePatterns {
		if entry.pattern.MatchString(name) {
			return entry.source
		}
	}
	return SourceUnknown
}

func detectCodec(name string) string {
	for _, entry := range codecPatterns {
		if entry.pattern.MatchString(name) {
			return entry.codec
		}
	}
	return ""
}

func detectHDR(name string) HDRFormat {
	dv := hdrDVPattern.MatchString(name)
	hdr10plus := hdr10PlusPattern.MatchString(name)

	switch {
	case dv && hdr10plus:
		return HDRDVHDR10Plus
	case dv:
		return HDRDV
	case hdr10plus:
		return HDR10Plus
	case hdr10Pattern.MatchString(name):
		return HDR10
	case hdrGenericPattern.MatchString(name):
		return HDRGeneric
	case hdrHLGPattern.MatchString(name):
		return HDRHLG
	case hdrPQPattern.MatchString(name) && !sdrExplicitPattern.MatchString(name):
		return HDRPQ
	default:
		return HDRNone
	}
}

func detectAudio(name string) AudioInfo {
	audio := AudioInfo{}
	for _, entry := range audioPatterns {
		if entry.pattern.MatchString(name) {
			audio.Codec = entry.codec
			break
		}
	}
	if match := audioChannelsPattern.FindStringSubmatch(name); match != nil {
		audio.Channels = match[1] + "." + match[2]
	}
	audio.Atmos = atmosPattern.MatchString(name)
	return audio
}

// detectReleaseGroup extracts the token after the last hyphen, with any file
// extension stripped.
func detectReleaseGroup(name string) string {
	match := releaseGroupPattern.FindStringSubmatch(name)
	if match == nil {
		return ""
	}
	group := strings.TrimSpace(match[1])

	// Channel layouts and numeric fragments after a hyphen are not groups
	// (e.g. "DDP5.1-GROUP" matched correctly, but "7.1" alone is not).
	if audioChannelsPattern.MatchString(group) {
		return ""
	}
	return group
}

func detectStreaming(name string) string {
	for _, entry := range streamingPatterns {
		if entry.pattern.MatchString(name) {
			return entry.service
		}
	}
	return ""
}

func detectEdition(name string) string {
	for _, entry := range editionPatterns {
		if entry.pattern.MatchString(name) {
			return entry.edition
		}
	}
	return ""
}

func detectLanguages(name string) []string {
	var languages []string
	for _, entry := range languagePatterns {
		if entry.pattern.MatchString(name) {
			languages = append(languages, entry.language)
		}
	}
	return languages
}

// Season returns the first season number, or 0 when none was parsed.
func (a *Attributes) Season() int {
	if len(a.Seasons) == 0 {
		return 0
	}
	return a.Seasons[0]
}

// Episode returns the first episode number, or 0 when none was parsed.
func (a *Attributes) Episode() int {
	if len(a.Episodes) == 0 {
		return 0
	}
	return a.Episodes[0]
}

// CoversSeason reports whether the release contains the given season.
func (a *Attributes) CoversSeason(season int) bool {
	for _, s := range a.Seasons {
		if s == season {
			return true
		}
	}
	return false
}

// CoversEpisode reports whether the release contains the given episode of
// the given season. Season packs cover every episode of their seasons.
func (a *Attributes) CoversEpisode(season, episode int) bool {
	if !a.CoversSeason(season) && !a.IsCompleteSeries {
		return false
	}
	if a.IsSeasonPack {
		return true
	}
	for _, e := range a.Episodes {
		if e == episode {
			return true
		}
	}
	return false
}
