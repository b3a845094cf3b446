package mock

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cinephage/cinephage/internal/indexer/types"
)

// Media seeds the release generator for one movie or series.
type Media struct {
	Title  string
	Year   int
	TmdbID int64
	TvdbID int64
	ImdbID string
}

var movieCatalog = []Media{
	{Title: "The Matrix", Year: 1999, TmdbID: 603, ImdbID: "tt0133093"},
	{Title: "Inception", Year: 2010, TmdbID: 27205, ImdbID: "tt1375666"},
	{Title: "Interstellar", Year: 2014, TmdbID: 157336, ImdbID: "tt0816692"},
	{Title: "Dune", Year: 2021, TmdbID: 438631, ImdbID: "tt1160419"},
	{Title: "Dune Part Two", Year: 2024, TmdbID: 693134, ImdbID: "tt15239678"},
	{Title: "Oppenheimer", Year: 2023, TmdbID: 872585, ImdbID: "tt15398776"},
	{Title: "Everything Everywhere All at Once", Year: 2022, TmdbID: 545611, ImdbID: "tt6710474"},
}

var tvCatalog = []Media{
	{Title: "Breaking Bad", Year: 2008, TvdbID: 81189, ImdbID: "tt0903747"},
	{Title: "Severance", Year: 2022, TvdbID: 371980, ImdbID: "tt11280740"},
	{Title: "The Last of Us", Year: 2023, TvdbID: 392256, ImdbID: "tt3581920"},
	{Title: "Arcane", Year: 2021, TvdbID: 371028, ImdbID: "tt11126994"},
	{Title: "The Boys", Year: 2019, TvdbID: 355567, ImdbID: "tt1190634"},
}

// movieVariant describes one generated quality tier.
type movieVariant struct {
	suffix  string
	size    int64
	seeders int
}

var movieVariants = []movieVariant{
	{"2160p.UHD.BluRay.REMUX.HDR10.HEVC.TrueHD.7.1.Atmos-FraMeSToR", 65 << 30, 40},
	{"2160p.WEB-DL.DDP5.1.DV.HDR.H.265-FLUX", 25 << 30, 220},
	{"1080p.BluRay.x264.DTS-HD.MA.5.1-DON", 12 << 30, 150},
	{"1080p.WEB-DL.DDP5.1.H.264-NTb", 8 << 30, 480},
	{"720p.WEB-DL.DD5.1.H.264-GROUP", 3 << 30, 90},
	{"1080p.HDTV.x264-YIFY", 900 << 20, 600},
}

var tvVariants = []movieVariant{
	{"2160p.WEB-DL.DDP5.1.DV.HDR.H.265-FLUX", 45 << 30, 120},
	{"1080p.BluRay.x264.DTS-HD.MA.5.1-NTb", 30 << 30, 60},
	{"1080p.WEB-DL.DDP5.1.H.264-NTb", 18 << 30, 350},
	{"720p.HDTV.x264-GROUP", 6 << 30, 45},
}

const generatedSeasons = 3

func buildMovieReleases() map[int64][]types.ReleaseInfo {
	byID := make(map[int64][]types.ReleaseInfo, len(movieCatalog))
	for _, m := range movieCatalog {
		byID[m.TmdbID] = generateMovieReleases(m)
	}
	return byID
}

func buildTVReleases() map[int64][]types.ReleaseInfo {
	byID := make(map[int64][]types.ReleaseInfo, len(tvCatalog))
	for _, m := range tvCatalog {
		byID[m.TvdbID] = generateTVReleases(m)
	}
	return byID
}

func generateMovieReleases(m Media) []types.ReleaseInfo {
	releases := make([]types.ReleaseInfo, 0, len(movieVariants))
	for i, v := range movieVariants {
		title := fmt.Sprintf("%s.%d.%s", sanitizeTitle(m.Title), m.Year, v.suffix)
		releases = append(releases, types.ReleaseInfo{
			GUID:                 fmt.Sprintf("https://mockindexer.example/torrent/%d/%d", m.TmdbID, i+1),
			Title:                title,
			DownloadURL:          fmt.Sprintf("https://mockindexer.example/torrent/%d/%d/download", m.TmdbID, i+1),
			Size:                 v.size,
			PublishDate:          publishDate(i),
			Categories:           []int{2000},
			TmdbID:               m.TmdbID,
			ImdbID:               m.ImdbID,
			Seeders:              v.seeders,
			Leechers:             v.seeders / 4,
			InfoHash:             deterministicHash(title),
			DownloadVolumeFactor: 1,
			UploadVolumeFactor:   1,
		})
	}
	return releases
}

func generateTVReleases(m Media) []types.ReleaseInfo {
	var releases []types.ReleaseInfo
	for season := 1; season <= generatedSeasons; season++ {
		token := seasonToken(season)
		for i, v := range tvVariants {
			title := fmt.Sprintf("%s.%s.%s", sanitizeTitle(m.Title), token, v.suffix)
			releases = append(releases, types.ReleaseInfo{
				GUID:                 fmt.Sprintf("https://mockindexer.example/torrent/tv/%d/%s/%d", m.TvdbID, token, i+1),
				Title:                title,
				DownloadURL:          fmt.Sprintf("https://mockindexer.example/torrent/tv/%d/%s/%d/download", m.TvdbID, token, i+1),
				Size:                 v.size,
				PublishDate:          publishDate(i + season),
				Categories:           []int{5000},
				TvdbID:               m.TvdbID,
				ImdbID:               m.ImdbID,
				Seeders:              v.seeders,
				Leechers:             v.seeders / 5,
				InfoHash:             deterministicHash(title),
				DownloadVolumeFactor: 1,
				UploadVolumeFactor:   1,
			})
		}
	}
	return releases
}

func seasonToken(season int) string {
	return fmt.Sprintf("S%02d", season)
}

func sanitizeTitle(title string) string {
	return strings.ReplaceAll(title, " ", ".")
}

// publishDate staggers releases so ranking tie-breaks are exercised.
func publishDate(offset int) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offset) * 24 * time.Hour)
}

func deterministicHash(title string) string {
	sum := sha1.Sum([]byte(title))
	return hex.EncodeToString(sum[:])
}
