// Package importer moves completed downloads into the library and
// records the resulting files.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/store"
)

var ErrNoVideoFiles = errors.New("no video files found")

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".ts": true, ".wmv": true, ".mov": true,
}

// Library is the store surface the importer needs.
type Library interface {
	GetMovie(ctx context.Context, id int64) (*store.Movie, error)
	GetSeries(ctx context.Context, id int64) (*store.Series, error)
	GetEpisode(ctx context.Context, id int64) (*store.Episode, error)
	SetMovieFile(ctx context.Context, id int64, path, releaseTitle string, score int, size int64) error
	SetEpisodeFile(ctx context.Context, id int64, path, releaseTitle string, score int, size int64) error
}

// Config controls library destinations and link behavior.
type Config struct {
	MoviePath    string
	TVPath       string
	UseHardlinks bool
}

// Importer copies or hardlinks completed downloads into the library.
type Importer struct {
	config  Config
	library Library
	logger  zerolog.Logger
}

// New creates an importer.
func New(cfg Config, library Library, logger zerolog.Logger) *Importer {
	return &Importer{
		config:  cfg,
		library: library,
		logger:  logger.With().Str("component", "importer").Logger(),
	}
}

// Import places the download's video file in the library and records it
// on the movie or episodes. Hardlinks preserve the source for seeding;
// cross-device links fall back to a copy.
func (i *Importer) Import(ctx context.Context, record *download.Record, contentPath string) error {
	source, err := findVideoFile(contentPath)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", contentPath, err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	dest, err := i.destinationFor(ctx, record, filepath.Ext(source))
	if err != nil {
		return err
	}

	if err := i.place(source, dest); err != nil {
		return err
	}

	i.logger.Info().
		Int64("downloadId", record.ID).
		Str("source", source).
		Str("dest", dest).
		Msg("Imported download")

	if record.MovieID > 0 {
		return i.library.SetMovieFile(ctx, record.MovieID, dest, record.Title, record.Score, info.Size())
	}
	for _, episodeID := range record.EpisodeIDs {
		if err := i.library.SetEpisodeFile(ctx, episodeID, dest, record.Title, record.Score, info.Size()); err != nil {
			return err
		}
	}
	return nil
}

// destinationFor builds the library path for a record.
func (i *Importer) destinationFor(ctx context.Context, record *download.Record, ext string) (string, error) {
	if record.MovieID > 0 {
		movie, err := i.library.GetMovie(ctx, record.MovieID)
		if err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s (%d)", sanitize(movie.Title), movie.Year)
		return filepath.Join(i.config.MoviePath, name, name+ext), nil
	}

	if len(record.EpisodeIDs) == 0 {
		return "", fmt.Errorf("download %d has no content link", record.ID)
	}
	episode, err := i.library.GetEpisode(ctx, record.EpisodeIDs[0])
	if err != nil {
		return "", err
	}
	series, err := i.library.GetSeries(ctx, episode.SeriesID)
	if err != nil {
		return "", err
	}

	seriesName := sanitize(series.Title)
	fileName := fmt.Sprintf("%s - S%02dE%02d%s", seriesName, episode.SeasonNumber, episode.EpisodeNumber, ext)
	return filepath.Join(i.config.TVPath, seriesName,
		fmt.Sprintf("Season %02d", episode.SeasonNumber), fileName), nil
}

// place links or copies source to dest, creating parent directories.
func (i *Importer) place(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing existing file: %w", err)
	}

	if i.config.UseHardlinks {
		err := os.Link(source, dest)
		if err == nil {
			return nil
		}
		i.logger.Debug().Err(err).Msg("Hardlink failed, falling back to copy")
	}
	return copyFile(source, dest)
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dest), ".import-*")
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	tmp := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing copy: %w", err)
	}
	return nil
}

// findVideoFile returns the largest video file at or under path,
// skipping samples.
func findVideoFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return "", ErrNoVideoFiles
		}
		return path, nil
	}

	var best string
	var bestSize int64
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if strings.EqualFold(info.Name(), "sample") || strings.EqualFold(info.Name(), "samples") {
				return filepath.SkipDir
			}
			return nil
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if strings.Contains(strings.ToLower(info.Name()), "sample") {
			return nil
		}
		if info.Size() > bestSize {
			best = p
			bestSize = info.Size()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", ErrNoVideoFiles
	}
	return best, nil
}

// sanitize strips path-hostile characters from a library name.
func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", " -", "*", "", "?", "",
		"\"", "", "<", "", ">", "", "|", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
