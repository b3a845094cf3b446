package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/scoring"
	"github.com/cinephage/cinephage/internal/store"
)

type memLibrary struct {
	movies   map[int64]*store.Movie
	series   map[int64]*store.Series
	episodes map[int64]*store.Episode

	movieFiles   map[int64]string
	episodeFiles map[int64]string
}

func newMemLibrary() *memLibrary {
	return &memLibrary{
		movies:       map[int64]*store.Movie{},
		series:       map[int64]*store.Series{},
		episodes:     map[int64]*store.Episode{},
		movieFiles:   map[int64]string{},
		episodeFiles: map[int64]string{},
	}
}

func (l *memLibrary) GetMovie(_ context.Context, id int64) (*store.Movie, error) {
	return l.movies[id], nil
}

func (l *memLibrary) GetSeries(_ context.Context, id int64) (*store.Series, error) {
	return l.series[id], nil
}

func (l *memLibrary) GetEpisode(_ context.Context, id int64) (*store.Episode, error) {
	return l.episodes[id], nil
}

func (l *memLibrary) SetMovieFile(_ context.Context, id int64, path, _ string, _ int, _ int64) error {
	l.movieFiles[id] = path
	return nil
}

func (l *memLibrary) SetEpisodeFile(_ context.Context, id int64, path, _ string, _ int, _ int64) error {
	l.episodeFiles[id] = path
	return nil
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestImport_MovieHardlink(t *testing.T) {
	downloads := t.TempDir()
	library := t.TempDir()

	source := filepath.Join(downloads, "Movie.2024.1080p-GRP")
	writeFile(t, filepath.Join(source, "Movie.2024.1080p-GRP.mkv"), 4096)
	writeFile(t, filepath.Join(source, "sample", "sample.mkv"), 64)

	lib := newMemLibrary()
	lib.movies[7] = &store.Movie{ID: 7, Title: "The Movie", Year: 2024}

	imp := New(Config{MoviePath: library, UseHardlinks: true}, lib, zerolog.Nop())
	record := &download.Record{ID: 1, MediaType: scoring.MediaTypeMovie, MovieID: 7,
		Title: "Movie.2024.1080p-GRP", Score: 5500}

	require.NoError(t, imp.Import(context.Background(), record, source))

	want := filepath.Join(library, "The Movie (2024)", "The Movie (2024).mkv")
	assert.Equal(t, want, lib.movieFiles[7])

	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())

	// Source stays in place for seeding.
	_, err = os.Stat(filepath.Join(source, "Movie.2024.1080p-GRP.mkv"))
	assert.NoError(t, err)
}

func TestImport_EpisodeCopy(t *testing.T) {
	downloads := t.TempDir()
	library := t.TempDir()

	source := filepath.Join(downloads, "Show.S01E05.720p.mkv")
	writeFile(t, source, 2048)

	lib := newMemLibrary()
	lib.series[3] = &store.Series{ID: 3, Title: "The Show"}
	lib.episodes[10] = &store.Episode{ID: 10, SeriesID: 3, SeasonNumber: 1, EpisodeNumber: 5}

	imp := New(Config{TVPath: library, UseHardlinks: false}, lib, zerolog.Nop())
	record := &download.Record{ID: 2, MediaType: scoring.MediaTypeTV, SeriesID: 3,
		EpisodeIDs: []int64{10}, Title: "Show.S01E05.720p", Score: 3000}

	require.NoError(t, imp.Import(context.Background(), record, source))

	want := filepath.Join(library, "The Show", "Season 01", "The Show - S01E05.mkv")
	assert.Equal(t, want, lib.episodeFiles[10])
	_, err := os.Stat(want)
	assert.NoError(t, err)
}

func TestImport_NoVideoFiles(t *testing.T) {
	downloads := t.TempDir()
	source := filepath.Join(downloads, "release")
	writeFile(t, filepath.Join(source, "notes.nfo"), 128)

	imp := New(Config{MoviePath: t.TempDir()}, newMemLibrary(), zerolog.Nop())
	record := &download.Record{ID: 3, MediaType: scoring.MediaTypeMovie, MovieID: 7}

	err := imp.Import(context.Background(), record, source)
	assert.ErrorIs(t, err, ErrNoVideoFiles)
}

func TestFindVideoFile_PicksLargest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.mkv"), 100)
	writeFile(t, filepath.Join(dir, "big.mkv"), 10000)
	writeFile(t, filepath.Join(dir, "big-sample.mkv"), 20000)

	got, err := findVideoFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "big.mkv"), got)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Movie - The Sequel", sanitize("Movie: The Sequel"))
	assert.Equal(t, "WhatIf", sanitize("What*If?"))
}
