package types

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `
id: example
name: Example Indexer
description: A test site
type: public
protocol: torrent
links:
  - https://example.org/
caps:
  categorymappings:
    - id: 14
      cat: Movies/HD
      desc: HD Movies
  modes:
    search: [q]
    movie-search: [q, tmdbid, imdbid]
    tv-search: [q, tvdbid, season, ep]
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition(strings.NewReader(validDefinition))
	require.NoError(t, err)

	assert.Equal(t, "example", def.ID)
	assert.Equal(t, PrivacyPublic, Privacy(def.Type))
	assert.True(t, def.SupportsMode("movie-search"))
	assert.False(t, def.SupportsMode("book-search"))
	assert.Equal(t, []string{"q", "tmdbid", "imdbid"}, def.Caps.Modes["movie-search"])
}

func TestParseDefinition_UnknownFieldRejected(t *testing.T) {
	_, err := ParseDefinition(strings.NewReader(validDefinition + "\nbogusfield: true\n"))
	assert.Error(t, err)
}

func TestParseDefinition_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{"missing id", func(s string) string { return strings.Replace(s, "id: example", "id: \"\"", 1) }, "no id"},
		{"missing links", func(s string) string {
			return strings.Replace(s, "links:\n  - https://example.org/\n", "", 1)
		}, "no links"},
		{"bad privacy", func(s string) string { return strings.Replace(s, "type: public", "type: vip", 1) }, "invalid type"},
		{"bad protocol", func(s string) string { return strings.Replace(s, "protocol: torrent", "protocol: ftp", 1) }, "invalid protocol"},
		{"bad mode", func(s string) string { return strings.Replace(s, "tv-search:", "book-search:", 1) }, "unknown search mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition(strings.NewReader(tt.mutate(validDefinition)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	second := strings.Replace(validDefinition, "id: example", "id: other", 1)
	fsys := fstest.MapFS{
		"example.yml":  {Data: []byte(validDefinition)},
		"other.yaml":   {Data: []byte(second)},
		"notes.txt":    {Data: []byte("ignored")},
		"sub/skip.md":  {Data: []byte("ignored")},
	}

	defs, err := LoadDefinitions(fsys)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	assert.Contains(t, defs, "example")
	assert.Contains(t, defs, "other")
}

func TestLoadDefinitions_DuplicateID(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yml": {Data: []byte(validDefinition)},
		"b.yml": {Data: []byte(validDefinition)},
	}
	_, err := LoadDefinitions(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate definition id")
}

func TestIndexerError_Matching(t *testing.T) {
	err := NewCloudflareError(3, "example")
	assert.True(t, errors.Is(err, ErrCloudflare))
	assert.False(t, errors.Is(err, ErrCaptcha))
	assert.True(t, IsChallenge(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, ErrKindCloudflare, Kind(err))

	wrapped := NewNetworkError(1, "example", errors.New("dial tcp: timeout"))
	assert.True(t, IsRetryable(wrapped))
	assert.ErrorContains(t, wrapped, "example")
	assert.Equal(t, ErrKindNetwork, Kind(wrapped))
	assert.Equal(t, ErrorKind(""), Kind(errors.New("plain")))
}
