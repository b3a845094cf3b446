package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/downloader/types"
)

func newClockedClient() (*Client, *time.Time) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := New()
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func TestClient_Lifecycle(t *testing.T) {
	c, now := newClockedClient()
	ctx := context.Background()

	id, err := c.Add(ctx, types.AddOptions{
		URL:  "magnet:?xt=urn:btih:aabbccddeeff00112233445566778899aabbccdd&dn=Movie",
		Name: "Movie.2024.1080p.WEB-DL-GRP",
	})
	require.NoError(t, err)
	assert.Equal(t, "aabbccddeeff00112233445566778899aabbccdd", id, "magnet hash becomes the id")

	item, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, item.Status)

	*now = now.Add(time.Minute)
	item, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDownloading, item.Status)
	assert.InDelta(t, 19.3, item.Progress, 1.0)
	assert.Greater(t, item.DownloadSpeed, int64(0))

	*now = now.Add(10 * time.Minute)
	item, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSeeding, item.Status)
	assert.Equal(t, float64(100), item.Progress)
	assert.True(t, item.Status.IsTerminal())
}

func TestClient_PauseStopsProgress(t *testing.T) {
	c, now := newClockedClient()
	ctx := context.Background()

	id, err := c.Add(ctx, types.AddOptions{Name: "Show.S01E01.1080p.WEB-DL-GRP"})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	require.NoError(t, c.Pause(ctx, id))

	paused, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusPaused, paused.Status)

	*now = now.Add(time.Hour)
	still, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, paused.Progress, still.Progress, "no progress while paused")

	require.NoError(t, c.Resume(ctx, id))
	*now = now.Add(time.Minute)
	resumed, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Greater(t, resumed.Progress, paused.Progress)
}

func TestClient_CompleteAndFail(t *testing.T) {
	c, _ := newClockedClient()
	ctx := context.Background()

	id, err := c.Add(ctx, types.AddOptions{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, c.Complete(id))

	item, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSeeding, item.Status)

	id2, err := c.Add(ctx, types.AddOptions{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, c.Fail(id2, "disk full"))

	item, err = c.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, item.Status)
	assert.Equal(t, "disk full", item.Error)
}

func TestClient_NotFound(t *testing.T) {
	c, _ := newClockedClient()
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, c.Pause(context.Background(), "missing"), types.ErrNotFound)
}
