package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const typeSearch Type = "search"

func TestManager_SpawnCompletes(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	w, err := m.Spawn(context.Background(), typeSearch, "missing search", func(_ context.Context, w *Worker) error {
		w.SetProgress(50)
		w.SetMetadata("items", 12)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, w.Status())
	assert.Equal(t, 100, w.Progress())

	info := w.Snapshot()
	assert.Equal(t, 12, info.Metadata["items"])
	require.NotNil(t, info.FinishedAt)
	assert.Empty(t, info.Error)
}

func TestManager_SpawnFailure(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	w, err := m.Spawn(context.Background(), typeSearch, "broken", func(context.Context, *Worker) error {
		return errors.New("indexer offline")
	})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, w.Status())
	assert.Equal(t, "indexer offline", w.Snapshot().Error)
}

func TestManager_ConcurrencyCap(t *testing.T) {
	m := NewManager(map[Type]int{typeSearch: 1}, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	w1, err := m.SpawnBackground(context.Background(), typeSearch, "first", func(context.Context, *Worker) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	_, err = m.SpawnBackground(context.Background(), typeSearch, "second", func(context.Context, *Worker) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency cap")

	// A different type is not affected by the cap.
	_, err = m.Spawn(context.Background(), Type("import"), "import", func(context.Context, *Worker) error {
		return nil
	})
	require.NoError(t, err)

	close(release)
	require.Eventually(t, func() bool {
		return w1.Status() == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	_, err = m.Spawn(context.Background(), typeSearch, "third", func(context.Context, *Worker) error {
		return nil
	})
	require.NoError(t, err)
}

func TestManager_CancelBackgroundWorker(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	started := make(chan struct{})
	w, err := m.SpawnBackground(context.Background(), typeSearch, "cancellable", func(ctx context.Context, _ *Worker) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Cancel(w.ID()))
	require.Eventually(t, func() bool {
		return w.Status() == StatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	require.Error(t, m.Cancel("no-such-worker"))
}

func TestManager_WorkerLogsCaptured(t *testing.T) {
	// A disabled logger would skip hooks, so write to io.Discard instead.
	m := NewManager(nil, zerolog.New(io.Discard))

	w, err := m.Spawn(context.Background(), typeSearch, "logged", func(_ context.Context, w *Worker) error {
		log := w.Logger()
		log.Info().Msg("searching 3 indexers")
		log.Warn().Msg("indexer slow")
		return nil
	})
	require.NoError(t, err)

	logs := w.Logs()
	messages := make([]string, 0, len(logs))
	for _, entry := range logs {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "searching 3 indexers")
	assert.Contains(t, messages, "indexer slow")
}

func TestManager_GCDropsOldTerminalWorkers(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	w, err := m.Spawn(context.Background(), typeSearch, "done", func(context.Context, *Worker) error {
		return nil
	})
	require.NoError(t, err)
	require.Len(t, m.List(), 1)

	// Inside the retention window nothing is removed.
	now = now.Add(30 * time.Minute)
	assert.Zero(t, m.GC())

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, m.GC())
	assert.Empty(t, m.List())
	_, ok := m.Get(w.ID())
	assert.False(t, ok)
}

func TestManager_ListNewestFirst(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, err := m.Spawn(context.Background(), typeSearch, "older", func(context.Context, *Worker) error { return nil })
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = m.Spawn(context.Background(), typeSearch, "newer", func(context.Context, *Worker) error { return nil })
	require.NoError(t, err)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "newer", infos[0].Name)
	assert.Equal(t, "older", infos[1].Name)
}
