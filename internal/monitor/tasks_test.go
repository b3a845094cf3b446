package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/scoring"
)

type stubLibrary struct {
	missing    []decisioning.Item
	upgradable []decisioning.Item
	aired      []decisioning.Item

	lastCutoffOnly bool
	lastSince      time.Time
	lastUntil      time.Time
}

func (s *stubLibrary) ListMissing(_ context.Context, limit int) ([]decisioning.Item, error) {
	if len(s.missing) > limit {
		return s.missing[:limit], nil
	}
	return s.missing, nil
}

func (s *stubLibrary) ListUpgradable(_ context.Context, cutoffUnmetOnly bool, limit int) ([]decisioning.Item, error) {
	s.lastCutoffOnly = cutoffUnmetOnly
	if len(s.upgradable) > limit {
		return s.upgradable[:limit], nil
	}
	return s.upgradable, nil
}

func (s *stubLibrary) ListRecentlyAired(_ context.Context, since, until time.Time, _ int) ([]decisioning.Item, error) {
	s.lastSince = since
	s.lastUntil = until
	return s.aired, nil
}

type stubPendingStore struct{}

func (stubPendingStore) ReplaceWaiting(_ context.Context, release *download.PendingRelease) (*download.PendingRelease, error) {
	return nil, nil
}

func (stubPendingStore) GetWaitingFor(_ context.Context, _ scoring.MediaType, _, _ int64, _ []int64) (*download.PendingRelease, error) {
	return nil, nil
}

func (stubPendingStore) ListDue(_ context.Context, _ time.Time, _ int) ([]*download.PendingRelease, error) {
	return nil, nil
}

func (stubPendingStore) ListWaiting(_ context.Context) ([]*download.PendingRelease, error) {
	return nil, nil
}

func (stubPendingStore) SetStatus(_ context.Context, _ int64, _ download.PendingStatus, _ string) error {
	return nil
}

type stubBlocklistStore struct{}

func (stubBlocklistStore) AddBlocklistEntry(_ context.Context, _ *download.BlocklistEntry) error {
	return nil
}

func (stubBlocklistStore) IsBlocklisted(_ context.Context, _ decisioning.BlocklistQuery) (bool, error) {
	return false, nil
}

func (stubBlocklistStore) DeleteExpiredBlocklistEntries(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newTasksFixture(t *testing.T, library *stubLibrary) (*Tasks, *fixture) {
	t.Helper()
	f := newFixture(t)
	blocklist := download.NewBlocklist(stubBlocklistStore{}, zerolog.Nop())
	pending := download.NewPendingProcessor(stubPendingStore{}, nil, blocklist, nil, zerolog.Nop())
	tasks := NewTasks(DefaultConfig(), library, f.searcher, pending, blocklist, f.history, zerolog.Nop())
	tasks.now = func() time.Time { return f.clock }
	return tasks, f
}

func TestTasks_RegisterAll(t *testing.T) {
	tasks, _ := newTasksFixture(t, &stubLibrary{})
	sched := newTestScheduler(t)
	require.NoError(t, tasks.Register(sched))

	infos := sched.ListTasks()
	require.Len(t, infos, 5)
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	assert.Equal(t, []string{TaskMissing, TaskUpgrade, TaskCutoffUnmet, TaskNewEpisode, TaskPending}, ids)
}

func TestTasks_CutoffUnmetPassesFlag(t *testing.T) {
	library := &stubLibrary{}
	tasks, _ := newTasksFixture(t, library)

	require.NoError(t, tasks.RunCutoffUnmet(context.Background()))
	assert.True(t, library.lastCutoffOnly)

	require.NoError(t, tasks.RunUpgrade(context.Background()))
	assert.False(t, library.lastCutoffOnly)
}

func TestTasks_NewEpisodeWindowMatchesInterval(t *testing.T) {
	library := &stubLibrary{}
	tasks, f := newTasksFixture(t, library)

	require.NoError(t, tasks.RunNewEpisode(context.Background()))
	assert.Equal(t, f.clock, library.lastUntil)
	assert.Equal(t, f.clock.Add(-time.Hour), library.lastSince)
}

func TestTasks_MissingSearchesItems(t *testing.T) {
	library := &stubLibrary{missing: []decisioning.Item{movieItem(7, "Dune")}}
	tasks, f := newTasksFixture(t, library)

	require.NoError(t, tasks.RunMissing(context.Background()))
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, TaskMissing, f.history.runs[0].TaskID)
	assert.Equal(t, 1, f.history.runs[0].ItemsSearched)
}

func TestTasks_UpgradeSkipsItemsAtCutoff(t *testing.T) {
	atCutoff := movieItem(7, "Dune")
	atCutoff.HasFile = true
	atCutoff.ExistingTitle = "Dune 2021 2160p Remux"
	atCutoff.ExistingScore = 25000
	library := &stubLibrary{upgradable: []decisioning.Item{atCutoff}}
	tasks, f := newTasksFixture(t, library)
	f.profiles.profile.UpgradesAllowed = true
	f.profiles.profile.UpgradeUntilScore = 20000

	require.NoError(t, tasks.RunUpgrade(context.Background()))
	require.Len(t, f.history.runs, 1)
	assert.Zero(t, f.history.runs[0].ItemsSearched)
	assert.Equal(t, 1, f.history.runs[0].Rejected)
	assert.Empty(t, f.search.criteria)
}

func TestTasks_PendingPrunesTaskHistory(t *testing.T) {
	library := &stubLibrary{}
	tasks, f := newTasksFixture(t, library)

	old := &TaskRun{TaskID: TaskMissing, StartedAt: f.clock.Add(-31 * 24 * time.Hour)}
	recent := &TaskRun{TaskID: TaskMissing, StartedAt: f.clock.Add(-time.Hour)}
	require.NoError(t, f.history.AddTaskHistory(context.Background(), old))
	require.NoError(t, f.history.AddTaskHistory(context.Background(), recent))

	require.NoError(t, tasks.RunPending(context.Background()))
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, recent.StartedAt, f.history.runs[0].StartedAt)
}
