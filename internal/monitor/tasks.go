package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
)

// Tasks bundles everything needed to register the monitoring tasks.
type Tasks struct {
	config    Config
	library   LibraryStore
	searcher  *Searcher
	pending   *download.PendingProcessor
	blocklist *download.Blocklist
	history   HistoryStore
	logger    zerolog.Logger

	now func() time.Time
}

// NewTasks creates the monitoring task set.
func NewTasks(
	config Config,
	library LibraryStore,
	searcher *Searcher,
	pending *download.PendingProcessor,
	blocklist *download.Blocklist,
	history HistoryStore,
	logger zerolog.Logger,
) *Tasks {
	return &Tasks{
		config:    config,
		library:   library,
		searcher:  searcher,
		pending:   pending,
		blocklist: blocklist,
		history:   history,
		logger:    logger.With().Str("component", "monitor-tasks").Logger(),
		now:       time.Now,
	}
}

// Register registers every monitoring task with the scheduler. The
// pending task runs on start so parked releases survive restarts; the
// search tasks wait for their first interval.
func (t *Tasks) Register(sched *Scheduler) error {
	configs := []TaskConfig{
		{
			ID:          TaskMissing,
			Name:        "Missing Content Search",
			Description: "Searches for monitored items without a file",
			Interval:    t.config.MissingInterval,
			Func:        t.RunMissing,
			RunOnStart:  true,
		},
		{
			ID:          TaskUpgrade,
			Name:        "Upgrade Search",
			Description: "Searches for better releases of items that allow upgrades",
			Interval:    t.config.UpgradeInterval,
			Func:        t.RunUpgrade,
		},
		{
			ID:          TaskCutoffUnmet,
			Name:        "Cutoff Unmet Search",
			Description: "Searches for upgrades of items below their profile cutoff",
			Interval:    t.config.CutoffUnmetInterval,
			Func:        t.RunCutoffUnmet,
		},
		{
			ID:          TaskNewEpisode,
			Name:        "New Episode Search",
			Description: "Searches for episodes that aired since the last pass",
			Interval:    t.config.NewEpisodeInterval,
			Func:        t.RunNewEpisode,
			RunOnStart:  true,
		},
		{
			ID:          TaskPending,
			Name:        "Pending Queue",
			Description: "Grabs pending releases whose delay window has passed",
			Interval:    t.config.PendingInterval,
			Func:        t.RunPending,
			RunOnStart:  true,
		},
	}
	for _, config := range configs {
		if err := sched.RegisterTask(config); err != nil {
			return err
		}
	}
	return nil
}

// RunMissing searches for monitored items without a file.
func (t *Tasks) RunMissing(ctx context.Context) error {
	items, err := t.library.ListMissing(ctx, batchSize)
	if err != nil {
		return err
	}
	_, err = t.searcher.ProcessItems(ctx, TaskMissing, t.config.MissingInterval, items,
		decisioning.MissingContentSpec{})
	return err
}

// RunUpgrade searches for better releases across the whole library. The
// cutoff gate keeps items already at their profile cutoff from being
// searched again and again.
func (t *Tasks) RunUpgrade(ctx context.Context) error {
	items, err := t.library.ListUpgradable(ctx, false, batchSize)
	if err != nil {
		return err
	}
	_, err = t.searcher.ProcessItems(ctx, TaskUpgrade, t.config.UpgradeInterval, items,
		decisioning.CutoffUnmetSpec{})
	return err
}

// RunCutoffUnmet searches for upgrades only where the profile cutoff is
// not yet met.
func (t *Tasks) RunCutoffUnmet(ctx context.Context) error {
	items, err := t.library.ListUpgradable(ctx, true, batchSize)
	if err != nil {
		return err
	}
	_, err = t.searcher.ProcessItems(ctx, TaskCutoffUnmet, t.config.CutoffUnmetInterval, items,
		decisioning.CutoffUnmetSpec{})
	return err
}

// RunNewEpisode searches for episodes that aired inside the last task
// interval, so each airing is picked up once, close to air time.
func (t *Tasks) RunNewEpisode(ctx context.Context) error {
	until := t.now()
	since := until.Add(-t.config.NewEpisodeInterval)
	items, err := t.library.ListRecentlyAired(ctx, since, until, batchSize)
	if err != nil {
		return err
	}
	_, err = t.searcher.ProcessItems(ctx, TaskNewEpisode, t.config.NewEpisodeInterval, items,
		decisioning.MissingContentSpec{}, decisioning.NewEpisodeSpec{Window: t.config.NewEpisodeInterval})
	return err
}

// RunPending drains the due pending releases and piggybacks the
// housekeeping prunes.
func (t *Tasks) RunPending(ctx context.Context) error {
	if _, err := t.pending.ProcessDue(ctx); err != nil {
		return err
	}
	if _, err := t.blocklist.PruneExpired(ctx); err != nil {
		t.logger.Error().Err(err).Msg("Failed to prune blocklist")
	}
	if t.config.TaskHistoryRetention > 0 {
		cutoff := t.now().Add(-t.config.TaskHistoryRetention)
		if _, err := t.history.PruneTaskHistory(ctx, cutoff); err != nil {
			t.logger.Error().Err(err).Msg("Failed to prune task history")
		}
	}
	return nil
}
