// Package monitor schedules the background tasks that keep the library
// current: searching for missing content, hunting upgrades, reacting to
// new episodes, and draining the pending queue.
package monitor

import (
	"context"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/scoring"
)

// Task IDs, referenced in history rows and the RunNow API.
const (
	TaskMissing     = "missing-search"
	TaskUpgrade     = "upgrade-search"
	TaskCutoffUnmet = "cutoff-unmet-search"
	TaskNewEpisode  = "new-episode-search"
	TaskPending     = "pending-queue"
)

// batchSize caps how many items one task run processes, so a large
// library cannot monopolize indexers in a single tick.
const batchSize = 50

// cooldownNumerator and cooldownDenominator set the per-item search
// cooldown to three quarters of the task interval, so an item becomes
// searchable again slightly before its next scheduled pass.
const (
	cooldownNumerator   = 3
	cooldownDenominator = 4
)

// Config holds the task intervals.
type Config struct {
	MissingInterval     time.Duration `mapstructure:"missingInterval"`
	UpgradeInterval     time.Duration `mapstructure:"upgradeInterval"`
	CutoffUnmetInterval time.Duration `mapstructure:"cutoffUnmetInterval"`
	NewEpisodeInterval  time.Duration `mapstructure:"newEpisodeInterval"`
	PendingInterval     time.Duration `mapstructure:"pendingInterval"`

	// TaskHistoryRetention bounds how long task run summaries are kept.
	TaskHistoryRetention time.Duration `mapstructure:"taskHistoryRetention"`
}

// DefaultConfig returns the stock intervals.
func DefaultConfig() Config {
	return Config{
		MissingInterval:      24 * time.Hour,
		UpgradeInterval:      168 * time.Hour,
		CutoffUnmetInterval:  24 * time.Hour,
		NewEpisodeInterval:   time.Hour,
		PendingInterval:      5 * time.Minute,
		TaskHistoryRetention: 30 * 24 * time.Hour,
	}
}

// Outcome is what happened to one considered item.
type Outcome string

const (
	OutcomeGrabbed   Outcome = "grabbed"
	OutcomePending   Outcome = "pending"
	OutcomeRejected  Outcome = "rejected"
	OutcomeNoResults Outcome = "no_results"
	OutcomeError     Outcome = "error"
)

// MonitoringEntry records the decision made for one item in one task
// run. Rows are written per item before the task summary.
type MonitoringEntry struct {
	ID     int64  `json:"id"`
	TaskID string `json:"taskId"`

	MediaType  scoring.MediaType `json:"mediaType"`
	MovieID    int64             `json:"movieId,omitempty"`
	SeriesID   int64             `json:"seriesId,omitempty"`
	EpisodeIDs []int64           `json:"episodeIds,omitempty"`
	Title      string            `json:"title"`

	Outcome        Outcome                     `json:"outcome"`
	Reason         decisioning.RejectionReason `json:"reason,omitempty"`
	Message        string                      `json:"message,omitempty"`
	ReleasesFound  int                         `json:"releasesFound"`
	GrabbedRelease string                      `json:"grabbedRelease,omitempty"`

	// Upgrade context: set when the item already had a file, so history
	// shows what the grab replaced and by how much.
	IsUpgrade   bool  `json:"isUpgrade,omitempty"`
	OldScore    int   `json:"oldScore,omitempty"`
	NewScore    int   `json:"newScore,omitempty"`
	QueueItemID int64 `json:"queueItemId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TaskRun summarizes one task execution.
type TaskRun struct {
	ID        int64         `json:"id"`
	TaskID    string        `json:"taskId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	ItemsConsidered int `json:"itemsConsidered"`
	ItemsSearched   int `json:"itemsSearched"`
	Grabbed         int `json:"grabbed"`
	Rejected        int `json:"rejected"`
	Errors          int `json:"errors"`
}

// LibraryStore supplies the items each task considers. Every method
// returns only monitored items, with the TV monitored cascade already
// applied, oldest first, capped at limit.
type LibraryStore interface {
	// ListMissing returns monitored items without a file whose release
	// or air date has passed.
	ListMissing(ctx context.Context, limit int) ([]decisioning.Item, error)
	// ListUpgradable returns monitored items with a file. With
	// cutoffUnmetOnly only items whose profile cutoff is not met are
	// returned; otherwise every item that still allows upgrades is.
	ListUpgradable(ctx context.Context, cutoffUnmetOnly bool, limit int) ([]decisioning.Item, error)
	// ListRecentlyAired returns monitored episodes that aired inside
	// the window and have no file yet.
	ListRecentlyAired(ctx context.Context, since, until time.Time, limit int) ([]decisioning.Item, error)
}

// HistoryStore persists per-item rows and task summaries.
type HistoryStore interface {
	AddMonitoringHistory(ctx context.Context, entry *MonitoringEntry) error
	AddTaskHistory(ctx context.Context, run *TaskRun) error
	PruneTaskHistory(ctx context.Context, before time.Time) (int64, error)
}

// CooldownStore persists per-item search cooldowns and answers the
// decisioning cooldown check.
type CooldownStore interface {
	decisioning.CooldownChecker
	SetNextSearch(ctx context.Context, item decisioning.Item, next time.Time) error
}

// ProfileProvider resolves an item's scoring profile.
type ProfileProvider interface {
	ProfileFor(ctx context.Context, profileID int64) (*scoring.Profile, error)
}
