package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/indexer/types"
)

// BackoffConfig controls how quickly failing indexers are disabled.
type BackoffConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxEscalation  int
}

// DefaultBackoffConfig returns the standard escalation ladder.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialBackoff: 5 * time.Minute,
		MaxBackoff:     time.Hour,
		Multiplier:     2.0,
		MaxEscalation:  5,
	}
}

// Backoff returns the disable duration for an escalation level.
func (c BackoffConfig) Backoff(level int) time.Duration {
	if level <= 0 {
		return 0
	}
	backoff := c.InitialBackoff
	for i := 1; i < level; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// StatusStore persists indexer health across restarts. Implementations
// may be nil-safe no-ops; the tracker keeps its own in-memory state.
type StatusStore interface {
	SaveIndexerStatus(ctx context.Context, status types.IndexerStatus) error
	LoadIndexerStatuses(ctx context.Context) ([]types.IndexerStatus, error)
}

// HealthTracker records per-indexer successes and failures and disables
// repeatedly failing indexers with escalating backoff.
type HealthTracker struct {
	config BackoffConfig
	store  StatusStore
	logger zerolog.Logger

	mu       sync.Mutex
	statuses map[int64]*types.IndexerStatus

	now func() time.Time
}

// NewHealthTracker creates a tracker. store may be nil for purely
// in-memory tracking.
func NewHealthTracker(config BackoffConfig, store StatusStore, logger zerolog.Logger) *HealthTracker {
	return &HealthTracker{
		config:   config,
		store:    store,
		logger:   logger.With().Str("component", "indexer-health").Logger(),
		statuses: make(map[int64]*types.IndexerStatus),
		now:      time.Now,
	}
}

// Restore loads persisted statuses into memory. Called once at startup.
func (t *HealthTracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	statuses, err := t.store.LoadIndexerStatuses(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range statuses {
		status := statuses[i]
		t.statuses[status.IndexerID] = &status
	}
	return nil
}

// Status returns a copy of the current status for an indexer.
func (t *HealthTracker) Status(indexerID int64) types.IndexerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status, ok := t.statuses[indexerID]; ok {
		return *status
	}
	return types.IndexerStatus{IndexerID: indexerID}
}

// IsDisabled reports whether the indexer is currently backed off.
func (t *HealthTracker) IsDisabled(indexerID int64) bool {
	status := t.Status(indexerID)
	return status.IsDisabled(t.now())
}

// RecordSuccess clears any failure state for the indexer.
func (t *HealthTracker) RecordSuccess(ctx context.Context, indexerID int64) {
	t.mu.Lock()
	status, ok := t.statuses[indexerID]
	if ok && (status.EscalationLevel > 0 || status.InitialFailure != nil) {
		t.logger.Info().
			Int64("indexerId", indexerID).
			Int("escalationLevel", status.EscalationLevel).
			Msg("Indexer recovered")
	}
	cleared := types.IndexerStatus{IndexerID: indexerID}
	if ok && status.LastRssSync != nil {
		cleared.LastRssSync = status.LastRssSync
	}
	t.statuses[indexerID] = &cleared
	t.mu.Unlock()

	t.persist(ctx, cleared)
}

// RecordFailure escalates the indexer's failure state and extends its
// disabled window.
func (t *HealthTracker) RecordFailure(ctx context.Context, indexerID int64, opErr error) {
	now := t.now()

	t.mu.Lock()
	status, ok := t.statuses[indexerID]
	if !ok {
		status = &types.IndexerStatus{IndexerID: indexerID}
		t.statuses[indexerID] = status
	}

	level := status.EscalationLevel + 1
	if level > t.config.MaxEscalation {
		level = t.config.MaxEscalation
	}
	disabledTill := now.Add(t.config.Backoff(level))

	if status.InitialFailure == nil {
		initial := now
		status.InitialFailure = &initial
	}
	recent := now
	status.MostRecentFailure = &recent
	status.EscalationLevel = level
	status.DisabledTill = &disabledTill
	snapshot := *status
	t.mu.Unlock()

	t.logger.Warn().
		Int64("indexerId", indexerID).
		Int("escalationLevel", level).
		Time("disabledTill", disabledTill).
		Str("errorKind", string(types.Kind(opErr))).
		Err(opErr).
		Msg("Indexer failure recorded")

	t.persist(ctx, snapshot)
}

func (t *HealthTracker) persist(ctx context.Context, status types.IndexerStatus) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveIndexerStatus(ctx, status); err != nil {
		t.logger.Error().Err(err).
			Int64("indexerId", status.IndexerID).
			Msg("Failed to persist indexer status")
	}
}
