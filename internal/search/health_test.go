package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/indexer/types"
)

type memStatusStore struct {
	saved []types.IndexerStatus
	load  []types.IndexerStatus
}

func (s *memStatusStore) SaveIndexerStatus(_ context.Context, status types.IndexerStatus) error {
	s.saved = append(s.saved, status)
	return nil
}

func (s *memStatusStore) LoadIndexerStatuses(_ context.Context) ([]types.IndexerStatus, error) {
	return s.load, nil
}

func newTestTracker(store StatusStore) (*HealthTracker, *time.Time) {
	tracker := NewHealthTracker(DefaultBackoffConfig(), store, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }
	return tracker, &clock
}

func TestBackoffConfig_Escalation(t *testing.T) {
	config := DefaultBackoffConfig()

	assert.Equal(t, time.Duration(0), config.Backoff(0))
	assert.Equal(t, 5*time.Minute, config.Backoff(1))
	assert.Equal(t, 10*time.Minute, config.Backoff(2))
	assert.Equal(t, 20*time.Minute, config.Backoff(3))
	assert.Equal(t, 40*time.Minute, config.Backoff(4))
	// Level 5 would be 80 minutes; the cap holds it at an hour.
	assert.Equal(t, time.Hour, config.Backoff(5))
	assert.Equal(t, time.Hour, config.Backoff(9))
}

func TestHealthTracker_FailureEscalatesAndDisables(t *testing.T) {
	tracker, clock := newTestTracker(nil)
	opErr := errors.New("connection refused")

	assert.False(t, tracker.IsDisabled(1))

	tracker.RecordFailure(context.Background(), 1, opErr)
	status := tracker.Status(1)
	assert.Equal(t, 1, status.EscalationLevel)
	require.NotNil(t, status.DisabledTill)
	assert.Equal(t, clock.Add(5*time.Minute), *status.DisabledTill)
	assert.True(t, tracker.IsDisabled(1))

	tracker.RecordFailure(context.Background(), 1, opErr)
	status = tracker.Status(1)
	assert.Equal(t, 2, status.EscalationLevel)
	assert.Equal(t, clock.Add(10*time.Minute), *status.DisabledTill)

	// Escalation never passes the configured maximum.
	for i := 0; i < 10; i++ {
		tracker.RecordFailure(context.Background(), 1, opErr)
	}
	status = tracker.Status(1)
	assert.Equal(t, 5, status.EscalationLevel)
	assert.Equal(t, clock.Add(time.Hour), *status.DisabledTill)
}

func TestHealthTracker_DisableWindowExpires(t *testing.T) {
	tracker, clock := newTestTracker(nil)

	tracker.RecordFailure(context.Background(), 1, errors.New("timeout"))
	assert.True(t, tracker.IsDisabled(1))

	*clock = clock.Add(5*time.Minute + time.Second)
	assert.False(t, tracker.IsDisabled(1))
	// The escalation level survives the window so the next failure
	// backs off for longer.
	assert.Equal(t, 1, tracker.Status(1).EscalationLevel)
}

func TestHealthTracker_SuccessClearsFailureState(t *testing.T) {
	store := &memStatusStore{}
	tracker, _ := newTestTracker(store)

	tracker.RecordFailure(context.Background(), 1, errors.New("timeout"))
	tracker.RecordFailure(context.Background(), 1, errors.New("timeout"))
	tracker.RecordSuccess(context.Background(), 1)

	status := tracker.Status(1)
	assert.Equal(t, 0, status.EscalationLevel)
	assert.Nil(t, status.DisabledTill)
	assert.Nil(t, status.InitialFailure)
	assert.False(t, tracker.IsDisabled(1))

	// Every transition was persisted, the last one cleared.
	require.Len(t, store.saved, 3)
	assert.Equal(t, 0, store.saved[2].EscalationLevel)
}

func TestHealthTracker_Restore(t *testing.T) {
	tracker, clock := newTestTracker(nil)
	disabledTill := clock.Add(30 * time.Minute)

	store := &memStatusStore{load: []types.IndexerStatus{
		{IndexerID: 7, EscalationLevel: 3, DisabledTill: &disabledTill},
	}}
	tracker = NewHealthTracker(DefaultBackoffConfig(), store, zerolog.Nop())
	tracker.now = func() time.Time { return *clock }

	require.NoError(t, tracker.Restore(context.Background()))
	assert.True(t, tracker.IsDisabled(7))
	assert.Equal(t, 3, tracker.Status(7).EscalationLevel)
	assert.False(t, tracker.IsDisabled(8))
}
