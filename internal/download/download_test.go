package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinephage/cinephage/internal/decisioning"
	downloadermock "github.com/cinephage/cinephage/internal/downloader/mock"
	downloadertypes "github.com/cinephage/cinephage/internal/downloader/types"
	"github.com/cinephage/cinephage/internal/scoring"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]*Record)}
}

func (s *memStore) CreateDownload(_ context.Context, record *Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	clone := *record
	s.records[record.ID] = &clone
	return record.ID, nil
}

func (s *memStore) UpdateDownload(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return fmt.Errorf("download %d not found", record.ID)
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *memStore) GetDownload(_ context.Context, id int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("download %d not found", id)
	}
	clone := *record
	return &clone, nil
}

func (s *memStore) ListActiveDownloads(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, record := range s.records {
		if record.Status.Active() {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListDownloadsByStatus(_ context.Context, status Status) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, record := range s.records {
		if record.Status == status {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListClientIDs(_ context.Context, clientName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, record := range s.records {
		if record.ClientName == clientName && record.ClientID != "" {
			ids = append(ids, record.ClientID)
		}
	}
	return ids, nil
}

type memPending struct {
	mu       sync.Mutex
	nextID   int64
	releases map[int64]*PendingRelease
}

func newMemPending() *memPending {
	return &memPending{releases: make(map[int64]*PendingRelease)}
}

func sameContent(a, b *PendingRelease) bool {
	if a.MediaType != b.MediaType {
		return false
	}
	if a.MediaType == scoring.MediaTypeMovie {
		return a.MovieID == b.MovieID
	}
	if a.SeriesID != b.SeriesID || len(a.EpisodeIDs) != len(b.EpisodeIDs) {
		return false
	}
	for i := range a.EpisodeIDs {
		if a.EpisodeIDs[i] != b.EpisodeIDs[i] {
			return false
		}
	}
	return true
}

func (p *memPending) ReplaceWaiting(_ context.Context, release *PendingRelease) (*PendingRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var superseded *PendingRelease
	for _, existing := range p.releases {
		if existing.Status == PendingStatusWaiting && sameContent(existing, release) {
			existing.Status = PendingStatusSuperseded
			clone := *existing
			superseded = &clone
		}
	}
	p.nextID++
	release.ID = p.nextID
	clone := *release
	p.releases[release.ID] = &clone
	return superseded, nil
}

func (p *memPending) GetWaitingFor(_ context.Context, mediaType scoring.MediaType, movieID, seriesID int64, episodeIDs []int64) (*PendingRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := &PendingRelease{MediaType: mediaType, MovieID: movieID, SeriesID: seriesID, EpisodeIDs: episodeIDs}
	for _, existing := range p.releases {
		if existing.Status == PendingStatusWaiting && sameContent(existing, key) {
			clone := *existing
			return &clone, nil
		}
	}
	return nil, nil
}

func (p *memPending) ListDue(_ context.Context, now time.Time, limit int) ([]*PendingRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PendingRelease
	for _, existing := range p.releases {
		if existing.Status == PendingStatusWaiting && !existing.ProcessAt.After(now) {
			clone := *existing
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessAt.Before(out[j].ProcessAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *memPending) ListWaiting(_ context.Context) ([]*PendingRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PendingRelease
	for _, existing := range p.releases {
		if existing.Status == PendingStatusWaiting {
			clone := *existing
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (p *memPending) SetStatus(_ context.Context, id int64, status PendingStatus, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.releases[id]
	if !ok {
		return fmt.Errorf("pending release %d not found", id)
	}
	existing.Status = status
	if reason != "" {
		existing.Reason = reason
	}
	return nil
}

func (p *memPending) get(id int64) *PendingRelease {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *p.releases[id]
	return &clone
}

type memBlocklist struct {
	mu      sync.Mutex
	nextID  int64
	entries []*BlocklistEntry
}

func newMemBlocklist() *memBlocklist { return &memBlocklist{} }

func (b *memBlocklist) AddBlocklistEntry(_ context.Context, entry *BlocklistEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	entry.ID = b.nextID
	clone := *entry
	b.entries = append(b.entries, &clone)
	return nil
}

func (b *memBlocklist) IsBlocklisted(_ context.Context, query decisioning.BlocklistQuery) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range b.entries {
		if entry.MovieID != query.MovieID || entry.SeriesID != query.SeriesID {
			continue
		}
		if query.InfoHash != "" && entry.InfoHash == query.InfoHash {
			return true, nil
		}
		if entry.Title == query.Title {
			return true, nil
		}
	}
	return false, nil
}

func (b *memBlocklist) DeleteExpiredBlocklistEntries(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var kept []*BlocklistEntry
	var removed int64
	for _, entry := range b.entries {
		if entry.ExpiresAt != nil && entry.ExpiresAt.Before(now) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	b.entries = kept
	return removed, nil
}

func (b *memBlocklist) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *memBlocklist) last() *BlocklistEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	clone := *b.entries[len(b.entries)-1]
	return &clone
}

type stubContentChecker struct {
	state ContentState
	err   error
}

func (s *stubContentChecker) ContentState(context.Context, scoring.MediaType, int64, int64, []int64) (ContentState, error) {
	return s.state, s.err
}

type stubDelayProvider struct {
	profiles []*decisioning.DelayProfile
}

func (s *stubDelayProvider) DelayProfiles(_ *decisioning.EvalContext) ([]*decisioning.DelayProfile, error) {
	return s.profiles, nil
}

type stubImporter struct {
	mu       sync.Mutex
	failures int
	calls    int
	paths    []string
}

func (s *stubImporter) Import(_ context.Context, _ *Record, contentPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.paths = append(s.paths, contentPath)
	if s.calls <= s.failures {
		return errors.New("no matching media file found")
	}
	return nil
}

func movieCandidate(title string, score int) *decisioning.Candidate {
	return &decisioning.Candidate{
		Title:       title,
		InfoHash:    "aaaabbbbccccddddeeeeffff0000111122223333",
		IndexerID:   1,
		IndexerName: "mock",
		Protocol:    scoring.ProtocolTorrent,
		Size:        8 << 30,
		Score:       scoring.Result{TotalScore: score},
	}
}

func movieEvalCtx(candidate *decisioning.Candidate, now time.Time) *decisioning.EvalContext {
	return &decisioning.EvalContext{
		Ctx:     context.Background(),
		Item:    decisioning.Item{MediaType: scoring.MediaTypeMovie, MovieID: 42},
		Release: candidate,
		Now:     now,
	}
}

func newGrabFixture(t *testing.T, profiles []*decisioning.DelayProfile) (*GrabService, *memStore, *memPending, *downloadermock.Client, *testClock) {
	t.Helper()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemStore()
	pending := newMemPending()
	client := downloadermock.New()
	client.SetClock(clock.Now)
	delays := decisioning.DelaySpec{Provider: &stubDelayProvider{profiles: profiles}}
	grabs := NewGrabService(store, pending, client, delays, nil, "cinephage", zerolog.Nop())
	grabs.now = clock.Now
	return grabs, store, pending, client, clock
}

func TestGrabService_DispatchImmediately(t *testing.T) {
	grabs, store, _, client, clock := newGrabFixture(t, nil)

	candidate := movieCandidate("The Matrix 1999 2160p Remux", 25000)
	result, err := grabs.Grab(context.Background(), movieEvalCtx(candidate, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, result.Outcome)
	require.NotZero(t, result.DownloadID)

	record, err := store.GetDownload(context.Background(), result.DownloadID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, record.Status)
	assert.Equal(t, candidate.InfoHash, record.ClientID)
	assert.Equal(t, "mock", record.ClientName)
	assert.Equal(t, 25000, record.Score)
	assert.Equal(t, 1, client.Count())

	// No download URL means a magnet link is synthesized from the hash.
	assert.Contains(t, record.DownloadURL, "magnet:?xt=urn:btih:"+candidate.InfoHash)
}

func TestGrabService_ParksDelayedRelease(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{
		ID:           1,
		Enabled:      true,
		TorrentDelay: 2 * time.Hour,
	}}
	grabs, _, pending, client, clock := newGrabFixture(t, profiles)

	candidate := movieCandidate("The Matrix 1999 1080p WEB-DL", 12000)
	result, err := grabs.Grab(context.Background(), movieEvalCtx(candidate, clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, clock.Now().Add(2*time.Hour), result.ProcessAt)
	assert.Equal(t, 0, client.Count())

	waiting, err := pending.ListWaiting(context.Background())
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, candidate.Title, waiting[0].Title)
}

func TestGrabService_SupersedeOnlyWhenBetter(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{
		ID:           1,
		Enabled:      true,
		TorrentDelay: time.Hour,
	}}
	grabs, _, pending, _, clock := newGrabFixture(t, profiles)
	ctx := context.Background()

	first, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("The Matrix 1999 1080p BluRay", 15000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, first.Outcome)

	// Equal score keeps the existing waiting release.
	kept, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("The Matrix 1999 1080p WEB-DL", 15000), clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeKeptExisting, kept.Outcome)
	assert.Equal(t, first.PendingID, kept.PendingID)

	// A strictly better release supersedes it.
	better, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("The Matrix 1999 2160p Remux", 25000), clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, better.Outcome)
	require.NotNil(t, better.Superseded)
	assert.Equal(t, first.PendingID, better.Superseded.ID)

	waiting, err := pending.ListWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, 25000, waiting[0].Score)
	assert.Equal(t, PendingStatusSuperseded, pending.get(first.PendingID).Status)
}

func TestGrabService_DelayBypassDispatches(t *testing.T) {
	bypass := 20000
	profiles := []*decisioning.DelayProfile{{
		ID:                 1,
		Enabled:            true,
		TorrentDelay:       time.Hour,
		BypassIfAboveScore: &bypass,
	}}
	grabs, _, _, client, clock := newGrabFixture(t, profiles)

	result, err := grabs.Grab(context.Background(), movieEvalCtx(movieCandidate("The Matrix 1999 2160p Remux", 25000), clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, result.Outcome)
	assert.Equal(t, 1, client.Count())
}

func TestPendingProcessor_GrabsDueRelease(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{
		ID:           1,
		Enabled:      true,
		TorrentDelay: time.Hour,
	}}
	grabs, store, pending, client, clock := newGrabFixture(t, profiles)
	blockStore := newMemBlocklist()
	blocklist := NewBlocklist(blockStore, zerolog.Nop())
	blocklist.now = clock.Now
	processor := NewPendingProcessor(pending, grabs, blocklist, nil, zerolog.Nop())
	processor.now = clock.Now
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)

	// Not due yet.
	stats, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)

	clock.Advance(time.Hour + time.Minute)
	stats, err = processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Grabbed)
	assert.Equal(t, PendingStatusGrabbed, pending.get(result.PendingID).Status)
	assert.Equal(t, 1, client.Count())

	active, err := store.ListActiveDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Dune 2021 1080p WEB-DL", active[0].Title)
}

func TestPendingProcessor_RejectsBlocklistedRelease(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{ID: 1, Enabled: true, TorrentDelay: time.Hour}}
	grabs, _, pending, client, clock := newGrabFixture(t, profiles)
	blockStore := newMemBlocklist()
	blocklist := NewBlocklist(blockStore, zerolog.Nop())
	blocklist.now = clock.Now
	processor := NewPendingProcessor(pending, grabs, blocklist, nil, zerolog.Nop())
	processor.now = clock.Now
	ctx := context.Background()

	candidate := movieCandidate("Dune 2021 1080p WEB-DL", 12000)
	result, err := grabs.Grab(ctx, movieEvalCtx(candidate, clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)

	require.NoError(t, blocklist.Block(ctx, BlocklistEntry{
		MediaType: scoring.MediaTypeMovie,
		MovieID:   42,
		Title:     candidate.Title,
		InfoHash:  candidate.InfoHash,
		Reason:    BlocklistReasonManual,
	}))

	clock.Advance(2 * time.Hour)
	stats, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)
	assert.Zero(t, stats.Grabbed)
	assert.Equal(t, PendingStatusRejected, pending.get(result.PendingID).Status)
	assert.Equal(t, 0, client.Count())
}

func TestPendingProcessor_RejectsObsoleteContent(t *testing.T) {
	tests := []struct {
		name   string
		state  ContentState
		reason string
	}{
		{"removed", ContentState{}, "content removed during delay window"},
		{"unmonitored", ContentState{Exists: true}, "content unmonitored during delay window"},
		{"has file", ContentState{Exists: true, Monitored: true, HasFile: true}, "content acquired a file during delay window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := []*decisioning.DelayProfile{{ID: 1, Enabled: true, TorrentDelay: time.Hour}}
			grabs, _, pending, client, clock := newGrabFixture(t, profiles)
			blocklist := NewBlocklist(newMemBlocklist(), zerolog.Nop())
			checker := &stubContentChecker{state: tt.state}
			processor := NewPendingProcessor(pending, grabs, blocklist, checker, zerolog.Nop())
			processor.now = clock.Now
			ctx := context.Background()

			result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
			require.NoError(t, err)
			require.Equal(t, OutcomePending, result.Outcome)

			clock.Advance(2 * time.Hour)
			stats, err := processor.ProcessDue(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Rejected)
			assert.Zero(t, stats.Grabbed)
			assert.Equal(t, PendingStatusRejected, pending.get(result.PendingID).Status)
			assert.Equal(t, tt.reason, pending.get(result.PendingID).Reason)
			assert.Equal(t, 0, client.Count())
		})
	}
}

func TestPendingProcessor_ContentCheckErrorStillDispatches(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{ID: 1, Enabled: true, TorrentDelay: time.Hour}}
	grabs, _, pending, client, clock := newGrabFixture(t, profiles)
	blocklist := NewBlocklist(newMemBlocklist(), zerolog.Nop())
	checker := &stubContentChecker{err: errors.New("database locked")}
	processor := NewPendingProcessor(pending, grabs, blocklist, checker, zerolog.Nop())
	processor.now = clock.Now
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)

	clock.Advance(2 * time.Hour)
	stats, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Grabbed)
	assert.Equal(t, 1, client.Count())
}

func TestPendingProcessor_DispatchFailureBlocklistsAndExpires(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{ID: 1, Enabled: true, TorrentDelay: time.Hour}}
	grabs, _, pending, client, clock := newGrabFixture(t, profiles)
	blockStore := newMemBlocklist()
	blocklist := NewBlocklist(blockStore, zerolog.Nop())
	blocklist.now = clock.Now
	processor := NewPendingProcessor(pending, grabs, blocklist, nil, zerolog.Nop())
	processor.now = clock.Now
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)

	client.SetTestError(errors.New("client offline"))
	clock.Advance(2 * time.Hour)
	stats, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Grabbed)
	assert.Equal(t, PendingStatusExpired, pending.get(result.PendingID).Status)

	// The failed release is blocked for a day so the next search can fall
	// back to another one instead of retrying this release.
	require.Equal(t, 1, blockStore.count())
	entry := blockStore.last()
	assert.Equal(t, BlocklistReasonDownloadFailed, entry.Reason)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, clock.Now().Add(downloadFailedTTL), *entry.ExpiresAt)
}

func TestPendingProcessor_ExpiresStaleRelease(t *testing.T) {
	profiles := []*decisioning.DelayProfile{{ID: 1, Enabled: true, TorrentDelay: time.Hour}}
	grabs, _, pending, client, clock := newGrabFixture(t, profiles)
	blocklist := NewBlocklist(newMemBlocklist(), zerolog.Nop())
	processor := NewPendingProcessor(pending, grabs, blocklist, nil, zerolog.Nop())
	processor.now = clock.Now
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomePending, result.Outcome)

	clock.Advance(time.Hour + 73*time.Hour)
	stats, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, PendingStatusExpired, pending.get(result.PendingID).Status)
	assert.Equal(t, 0, client.Count())
}

func TestBlocklist_ImportFailureExpires(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemBlocklist()
	blocklist := NewBlocklist(store, zerolog.Nop())
	blocklist.now = clock.Now
	ctx := context.Background()

	record := &Record{
		MediaType: scoring.MediaTypeMovie,
		MovieID:   42,
		Title:     "Dune 2021 1080p WEB-DL",
		InfoHash:  "aaaabbbbccccddddeeeeffff0000111122223333",
	}
	require.NoError(t, blocklist.BlockImportFailure(ctx, record, "destination not writable"))

	blocked, err := blocklist.IsBlocklisted(ctx, decisioning.BlocklistQuery{
		Title: record.Title, InfoHash: record.InfoHash, MovieID: 42,
	})
	require.NoError(t, err)
	assert.True(t, blocked)

	// Within the TTL the entry survives pruning.
	clock.Advance(23 * time.Hour)
	removed, err := blocklist.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	clock.Advance(2 * time.Hour)
	removed, err = blocklist.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Zero(t, store.count())
}

func newQueueFixture(t *testing.T, importer Importer) (*QueuePoller, *GrabService, *memStore, *downloadermock.Client, *memBlocklist, *testClock) {
	t.Helper()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemStore()
	client := downloadermock.New()
	client.SetClock(clock.Now)
	blockStore := newMemBlocklist()
	blocklist := NewBlocklist(blockStore, zerolog.Nop())
	blocklist.now = clock.Now
	delays := decisioning.DelaySpec{Provider: &stubDelayProvider{}}
	grabs := NewGrabService(store, newMemPending(), client, delays, nil, "cinephage", zerolog.Nop())
	grabs.now = clock.Now
	poller := NewQueuePoller(store, client, importer, blocklist, zerolog.Nop())
	poller.now = clock.Now
	return poller, grabs, store, client, blockStore, clock
}

func TestQueuePoller_LifecycleToImported(t *testing.T) {
	importer := &stubImporter{}
	poller, grabs, store, _, _, clock := newQueueFixture(t, importer)
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 2160p Remux", 25000), clock.Now()))
	require.NoError(t, err)
	require.Equal(t, OutcomeDispatched, result.Outcome)

	// Still inside the simulated queue delay.
	stats, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	record, _ := store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusQueued, record.Status)

	clock.Advance(time.Minute)
	_, err = poller.Poll(ctx)
	require.NoError(t, err)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusDownloading, record.Status)

	clock.Advance(10 * time.Minute)
	stats, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusImported, record.Status)
	require.NotNil(t, record.CompletedAt)
	require.NotNil(t, record.ImportedAt)
	assert.Equal(t, 1, record.ImportAttempts)
	require.Len(t, importer.paths, 1)
	assert.Contains(t, importer.paths[0], "Dune 2021 2160p Remux")
}

func TestQueuePoller_PersistsTransferState(t *testing.T) {
	poller, grabs, store, _, _, clock := newQueueFixture(t, &stubImporter{})
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 2160p Remux", 25000), clock.Now()))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = poller.Poll(ctx)
	require.NoError(t, err)
	record, _ := store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusDownloading, record.Status)
	assert.Greater(t, record.Progress, 0.0)
	assert.Greater(t, record.DownloadSpeed, int64(0))
	assert.Greater(t, record.ETA, int64(0))
	firstProgress := record.Progress

	// A later poll with the same status still persists the new figures.
	clock.Advance(time.Minute)
	_, err = poller.Poll(ctx)
	require.NoError(t, err)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusDownloading, record.Status)
	assert.Greater(t, record.Progress, firstProgress)

	clock.Advance(10 * time.Minute)
	_, err = poller.Poll(ctx)
	require.NoError(t, err)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusImported, record.Status)
	assert.Equal(t, 100.0, record.Progress)
	assert.Zero(t, record.ETA)
}

func TestQueuePoller_ImportRetriesThenBlocklists(t *testing.T) {
	importer := &stubImporter{failures: 3}
	poller, grabs, store, _, blockStore, clock := newQueueFixture(t, importer)
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 2160p Remux", 25000), clock.Now()))
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	for i := 0; i < 2; i++ {
		stats, err := poller.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Errors)
		record, _ := store.GetDownload(ctx, result.DownloadID)
		assert.Equal(t, StatusCompleted, record.Status)
		assert.Equal(t, i+1, record.ImportAttempts)
	}

	stats, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	record, _ := store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, maxImportAttempts, record.ImportAttempts)
	assert.Equal(t, 1, blockStore.count())

	// Failed records leave the active set.
	active, err := store.ListActiveDownloads(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 3, importer.calls)
}

func TestQueuePoller_ClientErrorBlocklists(t *testing.T) {
	poller, grabs, store, client, blockStore, clock := newQueueFixture(t, &stubImporter{})
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	record, _ := store.GetDownload(ctx, result.DownloadID)
	require.NoError(t, client.Fail(record.ClientID, "tracker unreachable"))

	stats, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, "tracker unreachable", record.ErrorMessage)
	assert.Equal(t, 1, blockStore.count())
}

func TestQueuePoller_RemovedFromClientFails(t *testing.T) {
	poller, grabs, store, client, blockStore, clock := newQueueFixture(t, &stubImporter{})
	ctx := context.Background()

	result, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)
	record, _ := store.GetDownload(ctx, result.DownloadID)
	require.NoError(t, client.Remove(ctx, record.ClientID, true))

	stats, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	record, _ = store.GetDownload(ctx, result.DownloadID)
	assert.Equal(t, StatusFailed, record.Status)
	// Out-of-band removal is not the release's fault, no blocklisting.
	assert.Zero(t, blockStore.count())
}

func TestQueuePoller_SweepOrphans(t *testing.T) {
	poller, grabs, _, client, _, clock := newQueueFixture(t, &stubImporter{})
	ctx := context.Background()

	_, err := grabs.Grab(ctx, movieEvalCtx(movieCandidate("Dune 2021 1080p WEB-DL", 12000), clock.Now()))
	require.NoError(t, err)

	_, err = client.Add(ctx, downloadertypes.AddOptions{Name: "manual-addition"})
	require.NoError(t, err)

	stats, err := poller.SweepOrphans(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ClientItems)
	assert.Equal(t, 1, stats.Orphans)
	assert.Zero(t, stats.Removed)
	assert.Equal(t, 2, client.Count())

	stats, err = poller.SweepOrphans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Orphans)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 1, client.Count())
}
