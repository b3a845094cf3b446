package download

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/decisioning"
	downloadertypes "github.com/cinephage/cinephage/internal/downloader/types"
	"github.com/cinephage/cinephage/internal/search/ratelimit"
)

// GrabOutcome describes what happened to a grab request.
type GrabOutcome string

const (
	// OutcomeDispatched means the release was sent to the download client.
	OutcomeDispatched GrabOutcome = "dispatched"
	// OutcomePending means the release is waiting out a delay window.
	OutcomePending GrabOutcome = "pending"
	// OutcomeKeptExisting means a waiting release with an equal or
	// better score already covers the content.
	OutcomeKeptExisting GrabOutcome = "kept_existing"
)

// GrabResult reports the outcome of a grab.
type GrabResult struct {
	Outcome    GrabOutcome     `json:"outcome"`
	DownloadID int64           `json:"downloadId,omitempty"`
	PendingID  int64           `json:"pendingId,omitempty"`
	ProcessAt  time.Time       `json:"processAt,omitempty"`
	Superseded *PendingRelease `json:"superseded,omitempty"`
}

// GrabService sends accepted releases to the download client, or parks
// them in the pending queue when a delay profile applies.
type GrabService struct {
	store    Store
	pending  PendingStore
	client   downloadertypes.Client
	delays   decisioning.DelaySpec
	limiter  *ratelimit.Limiter
	category string
	logger   zerolog.Logger

	now func() time.Time
}

// NewGrabService wires the grab path together. limiter may be nil when
// grab dispatches are not rate limited.
func NewGrabService(store Store, pending PendingStore, client downloadertypes.Client, delays decisioning.DelaySpec, limiter *ratelimit.Limiter, category string, logger zerolog.Logger) *GrabService {
	return &GrabService{
		store:    store,
		pending:  pending,
		client:   client,
		delays:   delays,
		limiter:  limiter,
		category: category,
		logger:   logger.With().Str("component", "grab").Logger(),
		now:      time.Now,
	}
}

// Grab evaluates the delay rules for an accepted release and either
// dispatches it immediately or parks it in the pending queue.
func (s *GrabService) Grab(ctx context.Context, evalCtx *decisioning.EvalContext) (*GrabResult, error) {
	candidate := evalCtx.Release
	if candidate == nil {
		return nil, fmt.Errorf("no release candidate to grab")
	}

	delay, err := s.delays.Evaluate(evalCtx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Delay evaluation failed, dispatching immediately")
	}
	if delay.ShouldDelay {
		return s.park(ctx, evalCtx, delay)
	}
	return s.dispatch(ctx, evalCtx)
}

// park puts the release in the pending queue, superseding a waiting
// release for the same content only when the new one scores higher.
func (s *GrabService) park(ctx context.Context, evalCtx *decisioning.EvalContext, delay decisioning.DelayDecision) (*GrabResult, error) {
	item, candidate := evalCtx.Item, evalCtx.Release

	existing, err := s.pending.GetWaitingFor(ctx, item.MediaType, item.MovieID, item.SeriesID, item.EpisodeIDs)
	if err != nil {
		return nil, fmt.Errorf("checking pending queue: %w", err)
	}
	if existing != nil && existing.Score >= candidate.Score.TotalScore {
		s.logger.Debug().
			Str("title", candidate.Title).
			Int("score", candidate.Score.TotalScore).
			Str("existingTitle", existing.Title).
			Int("existingScore", existing.Score).
			Msg("Keeping existing pending release")
		return &GrabResult{Outcome: OutcomeKeptExisting, PendingID: existing.ID, ProcessAt: existing.ProcessAt}, nil
	}

	release := &PendingRelease{
		MediaType:   item.MediaType,
		MovieID:     item.MovieID,
		SeriesID:    item.SeriesID,
		EpisodeIDs:  item.EpisodeIDs,
		Title:       candidate.Title,
		InfoHash:    candidate.InfoHash,
		DownloadURL: downloadURL(candidate),
		IndexerID:   candidate.IndexerID,
		IndexerName: candidate.IndexerName,
		Protocol:    candidate.Protocol,
		Size:        candidate.Size,
		Score:       candidate.Score.TotalScore,
		Status:      PendingStatusWaiting,
		Reason:      delay.Reason,
		AddedAt:     s.now(),
		ProcessAt:   delay.ProcessAt,
	}
	superseded, err := s.pending.ReplaceWaiting(ctx, release)
	if err != nil {
		return nil, fmt.Errorf("queueing pending release: %w", err)
	}

	event := s.logger.Info().
		Str("title", candidate.Title).
		Int("score", candidate.Score.TotalScore).
		Time("processAt", delay.ProcessAt)
	if superseded != nil {
		event = event.Str("supersededTitle", superseded.Title).Int("supersededScore", superseded.Score)
	}
	event.Msg("Release parked in pending queue")

	return &GrabResult{
		Outcome:    OutcomePending,
		PendingID:  release.ID,
		ProcessAt:  delay.ProcessAt,
		Superseded: superseded,
	}, nil
}

// dispatch sends the release to the download client and records it.
func (s *GrabService) dispatch(ctx context.Context, evalCtx *decisioning.EvalContext) (*GrabResult, error) {
	item, candidate := evalCtx.Item, evalCtx.Release
	url := downloadURL(candidate)

	if s.limiter != nil {
		key := fmt.Sprintf("grab:%d", candidate.IndexerID)
		if err := s.limiter.Wait(ctx, key, ratelimit.HostKey(url)); err != nil {
			return nil, fmt.Errorf("waiting for grab rate limit: %w", err)
		}
	}

	clientID, err := s.client.Add(ctx, downloadertypes.AddOptions{
		URL:      url,
		Name:     candidate.Title,
		Category: s.category,
	})
	if err != nil {
		return nil, fmt.Errorf("adding download to client: %w", err)
	}

	record := &Record{
		MediaType:   item.MediaType,
		MovieID:     item.MovieID,
		SeriesID:    item.SeriesID,
		EpisodeIDs:  item.EpisodeIDs,
		Title:       candidate.Title,
		InfoHash:    candidate.InfoHash,
		DownloadURL: url,
		IndexerID:   candidate.IndexerID,
		IndexerName: candidate.IndexerName,
		Protocol:    candidate.Protocol,
		Size:        candidate.Size,
		Score:       candidate.Score.TotalScore,
		Status:      StatusQueued,
		ClientID:    clientID,
		ClientName:  string(s.client.Type()),
		GrabbedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	id, err := s.store.CreateDownload(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("recording download: %w", err)
	}
	record.ID = id

	s.logger.Info().
		Int64("downloadId", id).
		Str("title", candidate.Title).
		Str("indexer", candidate.IndexerName).
		Int("score", candidate.Score.TotalScore).
		Str("clientId", clientID).
		Msg("Release sent to download client")

	return &GrabResult{Outcome: OutcomeDispatched, DownloadID: id}, nil
}

// downloadURL falls back to a magnet link synthesized from the info
// hash for torrents without a fetchable file.
func downloadURL(candidate *decisioning.Candidate) string {
	if candidate.DownloadURL != "" {
		return candidate.DownloadURL
	}
	if candidate.InfoHash != "" {
		return fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s", candidate.InfoHash, neturl.QueryEscape(candidate.Title))
	}
	return ""
}
