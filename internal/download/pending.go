package download

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/scoring"
)

// pendingExpiry drops a waiting release that could not be grabbed for
// this long past its process time, so a dead indexer cannot pin the
// queue forever.
const pendingExpiry = 72 * time.Hour

// pendingBatchLimit caps how many due releases one pass processes.
const pendingBatchLimit = 50

// PendingProcessor grabs due pending releases and expires stale ones.
type PendingProcessor struct {
	pending   PendingStore
	grabs     *GrabService
	blocklist *Blocklist
	content   ContentChecker
	logger    zerolog.Logger

	now func() time.Time
}

// NewPendingProcessor creates the processor. content may be nil, in
// which case dispatches skip the library re-check.
func NewPendingProcessor(pending PendingStore, grabs *GrabService, blocklist *Blocklist, content ContentChecker, logger zerolog.Logger) *PendingProcessor {
	return &PendingProcessor{
		pending:   pending,
		grabs:     grabs,
		blocklist: blocklist,
		content:   content,
		logger:    logger.With().Str("component", "pending-queue").Logger(),
		now:       time.Now,
	}
}

// PendingStats summarizes one processing pass.
type PendingStats struct {
	Processed int `json:"processed"`
	Grabbed   int `json:"grabbed"`
	Rejected  int `json:"rejected"`
	Expired   int `json:"expired"`
	Errors    int `json:"errors"`
}

// ProcessDue handles every pending release whose delay window has
// passed: revalidate against the blocklist and the library, dispatch,
// or expire.
func (p *PendingProcessor) ProcessDue(ctx context.Context) (PendingStats, error) {
	now := p.now()
	due, err := p.pending.ListDue(ctx, now, pendingBatchLimit)
	if err != nil {
		return PendingStats{}, err
	}

	var stats PendingStats
	for _, release := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Processed++

		switch {
		case now.Sub(release.ProcessAt) > pendingExpiry:
			p.expire(ctx, release, &stats)
		default:
			p.dispatch(ctx, release, &stats)
		}
	}

	if stats.Processed > 0 {
		p.logger.Info().
			Int("processed", stats.Processed).
			Int("grabbed", stats.Grabbed).
			Int("rejected", stats.Rejected).
			Int("expired", stats.Expired).
			Int("errors", stats.Errors).
			Msg("Processed pending queue")
	}
	return stats, nil
}

func (p *PendingProcessor) expire(ctx context.Context, release *PendingRelease, stats *PendingStats) {
	if err := p.pending.SetStatus(ctx, release.ID, PendingStatusExpired, "delay window expired unprocessed"); err != nil {
		p.logger.Error().Err(err).Int64("pendingId", release.ID).Msg("Failed to expire pending release")
		stats.Errors++
		return
	}
	stats.Expired++
	p.logger.Warn().
		Int64("pendingId", release.ID).
		Str("title", release.Title).
		Msg("Pending release expired")
}

func (p *PendingProcessor) dispatch(ctx context.Context, release *PendingRelease, stats *PendingStats) {
	// The release may have been blocklisted while it waited.
	blocked, err := p.blocklist.IsBlocklisted(ctx, decisioning.BlocklistQuery{
		Title:      release.Title,
		InfoHash:   release.InfoHash,
		MovieID:    release.MovieID,
		SeriesID:   release.SeriesID,
		EpisodeIDs: release.EpisodeIDs,
	})
	if err != nil || blocked {
		reason := "blocklisted during delay window"
		if err != nil {
			reason = "blocklist check failed: " + err.Error()
		}
		p.reject(ctx, release, reason, stats)
		return
	}

	// The library may no longer want the content: deleted, unmonitored,
	// or already covered by a file imported during the window.
	if reason, ok := p.stillWanted(ctx, release); !ok {
		p.reject(ctx, release, reason, stats)
		return
	}

	evalCtx := &decisioning.EvalContext{
		Ctx: ctx,
		Item: decisioning.Item{
			MediaType:  release.MediaType,
			MovieID:    release.MovieID,
			SeriesID:   release.SeriesID,
			EpisodeIDs: release.EpisodeIDs,
		},
		Release: pendingCandidate(release),
		Now:     p.now(),
	}
	if _, err := p.grabs.dispatch(ctx, evalCtx); err != nil {
		p.failDispatch(ctx, release, err, stats)
		return
	}

	if err := p.pending.SetStatus(ctx, release.ID, PendingStatusGrabbed, ""); err != nil {
		p.logger.Error().Err(err).Int64("pendingId", release.ID).Msg("Failed to mark pending release grabbed")
		stats.Errors++
		return
	}
	stats.Grabbed++
}

// stillWanted re-verifies the content behind a due release against the
// library. Returns the rejection reason when the release is obsolete.
func (p *PendingProcessor) stillWanted(ctx context.Context, release *PendingRelease) (string, bool) {
	if p.content == nil {
		return "", true
	}
	state, err := p.content.ContentState(ctx, release.MediaType, release.MovieID, release.SeriesID, release.EpisodeIDs)
	if err != nil {
		// An unreadable library must not drop the release; dispatch.
		p.logger.Warn().Err(err).Int64("pendingId", release.ID).Msg("Content re-check failed, dispatching anyway")
		return "", true
	}
	switch {
	case !state.Exists:
		return "content removed during delay window", false
	case !state.Monitored:
		return "content unmonitored during delay window", false
	case state.HasFile:
		return "content acquired a file during delay window", false
	}
	return "", true
}

func (p *PendingProcessor) reject(ctx context.Context, release *PendingRelease, reason string, stats *PendingStats) {
	if err := p.pending.SetStatus(ctx, release.ID, PendingStatusRejected, reason); err != nil {
		p.logger.Error().Err(err).Int64("pendingId", release.ID).Msg("Failed to reject pending release")
		stats.Errors++
		return
	}
	stats.Rejected++
	p.logger.Info().
		Int64("pendingId", release.ID).
		Str("title", release.Title).
		Str("reason", reason).
		Msg("Pending release rejected")
}

// failDispatch blocklists a release the client refused and expires its
// pending row, so the next search can fall back to another release
// instead of retrying this one forever.
func (p *PendingProcessor) failDispatch(ctx context.Context, release *PendingRelease, dispatchErr error, stats *PendingStats) {
	p.logger.Error().Err(dispatchErr).
		Int64("pendingId", release.ID).
		Str("title", release.Title).
		Msg("Failed to dispatch pending release")

	if err := p.blocklist.BlockTemporary(ctx, BlocklistEntry{
		MediaType:  release.MediaType,
		MovieID:    release.MovieID,
		SeriesID:   release.SeriesID,
		EpisodeIDs: release.EpisodeIDs,
		Title:      release.Title,
		InfoHash:   release.InfoHash,
		IndexerID:  release.IndexerID,
		Reason:     BlocklistReasonDownloadFailed,
		Message:    dispatchErr.Error(),
	}, downloadFailedTTL); err != nil {
		p.logger.Error().Err(err).Int64("pendingId", release.ID).Msg("Failed to blocklist pending release")
	}

	if err := p.pending.SetStatus(ctx, release.ID, PendingStatusExpired, "dispatch failed: "+dispatchErr.Error()); err != nil {
		p.logger.Error().Err(err).Int64("pendingId", release.ID).Msg("Failed to expire pending release")
	}
	stats.Errors++
}

// pendingCandidate rebuilds a candidate from the stored pending row.
// The score total is preserved; the breakdown is not needed at dispatch.
func pendingCandidate(release *PendingRelease) *decisioning.Candidate {
	return &decisioning.Candidate{
		Title:       release.Title,
		InfoHash:    release.InfoHash,
		DownloadURL: release.DownloadURL,
		IndexerID:   release.IndexerID,
		IndexerName: release.IndexerName,
		Protocol:    release.Protocol,
		Size:        release.Size,
		Score:       scoring.Result{TotalScore: release.Score},
	}
}
