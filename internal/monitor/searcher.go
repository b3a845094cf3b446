package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/download"
	indexertypes "github.com/cinephage/cinephage/internal/indexer/types"
	"github.com/cinephage/cinephage/internal/search"
)

// SearchProvider runs one aggregate search across indexers.
type SearchProvider interface {
	Search(ctx context.Context, criteria indexertypes.SearchCriteria, opts search.Options) (*search.Result, error)
}

// Grabber dispatches or parks an accepted release.
type Grabber interface {
	Grab(ctx context.Context, evalCtx *decisioning.EvalContext) (*download.GrabResult, error)
}

// Searcher is the engine shared by the monitoring tasks: it filters
// items through the item specs, searches, evaluates candidates in rank
// order, grabs the first acceptable one, and records history.
type Searcher struct {
	search       SearchProvider
	grabs        Grabber
	profiles     ProfileProvider
	history      HistoryStore
	cooldowns    CooldownStore
	itemSpecs    *decisioning.Pipeline
	releaseSpecs *decisioning.Pipeline
	logger       zerolog.Logger

	now func() time.Time
}

// NewSearcher wires the monitoring search engine.
func NewSearcher(
	provider SearchProvider,
	grabs Grabber,
	profiles ProfileProvider,
	history HistoryStore,
	cooldowns CooldownStore,
	itemSpecs, releaseSpecs *decisioning.Pipeline,
	logger zerolog.Logger,
) *Searcher {
	return &Searcher{
		search:       provider,
		grabs:        grabs,
		profiles:     profiles,
		history:      history,
		cooldowns:    cooldowns,
		itemSpecs:    itemSpecs,
		releaseSpecs: releaseSpecs,
		logger:       logger.With().Str("component", "monitor-search").Logger(),
		now:          time.Now,
	}
}

// ProcessItems runs the search cycle for a batch of items and writes the
// task summary. extraSpecs are evaluated after the shared item specs,
// letting each task add its own gate. Item failures are isolated: one
// broken item or indexer never aborts the batch.
func (s *Searcher) ProcessItems(ctx context.Context, taskID string, interval time.Duration, items []decisioning.Item, extraSpecs ...decisioning.Specification) (*TaskRun, error) {
	run := &TaskRun{
		TaskID:    taskID,
		StartedAt: s.now(),
	}

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		run.ItemsConsidered++
		s.processItem(ctx, taskID, interval, items[i], run, extraSpecs)
	}

	run.Duration = s.now().Sub(run.StartedAt)
	if err := s.history.AddTaskHistory(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("taskId", taskID).Msg("Failed to record task history")
	}
	s.logger.Info().
		Str("taskId", taskID).
		Int("considered", run.ItemsConsidered).
		Int("searched", run.ItemsSearched).
		Int("grabbed", run.Grabbed).
		Int("rejected", run.Rejected).
		Int("errors", run.Errors).
		Dur("duration", run.Duration).
		Msg("Monitoring task finished")
	return run, nil
}

func (s *Searcher) processItem(ctx context.Context, taskID string, interval time.Duration, item decisioning.Item, run *TaskRun, extraSpecs []decisioning.Specification) {
	entry := &MonitoringEntry{
		TaskID:     taskID,
		MediaType:  item.MediaType,
		MovieID:    item.MovieID,
		SeriesID:   item.SeriesID,
		EpisodeIDs: item.EpisodeIDs,
		Title:      item.Title,
		IsUpgrade:  item.HasFile,
		OldScore:   item.ExistingScore,
	}

	profile, err := s.profiles.ProfileFor(ctx, item.ProfileID)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", item.Title).Msg("Failed to load profile")
	}

	evalCtx := &decisioning.EvalContext{
		Ctx:     ctx,
		Item:    item,
		Profile: profile,
		Now:     s.now(),
	}

	decision := s.itemSpecs.Evaluate(evalCtx)
	if decision.Accepted {
		for _, spec := range extraSpecs {
			if decision = spec.IsSatisfied(evalCtx); !decision.Accepted {
				break
			}
		}
	}
	if !decision.Accepted {
		// A cooldown skip is routine, not a rejection worth a row.
		if decision.Reason != decisioning.ReasonCooldownActive {
			entry.Outcome = OutcomeRejected
			entry.Reason = decision.Reason
			entry.Message = decision.Message
			s.record(ctx, entry)
			run.Rejected++
		}
		return
	}

	run.ItemsSearched++
	result, err := s.search.Search(ctx, criteriaFor(item), search.Options{
		AutoSearch: true,
		Profile:    profile,
		MediaType:  item.MediaType,
	})
	s.setCooldown(ctx, item, interval)
	if err != nil {
		entry.Outcome = OutcomeError
		entry.Message = err.Error()
		s.record(ctx, entry)
		run.Errors++
		return
	}
	entry.ReleasesFound = len(result.Releases)

	if len(result.Releases) == 0 {
		entry.Outcome = OutcomeNoResults
		s.record(ctx, entry)
		return
	}

	grabbed, lastDecision := s.grabBest(ctx, evalCtx, result.Releases, entry)
	if grabbed {
		run.Grabbed++
	} else {
		entry.Outcome = OutcomeRejected
		entry.Reason = lastDecision.Reason
		entry.Message = lastDecision.Message
		run.Rejected++
	}
	s.record(ctx, entry)
}

// grabBest walks the ranked releases and grabs the first one every
// release spec accepts.
func (s *Searcher) grabBest(ctx context.Context, evalCtx *decisioning.EvalContext, releases []search.ScoredRelease, entry *MonitoringEntry) (bool, decisioning.Decision) {
	lastDecision := decisioning.Reject(decisioning.ReasonNoReleaseCandidate, "no acceptable release")
	for i := range releases {
		if ctx.Err() != nil {
			return false, lastDecision
		}
		evalCtx.Release = candidateFrom(&releases[i])
		decision := s.releaseSpecs.Evaluate(evalCtx)
		if !decision.Accepted {
			lastDecision = decision
			continue
		}

		result, err := s.grabs.Grab(ctx, evalCtx)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("title", evalCtx.Release.Title).
				Msg("Grab failed, trying next release")
			lastDecision = decisioning.Reject(decisioning.ReasonNoReleaseCandidate, err.Error())
			continue
		}

		entry.GrabbedRelease = evalCtx.Release.Title
		entry.NewScore = evalCtx.Release.Score.TotalScore
		entry.QueueItemID = result.DownloadID
		switch result.Outcome {
		case download.OutcomePending:
			entry.Outcome = OutcomePending
		default:
			entry.Outcome = OutcomeGrabbed
		}
		return true, decisioning.Accept()
	}
	return false, lastDecision
}

// setCooldown pushes the item's next search out to three quarters of
// the task interval.
func (s *Searcher) setCooldown(ctx context.Context, item decisioning.Item, interval time.Duration) {
	next := s.now().Add(interval * cooldownNumerator / cooldownDenominator)
	if err := s.cooldowns.SetNextSearch(ctx, item, next); err != nil {
		s.logger.Error().Err(err).Str("title", item.Title).Msg("Failed to set search cooldown")
	}
}

func (s *Searcher) record(ctx context.Context, entry *MonitoringEntry) {
	entry.CreatedAt = s.now()
	if err := s.history.AddMonitoringHistory(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("title", entry.Title).Msg("Failed to record monitoring history")
	}
}

// criteriaFor builds the indexer query for an item.
func criteriaFor(item decisioning.Item) indexertypes.SearchCriteria {
	criteria := indexertypes.SearchCriteria{
		Query:  item.Title,
		ImdbID: item.ImdbID,
		TmdbID: item.TmdbID,
	}
	switch {
	case len(item.EpisodeIDs) > 0 || item.SeriesID != 0:
		criteria.Type = indexertypes.SearchTypeTV
		criteria.Season = item.SeasonNumber
		criteria.Episode = item.EpisodeNumber
	default:
		criteria.Type = indexertypes.SearchTypeMovie
		criteria.Year = item.Year
	}
	return criteria
}

// candidateFrom converts a scored search result to a decision candidate.
func candidateFrom(r *search.ScoredRelease) *decisioning.Candidate {
	url := r.Release.DownloadURL
	if url == "" {
		url = r.Release.MagnetURL
	}
	return &decisioning.Candidate{
		Title:       r.Release.Title,
		InfoHash:    r.Release.InfoHash,
		DownloadURL: url,
		IndexerID:   r.Release.IndexerID,
		IndexerName: r.Release.IndexerName,
		Protocol:    r.Release.Protocol,
		Size:        r.Release.Size,
		PublishDate: r.Release.PublishDate,
		Score:       r.Score,
	}
}
