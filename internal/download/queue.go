package download

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	downloadertypes "github.com/cinephage/cinephage/internal/downloader/types"
)

// PollInterval is how often the queue poller reconciles tracked
// downloads against the download client.
const PollInterval = 10 * time.Second

// maxImportAttempts is how many times an import is retried before the
// release is failed and blocklisted.
const maxImportAttempts = 3

// QueuePoller reconciles tracked download records with the download
// client and drives completed downloads through import.
type QueuePoller struct {
	store     Store
	client    downloadertypes.Client
	importer  Importer
	blocklist *Blocklist
	logger    zerolog.Logger

	now func() time.Time
}

// NewQueuePoller creates the poller. importer may be nil, in which case
// completed downloads stay in the completed state.
func NewQueuePoller(store Store, client downloadertypes.Client, importer Importer, blocklist *Blocklist, logger zerolog.Logger) *QueuePoller {
	return &QueuePoller{
		store:     store,
		client:    client,
		importer:  importer,
		blocklist: blocklist,
		logger:    logger.With().Str("component", "download-queue").Logger(),
		now:       time.Now,
	}
}

// PollStats summarizes one reconciliation pass.
type PollStats struct {
	Checked  int `json:"checked"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

// Poll reconciles every active download record once.
func (q *QueuePoller) Poll(ctx context.Context) (PollStats, error) {
	records, err := q.store.ListActiveDownloads(ctx)
	if err != nil {
		return PollStats{}, err
	}

	var stats PollStats
	for _, record := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		q.reconcile(ctx, record, &stats)
	}
	return stats, nil
}

func (q *QueuePoller) reconcile(ctx context.Context, record *Record, stats *PollStats) {
	item, err := q.client.Get(ctx, record.ClientID)
	if errors.Is(err, downloadertypes.ErrNotFound) {
		// Removed from the client out of band. Treat as a failed
		// download so monitoring can search again.
		q.fail(ctx, record, "removed from download client", stats)
		return
	}
	if err != nil {
		q.logger.Warn().Err(err).
			Int64("downloadId", record.ID).
			Str("clientId", record.ClientID).
			Msg("Failed to query download client")
		stats.Errors++
		return
	}

	progressed := syncTransferState(record, item)

	switch item.Status {
	case downloadertypes.StatusQueued:
		q.transition(ctx, record, StatusQueued, progressed)
	case downloadertypes.StatusDownloading, downloadertypes.StatusPaused:
		q.transition(ctx, record, StatusDownloading, progressed)
	case downloadertypes.StatusCompleted, downloadertypes.StatusSeeding:
		q.complete(ctx, record, item, stats)
	case downloadertypes.StatusError:
		msg := item.Error
		if msg == "" {
			msg = "download client reported an error"
		}
		q.failAndBlock(ctx, record, BlocklistReasonDownloadFailed, msg, stats)
	}
}

// syncTransferState copies the client's live transfer figures onto the
// record and reports whether any of them changed.
func syncTransferState(record *Record, item *downloadertypes.DownloadItem) bool {
	changed := record.Progress != item.Progress ||
		record.DownloadSpeed != item.DownloadSpeed ||
		record.UploadSpeed != item.UploadSpeed ||
		record.ETA != item.ETA ||
		record.Ratio != item.Ratio
	record.Progress = item.Progress
	record.DownloadSpeed = item.DownloadSpeed
	record.UploadSpeed = item.UploadSpeed
	record.ETA = item.ETA
	record.Ratio = item.Ratio
	return changed
}

// transition moves the record to status, persisting when the status or
// the transfer figures moved since the last poll.
func (q *QueuePoller) transition(ctx context.Context, record *Record, status Status, progressed bool) {
	statusChanged := record.Status != status
	if !statusChanged && !progressed {
		return
	}
	record.Status = status
	record.UpdatedAt = q.now()
	if err := q.store.UpdateDownload(ctx, record); err != nil {
		q.logger.Error().Err(err).Int64("downloadId", record.ID).Msg("Failed to update download status")
		return
	}
	if statusChanged {
		q.logger.Debug().
			Int64("downloadId", record.ID).
			Str("title", record.Title).
			Str("status", string(status)).
			Msg("Download status changed")
	}
}

// complete marks the record completed and runs the import.
func (q *QueuePoller) complete(ctx context.Context, record *Record, item *downloadertypes.DownloadItem, stats *PollStats) {
	if record.CompletedAt == nil {
		now := q.now()
		record.CompletedAt = &now
		q.transition(ctx, record, StatusCompleted, true)
	}
	if q.importer == nil {
		return
	}

	record.Status = StatusImporting
	record.ImportAttempts++
	record.UpdatedAt = q.now()
	if err := q.store.UpdateDownload(ctx, record); err != nil {
		q.logger.Error().Err(err).Int64("downloadId", record.ID).Msg("Failed to mark download importing")
		stats.Errors++
		return
	}

	contentPath := item.ContentPath
	if contentPath == "" {
		contentPath = item.DownloadDir
	}
	if err := q.importer.Import(ctx, record, contentPath); err != nil {
		q.logger.Warn().Err(err).
			Int64("downloadId", record.ID).
			Str("title", record.Title).
			Int("attempt", record.ImportAttempts).
			Msg("Import failed")
		if record.ImportAttempts >= maxImportAttempts {
			q.failAndBlock(ctx, record, BlocklistReasonImportFailed, err.Error(), stats)
			return
		}
		// Back to completed so the next poll retries.
		record.Status = StatusCompleted
		record.ErrorMessage = err.Error()
		record.UpdatedAt = q.now()
		if updErr := q.store.UpdateDownload(ctx, record); updErr != nil {
			q.logger.Error().Err(updErr).Int64("downloadId", record.ID).Msg("Failed to update download after import failure")
		}
		stats.Errors++
		return
	}

	now := q.now()
	record.Status = StatusImported
	record.ImportedAt = &now
	record.ErrorMessage = ""
	record.UpdatedAt = now
	if err := q.store.UpdateDownload(ctx, record); err != nil {
		q.logger.Error().Err(err).Int64("downloadId", record.ID).Msg("Failed to mark download imported")
		stats.Errors++
		return
	}
	stats.Imported++
	q.logger.Info().
		Int64("downloadId", record.ID).
		Str("title", record.Title).
		Msg("Download imported")
}

// failAndBlock fails the record and blocklists the release so the next
// search does not grab it again immediately.
func (q *QueuePoller) failAndBlock(ctx context.Context, record *Record, reason BlocklistReason, message string, stats *PollStats) {
	var err error
	switch reason {
	case BlocklistReasonImportFailed:
		err = q.blocklist.BlockImportFailure(ctx, record, message)
	default:
		err = q.blocklist.Block(ctx, BlocklistEntry{
			MediaType:  record.MediaType,
			MovieID:    record.MovieID,
			SeriesID:   record.SeriesID,
			EpisodeIDs: record.EpisodeIDs,
			Title:      record.Title,
			InfoHash:   record.InfoHash,
			IndexerID:  record.IndexerID,
			Reason:     reason,
			Message:    message,
		})
	}
	if err != nil {
		q.logger.Error().Err(err).Int64("downloadId", record.ID).Msg("Failed to blocklist release")
	}
	q.fail(ctx, record, message, stats)
}

func (q *QueuePoller) fail(ctx context.Context, record *Record, message string, stats *PollStats) {
	record.Status = StatusFailed
	record.ErrorMessage = message
	record.UpdatedAt = q.now()
	if err := q.store.UpdateDownload(ctx, record); err != nil {
		q.logger.Error().Err(err).Int64("downloadId", record.ID).Msg("Failed to mark download failed")
		stats.Errors++
		return
	}
	stats.Failed++
	q.logger.Warn().
		Int64("downloadId", record.ID).
		Str("title", record.Title).
		Str("error", message).
		Msg("Download failed")
}

// OrphanStats summarizes an orphan sweep.
type OrphanStats struct {
	ClientItems int      `json:"clientItems"`
	Orphans     int      `json:"orphans"`
	Removed     int      `json:"removed"`
	DryRun      bool     `json:"dryRun"`
	OrphanIDs   []string `json:"orphanIds,omitempty"`
}

// SweepOrphans removes client torrents that no tracked record
// references. With dryRun the orphans are only reported.
func (q *QueuePoller) SweepOrphans(ctx context.Context, dryRun bool) (OrphanStats, error) {
	items, err := q.client.List(ctx)
	if err != nil {
		return OrphanStats{}, err
	}

	ids, err := q.store.ListClientIDs(ctx, string(q.client.Type()))
	if err != nil {
		return OrphanStats{}, err
	}
	tracked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		tracked[id] = struct{}{}
	}

	stats := OrphanStats{ClientItems: len(items), DryRun: dryRun}
	for _, item := range items {
		if _, ok := tracked[item.ID]; ok {
			continue
		}
		stats.Orphans++
		stats.OrphanIDs = append(stats.OrphanIDs, item.ID)
		if dryRun {
			q.logger.Info().
				Str("clientId", item.ID).
				Str("name", item.Name).
				Msg("Orphaned download (dry run, not removed)")
			continue
		}
		if err := q.client.Remove(ctx, item.ID, true); err != nil {
			q.logger.Error().Err(err).Str("clientId", item.ID).Msg("Failed to remove orphaned download")
			continue
		}
		stats.Removed++
		q.logger.Info().
			Str("clientId", item.ID).
			Str("name", item.Name).
			Msg("Removed orphaned download")
	}
	return stats, nil
}
