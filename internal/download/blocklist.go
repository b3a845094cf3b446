package download

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/decisioning"
)

// importFailedTTL is how long an import-failed release stays blocked.
const importFailedTTL = 24 * time.Hour

// downloadFailedTTL is how long a release that could not be sent to the
// download client stays blocked.
const downloadFailedTTL = 24 * time.Hour

// Blocklist wraps the blocklist store with TTL policy and satisfies the
// decisioning blocklist check.
type Blocklist struct {
	store  BlocklistStore
	logger zerolog.Logger

	now func() time.Time
}

var _ decisioning.BlocklistChecker = (*Blocklist)(nil)

// NewBlocklist creates the blocklist service.
func NewBlocklist(store BlocklistStore, logger zerolog.Logger) *Blocklist {
	return &Blocklist{
		store:  store,
		logger: logger.With().Str("component", "blocklist").Logger(),
		now:    time.Now,
	}
}

// IsBlocklisted reports whether a release is blocked for its content.
func (b *Blocklist) IsBlocklisted(ctx context.Context, query decisioning.BlocklistQuery) (bool, error) {
	return b.store.IsBlocklisted(ctx, query)
}

// Block adds a permanent blocklist entry.
func (b *Blocklist) Block(ctx context.Context, entry BlocklistEntry) error {
	return b.add(ctx, entry, nil)
}

// BlockTemporary adds an entry that expires after ttl.
func (b *Blocklist) BlockTemporary(ctx context.Context, entry BlocklistEntry, ttl time.Duration) error {
	expires := b.now().Add(ttl)
	return b.add(ctx, entry, &expires)
}

// BlockImportFailure blocks a release whose import failed, for one day.
// The release can be retried after the TTL in case the failure was
// environmental (permissions, disk space).
func (b *Blocklist) BlockImportFailure(ctx context.Context, record *Record, message string) error {
	return b.BlockTemporary(ctx, BlocklistEntry{
		MediaType:  record.MediaType,
		MovieID:    record.MovieID,
		SeriesID:   record.SeriesID,
		EpisodeIDs: record.EpisodeIDs,
		Title:      record.Title,
		InfoHash:   record.InfoHash,
		IndexerID:  record.IndexerID,
		Reason:     BlocklistReasonImportFailed,
		Message:    message,
	}, importFailedTTL)
}

func (b *Blocklist) add(ctx context.Context, entry BlocklistEntry, expiresAt *time.Time) error {
	entry.CreatedAt = b.now()
	entry.ExpiresAt = expiresAt
	if err := b.store.AddBlocklistEntry(ctx, &entry); err != nil {
		return fmt.Errorf("adding blocklist entry: %w", err)
	}
	b.logger.Info().
		Str("title", entry.Title).
		Str("reason", string(entry.Reason)).
		Bool("temporary", expiresAt != nil).
		Msg("Release blocklisted")
	return nil
}

// PruneExpired removes entries whose TTL has passed.
func (b *Blocklist) PruneExpired(ctx context.Context) (int64, error) {
	removed, err := b.store.DeleteExpiredBlocklistEntries(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("pruning blocklist: %w", err)
	}
	if removed > 0 {
		b.logger.Debug().Int64("removed", removed).Msg("Pruned expired blocklist entries")
	}
	return removed, nil
}
