// Package download manages the grab lifecycle: dispatching releases to
// download clients, parking them in the pending queue when a delay
// profile applies, polling client progress, importing completed
// downloads, and blocklisting failures.
package download

import (
	"context"
	"time"

	"github.com/cinephage/cinephage/internal/decisioning"
	"github.com/cinephage/cinephage/internal/scoring"
)

// Status is the lifecycle state of a tracked download.
type Status string

const (
	StatusGrabbed     Status = "grabbed"
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusImporting   Status = "importing"
	StatusImported    Status = "imported"
	StatusFailed      Status = "failed"
)

// Active reports whether the record still needs queue polling.
func (s Status) Active() bool {
	switch s {
	case StatusImported, StatusFailed:
		return false
	}
	return true
}

// Record is a tracked download, from grab to import or failure.
type Record struct {
	ID        int64             `json:"id"`
	MediaType scoring.MediaType `json:"mediaType"`

	MovieID    int64   `json:"movieId,omitempty"`
	SeriesID   int64   `json:"seriesId,omitempty"`
	EpisodeIDs []int64 `json:"episodeIds,omitempty"`

	Title       string           `json:"title"`
	InfoHash    string           `json:"infoHash,omitempty"`
	DownloadURL string           `json:"downloadUrl"`
	IndexerID   int64            `json:"indexerId"`
	IndexerName string           `json:"indexerName"`
	Protocol    scoring.Protocol `json:"protocol"`
	Size        int64            `json:"size"`
	Score       int              `json:"score"`

	Status         Status `json:"status"`
	ClientID       string `json:"clientId,omitempty"`
	ClientName     string `json:"clientName,omitempty"`
	ImportAttempts int    `json:"importAttempts"`
	ErrorMessage   string `json:"errorMessage,omitempty"`

	// Live transfer state, refreshed on every queue poll.
	Progress      float64 `json:"progress"`                // 0-100
	DownloadSpeed int64   `json:"downloadSpeed,omitempty"` // bytes/sec
	UploadSpeed   int64   `json:"uploadSpeed,omitempty"`   // bytes/sec
	ETA           int64   `json:"eta,omitempty"`           // seconds, -1 if unavailable
	Ratio         float64 `json:"ratio,omitempty"`

	GrabbedAt   time.Time  `json:"grabbedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ImportedAt  *time.Time `json:"importedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// PendingStatus is the state of a release in the pending queue.
type PendingStatus string

const (
	PendingStatusWaiting    PendingStatus = "waiting"
	PendingStatusGrabbed    PendingStatus = "grabbed"
	PendingStatusSuperseded PendingStatus = "superseded"
	PendingStatusExpired    PendingStatus = "expired"
	PendingStatusRejected   PendingStatus = "rejected"
)

// PendingRelease is a release waiting out its delay window before grab.
// At most one waiting release exists per content item; a better release
// found during the window supersedes it.
type PendingRelease struct {
	ID        int64             `json:"id"`
	MediaType scoring.MediaType `json:"mediaType"`

	MovieID    int64   `json:"movieId,omitempty"`
	SeriesID   int64   `json:"seriesId,omitempty"`
	EpisodeIDs []int64 `json:"episodeIds,omitempty"`

	Title       string           `json:"title"`
	InfoHash    string           `json:"infoHash,omitempty"`
	DownloadURL string           `json:"downloadUrl"`
	IndexerID   int64            `json:"indexerId"`
	IndexerName string           `json:"indexerName"`
	Protocol    scoring.Protocol `json:"protocol"`
	Size        int64            `json:"size"`
	Score       int              `json:"score"`

	Status    PendingStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	AddedAt   time.Time     `json:"addedAt"`
	ProcessAt time.Time     `json:"processAt"`
}

// BlocklistReason categorizes why a release was blocklisted.
type BlocklistReason string

const (
	BlocklistReasonImportFailed    BlocklistReason = "import_failed"
	BlocklistReasonDownloadFailed  BlocklistReason = "download_failed"
	BlocklistReasonQualityMismatch BlocklistReason = "quality_mismatch"
	BlocklistReasonDuplicate       BlocklistReason = "duplicate"
	BlocklistReasonBadRelease      BlocklistReason = "bad_release"
	BlocklistReasonManual          BlocklistReason = "manual"
	BlocklistReasonStalled         BlocklistReason = "stalled"
)

// BlocklistEntry blocks a specific release from being grabbed again for
// the same content. Entries with an expiry are pruned after it passes.
type BlocklistEntry struct {
	ID        int64             `json:"id"`
	MediaType scoring.MediaType `json:"mediaType"`

	MovieID    int64   `json:"movieId,omitempty"`
	SeriesID   int64   `json:"seriesId,omitempty"`
	EpisodeIDs []int64 `json:"episodeIds,omitempty"`

	Title     string          `json:"title"`
	InfoHash  string          `json:"infoHash,omitempty"`
	IndexerID int64           `json:"indexerId,omitempty"`
	Reason    BlocklistReason `json:"reason"`
	Message   string          `json:"message,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Store persists download records.
type Store interface {
	CreateDownload(ctx context.Context, record *Record) (int64, error)
	UpdateDownload(ctx context.Context, record *Record) error
	GetDownload(ctx context.Context, id int64) (*Record, error)
	ListActiveDownloads(ctx context.Context) ([]*Record, error)
	ListDownloadsByStatus(ctx context.Context, status Status) ([]*Record, error)
	// ListClientIDs returns the client-side IDs of every record for the
	// named client, regardless of status. Used by the orphan sweep.
	ListClientIDs(ctx context.Context, clientName string) ([]string, error)
}

// PendingStore persists the pending queue. ReplaceWaiting atomically
// supersedes any waiting release for the same content and inserts the
// new one, upholding the single-pending invariant.
type PendingStore interface {
	ReplaceWaiting(ctx context.Context, release *PendingRelease) (superseded *PendingRelease, err error)
	GetWaitingFor(ctx context.Context, mediaType scoring.MediaType, movieID, seriesID int64, episodeIDs []int64) (*PendingRelease, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*PendingRelease, error)
	ListWaiting(ctx context.Context) ([]*PendingRelease, error)
	SetStatus(ctx context.Context, id int64, status PendingStatus, reason string) error
}

// BlocklistStore persists blocklist entries.
type BlocklistStore interface {
	AddBlocklistEntry(ctx context.Context, entry *BlocklistEntry) error
	IsBlocklisted(ctx context.Context, query decisioning.BlocklistQuery) (bool, error)
	DeleteExpiredBlocklistEntries(ctx context.Context, now time.Time) (int64, error)
}

// Importer moves a completed download into the library.
type Importer interface {
	Import(ctx context.Context, record *Record, contentPath string) error
}

// ContentState is the library standing of the content a pending release
// targets. Re-checked just before dispatch; the library may have changed
// while the release waited out its delay window.
type ContentState struct {
	Exists    bool `json:"exists"`
	Monitored bool `json:"monitored"`
	HasFile   bool `json:"hasFile"`
}

// ContentChecker answers whether content still wants a download. For TV
// the monitored cascade applies and HasFile means every targeted episode
// has a file.
type ContentChecker interface {
	ContentState(ctx context.Context, mediaType scoring.MediaType, movieID, seriesID int64, episodeIDs []int64) (ContentState, error)
}
