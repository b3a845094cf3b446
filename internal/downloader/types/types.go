// Package types defines shared types for download clients.
package types

import (
	"context"
	"errors"
	"time"

	"github.com/cinephage/cinephage/internal/scoring"
)

// Common errors for download clients.
var (
	ErrNotConnected = errors.New("client not connected")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrNotFound     = errors.New("download not found")
)

// ClientType identifies a download client implementation.
type ClientType string

const (
	ClientTypeQBittorrent ClientType = "qbittorrent"
	ClientTypeMock        ClientType = "mock"
)

// ProtocolForClient returns the protocol a client type serves.
func ProtocolForClient(clientType ClientType) scoring.Protocol {
	switch clientType {
	case ClientTypeQBittorrent, ClientTypeMock:
		return scoring.ProtocolTorrent
	default:
		return ""
	}
}

// ClientConfig holds common configuration for download clients.
type ClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	Category string
}

// AddOptions specifies options for adding a download.
type AddOptions struct {
	// URL to a torrent file or a magnet link.
	URL string
	// FileContent is raw torrent file content, used over URL when set.
	FileContent []byte

	Name        string
	DownloadDir string
	Category    string
	Paused      bool

	SeedRatioLimit float64
	SeedTimeLimit  time.Duration
}

// Status is the lifecycle state of a download inside the client.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusSeeding     Status = "seeding"
	StatusError       Status = "error"
	StatusUnknown     Status = "unknown"
)

// IsTerminal reports whether the client will make no further download
// progress from this state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSeeding, StatusError:
		return true
	}
	return false
}

// DownloadItem represents a download in progress or completed.
type DownloadItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	InfoHash       string    `json:"infoHash,omitempty"`
	Status         Status    `json:"status"`
	Progress       float64   `json:"progress"` // 0-100
	Size           int64     `json:"size"`
	DownloadedSize int64     `json:"downloadedSize"`
	DownloadSpeed  int64     `json:"downloadSpeed"` // bytes/sec
	UploadSpeed    int64     `json:"uploadSpeed"`   // bytes/sec
	ETA            int64     `json:"eta"`           // seconds, -1 if unavailable
	DownloadDir    string    `json:"downloadDir"`
	ContentPath    string    `json:"contentPath,omitempty"`
	Ratio          float64   `json:"ratio,omitempty"`
	AddedAt        time.Time `json:"addedAt,omitempty"`
	CompletedAt    time.Time `json:"completedAt,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Client is the common interface for download clients.
type Client interface {
	Type() ClientType
	Protocol() scoring.Protocol

	Test(ctx context.Context) error

	// Add submits a download and returns the client-side ID, which for
	// torrents is the info hash.
	Add(ctx context.Context, opts AddOptions) (string, error)
	List(ctx context.Context) ([]DownloadItem, error)
	Get(ctx context.Context, id string) (*DownloadItem, error)
	Remove(ctx context.Context, id string, deleteFiles bool) error

	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error

	GetDownloadDir(ctx context.Context) (string, error)
}
