// Package qbittorrent adapts the qBittorrent Web API to the download
// client interface.
package qbittorrent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/cinephage/cinephage/internal/downloader/types"
	"github.com/cinephage/cinephage/internal/scoring"
)

// Config holds the connection settings for one qBittorrent instance.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	Category string
}

// baseURL assembles the instance URL from the config parts.
func (c Config) baseURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

// Client implements types.Client against the qBittorrent Web API.
type Client struct {
	qbt      *qbt.Client
	category string
}

var _ types.Client = (*Client)(nil)

// New creates a client. The connection is verified lazily via Test.
func New(cfg Config) *Client {
	return &Client{
		qbt: qbt.NewClient(qbt.Config{
			Host:     cfg.baseURL(),
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  30,
		}),
		category: cfg.Category,
	}
}

// NewFromConfig creates a client from the generic client config.
func NewFromConfig(cfg types.ClientConfig) *Client {
	return New(Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
		Category: cfg.Category,
	})
}

func (c *Client) Type() types.ClientType     { return types.ClientTypeQBittorrent }
func (c *Client) Protocol() scoring.Protocol { return scoring.ProtocolTorrent }

// Test logs in and confirms the API responds.
func (c *Client) Test(ctx context.Context) error {
	if err := c.qbt.LoginCtx(ctx); err != nil {
		return fmt.Errorf("%w: %s", types.ErrAuthFailed, err)
	}
	if _, err := c.qbt.GetWebAPIVersionCtx(ctx); err != nil {
		return fmt.Errorf("querying api version: %w", err)
	}
	return nil
}

// Add submits a torrent by content or URL and returns its info hash.
// qBittorrent does not return the hash on add, so it is derived from
// the request and confirmed by a follow-up lookup.
func (c *Client) Add(ctx context.Context, opts types.AddOptions) (string, error) {
	options := map[string]string{}
	if category := c.categoryFor(opts); category != "" {
		options["category"] = category
	}
	if opts.DownloadDir != "" {
		options["savepath"] = opts.DownloadDir
		options["autoTMM"] = "false"
	}
	if opts.Paused {
		options["paused"] = "true"
		options["stopped"] = "true"
	}
	if opts.SeedRatioLimit > 0 {
		options["ratioLimit"] = strconv.FormatFloat(opts.SeedRatioLimit, 'f', 2, 64)
	}
	if opts.SeedTimeLimit > 0 {
		options["seedingTimeLimit"] = strconv.Itoa(int(opts.SeedTimeLimit.Minutes()))
	}

	switch {
	case len(opts.FileContent) > 0:
		if err := c.qbt.AddTorrentFromMemoryCtx(ctx, opts.FileContent, options); err != nil {
			return "", fmt.Errorf("adding torrent file: %w", err)
		}
	case opts.URL != "":
		if err := c.qbt.AddTorrentFromUrlCtx(ctx, opts.URL, options); err != nil {
			return "", fmt.Errorf("adding torrent url: %w", err)
		}
	default:
		return "", fmt.Errorf("no torrent content or url provided")
	}

	if hash := magnetHash(opts.URL); hash != "" {
		return hash, nil
	}
	return c.findNewestHash(ctx, opts.Name)
}

// findNewestHash locates the most recently added torrent, optionally
// matching a name, for adds where the hash is not known up front.
func (c *Client) findNewestHash(ctx context.Context, name string) (string, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{
		Sort:    "added_on",
		Reverse: true,
	})
	if err != nil {
		return "", fmt.Errorf("listing torrents after add: %w", err)
	}
	for _, t := range torrents {
		if name == "" || strings.EqualFold(t.Name, name) {
			return strings.ToLower(t.Hash), nil
		}
	}
	if len(torrents) > 0 {
		return strings.ToLower(torrents[0].Hash), nil
	}
	return "", types.ErrNotFound
}

// List returns the torrents in the configured category.
func (c *Client) List(ctx context.Context) ([]types.DownloadItem, error) {
	filter := qbt.TorrentFilterOptions{}
	if c.category != "" {
		filter.Category = c.category
	}
	torrents, err := c.qbt.GetTorrentsCtx(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing torrents: %w", err)
	}

	items := make([]types.DownloadItem, 0, len(torrents))
	for _, t := range torrents {
		items = append(items, toDownloadItem(t))
	}
	return items, nil
}

// Get returns one torrent by info hash.
func (c *Client) Get(ctx context.Context, id string) (*types.DownloadItem, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{
		Hashes: []string{strings.ToLower(id)},
	})
	if err != nil {
		return nil, fmt.Errorf("querying torrent: %w", err)
	}
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}
	item := toDownloadItem(torrents[0])
	return &item, nil
}

// Remove deletes a torrent, optionally with its files.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	if err := c.qbt.DeleteTorrentsCtx(ctx, []string{strings.ToLower(id)}, deleteFiles); err != nil {
		return fmt.Errorf("removing torrent: %w", err)
	}
	return nil
}

// Pause stops a torrent.
func (c *Client) Pause(ctx context.Context, id string) error {
	if err := c.qbt.PauseCtx(ctx, []string{strings.ToLower(id)}); err != nil {
		return fmt.Errorf("pausing torrent: %w", err)
	}
	return nil
}

// Resume starts a torrent.
func (c *Client) Resume(ctx context.Context, id string) error {
	if err := c.qbt.ResumeCtx(ctx, []string{strings.ToLower(id)}); err != nil {
		return fmt.Errorf("resuming torrent: %w", err)
	}
	return nil
}

// GetDownloadDir returns the client's default save path.
func (c *Client) GetDownloadDir(ctx context.Context) (string, error) {
	prefs, err := c.qbt.GetAppPreferencesCtx(ctx)
	if err != nil {
		return "", fmt.Errorf("querying preferences: %w", err)
	}
	return prefs.SavePath, nil
}

func (c *Client) categoryFor(opts types.AddOptions) string {
	if opts.Category != "" {
		return opts.Category
	}
	return c.category
}

// toDownloadItem maps the qBittorrent torrent state onto the generic
// download item.
func toDownloadItem(t qbt.Torrent) types.DownloadItem {
	item := types.DownloadItem{
		ID:             strings.ToLower(t.Hash),
		Name:           t.Name,
		InfoHash:       strings.ToLower(t.Hash),
		Progress:       t.Progress * 100,
		Size:           t.Size,
		DownloadedSize: t.Downloaded,
		DownloadSpeed:  t.DlSpeed,
		UploadSpeed:    t.UpSpeed,
		ETA:            t.ETA,
		DownloadDir:    t.SavePath,
		ContentPath:    t.ContentPath,
		Ratio:          t.Ratio,
		Status:         mapState(t.State, t.Progress),
	}
	if t.TimeActive > 0 || t.AddedOn > 0 {
		item.AddedAt = time.Unix(t.AddedOn, 0)
	}
	if t.CompletionOn > 0 {
		item.CompletedAt = time.Unix(t.CompletionOn, 0)
	}
	return item
}

func mapState(state qbt.TorrentState, progress float64) types.Status {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return types.StatusError
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp,
		qbt.TorrentStateForcedUp, qbt.TorrentStateCheckingUp:
		return types.StatusSeeding
	case qbt.TorrentStatePausedUp:
		return types.StatusCompleted
	case qbt.TorrentStatePausedDl:
		return types.StatusPaused
	case qbt.TorrentStateQueuedDl, qbt.TorrentStateQueuedUp,
		qbt.TorrentStateAllocating, qbt.TorrentStateMetaDl:
		return types.StatusQueued
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl,
		qbt.TorrentStateForcedDl, qbt.TorrentStateCheckingDl,
		qbt.TorrentStateCheckingResumeData, qbt.TorrentStateMoving:
		return types.StatusDownloading
	default:
		if progress >= 1 {
			return types.StatusCompleted
		}
		return types.StatusUnknown
	}
}

func magnetHash(url string) string {
	const marker = "xt=urn:btih:"
	idx := strings.Index(strings.ToLower(url), marker)
	if idx < 0 {
		return ""
	}
	hash := url[idx+len(marker):]
	if amp := strings.IndexByte(hash, '&'); amp >= 0 {
		hash = hash[:amp]
	}
	if len(hash) != 40 {
		return ""
	}
	return strings.ToLower(hash)
}
