// Package mock provides a simulated download client for tests and
// developer mode. Downloads progress over simulated time without any
// network or disk activity.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cinephage/cinephage/internal/downloader/types"
	"github.com/cinephage/cinephage/internal/scoring"
)

const (
	// downloadDuration is how long a simulated download takes.
	downloadDuration = 5 * time.Minute
	// queueDelay is how long items stay queued before starting.
	queueDelay = 2 * time.Second
	// defaultDownloadDir is the simulated download directory.
	defaultDownloadDir = "/data/downloads"
)

var magnetHashPattern = regexp.MustCompile(`xt=urn:btih:([a-fA-F0-9]{40})`)

type download struct {
	id          string
	name        string
	infoHash    string
	size        int64
	downloadDir string
	addedAt     time.Time
	pausedAt    time.Time
	pausedFor   time.Duration
	completed   bool
	failed      string
	paused      bool
}

// Client simulates a torrent client.
type Client struct {
	mu        sync.Mutex
	downloads map[string]*download
	testErr   error
	addErr    error

	// now is replaceable in tests.
	now func() time.Time
}

var _ types.Client = (*Client)(nil)

// New creates an empty mock client.
func New() *Client {
	return &Client{
		downloads: make(map[string]*download),
		now:       time.Now,
	}
}

func (c *Client) Type() types.ClientType     { return types.ClientTypeMock }
func (c *Client) Protocol() scoring.Protocol { return scoring.ProtocolTorrent }

// Test reports the configured connectivity error, if any.
func (c *Client) Test(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testErr
}

// SetTestError makes Test and Add fail with err until cleared.
func (c *Client) SetTestError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testErr = err
	c.addErr = err
}

// SetClock replaces the wall clock, letting tests step progress.
func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Add registers a simulated download. The returned ID is the info hash
// when one can be derived from a magnet link.
func (c *Client) Add(_ context.Context, opts types.AddOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.addErr != nil {
		return "", c.addErr
	}

	infoHash := extractInfoHash(opts.URL)
	if infoHash == "" {
		infoHash = randomHex(20)
	}
	id := strings.ToLower(infoHash)

	name := opts.Name
	if name == "" {
		name = opts.URL
	}
	if name == "" {
		name = "download-" + id[:8]
	}

	downloadDir := defaultDownloadDir
	if opts.DownloadDir != "" {
		downloadDir = opts.DownloadDir
	}
	if opts.Category != "" {
		downloadDir = path.Join(downloadDir, opts.Category)
	}

	size := int64(8) << 30
	d := &download{
		id:          id,
		name:        name,
		infoHash:    id,
		size:        size,
		downloadDir: downloadDir,
		addedAt:     c.now(),
		paused:      opts.Paused,
	}
	if opts.Paused {
		d.pausedAt = d.addedAt
	}
	c.downloads[id] = d
	return id, nil
}

// List returns every simulated download with computed progress.
func (c *Client) List(_ context.Context) ([]types.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]types.DownloadItem, 0, len(c.downloads))
	now := c.now()
	for _, d := range c.downloads {
		items = append(items, c.snapshot(d, now))
	}
	return items, nil
}

// Get returns one simulated download.
func (c *Client) Get(_ context.Context, id string) (*types.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[strings.ToLower(id)]
	if !ok {
		return nil, types.ErrNotFound
	}
	item := c.snapshot(d, c.now())
	return &item, nil
}

// Remove drops a download.
func (c *Client) Remove(_ context.Context, id string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloads, strings.ToLower(id))
	return nil
}

// Pause halts progress for a download.
func (c *Client) Pause(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[strings.ToLower(id)]
	if !ok {
		return types.ErrNotFound
	}
	if !d.paused && !d.completed {
		d.paused = true
		d.pausedAt = c.now()
	}
	return nil
}

// Resume continues a paused download.
func (c *Client) Resume(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[strings.ToLower(id)]
	if !ok {
		return types.ErrNotFound
	}
	if d.paused {
		d.pausedFor += c.now().Sub(d.pausedAt)
		d.pausedAt = time.Time{}
		d.paused = false
	}
	return nil
}

// GetDownloadDir returns the simulated download directory.
func (c *Client) GetDownloadDir(_ context.Context) (string, error) {
	return defaultDownloadDir, nil
}

// Complete finishes a download immediately.
func (c *Client) Complete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[strings.ToLower(id)]
	if !ok {
		return types.ErrNotFound
	}
	d.completed = true
	d.paused = false
	return nil
}

// Fail marks a download as errored with the given message.
func (c *Client) Fail(id, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.downloads[strings.ToLower(id)]
	if !ok {
		return types.ErrNotFound
	}
	d.failed = message
	return nil
}

// Count returns the number of simulated downloads.
func (c *Client) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.downloads)
}

func (c *Client) snapshot(d *download, now time.Time) types.DownloadItem {
	item := types.DownloadItem{
		ID:          d.id,
		Name:        d.name,
		InfoHash:    d.infoHash,
		Size:        d.size,
		DownloadDir: d.downloadDir,
		ContentPath: path.Join(d.downloadDir, d.name),
		AddedAt:     d.addedAt,
		ETA:         -1,
	}

	if d.failed != "" {
		item.Status = types.StatusError
		item.Error = d.failed
		return item
	}

	elapsed := now.Sub(d.addedAt) - d.pausedFor
	if d.paused && !d.pausedAt.IsZero() {
		elapsed -= now.Sub(d.pausedAt)
	}
	downloadTime := elapsed - queueDelay
	if downloadTime < 0 {
		downloadTime = 0
	}

	progress := float64(downloadTime) / float64(downloadDuration) * 100
	if progress > 100 {
		progress = 100
	}

	switch {
	case d.completed || progress >= 100:
		d.completed = true
		item.Status = types.StatusSeeding
		item.Progress = 100
		item.ETA = 0
		item.CompletedAt = now
	case d.paused:
		item.Status = types.StatusPaused
		item.Progress = progress
	case elapsed < queueDelay:
		item.Status = types.StatusQueued
	default:
		item.Status = types.StatusDownloading
		item.Progress = progress
		item.DownloadSpeed = int64(float64(d.size) / downloadDuration.Seconds())
		item.ETA = int64((100 - progress) / 100 * downloadDuration.Seconds())
	}
	item.DownloadedSize = int64(float64(d.size) * item.Progress / 100)
	return item
}

func extractInfoHash(url string) string {
	if m := magnetHashPattern.FindStringSubmatch(url); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
