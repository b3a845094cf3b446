// Package ratelimit throttles outbound indexer requests on two tiers:
// per indexer instance and per registrable domain, so multiple indexer
// configurations pointing at one site share the stricter host budget.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// Config defines the budget for one tier.
type Config struct {
	// Limit is the maximum number of requests in a sliding Window.
	Limit int
	// Burst caps requests inside the sub-window Window * Burst / Limit,
	// spreading spikes across the window. This admits strictly fewer
	// request patterns than a flat Limit + Burst allowance, never more.
	Burst int
	// Window is the sliding period the Limit applies to.
	Window time.Duration
}

// DefaultIndexerConfig is the per-indexer budget.
func DefaultIndexerConfig() Config {
	return Config{Limit: 60, Burst: 10, Window: time.Minute}
}

// DefaultHostConfig is the per-registrable-domain budget.
func DefaultHostConfig() Config {
	return Config{Limit: 30, Burst: 5, Window: time.Minute}
}

// burstWindow returns the sub-window the Burst cap applies to.
func (c Config) burstWindow() time.Duration {
	if c.Limit <= 0 || c.Burst <= 0 {
		return 0
	}
	return time.Duration(int64(c.Window) * int64(c.Burst) / int64(c.Limit))
}

// bucket holds the request timestamps for one key, oldest first.
type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// prune drops timestamps older than the window.
func (b *bucket) prune(cutoff time.Time) {
	idx := 0
	for idx < len(b.stamps) && !b.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[idx:]...)
	}
}

// tier is a keyed set of sliding-window buckets sharing one config.
type tier struct {
	config Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newTier(config Config) *tier {
	return &tier{config: config, buckets: make(map[string]*bucket)}
}

func (t *tier) bucket(key string) *bucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{}
		t.buckets[key] = b
	}
	return b
}

// waitTime returns how long the caller must wait before one more request
// fits the budget. Zero means proceed now.
func (t *tier) waitTime(key string, now time.Time) time.Duration {
	if t.config.Limit <= 0 {
		return 0
	}
	b := t.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-t.config.Window))

	var wait time.Duration
	if len(b.stamps) >= t.config.Limit {
		// The oldest stamp must age out of the window first.
		oldest := b.stamps[len(b.stamps)-t.config.Limit]
		if d := oldest.Add(t.config.Window).Sub(now); d > wait {
			wait = d
		}
	}
	if bw := t.config.burstWindow(); bw > 0 {
		recent := 0
		for i := len(b.stamps) - 1; i >= 0; i-- {
			if b.stamps[i].After(now.Add(-bw)) {
				recent++
			} else {
				break
			}
		}
		if recent >= t.config.Burst {
			oldest := b.stamps[len(b.stamps)-recent]
			if d := oldest.Add(bw).Sub(now); d > wait {
				wait = d
			}
		}
	}
	return wait
}

// record appends one request timestamp.
func (t *tier) record(key string, now time.Time) {
	b := t.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now.Add(-t.config.Window))
	b.stamps = append(b.stamps, now)
}

// cleanup drops buckets that have gone idle for a full window.
func (t *tier) cleanup(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := now.Add(-t.config.Window)
	for key, b := range t.buckets {
		b.mu.Lock()
		b.prune(cutoff)
		empty := len(b.stamps) == 0
		b.mu.Unlock()
		if empty {
			delete(t.buckets, key)
		}
	}
}

// Limiter coordinates the indexer and host tiers.
type Limiter struct {
	indexers *tier
	hosts    *tier
	logger   zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewLimiter creates a limiter with the given tier budgets.
func NewLimiter(indexerConfig, hostConfig Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		indexers: newTier(indexerConfig),
		hosts:    newTier(hostConfig),
		logger:   logger.With().Str("component", "rate-limiter").Logger(),
		now:      time.Now,
	}
}

// NewDefaultLimiter creates a limiter with the standard budgets.
func NewDefaultLimiter(logger zerolog.Logger) *Limiter {
	return NewLimiter(DefaultIndexerConfig(), DefaultHostConfig(), logger)
}

// HostKey reduces a base URL to its registrable domain, so mirrors and
// subdomains of one site share a single host budget. Unparseable hosts
// fall back to the raw host string.
func HostKey(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(baseURL))
	}
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// WaitTime reports how long the caller must wait before issuing one
// request for the indexer and host pair. Zero means proceed now.
func (l *Limiter) WaitTime(indexerKey, hostKey string) time.Duration {
	now := l.now()
	wait := l.indexers.waitTime(indexerKey, now)
	if hostKey != "" {
		if hw := l.hosts.waitTime(hostKey, now); hw > wait {
			wait = hw
		}
	}
	return wait
}

// CanProceed reports whether a request fits both budgets right now.
func (l *Limiter) CanProceed(indexerKey, hostKey string) bool {
	return l.WaitTime(indexerKey, hostKey) == 0
}

// Record charges one request against both tiers. Call it only for
// requests actually issued.
func (l *Limiter) Record(indexerKey, hostKey string) {
	now := l.now()
	l.indexers.record(indexerKey, now)
	if hostKey != "" {
		l.hosts.record(hostKey, now)
	}
}

// Wait blocks until both budgets admit one request or the context ends,
// then records the request. The loop re-checks after sleeping because a
// concurrent caller may have consumed the slot.
func (l *Limiter) Wait(ctx context.Context, indexerKey, hostKey string) error {
	for {
		wait := l.WaitTime(indexerKey, hostKey)
		if wait == 0 {
			l.Record(indexerKey, hostKey)
			return nil
		}
		l.logger.Debug().
			Str("indexer", indexerKey).
			Str("host", hostKey).
			Dur("wait", wait).
			Msg("Rate limited")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cleanup drops idle buckets from both tiers.
func (l *Limiter) Cleanup() {
	now := l.now()
	l.indexers.cleanup(now)
	l.hosts.cleanup(now)
}

// StartCleanup sweeps idle buckets until the context ends.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}
