package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock steps time manually so window math is deterministic.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(indexerCfg, hostCfg Config) (*Limiter, *testClock) {
	clock := &testClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(indexerCfg, hostCfg, zerolog.Nop())
	l.now = clock.Now
	return l, clock
}

func TestLimiter_BurstCap(t *testing.T) {
	l, _ := newTestLimiter(Config{Limit: 60, Burst: 10, Window: time.Minute}, Config{})

	for i := 0; i < 10; i++ {
		require.True(t, l.CanProceed("idx", ""), "request %d should proceed", i)
		l.Record("idx", "")
	}
	assert.False(t, l.CanProceed("idx", ""), "11th request inside burst window must wait")
	assert.Greater(t, l.WaitTime("idx", ""), time.Duration(0))
}

func TestLimiter_BurstRecovers(t *testing.T) {
	l, clock := newTestLimiter(Config{Limit: 60, Burst: 10, Window: time.Minute}, Config{})

	for i := 0; i < 10; i++ {
		l.Record("idx", "")
	}
	require.False(t, l.CanProceed("idx", ""))

	// Burst sub-window is window*burst/limit = 10s.
	clock.Advance(10*time.Second + time.Millisecond)
	assert.True(t, l.CanProceed("idx", ""))
}

func TestLimiter_WindowCap(t *testing.T) {
	l, clock := newTestLimiter(Config{Limit: 60, Burst: 10, Window: time.Minute}, Config{})

	// Issue the full minute budget in paced bursts.
	for burst := 0; burst < 6; burst++ {
		for i := 0; i < 10; i++ {
			require.True(t, l.CanProceed("idx", ""))
			l.Record("idx", "")
		}
		clock.Advance(10*time.Second + time.Millisecond)
	}
	// 60 requests sit inside the minute; the burst window is clear but
	// the full window is not.
	assert.False(t, l.CanProceed("idx", ""))

	clock.Advance(time.Minute)
	assert.True(t, l.CanProceed("idx", ""))
}

func TestLimiter_WindowInvariant(t *testing.T) {
	cfg := Config{Limit: 30, Burst: 5, Window: time.Minute}
	l, clock := newTestLimiter(cfg, Config{})

	// Greedily record whenever allowed over two windows; the admitted
	// count within any single window must never exceed the limit.
	admitted := make([]time.Time, 0, 128)
	for step := 0; step < 1200; step++ {
		if l.CanProceed("idx", "") {
			l.Record("idx", "")
			admitted = append(admitted, clock.Now())
		}
		clock.Advance(100 * time.Millisecond)
	}

	for i := range admitted {
		count := 1
		for j := i + 1; j < len(admitted); j++ {
			if admitted[j].Sub(admitted[i]) < cfg.Window {
				count++
			}
		}
		assert.LessOrEqual(t, count, cfg.Limit, "window starting at %s", admitted[i])
	}
}

func TestLimiter_HostTierShared(t *testing.T) {
	l, _ := newTestLimiter(
		Config{Limit: 60, Burst: 10, Window: time.Minute},
		Config{Limit: 30, Burst: 5, Window: time.Minute},
	)

	// Two indexers on the same site drain the shared host budget.
	for i := 0; i < 3; i++ {
		require.True(t, l.CanProceed("idx-a", "example.org"))
		l.Record("idx-a", "example.org")
	}
	for i := 0; i < 2; i++ {
		require.True(t, l.CanProceed("idx-b", "example.org"))
		l.Record("idx-b", "example.org")
	}

	// Each indexer has plenty of its own budget left, but the host
	// burst of 5 is spent.
	assert.False(t, l.CanProceed("idx-a", "example.org"))
	assert.False(t, l.CanProceed("idx-b", "example.org"))

	// A different site is unaffected.
	assert.True(t, l.CanProceed("idx-c", "other.net"))
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter(
		Config{Limit: 60, Burst: 1, Window: time.Minute},
		Config{}, zerolog.Nop(),
	)
	require.NoError(t, l.Wait(context.Background(), "idx", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "idx", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(
		Config{Limit: 60, Burst: 10, Window: time.Minute},
		Config{Limit: 30, Burst: 5, Window: time.Minute},
	)
	l.Record("idx", "example.org")
	clock.Advance(2 * time.Minute)
	l.Cleanup()

	assert.Empty(t, l.indexers.buckets)
	assert.Empty(t, l.hosts.buckets)
}

func TestHostKey(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://indexer.example.org/api", "example.org"},
		{"https://mirror2.indexer.example.org", "example.org"},
		{"https://example.co.uk/torznab", "example.co.uk"},
		{"https://tracker.example.co.uk", "example.co.uk"},
		{"http://localhost:9117", "localhost"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HostKey(tt.url), tt.url)
	}
}
