package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultRetention is how long finished workers stay visible before GC.
const defaultRetention = time.Hour

// Func is the unit of work a worker executes. The context is cancelled
// by Worker.Cancel or manager shutdown.
type Func func(ctx context.Context, w *Worker) error

// Manager tracks workers and enforces per-type concurrency caps.
type Manager struct {
	mu        sync.RWMutex
	workers   map[string]*Worker
	caps      map[Type]int
	retention time.Duration
	logger    zerolog.Logger

	now func() time.Time
}

// NewManager creates a manager. caps maps worker types to their maximum
// concurrent count; absent or zero means unlimited.
func NewManager(caps map[Type]int, logger zerolog.Logger) *Manager {
	if caps == nil {
		caps = make(map[Type]int)
	}
	return &Manager{
		workers:   make(map[string]*Worker),
		caps:      caps,
		retention: defaultRetention,
		logger:    logger.With().Str("component", "worker-manager").Logger(),
		now:       time.Now,
	}
}

// Spawn runs fn synchronously under a new tracked worker and returns it
// after completion.
func (m *Manager) Spawn(ctx context.Context, typ Type, name string, fn Func) (*Worker, error) {
	w, err := m.start(ctx, typ, name)
	if err != nil {
		return nil, err
	}
	m.execute(w, fn)
	return w, w.Err()
}

// SpawnBackground runs fn on a goroutine and returns the worker
// immediately.
func (m *Manager) SpawnBackground(ctx context.Context, typ Type, name string, fn Func) (*Worker, error) {
	w, err := m.start(ctx, typ, name)
	if err != nil {
		return nil, err
	}
	go m.execute(w, fn)
	return w, nil
}

func (m *Manager) start(ctx context.Context, typ Type, name string) (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.caps[typ]; limit > 0 {
		running := 0
		for _, w := range m.workers {
			if w.Type() == typ && !w.Status().Terminal() {
				running++
			}
		}
		if running >= limit {
			return nil, fmt.Errorf("worker type %q at concurrency cap %d", typ, limit)
		}
	}

	w := newWorker(typ, name, m.logger, m.now())
	w.ctx, w.cancel = context.WithCancel(ctx)
	m.workers[w.ID()] = w
	return w, nil
}

func (m *Manager) execute(w *Worker, fn Func) {
	ctx := w.ctx
	defer w.cancel()

	w.setStatus(StatusRunning, nil, m.now())
	w.log.Debug().Msg("Worker started")

	err := fn(ctx, w)

	switch {
	case err == nil:
		w.SetProgress(100)
		w.setStatus(StatusCompleted, nil, m.now())
		w.log.Debug().Msg("Worker completed")
	case ctx.Err() != nil:
		w.setStatus(StatusCancelled, err, m.now())
		w.log.Warn().Msg("Worker cancelled")
	default:
		w.setStatus(StatusFailed, err, m.now())
		w.log.Error().Err(err).Msg("Worker failed")
	}
}

// Get returns a worker by id.
func (m *Manager) Get(id string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	return w, ok
}

// List returns snapshots of every tracked worker, newest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.workers))
	for _, w := range m.workers {
		infos = append(infos, w.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.After(infos[j].StartedAt)
	})
	return infos
}

// Cancel cancels a worker by id.
func (m *Manager) Cancel(id string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("worker %q not found", id)
	}
	w.Cancel()
	return nil
}

// SetRetention overrides how long finished workers are kept.
func (m *Manager) SetRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention = d
}

// GC drops terminal workers that finished before the retention window.
func (m *Manager) GC() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for id, w := range m.workers {
		snapshot := w.Snapshot()
		if snapshot.Status.Terminal() && snapshot.FinishedAt != nil && snapshot.FinishedAt.Before(cutoff) {
			delete(m.workers, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Collected finished workers")
	}
	return removed
}

// StartGC collects finished workers periodically until ctx is done.
func (m *Manager) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.GC()
			}
		}
	}()
}

// Shutdown cancels every non-terminal worker.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	for _, w := range workers {
		if !w.Status().Terminal() {
			w.Cancel()
		}
	}
}
