// Package worker tracks background units of work: their status,
// progress, metadata, and a bounded buffer of their most recent log
// entries. The manager enforces per-type concurrency caps and garbage
// collects finished workers.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/logger"
)

// Type categorizes workers for concurrency caps and introspection.
type Type string

// Status is a worker's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the worker will make no further progress.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// logBufferSize bounds the per-worker log history.
const logBufferSize = 200

// LogEntry is one captured worker log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Worker is one tracked unit of work.
type Worker struct {
	id        string
	typ       Type
	name      string
	startedAt time.Time

	mu         sync.RWMutex
	status     Status
	progress   int
	metadata   map[string]any
	finishedAt *time.Time
	err        error

	logs   *logger.RingBuffer[LogEntry]
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func newWorker(typ Type, name string, base zerolog.Logger, now time.Time) *Worker {
	w := &Worker{
		id:        uuid.NewString(),
		typ:       typ,
		name:      name,
		startedAt: now,
		status:    StatusPending,
		progress:  -1,
		metadata:  make(map[string]any),
		logs:      logger.NewRingBuffer[LogEntry](logBufferSize),
	}
	// The worker id doubles as the correlation id for its log lines.
	w.log = base.With().Str("workerId", w.id).Str("workerType", string(typ)).Logger().Hook(w)
	return w
}

// Run implements zerolog.Hook, mirroring every log event into the
// worker's ring buffer.
func (w *Worker) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if message == "" {
		return
	}
	w.logs.Push(LogEntry{
		Time:    time.Now(),
		Level:   level.String(),
		Message: message,
	})
}

// ID returns the worker's unique id.
func (w *Worker) ID() string { return w.id }

// Type returns the worker's type.
func (w *Worker) Type() Type { return w.typ }

// Name returns the human-readable name.
func (w *Worker) Name() string { return w.name }

// Logger returns the worker-scoped logger. Lines logged through it are
// captured in the worker's log buffer.
func (w *Worker) Logger() zerolog.Logger { return w.log }

// Status returns the current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Err returns the failure error, if any.
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Progress returns the reported progress, -1 when indeterminate.
func (w *Worker) Progress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.progress
}

// SetProgress reports progress in percent, clamped to 0-100.
func (w *Worker) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	w.mu.Lock()
	w.progress = percent
	w.mu.Unlock()
}

// SetMetadata stores one metadata value.
func (w *Worker) SetMetadata(key string, value any) {
	w.mu.Lock()
	w.metadata[key] = value
	w.mu.Unlock()
}

// Logs returns the buffered log entries, oldest first.
func (w *Worker) Logs() []LogEntry {
	return w.logs.GetAll()
}

// Cancel requests cancellation via the worker's context.
func (w *Worker) Cancel() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Worker) setStatus(status Status, err error, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.err = err
	if status.Terminal() {
		finished := now
		w.finishedAt = &finished
	}
}

// Info is a point-in-time snapshot of a worker for API responses.
type Info struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Progress   int            `json:"progress"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// Snapshot returns a copy of the worker's current state.
func (w *Worker) Snapshot() Info {
	w.mu.RLock()
	defer w.mu.RUnlock()

	metadata := make(map[string]any, len(w.metadata))
	for k, v := range w.metadata {
		metadata[k] = v
	}
	info := Info{
		ID:         w.id,
		Type:       w.typ,
		Name:       w.name,
		Status:     w.status,
		Progress:   w.progress,
		Metadata:   metadata,
		StartedAt:  w.startedAt,
		FinishedAt: w.finishedAt,
	}
	if w.err != nil {
		info.Error = w.err.Error()
	}
	return info
}
