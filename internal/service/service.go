// Package service defines the background service contract and the
// manager that starts services in dependency order and stops them in
// reverse.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Status is a background service's lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusFailed   Status = "failed"
)

// BackgroundService is a long-running component with a managed
// lifecycle. Start must not block; long work belongs on goroutines the
// service owns and stops in Stop.
type BackgroundService interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type entry struct {
	service BackgroundService
	status  Status
}

// Manager owns a set of background services. Registration order is the
// dependency order: Start walks it forward, Stop walks it backward.
type Manager struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	started bool
	logger  zerolog.Logger
}

// NewManager creates an empty service manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		byName: make(map[string]*entry),
		logger: logger.With().Str("component", "service-manager").Logger(),
	}
}

// Register adds a service. Services must be registered before Start.
func (m *Manager) Register(service BackgroundService) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("cannot register %q after start", service.Name())
	}
	if _, exists := m.byName[service.Name()]; exists {
		return fmt.Errorf("service %q already registered", service.Name())
	}
	e := &entry{service: service, status: StatusStopped}
	m.entries = append(m.entries, e)
	m.byName[service.Name()] = e
	return nil
}

// Start starts every service in registration order. The first failure
// stops the already started services in reverse and is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("service manager already started")
	}
	m.started = true
	entries := m.entries
	m.mu.Unlock()

	for i, e := range entries {
		m.setStatus(e, StatusStarting)
		m.logger.Info().Str("service", e.service.Name()).Msg("Starting service")

		if err := e.service.Start(ctx); err != nil {
			m.setStatus(e, StatusFailed)
			m.logger.Error().Err(err).Str("service", e.service.Name()).Msg("Service failed to start")
			m.stopEntries(ctx, entries[:i])
			m.mu.Lock()
			m.started = false
			m.mu.Unlock()
			return fmt.Errorf("starting service %q: %w", e.service.Name(), err)
		}
		m.setStatus(e, StatusRunning)
	}
	return nil
}

// Stop stops every service in reverse registration order. Stop errors
// are logged, not returned, so one stuck service cannot block the rest
// of the shutdown.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	entries := m.entries
	m.mu.Unlock()

	m.stopEntries(ctx, entries)
}

func (m *Manager) stopEntries(ctx context.Context, entries []*entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if m.status(e) != StatusRunning {
			continue
		}
		m.setStatus(e, StatusStopping)
		m.logger.Info().Str("service", e.service.Name()).Msg("Stopping service")

		if err := e.service.Stop(ctx); err != nil {
			m.setStatus(e, StatusFailed)
			m.logger.Error().Err(err).Str("service", e.service.Name()).Msg("Service failed to stop")
			continue
		}
		m.setStatus(e, StatusStopped)
	}
}

// ServiceInfo reports one service's state.
type ServiceInfo struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Statuses returns every service's state in registration order.
func (m *Manager) Statuses() []ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ServiceInfo, 0, len(m.entries))
	for _, e := range m.entries {
		infos = append(infos, ServiceInfo{Name: e.service.Name(), Status: e.status})
	}
	return infos
}

// Status returns one service's state.
func (m *Manager) Status(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byName[name]
	if !ok {
		return "", false
	}
	return e.status, true
}

func (m *Manager) setStatus(e *entry, status Status) {
	m.mu.Lock()
	e.status = status
	m.mu.Unlock()
}

func (m *Manager) status(e *entry) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.status
}
