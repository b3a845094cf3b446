package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinephage/cinephage/internal/download"
	"github.com/cinephage/cinephage/internal/monitor"
	"github.com/cinephage/cinephage/internal/worker"
)

const typeQueuePoll worker.Type = "queue-poll"

// schedulerService adapts the monitoring scheduler to the background
// service contract.
type schedulerService struct {
	sched *monitor.Scheduler
}

func newSchedulerService(sched *monitor.Scheduler) *schedulerService {
	return &schedulerService{sched: sched}
}

func (s *schedulerService) Name() string { return "scheduler" }

func (s *schedulerService) Start(context.Context) error { return s.sched.Start() }

func (s *schedulerService) Stop(context.Context) error { return s.sched.Stop() }

// queuePollService reconciles the download queue against the client on a
// fixed interval. Each pass runs as a tracked worker so overlapping
// passes are rejected by the concurrency cap.
type queuePollService struct {
	poller   *download.QueuePoller
	workers  *worker.Manager
	interval time.Duration
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newQueuePollService(poller *download.QueuePoller, workers *worker.Manager, interval time.Duration, logger zerolog.Logger) *queuePollService {
	return &queuePollService{
		poller:   poller,
		workers:  workers,
		interval: interval,
		logger:   logger.With().Str("component", "queue-poll-service").Logger(),
	}
}

func (s *queuePollService) Name() string { return "queue-poller" }

func (s *queuePollService) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.poll(ctx)
			}
		}
	}()
	return nil
}

func (s *queuePollService) poll(ctx context.Context) {
	_, err := s.workers.Spawn(ctx, typeQueuePoll, "download queue poll", func(ctx context.Context, _ *worker.Worker) error {
		stats, err := s.poller.Poll(ctx)
		if err != nil {
			return err
		}
		if stats.Checked > 0 {
			s.logger.Debug().
				Int("checked", stats.Checked).
				Int("imported", stats.Imported).
				Int("failed", stats.Failed).
				Msg("Queue poll finished")
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Queue poll failed")
	}
}

func (s *queuePollService) Stop(ctx context.Context) error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	if s.done == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// workerGCService runs the worker manager's garbage collection loop and
// cancels leftover workers on shutdown.
type workerGCService struct {
	workers *worker.Manager
	cancel  context.CancelFunc
}

func newWorkerGCService(workers *worker.Manager) *workerGCService {
	return &workerGCService{workers: workers}
}

func (s *workerGCService) Name() string { return "worker-gc" }

func (s *workerGCService) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.workers.StartGC(ctx, workerGCInterval)
	return nil
}

func (s *workerGCService) Stop(context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.workers.Shutdown()
	return nil
}
