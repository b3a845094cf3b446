package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })
	return sched
}

func TestScheduler_RegisterValidation(t *testing.T) {
	sched := newTestScheduler(t)

	config := TaskConfig{
		ID:       "demo",
		Name:     "Demo",
		Interval: time.Hour,
		Func:     func(context.Context) error { return nil },
	}
	require.NoError(t, sched.RegisterTask(config))

	err := sched.RegisterTask(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = sched.RegisterTask(TaskConfig{
		ID:   "no-interval",
		Name: "Broken",
		Func: func(context.Context) error { return nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no interval")
}

func TestScheduler_ListTasksInRegistrationOrder(t *testing.T) {
	sched := newTestScheduler(t)

	for _, id := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, sched.RegisterTask(TaskConfig{
			ID:       id,
			Name:     id,
			Interval: time.Hour,
			Func:     func(context.Context) error { return nil },
		}))
	}

	tasks := sched.ListTasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "alpha", tasks[0].ID)
	assert.Equal(t, "beta", tasks[1].ID)
	assert.Equal(t, "gamma", tasks[2].ID)
	assert.False(t, tasks[0].Running)
}

func TestScheduler_RunNow(t *testing.T) {
	sched := newTestScheduler(t)

	done := make(chan struct{})
	require.NoError(t, sched.RegisterTask(TaskConfig{
		ID:       "manual",
		Name:     "Manual",
		Interval: time.Hour,
		Func: func(context.Context) error {
			close(done)
			return nil
		},
	}))
	require.NoError(t, sched.Start())

	require.Error(t, sched.RunNow("missing-task"))
	require.NoError(t, sched.RunNow("manual"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	require.Eventually(t, func() bool {
		info, err := sched.GetTask("manual")
		return err == nil && info.LastRun != nil && !info.Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	sched, err := NewScheduler(zerolog.Nop())
	require.NoError(t, err)

	started := make(chan struct{})
	errs := make(chan error, 1)
	require.NoError(t, sched.RegisterTask(TaskConfig{
		ID:       "blocking",
		Name:     "Blocking",
		Interval: time.Hour,
		Func: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			errs <- ctx.Err()
			return ctx.Err()
		},
	}))
	require.NoError(t, sched.Start())
	require.NoError(t, sched.RunNow("blocking"))
	<-started

	require.NoError(t, sched.Stop())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("task was not cancelled by Stop")
	}
}

func TestScheduler_ReentrancySkip(t *testing.T) {
	sched := newTestScheduler(t)

	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, sched.RegisterTask(TaskConfig{
		ID:       "slow",
		Name:     "Slow",
		Interval: time.Hour,
		Func: func(context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	}))
	require.NoError(t, sched.Start())

	require.NoError(t, sched.RunNow("slow"))
	<-started

	// A second trigger while running is refused.
	require.Error(t, sched.RunNow("slow"))

	// The interval path skips silently instead of erroring.
	sched.executeTask("slow")
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.Eventually(t, func() bool {
		info, err := sched.GetTask("slow")
		return err == nil && !info.Running
	}, 5*time.Second, 10*time.Millisecond)
}
