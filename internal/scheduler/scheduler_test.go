package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsJobRepeatedly(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int64
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) { runs.Add(1) }))

	s.Start()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestJobsDoNotRunBeforeStart(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int64
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) { runs.Add(1) }))

	time.Sleep(1200 * time.Millisecond)
	assert.Zero(t, runs.Load())
	assert.True(t, s.Next("tick").IsZero())
}

func TestDuplicateJobNamesRejected(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Every("job", time.Minute, func(context.Context) {}))
	assert.Error(t, s.Every("job", time.Minute, func(context.Context) {}))
	assert.Error(t, s.Cron("job", "0 20 * * 5", func(context.Context) {}))
}

func TestInvalidSchedules(t *testing.T) {
	s := NewScheduler(nil)
	assert.Error(t, s.Every("zero", 0, func(context.Context) {}))
	assert.Error(t, s.Cron("bad", "every friday", func(context.Context) {}))
}

func TestCronNextRun(t *testing.T) {
	s := NewScheduler(nil, WithLocation(time.UTC))
	require.NoError(t, s.Cron("weekly", "0 20 * * 5", func(context.Context) {}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.Eventually(t, func() bool { return !s.Next("weekly").IsZero() }, time.Second, 10*time.Millisecond)
	next := s.Next("weekly").UTC()
	assert.Equal(t, time.Friday, next.Weekday())
	assert.Equal(t, 20, next.Hour())
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := NewScheduler(nil)
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Every("slow", time.Second, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, cancelled.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Stop(context.Background()))
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
