package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/pkg/logger"
)

// Job is a scheduled unit of work. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	jobs    map[string]cron.EntryID
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation evaluates cron specs in the given time zone.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	o := options{location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	// robfig/cron/v3 default parser is standard cron (5 fields: min, hour, dom, month, dow)
	// plus descriptors such as @every.
	cl := logger.Cron(log)
	c := cron.New(
		cron.WithLocation(o.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   c,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Every runs job once per interval, starting one interval after Start.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	return s.add(name, cron.Every(interval), job)
}

// Cron runs job on a standard 5-field cron spec.
func (s *Scheduler) Cron(name, spec string, job Job) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.add(name, schedule, job)
}

func (s *Scheduler) add(name string, schedule cron.Schedule, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("schedule %s: job already registered", name)
	}

	ctx := s.ctx
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("running scheduled job", zap.String("job", name))
		job(ctx)
	}))
	s.jobs[name] = id
	return nil
}

// Next reports when a job runs next. Zero before Start or for unknown jobs.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start starts the scheduler. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.logger.Info("starting scheduler", zap.Int("jobs", len(s.jobs)))
	s.cron.Start()
}

// Stop stops the scheduler, cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}

	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled jobs: %w", ctx.Err())
	}
}
