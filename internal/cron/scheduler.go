package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrJobBusy is returned by Trigger while the job is already running.
var ErrJobBusy = errors.New("cron: job already running")

// ErrUnknownJob is returned by Trigger for a name that was never registered.
var ErrUnknownJob = errors.New("cron: unknown job")

// JobStatus is a point-in-time view of one registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitzero"`
}

// entry is a registered job with its run lock and counters. A tick or
// Trigger that finds lock held is skipped, so a job never overlaps itself.
type entry struct {
	job      Job
	schedule cron.Schedule
	id       cron.EntryID
	lock     sync.Mutex

	mu      sync.Mutex
	running bool
	runs    int
	skipped int
	lastRun time.Time
	lastErr error
}

// Scheduler runs registered jobs on their cron schedules.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
	}
}

// RegisterJob adds a job. The schedule is parsed immediately so a bad
// expression fails assembly rather than Start.
func (s *Scheduler) RegisterJob(j Job) error {
	sched, err := ParseSchedule(j.Schedule())
	if err != nil {
		return fmt.Errorf("job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	e := &entry{job: j, schedule: sched}
	s.byName[name] = e
	s.entries = append(s.entries, e)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("cron: scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New(cron.WithParser(parser))

	for _, e := range s.entries {
		e.id = s.cron.Schedule(e.schedule, cron.FuncJob(func() {
			if !s.run(ctx, e) {
				s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
			}
		}))
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels the jobs' context and waits for in-flight runs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}

// Trigger runs the named job now, outside its schedule. It returns
// ErrJobBusy when the job is already running.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobBusy, name)
	}
	defer e.lock.Unlock()
	return s.exec(ctx, e)
}

// Status reports every job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	c := s.cron
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := JobStatus{
			Name:     e.job.Name(),
			Schedule: e.job.Schedule(),
			Running:  e.running,
			Runs:     e.runs,
			Skipped:  e.skipped,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		if c != nil {
			st.NextRun = c.Entry(e.id).Next
		}
		out = append(out, st)
	}
	return out
}

// run executes a scheduled tick. It reports false when the previous run of
// the same job still holds the lock.
func (s *Scheduler) run(ctx context.Context, e *entry) bool {
	if !e.lock.TryLock() {
		e.mu.Lock()
		e.skipped++
		e.mu.Unlock()
		return false
	}
	defer e.lock.Unlock()

	if err := s.exec(ctx, e); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
	}
	return true
}

// exec runs the job and records the outcome. Callers hold e.lock.
func (s *Scheduler) exec(ctx context.Context, e *entry) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)
	s.logger.Debug("cron: job finished", "job", e.job.Name(), "duration", time.Since(start), "error", err)

	e.mu.Lock()
	e.running = false
	e.runs++
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()
	return err
}
