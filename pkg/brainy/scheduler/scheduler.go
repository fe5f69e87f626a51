// Package scheduler implements recurring job execution for the assistant.
// Uses robfig/cron for cron expression parsing and firing, pinned to a
// configured timezone. Jobs are fire-and-forget: a failed run is logged and
// the job simply waits for its next scheduled firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the work executed when a job fires.
type JobFunc func(ctx context.Context) error

// Scheduler manages recurring jobs on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID

	// running tracks in-flight jobs to prevent duplicate runs when a cron
	// fires while the previous run is still active.
	running map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler pinned to the named timezone.
func New(timezone string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		location = loc
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		location: location,
		logger:   logger.With("component", "scheduler"),
		entries:  make(map[string]cron.EntryID),
		running:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Location returns the scheduler's timezone.
func (s *Scheduler) Location() *time.Location { return s.location }

// Add registers a recurring job. Returns an error for an invalid schedule or
// a duplicate id.
func (s *Scheduler) Add(id, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return fmt.Errorf("job id is required")
	}
	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("job %q already exists", id)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runJob(id, fn)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.entries[id] = entryID
	s.logger.Info("job scheduled", "id", id, "schedule", schedule, "timezone", s.location.String())
	return nil
}

// Has reports whether a job with the given id is registered.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// runJob executes a job guarded against overlapping runs and panics.
func (s *Scheduler) runJob(id string, fn JobFunc) {
	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping this firing", "id", id)
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "id", id, "panic", r)
		}
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	start := time.Now()
	s.logger.Info("job firing", "id", id)

	if err := fn(s.ctx); err != nil {
		s.logger.Error("job failed", "id", id, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job completed", "id", id, "duration", time.Since(start))
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "timezone", s.location.String())
}

// Stop halts scheduling. In-flight jobs finish on their own.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}
