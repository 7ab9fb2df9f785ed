package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/model"
	"gym-calendar-agent/internal/pipeline"
)

// Scheduler triggers processing cycles periodically. Cycles never overlap: a
// trigger arriving while a cycle is running is dropped, not queued.
type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	config   *config.SchedulerConfig
	pipeline *pipeline.Pipeline

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, p *pipeline.Pipeline) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		config:   cfg,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.runCycle)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler and cancels any in-flight cycle. The act-first,
// mark-second ordering in the pipeline makes interruption safe: unmarked
// messages are simply re-fetched next time.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runCycle is the cron entry point.
func (s *Scheduler) runCycle() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping processing cycle")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.pipeline.RunCycle(ctx); err != nil {
		if errors.Is(err, pipeline.ErrCycleInProgress) {
			logrus.Info("Previous processing cycle still running, skipping this trigger")
			return
		}
		logrus.Errorf("Processing cycle failed: %v", err)
	}
}

// RunOnce triggers one processing cycle on demand and returns its summary.
// Returns pipeline.ErrCycleInProgress if a cycle is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.CycleSummary, error) {
	logrus.Info("Running processing cycle on demand")
	return s.pipeline.RunCycle(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for any in-flight cycle to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
