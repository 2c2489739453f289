package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the lifecycle jobs on their cadences in the background.
//
// Thread Safety: All public methods are thread-safe. The running state is
// protected by a mutex to prevent race conditions during Start/Stop.
type Scheduler struct {
	manager *Manager

	// dailyInterval paces decay, demotion, and failed-row cleanup.
	dailyInterval time.Duration

	// weeklyInterval paces generalization runs.
	weeklyInterval time.Duration

	// monthlyInterval paces pruning runs.
	monthlyInterval time.Duration

	// jobTimeout bounds each individual run.
	jobTimeout time.Duration

	// mu protects running and stopCh from concurrent access
	mu sync.Mutex

	// running tracks whether the scheduler is currently running
	running bool

	// stopCh is used to signal the scheduler to stop
	stopCh chan struct{}

	logger *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDailyInterval overrides the daily job cadence.
func WithDailyInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.dailyInterval = d
	}
}

// WithWeeklyInterval overrides the weekly job cadence.
func WithWeeklyInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.weeklyInterval = d
	}
}

// WithMonthlyInterval overrides the monthly job cadence.
func WithMonthlyInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.monthlyInterval = d
	}
}

// WithJobTimeout overrides the per-run timeout.
func WithJobTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.jobTimeout = d
	}
}

// NewScheduler creates a lifecycle scheduler.
//
// The scheduler does not start automatically - call Start() to begin
// scheduled runs.
func NewScheduler(manager *Manager, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Scheduler{
		manager:         manager,
		logger:          logger,
		dailyInterval:   24 * time.Hour,
		weeklyInterval:  7 * 24 * time.Hour,
		monthlyInterval: 30 * 24 * time.Hour,
		jobTimeout:      10 * time.Minute,
		running:         false,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background scheduler.
//
// This method is idempotent - calling Start() on an already running
// scheduler returns an error without starting a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	// Create a fresh stop channel for this run
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("lifecycle scheduler started",
		zap.Duration("daily_interval", s.dailyInterval),
		zap.Duration("weekly_interval", s.weeklyInterval),
		zap.Duration("monthly_interval", s.monthlyInterval),
	)

	go s.run()

	return nil
}

// Stop gracefully stops the scheduler.
//
// This method is idempotent - calling Stop() on an already stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("scheduler stop called but not running")
		return nil
	}

	s.logger.Info("stopping lifecycle scheduler")
	s.running = false

	// stopCh is recreated in Start() so it can be safely closed here
	close(s.stopCh)

	return nil
}

// run is the main scheduler loop. Each job run is independent - errors
// are logged but do not stop the scheduler.
func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	s.logger.Debug("scheduler goroutine started")
	defer s.logger.Debug("scheduler goroutine stopped")

	daily := time.NewTicker(s.dailyInterval)
	defer daily.Stop()
	weekly := time.NewTicker(s.weeklyInterval)
	defer weekly.Stop()
	monthly := time.NewTicker(s.monthlyInterval)
	defer monthly.Stop()

	for {
		select {
		case <-daily.C:
			s.safeRun("daily", s.manager.RunDaily)

		case <-weekly.C:
			s.safeRun("weekly", s.manager.RunWeekly)

		case <-monthly.C:
			s.safeRun("monthly", s.manager.RunMonthly)

		case <-s.stopCh:
			s.logger.Debug("scheduler received stop signal")
			return
		}
	}
}

// safeRun executes one job with a bounded context and panic recovery so a
// single run cannot crash the scheduler.
func (s *Scheduler) safeRun(name string, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("lifecycle job panicked, continuing scheduler",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	started := time.Now()
	s.logger.Info("lifecycle job starting", zap.String("job", name))
	job(ctx)
	s.logger.Info("lifecycle job completed",
		zap.String("job", name),
		zap.Duration("duration", time.Since(started)),
	)
}
