// Package scheduler runs the device's periodic background work: the
// automatic sync cycle and the offline phrase queue drain.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/dukerupert/famlingo/internal/syncer"
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	AutoSync(ctx context.Context)
	Drain(ctx context.Context) (*syncer.DrainResult, error)
}

// Config holds scheduler intervals.
type Config struct {
	SyncInterval  time.Duration
	DrainInterval time.Duration
}

// Scheduler manages scheduled tasks for the device agent.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	scheduler *gocron.Scheduler
	jobs      Jobs
	logger    *slog.Logger
	running   bool
}

func New(cfg Config, jobs Jobs, logger *slog.Logger) *Scheduler {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 15 * time.Minute
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		cfg:       cfg,
		scheduler: s,
		jobs:      jobs,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and runs them in the background until ctx is
// cancelled or Stop is called. Both jobs fire once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.scheduler.Every(s.cfg.SyncInterval).Do(s.sync, ctx); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	if _, err := s.scheduler.Every(s.cfg.DrainInterval).Do(s.drain, ctx); err != nil {
		s.scheduler.Clear()
		return fmt.Errorf("schedule drain: %w", err)
	}

	s.scheduler.StartAsync()
	s.running = true
	s.logger.Info("scheduler started", "sync_interval", s.cfg.SyncInterval, "drain_interval", s.cfg.DrainInterval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop terminates all scheduled tasks. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.scheduler.Stop()
	s.scheduler.Clear()
	s.running = false
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) sync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.jobs.AutoSync(ctx)
}

func (s *Scheduler) drain(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.jobs.Drain(ctx); err != nil {
		s.logger.Warn("queue drain incomplete", "error", err)
	}
}
