// Package scheduler periodically rebuilds the dataset in the background.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// RefreshFunc performs one dataset rebuild.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs the refresh job at a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresh   RefreshFunc
	interval  time.Duration
	timeout   time.Duration
	log       *slog.Logger
}

// New creates a Scheduler. The per-run timeout bounds how long one rebuild
// may take before its context is cancelled.
func New(interval, timeout time.Duration, refresh RefreshFunc, log *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresh:   refresh,
		interval:  interval,
		timeout:   timeout,
		log:       log,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run fires immediately.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().StartImmediately().Do(func() {
		s.log.Info("dataset refresh started")
		start := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.refresh(ctx); err != nil {
			s.log.Error("dataset refresh failed", "err", err)
			return
		}
		s.log.Info("dataset refresh completed", "took", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
