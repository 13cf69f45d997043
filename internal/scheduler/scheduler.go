// Package scheduler runs the subscription lifecycle's periodic jobs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ruralpay/collections/internal/config"
	"github.com/ruralpay/collections/internal/models"
)

const jobTimeout = 10 * time.Minute

// Jobs is the work the scheduler triggers.
type Jobs interface {
	SweepExpired(ctx context.Context) (*models.SweepResult, error)
	SendExpiryWarnings(ctx context.Context) (*models.WarningResult, error)
}

// Scheduler manages the cron jobs. A run that is still going when its next
// tick fires is skipped, so sweeps never overlap.
type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	cfg  config.SchedulerConfig
}

func New(jobs Jobs, cfg config.SchedulerConfig) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	return &Scheduler{
		cron: c,
		jobs: jobs,
		cfg:  cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.RunSweep); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.cfg.SweepSpec, err)
	}
	log.Printf("[SCHEDULER] Scheduled expiry sweep: %s", s.cfg.SweepSpec)

	if len(s.cfg.WarningDays) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.WarningSpec, s.RunWarnings); err != nil {
			return fmt.Errorf("schedule expiry warnings %q: %w", s.cfg.WarningSpec, err)
		}
		log.Printf("[SCHEDULER] Scheduled expiry warnings: %s (days %v)", s.cfg.WarningSpec, s.cfg.WarningDays)
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.jobs.SweepExpired(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Expiry sweep failed: %v", err)
		return
	}
	log.Printf("[SCHEDULER] Expiry sweep finished in %s: %d processed, %d expired, %d failed",
		time.Since(start).Round(time.Millisecond), result.Processed, result.Expired, result.Failed)
}

func (s *Scheduler) RunWarnings() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.jobs.SendExpiryWarnings(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Expiry warnings finished with errors: %v", err)
	}
	if result != nil {
		log.Printf("[SCHEDULER] Expiry warnings: %d sent, %d skipped, %d failed", result.Sent, result.Skipped, result.Failed)
	}
}
