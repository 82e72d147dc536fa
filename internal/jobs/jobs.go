// Package jobs schedules periodic maintenance of the shared store.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/digkill/web3analysis/internal/metrics"
)

const jobTimeout = time.Minute

type GuardPurger interface {
	Purge(ctx context.Context) (int64, error)
}

type CreditExpirer interface {
	ExpireAll(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	guard   GuardPurger
	credits CreditExpirer
}

func NewScheduler(log *slog.Logger, guard GuardPurger, credits CreditExpirer) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With("component", "jobs"),
		guard:   guard,
		credits: credits,
	}
}

// Register adds both maintenance jobs on the given cron spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run("guard_cleanup", s.PurgeGuard) }); err != nil {
		return fmt.Errorf("schedule guard cleanup: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run("credit_expiry", s.ExpireCredits) }); err != nil {
		return fmt.Errorf("schedule credit expiry: %w", err)
	}
	return nil
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("maintenance jobs started", "jobs", len(s.cron.Entries()))
	go func() {
		<-ctx.Done()
		stopped := s.cron.Stop()
		select {
		case <-stopped.Done():
			s.log.Info("maintenance jobs stopped")
		case <-time.After(5 * time.Second):
			s.log.Warn("maintenance jobs forced to stop after timeout")
		}
	}()
}

// PurgeGuard deletes finished and stale dedup entries.
func (s *Scheduler) PurgeGuard(ctx context.Context) (int64, error) {
	return s.guard.Purge(ctx)
}

// ExpireCredits zeroes every account whose expiry has passed.
func (s *Scheduler) ExpireCredits(ctx context.Context) (int64, error) {
	return s.credits.ExpireAll(ctx)
}

func (s *Scheduler) run(name string, job func(ctx context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := job(ctx)
	metrics.RecordJob(name, err == nil)
	if err != nil {
		s.log.Error("maintenance job failed", "job", name, "err", err)
		return
	}
	if n > 0 {
		s.log.Info("maintenance job finished", "job", name, "affected", n, "duration_ms", time.Since(start).Milliseconds())
	}
}
