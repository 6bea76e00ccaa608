// Package scheduler drives periodic credential health checks on a cron
// schedule and exposes on-demand single and bulk variants.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/keyhub-gw/keyhub/internal/checker"
)

// DefaultSchedule runs a full check at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Scheduler owns the cron handle. The handle is process-local; a restart
// simply re-registers the schedule.
type Scheduler struct {
	checker  *checker.Checker
	schedule string

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc

	// runMu serialises full check runs so a slow job never overlaps the
	// next trigger.
	runMu sync.Mutex
}

// New returns a stopped Scheduler. An empty schedule selects DefaultSchedule.
func New(c *checker.Checker, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{checker: c, schedule: schedule}
}

// Start registers the cron trigger. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cr := cron.New()
	if _, err := cr.AddFunc(s.schedule, func() { s.runAll(ctx) }); err != nil {
		cancel()
		return err
	}
	cr.Start()
	s.cron = cr
	s.cancel = cancel
	slog.Info("key check scheduler started", "schedule", s.schedule)
	return nil
}

// Stop cancels the trigger. Idempotent; in-flight probes run to completion
// but no new batch starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cancel()
	s.cron = nil
	s.cancel = nil
	slog.Info("key check scheduler stopped")
}

// TriggerAll starts a full check in the background and returns immediately.
// Callers observe progress by polling the key records.
func (s *Scheduler) TriggerAll() {
	go s.runAll(context.Background())
}

// CheckOne probes a single key synchronously.
func (s *Scheduler) CheckOne(ctx context.Context, keyID string) error {
	return s.checker.CheckKey(ctx, keyID)
}

func (s *Scheduler) runAll(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if err := s.checker.CheckAll(ctx); err != nil && ctx.Err() == nil {
		slog.LogAttrs(ctx, slog.LevelError, "scheduled key check failed",
			slog.String("error", err.Error()),
		)
	}
}
