package scheduler

import (
	"testing"

	"github.com/keyhub-gw/keyhub/internal/checker"
	"github.com/keyhub-gw/keyhub/internal/proxydial"
	"github.com/keyhub-gw/keyhub/internal/testutil"
)

func newScheduler(schedule string) *Scheduler {
	c := checker.New(testutil.NewFakeStore(), proxydial.NewDialer(), nil)
	return New(c, schedule)
}

func TestDefaultSchedule(t *testing.T) {
	t.Parallel()
	s := newScheduler("")
	if s.schedule != DefaultSchedule {
		t.Errorf("schedule = %q, want %q", s.schedule, DefaultSchedule)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	s := newScheduler("@hourly")

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal("second Start should be a no-op:", err)
	}

	s.Stop()
	s.Stop() // must not panic
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := newScheduler("not a cron spec")
	if err := s.Start(); err == nil {
		t.Error("invalid schedule should fail Start")
		s.Stop()
	}
}

func TestStopThenStart(t *testing.T) {
	t.Parallel()
	s := newScheduler("@hourly")

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if err := s.Start(); err != nil {
		t.Fatal("restart after Stop failed:", err)
	}
	s.Stop()
}
